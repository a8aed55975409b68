package googleauth

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"
)

var openBrowserFn = openBrowser

// loopback serves the redirect on 127.0.0.1 and waits for one callback.
func (f *flow) loopback(ctx context.Context) (string, error) {
	state, err := randomStateFn()
	if err != nil {
		return "", err
	}
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("listen for callback: %w", err)
	}
	defer func() { _ = ln.Close() }()
	f.cfg.RedirectURL = loopbackURI(ln)

	results := make(chan callbackResult, 1)
	srv := &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           callbackHandler(state, results),
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			deliver(results, callbackResult{err: err})
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := f.authURL(state)
	fmt.Fprintf(os.Stderr, "Opening browser for authorization…\nIf the browser doesn't open, visit this URL:\n%s\n", authURL)
	_ = openBrowserFn(authURL)

	select {
	case res := <-results:
		if res.err != nil {
			return "", res.err
		}
		fmt.Fprintln(os.Stderr, "Authorization received. Finishing…")
		return f.exchange(ctx, res.code)
	case <-ctx.Done():
		return "", fmt.Errorf("authorization canceled: %w", ctx.Err())
	}
}

type callbackResult struct {
	code string
	err  error
}

// deliver keeps the first result; later callbacks are dropped.
func deliver(ch chan<- callbackResult, r callbackResult) {
	select {
	case ch <- r:
	default:
	}
}

func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("error") != "":
			deliver(results, callbackResult{err: fmt.Errorf("%w: %s", errAuthorization, q.Get("error"))})
			renderPage(w, http.StatusOK, "Authorization cancelled", "You can close this window.")
		case q.Get("state") != state:
			deliver(results, callbackResult{err: errStateMismatch})
			renderPage(w, http.StatusBadRequest, "Authorization failed", "State mismatch. Please try again.")
		case q.Get("code") == "":
			deliver(results, callbackResult{err: errMissingCode})
			renderPage(w, http.StatusBadRequest, "Authorization failed", "Missing authorization code. Please try again.")
		default:
			deliver(results, callbackResult{code: q.Get("code")})
			renderPage(w, http.StatusOK, "vacal is authorized", "You can close this window and return to the terminal.")
		}
	})
	return mux
}

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family: system-ui, sans-serif; margin: 4em auto; max-width: 32em;">
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</body></html>
`))

func renderPage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = pageTemplate.Execute(w, struct{ Title, Message string }{title, message})
}

func openBrowser(target string) error {
	name, args := "xdg-open", []string{target}
	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "windows":
		name, args = "rundll32", []string{"url.dll,FileProtocolHandler", target}
	}
	return exec.Command(name, args...).Start() //nolint:gosec // fixed launcher
}
