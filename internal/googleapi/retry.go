package googleapi

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 500 * time.Millisecond
	maxRetryDelay     = 10 * time.Second
)

// RetryTransport retries 429 and 5xx responses with exponential backoff,
// honoring Retry-After when the server sends it.
type RetryTransport struct {
	Base       http.RoundTripper
	MaxRetries int
	BaseDelay  time.Duration

	sleep func(time.Duration, <-chan struct{}) bool
}

func NewRetryTransport(base http.RoundTripper) *RetryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RetryTransport{Base: base, MaxRetries: defaultMaxRetries, BaseDelay: defaultBaseDelay}
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if attempt > 0 && req.Body != nil && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req.Body = body
		}

		resp, err := t.Base.RoundTrip(req)
		if err != nil || !retryable(resp.StatusCode) || attempt >= t.MaxRetries {
			return resp, err
		}
		// A consumed body without GetBody cannot be replayed.
		if req.Body != nil && req.GetBody == nil {
			return resp, nil
		}

		delay := t.delay(attempt, resp)
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		if !t.wait(delay, req.Context().Done()) {
			return nil, req.Context().Err()
		}
	}
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func (t *RetryTransport) delay(attempt int, resp *http.Response) time.Duration {
	if v := strings.TrimSpace(resp.Header.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return min(time.Duration(secs)*time.Second, maxRetryDelay)
		}
	}
	base := t.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	return min(base<<attempt, maxRetryDelay)
}

func (t *RetryTransport) wait(d time.Duration, done <-chan struct{}) bool {
	if t.sleep != nil {
		return t.sleep(d, done)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-done:
		return false
	}
}
