package googleauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/steipete/vacationcal/internal/config"
)

// Manual authorizations span two invocations: one prints the consent URL,
// the next receives the pasted redirect. The state and redirect URI of the
// first are parked in oauth-pending.json until then.
const (
	pendingFile = "oauth-pending.json"
	pendingTTL  = 10 * time.Minute
)

type pendingAuth struct {
	State        string    `json:"state"`
	RedirectURI  string    `json:"redirect_uri"`
	Client       string    `json:"client"`
	Scopes       []string  `json:"scopes"`
	ForceConsent bool      `json:"force_consent,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type pendingKey struct {
	client       string
	scopes       string
	forceConsent bool
}

func keyFor(client string, scopes []string, forceConsent bool) pendingKey {
	sorted := slices.Clone(scopes)
	slices.Sort(sorted)
	return pendingKey{client: client, scopes: strings.Join(sorted, " "), forceConsent: forceConsent}
}

func (p pendingAuth) key() pendingKey { return keyFor(p.Client, p.Scopes, p.ForceConsent) }

var (
	pendingDirFn = config.EnsureDir
	pendingNowFn = time.Now
)

func pendingPath() (string, error) {
	dir, err := pendingDirFn()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, pendingFile), nil
}

// readPending returns unexpired entries. A missing or corrupt file is empty.
func readPending() ([]pendingAuth, error) {
	path, err := pendingPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // config dir
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pending auth: %w", err)
	}

	var all []pendingAuth
	if json.Unmarshal(data, &all) != nil {
		return nil, nil
	}
	now := pendingNowFn()
	return slices.DeleteFunc(all, func(p pendingAuth) bool {
		return p.State == "" || p.RedirectURI == "" || now.Sub(p.CreatedAt) > pendingTTL
	}), nil
}

func writePending(all []pendingAuth) error {
	path, err := pendingPath()
	if err != nil {
		return err
	}
	if len(all) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove pending auth: %w", err)
		}
		return nil
	}
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encode pending auth: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write pending auth: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit pending auth: %w", err)
	}
	return nil
}

// findPending returns the newest entry started with the same client, scopes
// and consent mode.
func findPending(k pendingKey) (pendingAuth, bool, error) {
	all, err := readPending()
	if err != nil {
		return pendingAuth{}, false, err
	}
	var best pendingAuth
	for _, p := range all {
		if p.key() == k && p.CreatedAt.After(best.CreatedAt) {
			best = p
		}
	}
	return best, best.State != "", nil
}

// rememberPending stores p, replacing any entry for the same key.
func rememberPending(p pendingAuth) error {
	all, err := readPending()
	if err != nil {
		return err
	}
	k := p.key()
	all = slices.DeleteFunc(all, func(o pendingAuth) bool { return o.key() == k })
	p.CreatedAt = pendingNowFn().UTC()
	return writePending(append(all, p))
}

func forgetPending(state string) error {
	all, err := readPending()
	if err != nil {
		return err
	}
	return writePending(slices.DeleteFunc(all, func(p pendingAuth) bool { return p.State == state }))
}
