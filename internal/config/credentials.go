package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const DefaultClientName = "default"

var (
	errInvalidClientName  = errors.New("invalid client name")
	errMissingClientField = errors.New("credentials missing client_id or client_secret")
	clientNamePattern     = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}$`)
)

type ClientCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// CredentialsMissingError means no OAuth client is stored for Client.
type CredentialsMissingError struct {
	Client string
	Path   string
	Cause  error
}

func (e *CredentialsMissingError) Error() string {
	return fmt.Sprintf("OAuth client credentials missing for client %q (expected %s); run `vacal auth credentials <path>`", e.Client, e.Path)
}

func (e *CredentialsMissingError) Unwrap() error { return e.Cause }

func NormalizeClientName(raw string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if !clientNamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", errInvalidClientName, raw)
	}
	return name, nil
}

func NormalizeClientNameOrDefault(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultClientName, nil
	}
	return NormalizeClientName(raw)
}

func ClientCredentialsPathFor(client string) (string, error) {
	client, err := NormalizeClientNameOrDefault(client)
	if err != nil {
		return "", err
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if client == DefaultClientName {
		return filepath.Join(dir, "credentials.json"), nil
	}
	return filepath.Join(dir, "credentials-"+client+".json"), nil
}

func ReadClientCredentialsFor(client string) (ClientCredentials, error) {
	client, err := NormalizeClientNameOrDefault(client)
	if err != nil {
		return ClientCredentials{}, err
	}
	path, err := ClientCredentialsPathFor(client)
	if err != nil {
		return ClientCredentials{}, err
	}
	b, err := os.ReadFile(path) //nolint:gosec // config path
	if err != nil {
		if os.IsNotExist(err) {
			return ClientCredentials{}, &CredentialsMissingError{Client: client, Path: path, Cause: err}
		}
		return ClientCredentials{}, fmt.Errorf("read credentials: %w", err)
	}
	var creds ClientCredentials
	if err := json.Unmarshal(b, &creds); err != nil {
		return ClientCredentials{}, fmt.Errorf("parse credentials %s: %w", path, err)
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return ClientCredentials{}, fmt.Errorf("%s: %w", path, errMissingClientField)
	}
	return creds, nil
}

func WriteClientCredentialsFor(client string, creds ClientCredentials) error {
	path, err := ClientCredentialsPathFor(client)
	if err != nil {
		return err
	}
	if _, err := EnsureDir(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit credentials: %w", err)
	}
	return nil
}

// ParseGoogleOAuthClientJSON reads a client secret file downloaded from the
// Google Cloud console ("installed" or "web" application) or an already
// flattened {client_id, client_secret} document.
func ParseGoogleOAuthClientJSON(b []byte) (ClientCredentials, error) {
	var doc struct {
		Installed *ClientCredentials `json:"installed"`
		Web       *ClientCredentials `json:"web"`
		ClientCredentials
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return ClientCredentials{}, fmt.Errorf("parse OAuth client JSON: %w", err)
	}
	creds := doc.ClientCredentials
	switch {
	case doc.Installed != nil:
		creds = *doc.Installed
	case doc.Web != nil:
		creds = *doc.Web
	}
	if strings.TrimSpace(creds.ClientID) == "" || strings.TrimSpace(creds.ClientSecret) == "" {
		return ClientCredentials{}, errMissingClientField
	}
	return creds, nil
}

type ClientCredentialsInfo struct {
	Client  string `json:"client"`
	Path    string `json:"path"`
	Default bool   `json:"default"`
}

func ListClientCredentials() ([]ClientCredentialsInfo, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config dir: %w", err)
	}

	var out []ClientCredentialsInfo
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		switch {
		case name == "credentials.json":
			out = append(out, ClientCredentialsInfo{Client: DefaultClientName, Path: filepath.Join(dir, name), Default: true})
		case strings.HasPrefix(name, "credentials-"):
			client := strings.TrimSuffix(strings.TrimPrefix(name, "credentials-"), ".json")
			if _, err := NormalizeClientName(client); err != nil {
				continue
			}
			out = append(out, ClientCredentialsInfo{Client: client, Path: filepath.Join(dir, name)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Client < out[j].Client })
	return out, nil
}
