package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/99designs/keyring"
	"golang.org/x/term"

	"github.com/steipete/vacationcal/internal/config"
)

const (
	keyringPasswordEnv = "VACAL_KEYRING_PASSWORD" //nolint:gosec // env var name, not a credential
	keyringBackendEnv  = "VACAL_KEYRING_BACKEND"

	tokenKeyPrefix    = "token:"
	defaultAccountKey = "default_account"
)

var (
	errMissingEmail        = errors.New("missing email")
	errMissingRefreshToken = errors.New("missing refresh token")
	errNoTTY               = errors.New("no TTY available for keyring file backend password prompt; set " + keyringPasswordEnv)
	errUnknownBackend      = errors.New("unknown keyring backend")
)

// Store keeps OAuth refresh tokens per (client, email).
type Store interface {
	Keys() ([]string, error)
	SetToken(client string, email string, tok Token) error
	GetToken(client string, email string) (Token, error)
	DeleteToken(client string, email string) error
	ListTokens() ([]Token, error)
	GetDefaultAccount(client string) (string, error)
	SetDefaultAccount(client string, email string) error
}

type Token struct {
	Client       string    `json:"client,omitempty"`
	Email        string    `json:"email"`
	Services     []string  `json:"services,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	RefreshToken string    `json:"-"`
}

type storedToken struct {
	RefreshToken string    `json:"refresh_token"`
	Services     []string  `json:"services,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

type KeyringStore struct {
	ring keyring.Keyring
}

type KeyringBackendInfo struct {
	Value  string
	Source string
}

const (
	keyringBackendSourceEnv     = "env"
	keyringBackendSourceConfig  = "config"
	keyringBackendSourceDefault = "default"
	keyringBackendAuto          = "auto"
)

// ResolveKeyringBackendInfo picks the backend from VACAL_KEYRING_BACKEND,
// then config.json, then "auto".
func ResolveKeyringBackendInfo() (KeyringBackendInfo, error) {
	if v := strings.ToLower(strings.TrimSpace(os.Getenv(keyringBackendEnv))); v != "" {
		return KeyringBackendInfo{Value: v, Source: keyringBackendSourceEnv}, nil
	}
	cfg, err := config.ReadConfig()
	if err != nil {
		return KeyringBackendInfo{}, fmt.Errorf("resolve keyring backend: %w", err)
	}
	if v := strings.ToLower(strings.TrimSpace(cfg.KeyringBackend)); v != "" {
		return KeyringBackendInfo{Value: v, Source: keyringBackendSourceConfig}, nil
	}
	return KeyringBackendInfo{Value: keyringBackendAuto, Source: keyringBackendSourceDefault}, nil
}

func allowedBackends(info KeyringBackendInfo) ([]keyring.BackendType, error) {
	switch info.Value {
	case "", keyringBackendAuto:
		return nil, nil
	case "keychain":
		return []keyring.BackendType{keyring.KeychainBackend}, nil
	case "file":
		return []keyring.BackendType{keyring.FileBackend}, nil
	default:
		return nil, fmt.Errorf("%w: %q (expected auto, keychain or file)", errUnknownBackend, info.Value)
	}
}

func fileKeyringPasswordFuncFrom(password string, isTTY bool) keyring.PromptFunc {
	if password != "" {
		return keyring.FixedStringPrompt(password)
	}
	if isTTY {
		return keyring.TerminalPrompt
	}
	return func(string) (string, error) {
		return "", errNoTTY
	}
}

func openKeyring() (keyring.Keyring, error) {
	info, err := ResolveKeyringBackendInfo()
	if err != nil {
		return nil, err
	}
	backends, err := allowedBackends(info)
	if err != nil {
		return nil, err
	}
	dir, err := config.EnsureDir()
	if err != nil {
		return nil, err
	}

	password, hasPassword := os.LookupEnv(keyringPasswordEnv)
	cfg := keyring.Config{
		ServiceName:              config.AppName,
		AllowedBackends:          backends,
		KeychainTrustApplication: true,
		FileDir:                  filepath.Join(dir, "keyring"),
		FilePasswordFunc:         fileKeyringPasswordFuncFrom(password, !hasPassword && term.IsTerminal(int(os.Stdin.Fd()))),
	}
	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", wrapKeychainError(err))
	}
	return ring, nil
}

var openKeyringFunc = openKeyring

func OpenDefault() (Store, error) {
	ring, err := openKeyringFunc()
	if err != nil {
		return nil, err
	}
	return &KeyringStore{ring: ring}, nil
}

// wrapKeychainError adds an unlock hint for macOS "keychain locked" (-25308).
func wrapKeychainError(err error) error {
	if err == nil || runtime.GOOS != "darwin" {
		return err
	}
	if strings.Contains(err.Error(), "-25308") {
		return fmt.Errorf("keychain is locked; unlock it or set %s=file: %w", keyringBackendEnv, err)
	}
	return err
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func tokenKey(client string, email string) string {
	return tokenKeyPrefix + client + ":" + email
}

// TokenKey is the keyring key for a refresh token.
func TokenKey(client string, email string) string {
	client, err := config.NormalizeClientNameOrDefault(client)
	if err != nil {
		client = config.DefaultClientName
	}
	return tokenKey(client, normalize(email))
}

// ParseTokenKey splits token:<client>:<email>; token:<email> is the default client.
func ParseTokenKey(k string) (client string, email string, ok bool) {
	if !strings.HasPrefix(k, tokenKeyPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(k, tokenKeyPrefix)
	if rest == "" {
		return "", "", false
	}
	if i := strings.Index(rest, ":"); i >= 0 {
		client, email = rest[:i], rest[i+1:]
	} else {
		client, email = config.DefaultClientName, rest
	}
	if strings.TrimSpace(client) == "" || strings.TrimSpace(email) == "" {
		return "", "", false
	}
	return client, email, true
}

func defaultAccountKeyForClient(client string) string {
	return defaultAccountKey + ":" + client
}

func (s *KeyringStore) Keys() ([]string, error) {
	keys, err := s.ring.Keys()
	if err != nil {
		return nil, wrapKeychainError(err)
	}
	return keys, nil
}

func (s *KeyringStore) SetToken(client string, email string, tok Token) error {
	email = normalize(email)
	if email == "" {
		return errMissingEmail
	}
	if tok.RefreshToken == "" {
		return errMissingRefreshToken
	}
	client, err := config.NormalizeClientNameOrDefault(client)
	if err != nil {
		return err
	}
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(storedToken{
		RefreshToken: tok.RefreshToken,
		Services:     tok.Services,
		Scopes:       tok.Scopes,
		CreatedAt:    tok.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := s.ring.Set(keyring.Item{Key: tokenKey(client, email), Data: payload, Label: config.AppName}); err != nil {
		return fmt.Errorf("store token: %w", wrapKeychainError(err))
	}
	return nil
}

func (s *KeyringStore) GetToken(client string, email string) (Token, error) {
	email = normalize(email)
	if email == "" {
		return Token{}, errMissingEmail
	}
	client, err := config.NormalizeClientNameOrDefault(client)
	if err != nil {
		return Token{}, err
	}

	item, err := s.ring.Get(tokenKey(client, email))
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return Token{}, err
		}
		return Token{}, fmt.Errorf("read token: %w", wrapKeychainError(err))
	}
	var st storedToken
	if err := json.Unmarshal(item.Data, &st); err != nil {
		return Token{}, fmt.Errorf("decode token: %w", err)
	}
	return Token{
		Client:       client,
		Email:        email,
		Services:     st.Services,
		Scopes:       st.Scopes,
		CreatedAt:    st.CreatedAt,
		RefreshToken: st.RefreshToken,
	}, nil
}

func (s *KeyringStore) DeleteToken(client string, email string) error {
	email = normalize(email)
	if email == "" {
		return errMissingEmail
	}
	client, err := config.NormalizeClientNameOrDefault(client)
	if err != nil {
		return err
	}
	if err := s.ring.Remove(tokenKey(client, email)); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("delete token: %w", wrapKeychainError(err))
	}
	return nil
}

func (s *KeyringStore) ListTokens() ([]Token, error) {
	keys, err := s.Keys()
	if err != nil {
		return nil, err
	}
	var out []Token
	for _, k := range keys {
		client, email, ok := ParseTokenKey(k)
		if !ok {
			continue
		}
		tok, err := s.GetToken(client, email)
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Client != out[j].Client {
			return out[i].Client < out[j].Client
		}
		return out[i].Email < out[j].Email
	})
	return out, nil
}

func (s *KeyringStore) GetDefaultAccount(client string) (string, error) {
	client, err := config.NormalizeClientNameOrDefault(client)
	if err != nil {
		return "", err
	}
	item, err := s.ring.Get(defaultAccountKeyForClient(client))
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("read default account: %w", wrapKeychainError(err))
	}
	return string(item.Data), nil
}

func (s *KeyringStore) SetDefaultAccount(client string, email string) error {
	email = normalize(email)
	if email == "" {
		return errMissingEmail
	}
	client, err := config.NormalizeClientNameOrDefault(client)
	if err != nil {
		return err
	}
	if err := s.ring.Set(keyring.Item{Key: defaultAccountKeyForClient(client), Data: []byte(email), Label: config.AppName}); err != nil {
		return fmt.Errorf("store default account: %w", wrapKeychainError(err))
	}
	return nil
}
