package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

const (
	DefaultStartTime      = "09:00"
	DefaultDayLengthHours = 8.0
	DefaultMaxHistory     = 50
)

// DefaultWeekdays are all seven days, Monday first.
var DefaultWeekdays = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// File is the on-disk config.json. Unset fields fall back to the defaults
// applied by WithDefaults.
type File struct {
	EmailAddress   string   `json:"email_address,omitempty"`
	Calendar       string   `json:"calendar,omitempty"`
	Weekdays       []string `json:"weekdays,omitempty"`
	SendEmail      *bool    `json:"send_email,omitempty"`
	StartTime      string   `json:"start_time,omitempty"`
	DayLengthHours float64  `json:"day_length_hours,omitempty"`
	MaxHistory     int      `json:"max_history,omitempty"`
	HistoryDir     string   `json:"history_dir,omitempty"`
	KeyringBackend string   `json:"keyring_backend,omitempty"`
	Account        string   `json:"account,omitempty"`
	Client         string   `json:"client,omitempty"`
}

// WithDefaults returns cfg with every scheduling default filled in.
func (cfg File) WithDefaults() File {
	if len(cfg.Weekdays) == 0 {
		cfg.Weekdays = append([]string(nil), DefaultWeekdays...)
	}
	if cfg.SendEmail == nil {
		on := true
		cfg.SendEmail = &on
	}
	if cfg.StartTime == "" {
		cfg.StartTime = DefaultStartTime
	}
	if cfg.DayLengthHours <= 0 {
		cfg.DayLengthHours = DefaultDayLengthHours
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	return cfg
}

// SendEmailEnabled reports send_email, defaulting to true.
func (cfg File) SendEmailEnabled() bool {
	return cfg.SendEmail == nil || *cfg.SendEmail
}

// ReadConfig loads config.json. A missing file yields an empty File.
// Comments and trailing commas are accepted.
func ReadConfig() (File, error) {
	path, err := ConfigPath()
	if err != nil {
		return File{}, err
	}
	b, err := os.ReadFile(path) //nolint:gosec // config path
	if err != nil {
		if os.IsNotExist(err) {
			return File{}, nil
		}
		return File{}, fmt.Errorf("read config: %w", err)
	}

	var cfg File
	if err := json5.Unmarshal(b, &cfg); err != nil {
		return File{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// WriteConfig stores cfg as indented JSON, replacing the file atomically.
func WriteConfig(cfg File) error {
	if _, err := EnsureDir(); err != nil {
		return err
	}
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.json.tmp")
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("commit config: %w", err)
	}
	return nil
}
