package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/steipete/vacationcal/internal/schedule"
	"github.com/steipete/vacationcal/internal/timeparse"
)

type Key string

func (k Key) String() string { return string(k) }

const (
	KeyEmailAddress   Key = "email_address"
	KeyCalendar       Key = "calendar"
	KeyWeekdays       Key = "weekdays"
	KeySendEmail      Key = "send_email"
	KeyStartTime      Key = "start_time"
	KeyDayLengthHours Key = "day_length_hours"
	KeyMaxHistory     Key = "max_history"
	KeyHistoryDir     Key = "history_dir"
	KeyKeyringBackend Key = "keyring_backend"
	KeyAccount        Key = "account"
	KeyClient         Key = "client"
)

var errUnknownKey = errors.New("unknown config key")

type KeySpec struct {
	Key       Key
	Help      string
	EmptyHint func() string
	get       func(File) string
	set       func(*File, string) error
	unset     func(*File)
}

var keySpecs = []KeySpec{
	{
		Key:  KeyEmailAddress,
		Help: "Notification recipient",
		get:  func(c File) string { return c.EmailAddress },
		set: func(c *File, v string) error {
			if !schedule.ValidEmail(v) {
				return fmt.Errorf("invalid email address %q", v)
			}
			c.EmailAddress = strings.TrimSpace(v)
			return nil
		},
		unset: func(c *File) { c.EmailAddress = "" },
	},
	{
		Key:       KeyCalendar,
		Help:      "Default calendar name or id",
		EmptyHint: func() string { return "primary" },
		get:       func(c File) string { return c.Calendar },
		set:       func(c *File, v string) error { c.Calendar = strings.TrimSpace(v); return nil },
		unset:     func(c *File) { c.Calendar = "" },
	},
	{
		Key:       KeyWeekdays,
		Help:      "Default weekdays (mon,tue,... or weekdays/weekend)",
		EmptyHint: func() string { return strings.Join(DefaultWeekdays, ",") + " (default)" },
		get:       func(c File) string { return strings.Join(c.Weekdays, ",") },
		set: func(c *File, v string) error {
			days, err := timeparse.ParseWeekdays(v)
			if err != nil {
				return err
			}
			names := schedule.WeekdayNames(days)
			for i := range names {
				names[i] = strings.ToLower(names[i])
			}
			c.Weekdays = names
			return nil
		},
		unset: func(c *File) { c.Weekdays = nil },
	},
	{
		Key:       KeySendEmail,
		Help:      "Send notification emails (true/false)",
		EmptyHint: func() string { return "true (default)" },
		get: func(c File) string {
			if c.SendEmail == nil {
				return ""
			}
			return strconv.FormatBool(*c.SendEmail)
		},
		set: func(c *File, v string) error {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("send_email: %w", err)
			}
			c.SendEmail = &b
			return nil
		},
		unset: func(c *File) { c.SendEmail = nil },
	},
	{
		Key:       KeyStartTime,
		Help:      "Default start time (HH:MM)",
		EmptyHint: func() string { return DefaultStartTime + " (default)" },
		get:       func(c File) string { return c.StartTime },
		set: func(c *File, v string) error {
			clock, err := timeparse.ParseClock(v)
			if err != nil {
				return err
			}
			c.StartTime = clock.String()
			return nil
		},
		unset: func(c *File) { c.StartTime = "" },
	},
	{
		Key:       KeyDayLengthHours,
		Help:      "Default hours per day",
		EmptyHint: func() string { return "8 (default)" },
		get: func(c File) string {
			if c.DayLengthHours <= 0 {
				return ""
			}
			return strconv.FormatFloat(c.DayLengthHours, 'f', -1, 64)
		},
		set: func(c *File, v string) error {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil || f <= 0 || f > 24 {
				return fmt.Errorf("day_length_hours must be between 0 and 24, got %q", v)
			}
			c.DayLengthHours = f
			return nil
		},
		unset: func(c *File) { c.DayLengthHours = 0 },
	},
	{
		Key:       KeyMaxHistory,
		Help:      "Operations kept per history stack",
		EmptyHint: func() string { return strconv.Itoa(DefaultMaxHistory) + " (default)" },
		get: func(c File) string {
			if c.MaxHistory <= 0 {
				return ""
			}
			return strconv.Itoa(c.MaxHistory)
		},
		set: func(c *File, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil || n <= 0 {
				return fmt.Errorf("max_history must be a positive integer, got %q", v)
			}
			c.MaxHistory = n
			return nil
		},
		unset: func(c *File) { c.MaxHistory = 0 },
	},
	{
		Key:       KeyHistoryDir,
		Help:      "Directory holding undo_history.json",
		EmptyHint: func() string { return "(config dir)" },
		get:       func(c File) string { return c.HistoryDir },
		set:       func(c *File, v string) error { c.HistoryDir = strings.TrimSpace(v); return nil },
		unset:     func(c *File) { c.HistoryDir = "" },
	},
	{
		Key:  KeyKeyringBackend,
		Help: "Keyring backend (auto|keychain|file)",
		get:  func(c File) string { return c.KeyringBackend },
		set: func(c *File, v string) error {
			v = strings.ToLower(strings.TrimSpace(v))
			switch v {
			case "auto", "keychain", "file":
				c.KeyringBackend = v
				return nil
			default:
				return fmt.Errorf("keyring_backend must be auto, keychain or file, got %q", v)
			}
		},
		unset: func(c *File) { c.KeyringBackend = "" },
	},
	{
		Key:   KeyAccount,
		Help:  "Default Google account",
		get:   func(c File) string { return c.Account },
		set:   func(c *File, v string) error { c.Account = strings.ToLower(strings.TrimSpace(v)); return nil },
		unset: func(c *File) { c.Account = "" },
	},
	{
		Key:       KeyClient,
		Help:      "Default OAuth client name",
		EmptyHint: func() string { return DefaultClientName + " (default)" },
		get:       func(c File) string { return c.Client },
		set: func(c *File, v string) error {
			name, err := NormalizeClientName(v)
			if err != nil {
				return err
			}
			c.Client = name
			return nil
		},
		unset: func(c *File) { c.Client = "" },
	},
}

func KeyList() []Key {
	out := make([]Key, 0, len(keySpecs))
	for _, s := range keySpecs {
		out = append(out, s.Key)
	}
	return out
}

func KeyNames() []string {
	out := make([]string, 0, len(keySpecs))
	for _, s := range keySpecs {
		out = append(out, s.Key.String())
	}
	return out
}

// ParseKey accepts keys case-insensitively and with dashes for underscores.
func ParseKey(raw string) (Key, error) {
	k := Key(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_"))
	if _, err := KeySpecFor(k); err != nil {
		return "", err
	}
	return k, nil
}

func KeySpecFor(key Key) (KeySpec, error) {
	for _, s := range keySpecs {
		if s.Key == key {
			return s, nil
		}
	}
	return KeySpec{}, fmt.Errorf("%w: %q (known: %s)", errUnknownKey, key, strings.Join(KeyNames(), ", "))
}

func GetValue(cfg File, key Key) string {
	spec, err := KeySpecFor(key)
	if err != nil {
		return ""
	}
	return spec.get(cfg)
}

func SetValue(cfg *File, key Key, value string) error {
	spec, err := KeySpecFor(key)
	if err != nil {
		return err
	}
	return spec.set(cfg, value)
}

func UnsetValue(cfg *File, key Key) error {
	spec, err := KeySpecFor(key)
	if err != nil {
		return err
	}
	spec.unset(cfg)
	return nil
}
