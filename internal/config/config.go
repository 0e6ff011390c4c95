package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RequiredKeys lists the top-level keys every configuration document must
// carry. They are checked eagerly on load so a broken file is reported in
// full at startup instead of one key at a time.
var RequiredKeys = []string{
	"access_token",
	"busy_only",
	"debug_mode",
	"device_id",
	"display_meeting_summary",
	"ignore_in_summary",
	"reboot_counter_limit",
	"reminder_only",
	"use_reboot_counter",
	"use_remote_notify",
	"use_working_hours",
	"work_end",
	"work_start",
}

// Calendar source kinds.
const (
	SourceGoogle = "google"
	SourceICS    = "ics"
)

// ConfigurationError reports a configuration document that cannot be used.
// It is fatal at startup.
type ConfigurationError struct {
	// Missing holds every required key absent from the document.
	Missing []string
	// Key names the offending key for malformed values.
	Key string
	Err error
}

func (e *ConfigurationError) Error() string {
	switch {
	case len(e.Missing) > 0:
		return "config: missing required keys: " + strings.Join(e.Missing, ", ")
	case e.Key != "" && e.Err != nil:
		return fmt.Sprintf("config: invalid %s: %v", e.Key, e.Err)
	case e.Err != nil:
		return "config: " + e.Err.Error()
	default:
		return "config: invalid configuration"
	}
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// CalendarConfig selects and configures the calendar source.
type CalendarConfig struct {
	// Source is "google" (default) or "ics".
	Source string `yaml:"source" json:"source"`

	// CalendarID is the Google calendar to poll ("primary" by default).
	CalendarID string `yaml:"calendar_id" json:"calendar_id"`
	// CredentialsFile is the OAuth client secret JSON downloaded from the
	// Google Cloud console.
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
	// TokenFile stores the user's access/refresh token after authorization.
	TokenFile string `yaml:"token_file" json:"token_file"`

	// ICSURL is the subscription URL when Source is "ics".
	ICSURL string `yaml:"ics_url,omitempty" json:"ics_url,omitempty"`
	// CacheDir keeps the last good ICS body for offline fallback.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// DisplayConfig controls the LED matrix.
type DisplayConfig struct {
	// Disabled skips the hardware entirely; effects are logged instead.
	Disabled bool `yaml:"disabled" json:"disabled"`
	// Brightness scales every pixel, 0 < b <= 1.
	Brightness float64 `yaml:"brightness" json:"brightness"`
	// Rotation in degrees, a multiple of 90.
	Rotation int `yaml:"rotation" json:"rotation"`
}

// ParticleConfig points the remote beacon at the Particle cloud.
type ParticleConfig struct {
	APIURL   string `yaml:"api_url" json:"api_url"`
	Function string `yaml:"function" json:"function"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	AccessToken           string   `yaml:"access_token" json:"access_token"`
	BusyOnly              bool     `yaml:"busy_only" json:"busy_only"`
	DebugMode             bool     `yaml:"debug_mode" json:"debug_mode"`
	DeviceID              string   `yaml:"device_id" json:"device_id"`
	DisplayMeetingSummary bool     `yaml:"display_meeting_summary" json:"display_meeting_summary"`
	IgnoreInSummary       []string `yaml:"ignore_in_summary" json:"ignore_in_summary"`
	RebootCounterLimit    int      `yaml:"reboot_counter_limit" json:"reboot_counter_limit"`
	ReminderOnly          bool     `yaml:"reminder_only" json:"reminder_only"`
	UseRebootCounter      bool     `yaml:"use_reboot_counter" json:"use_reboot_counter"`
	UseRemoteNotify       bool     `yaml:"use_remote_notify" json:"use_remote_notify"`
	UseWorkingHours       bool     `yaml:"use_working_hours" json:"use_working_hours"`
	WorkStart             string   `yaml:"work_start" json:"work_start"`
	WorkEnd               string   `yaml:"work_end" json:"work_end"`

	// Timezone is the IANA zone used for working hours (e.g. "America/New_York").
	// Empty means the host's local zone.
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty"`

	// SearchWindowMinutes bounds the calendar query and caps the reported
	// minutes to the next event.
	SearchWindowMinutes int `yaml:"search_window_minutes" json:"search_window_minutes"`

	// PollSchedule is a cron expression for the polling driver.
	PollSchedule string `yaml:"poll_schedule" json:"poll_schedule"`

	// Listen is the HTTP listen address for the status API. Empty disables it.
	Listen    string           `yaml:"listen,omitempty" json:"listen,omitempty"`
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`
	Display  DisplayConfig  `yaml:"display" json:"display"`
	Particle ParticleConfig `yaml:"particle" json:"particle"`
}

// DefaultConfig returns an in-memory default configuration. It carries every
// required key so a freshly written file loads cleanly.
func DefaultConfig() *Config {
	return &Config{
		BusyOnly:              false,
		DebugMode:             false,
		DisplayMeetingSummary: true,
		IgnoreInSummary:       []string{},
		RebootCounterLimit:    10,
		UseWorkingHours:       false,
		WorkStart:             "8:00",
		WorkEnd:               "17:30",
		SearchWindowMinutes:   10,
		PollSchedule:          "* * * * *",
		Calendar: CalendarConfig{
			Source:          SourceGoogle,
			CalendarID:      "primary",
			CredentialsFile: "/etc/remindhd/credentials.json",
			TokenFile:       "/var/lib/remindhd/token.json",
			CacheDir:        "/var/lib/remindhd/ics-cache",
		},
		Display: DisplayConfig{
			Brightness: 0.5,
			Rotation:   90,
		},
		Particle: ParticleConfig{
			APIURL:   "https://api.particle.io",
			Function: "setStatus",
		},
	}
}

// Normalize fills in missing/zero values of optional keys.
func (c *Config) Normalize() {
	if c.IgnoreInSummary == nil {
		c.IgnoreInSummary = []string{}
	}
	if c.SearchWindowMinutes <= 0 {
		c.SearchWindowMinutes = 10
	}
	if c.PollSchedule == "" {
		c.PollSchedule = "* * * * *"
	}
	if c.Calendar.Source == "" {
		c.Calendar.Source = SourceGoogle
	}
	if c.Calendar.CalendarID == "" {
		c.Calendar.CalendarID = "primary"
	}
	if c.Calendar.CredentialsFile == "" {
		c.Calendar.CredentialsFile = "/etc/remindhd/credentials.json"
	}
	if c.Calendar.TokenFile == "" {
		c.Calendar.TokenFile = "/var/lib/remindhd/token.json"
	}
	if c.Calendar.CacheDir == "" {
		c.Calendar.CacheDir = "/var/lib/remindhd/ics-cache"
	}
	if c.Display.Brightness <= 0 {
		c.Display.Brightness = 0.5
	}
	if c.Particle.APIURL == "" {
		c.Particle.APIURL = "https://api.particle.io"
	}
	if c.Particle.Function == "" {
		c.Particle.Function = "setStatus"
	}
}

// Validate checks cross-key constraints. Time-of-day values are parsed by
// the preference set, which owns their typed form.
func (c *Config) Validate() error {
	if c.UseRemoteNotify {
		if c.AccessToken == "" {
			return &ConfigurationError{Key: "access_token", Err: errors.New("required when use_remote_notify is enabled")}
		}
		if c.DeviceID == "" {
			return &ConfigurationError{Key: "device_id", Err: errors.New("required when use_remote_notify is enabled")}
		}
	}
	if c.UseRebootCounter && c.RebootCounterLimit <= 0 {
		return &ConfigurationError{Key: "reboot_counter_limit", Err: fmt.Errorf("must be positive, got %d", c.RebootCounterLimit)}
	}
	switch c.Calendar.Source {
	case SourceGoogle:
	case SourceICS:
		if c.Calendar.ICSURL == "" {
			return &ConfigurationError{Key: "calendar.ics_url", Err: errors.New("required for the ics source")}
		}
	default:
		return &ConfigurationError{Key: "calendar.source", Err: fmt.Errorf("unknown source %q", c.Calendar.Source)}
	}
	if c.Display.Brightness > 1 {
		return &ConfigurationError{Key: "display.brightness", Err: fmt.Errorf("must be in (0, 1], got %v", c.Display.Brightness)}
	}
	if c.Display.Rotation%90 != 0 {
		return &ConfigurationError{Key: "display.rotation", Err: fmt.Errorf("must be a multiple of 90, got %d", c.Display.Rotation)}
	}
	return nil
}

// Location resolves Timezone. An empty name means the host's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, &ConfigurationError{Key: "timezone", Err: err}
	}
	return loc, nil
}

// Load loads configuration from the given YAML (or JSON) path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise every required key must be present, values must decode,
//     and cross-key validation must pass. Failures are *ConfigurationError.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, &ConfigurationError{Err: errors.New("config path is empty")}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	return Parse(data)
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	if missing := MissingKeys(doc); len(missing) > 0 {
		return nil, &ConfigurationError{Missing: missing}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MissingKeys returns the sorted required keys absent from doc.
func MissingKeys(doc map[string]any) []string {
	var missing []string
	for _, key := range RequiredKeys {
		if _, ok := doc[key]; !ok {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".remindhd-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
