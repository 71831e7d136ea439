package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the root configuration for tjs, stored in ~/.tjs/config.json.
// The file supports single-line // comments for documentation purposes.
type Config struct {
	Toggl       TogglConfig  `json:"toggl"`
	Jira        JiraConfig   `json:"jira"`
	Sync        SyncConfig   `json:"sync"`
	Ledger      LedgerConfig `json:"ledger"`
	LogLevel    string       `json:"log_level"`
	MetricsFile string       `json:"metrics_file"`
}

// TogglConfig holds Toggl Track API settings.
type TogglConfig struct {
	// APIToken is the personal API token from the Toggl profile page.
	APIToken string `json:"api_token"`
	// BaseURL overrides the API root. Empty = https://api.track.toggl.com/api/v9.
	BaseURL string `json:"base_url"`
}

// JiraConfig holds Jira REST API settings.
type JiraConfig struct {
	BaseURL string `json:"base_url"`
	// Username is the Jira user whose work logs are written and matched.
	Username string `json:"username"`
	// Auth is "basic" (username + password or API token) or "bearer" (token).
	Auth     string `json:"auth"`
	Password string `json:"password"`
	Token    string `json:"token"`
	// NotifyUsers controls whether watchers are notified of new work logs.
	NotifyUsers *bool `json:"notify_users"`
}

// SyncConfig holds reconciliation settings.
type SyncConfig struct {
	// Timezone is the IANA timezone that defines calendar days. Empty = local.
	Timezone string `json:"timezone"`
	// FillIssue is the catch-all issue used to top days up. Empty disables filling.
	FillIssue   string `json:"fill_issue"`
	FillComment string `json:"fill_comment"`
	// RequiredSeconds is the minimum logged time of a working day.
	RequiredSeconds int64 `json:"required_seconds"`
	// CommentMatch is "substring" or "exact"; see reconcile.CommentMode.
	CommentMatch string `json:"comment_match"`
}

// LedgerConfig selects the delivery ledger backend.
type LedgerConfig struct {
	// Driver is "file" or "sqlite".
	Driver string `json:"driver"`
	// Path is the ledger location. Empty = ~/.tjs/ledger.json or ~/.tjs/ledger.db.
	Path string `json:"path"`
}

// Overrides are environment variables that take precedence over the file,
// so secrets can stay out of it (TJS_TOGGL_API_TOKEN, TJS_JIRA_TOKEN, ...).
type Overrides struct {
	TogglAPIToken string `envconfig:"TOGGL_API_TOKEN"`
	JiraBaseURL   string `envconfig:"JIRA_BASE_URL"`
	JiraUsername  string `envconfig:"JIRA_USERNAME"`
	JiraPassword  string `envconfig:"JIRA_PASSWORD"`
	JiraToken     string `envconfig:"JIRA_TOKEN"`
	LedgerPath    string `envconfig:"LEDGER_PATH"`
	LogLevel      string `envconfig:"LOG_LEVEL"`
}

// EnvPrefix is the prefix of all environment overrides.
const EnvPrefix = "TJS"

const (
	AuthBasic  = "basic"
	AuthBearer = "bearer"

	CommentMatchSubstring = "substring"
	CommentMatchExact     = "exact"

	// DefaultRequiredSeconds is a full eight hour working day.
	DefaultRequiredSeconds = 28800
	DefaultFillComment     = "General activities"
	DefaultLedgerDriver    = "file"
	DefaultLogLevel        = "info"
)

// defaultConfig returns a Config pre-filled with sensible defaults.
func defaultConfig() Config {
	return Config{
		Jira: JiraConfig{
			Auth: AuthBasic,
		},
		Sync: SyncConfig{
			FillComment:     DefaultFillComment,
			RequiredSeconds: DefaultRequiredSeconds,
			CommentMatch:    CommentMatchSubstring,
		},
		Ledger: LedgerConfig{
			Driver: DefaultLedgerDriver,
		},
		LogLevel: DefaultLogLevel,
	}
}

// configTemplate is the annotated config written on first run.
// Lines whose trimmed content starts with // are stripped before JSON parsing,
// allowing human-readable documentation inside the file.
const configTemplate = `// tjs configuration – ~/.tjs/config.json
//
// Secrets may be left empty here and supplied through the environment:
// TJS_TOGGL_API_TOKEN, TJS_JIRA_PASSWORD, TJS_JIRA_TOKEN.
{
  // ── Toggl Track ──────────────────────────────────────────────────────────
  "toggl": {
    // Personal API token, see https://track.toggl.com/profile
    "api_token": ""
  },

  // ── Jira ─────────────────────────────────────────────────────────────────
  "jira": {
    // e.g. "https://jira.example.com"
    "base_url": "",

    // Jira user the work logs belong to.
    "username": "",

    // "basic": username + password (or Atlassian API token)
    // "bearer": personal access token in "token"
    "auth": "basic",
    "password": "",
    "token": "",

    // Notify issue watchers about new work logs.
    "notify_users": true
  },

  // ── Synchronisation ──────────────────────────────────────────────────────
  "sync": {
    // IANA timezone defining calendar days, e.g. "Europe/Berlin". Empty = local.
    "timezone": "",

    // Catch-all issue that tops past weekdays up to required_seconds.
    // Leave empty to disable filling.
    "fill_issue": "",
    "fill_comment": "General activities",
    "required_seconds": 28800,

    // How repeated comments of merged entries are suppressed:
    // "substring" (skip if contained anywhere) or "exact" (skip identical lines).
    "comment_match": "substring"
  },

  // ── Delivery ledger ──────────────────────────────────────────────────────
  "ledger": {
    // "file" (JSON) or "sqlite"
    "driver": "file",
    // Empty = ~/.tjs/ledger.json (file) or ~/.tjs/ledger.db (sqlite)
    "path": ""
  },

  "log_level": "info",

  // Write Prometheus metrics here after each run (node_exporter textfile).
  "metrics_file": ""
}
`

// DefaultPath returns the path to ~/.tjs/config.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".tjs", "config.json"), nil
}

// stripLineComments removes lines whose leading non-whitespace content starts
// with //. Only full-line comments are handled; inline comments are not stripped.
func stripLineComments(data []byte) []byte {
	var out []byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		if bytes.HasPrefix(bytes.TrimLeft(line, " \t"), []byte("//")) {
			continue
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	return out
}

// Load reads the config file at path, creating it with annotated defaults on
// first run, and applies TJS_* environment overrides. An empty path means
// DefaultPath.
func Load(path string) (Config, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return defaultConfig(), err
		}
	}

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// First run: write the annotated template so users can discover options.
		if writeErr := writeDefault(path); writeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create config file %s: %v\n", path, writeErr)
		}
	case err != nil:
		return defaultConfig(), fmt.Errorf("reading config file %s: %w", path, err)
	default:
		if err := json.Unmarshal(stripLineComments(data), &cfg); err != nil {
			return defaultConfig(), fmt.Errorf("parsing config file %s: %w\nTip: delete the file to regenerate defaults", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var env Overrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("loading environment overrides: %w", err)
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Toggl.APIToken, env.TogglAPIToken)
	set(&c.Jira.BaseURL, env.JiraBaseURL)
	set(&c.Jira.Username, env.JiraUsername)
	set(&c.Jira.Password, env.JiraPassword)
	set(&c.Jira.Token, env.JiraToken)
	set(&c.Ledger.Path, env.LedgerPath)
	set(&c.LogLevel, env.LogLevel)
	return nil
}

// fillDefaults replaces zero-value fields with built-in defaults so callers
// always get a usable Config even if the user only partially fills in the file.
func (c *Config) fillDefaults() {
	d := defaultConfig()
	if c.Jira.Auth == "" {
		c.Jira.Auth = d.Jira.Auth
	}
	if c.Sync.RequiredSeconds <= 0 {
		c.Sync.RequiredSeconds = d.Sync.RequiredSeconds
	}
	if c.Sync.CommentMatch == "" {
		c.Sync.CommentMatch = d.Sync.CommentMatch
	}
	if c.Ledger.Driver == "" {
		c.Ledger.Driver = d.Ledger.Driver
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// NotifyUsers reports whether Jira should notify watchers. Defaults to true.
func (c *Config) NotifyUsers() bool {
	return c.Jira.NotifyUsers == nil || *c.Jira.NotifyUsers
}

// Location resolves the sync timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Sync.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Sync.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid sync.timezone %q: %w", c.Sync.Timezone, err)
	}
	return loc, nil
}

// Validate reports every missing or invalid setting needed for a sync run.
func (c *Config) Validate() error {
	var errs []error
	if c.Toggl.APIToken == "" {
		errs = append(errs, errors.New("toggl.api_token is required (or TJS_TOGGL_API_TOKEN)"))
	}
	if c.Jira.BaseURL == "" {
		errs = append(errs, errors.New("jira.base_url is required"))
	}
	if c.Jira.Username == "" {
		errs = append(errs, errors.New("jira.username is required"))
	}
	switch strings.ToLower(c.Jira.Auth) {
	case AuthBasic:
		if c.Jira.Password == "" {
			errs = append(errs, errors.New("jira.password is required for basic auth (or TJS_JIRA_PASSWORD)"))
		}
	case AuthBearer:
		if c.Jira.Token == "" {
			errs = append(errs, errors.New("jira.token is required for bearer auth (or TJS_JIRA_TOKEN)"))
		}
	default:
		errs = append(errs, fmt.Errorf("jira.auth must be %q or %q, got %q", AuthBasic, AuthBearer, c.Jira.Auth))
	}
	switch c.Sync.CommentMatch {
	case CommentMatchSubstring, CommentMatchExact:
	default:
		errs = append(errs, fmt.Errorf("sync.comment_match must be %q or %q, got %q",
			CommentMatchSubstring, CommentMatchExact, c.Sync.CommentMatch))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// writeDefault creates the config directory and writes the annotated default
// config template.
func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o600); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}
