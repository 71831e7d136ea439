package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Tiliavir/toggl-jira-sync/internal/config"
	"github.com/Tiliavir/toggl-jira-sync/internal/jira"
	"github.com/Tiliavir/toggl-jira-sync/internal/metrics"
	"github.com/Tiliavir/toggl-jira-sync/internal/reconcile"
	"github.com/Tiliavir/toggl-jira-sync/internal/storage"
	"github.com/Tiliavir/toggl-jira-sync/internal/toggl"
)

// Process exit codes.
const (
	exitConfig  = 1
	exitStorage = 2
	exitHalted  = 3
)

var (
	configPath  string
	logLevel    string
	logFormat   string
	metricsFile string
)

var rootCmd = &cobra.Command{
	Use:   "tjs",
	Short: "Toggl to Jira – copy tracked time into Jira work logs",
	Long: `tjs reads Toggl Track time entries day by day, maps each entry to the Jira
issue named by its project, merges entries per issue and day and writes
them as Jira work logs exactly once.
Configuration lives in ~/.tjs/config.json.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.tjs/config.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format: console, json")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after a sync (overrides config)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(statusCmd)
}

// codedError carries the process exit code for an error.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, err: err}
}

func exitCode(err error) int {
	var ce *codedError
	switch {
	case errors.Is(err, reconcile.ErrFetchFailed):
		return exitHalted
	case errors.Is(err, reconcile.ErrLedger):
		return exitStorage
	case errors.As(err, &ce):
		return ce.code
	default:
		return exitConfig
	}
}

// newLogger builds the process logger. Console output is meant for people
// running tjs by hand, json for cron jobs feeding a log collector.
func newLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	switch format {
	case "json":
		return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
	case "", "console":
		out := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
		return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q, want console or json", format)
	}
}

// app bundles what every command needs: configuration, logger and timezone.
type app struct {
	cfg    config.Config
	logger zerolog.Logger
	loc    *time.Location
}

func setup() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, withCode(exitConfig, err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if metricsFile != "" {
		cfg.MetricsFile = metricsFile
	}

	logger, err := newLogger(os.Stderr, cfg.LogLevel, logFormat)
	if err != nil {
		return nil, withCode(exitConfig, err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, withCode(exitConfig, err)
	}
	return &app{cfg: cfg, logger: logger, loc: loc}, nil
}

func (a *app) ledgerPath() (string, error) {
	if a.cfg.Ledger.Path != "" {
		return a.cfg.Ledger.Path, nil
	}
	base, err := storage.BaseDir()
	if err != nil {
		return "", err
	}
	return storage.DefaultPath(base, a.cfg.Ledger.Driver), nil
}

func (a *app) openLedger() (storage.Ledger, error) {
	path, err := a.ledgerPath()
	if err != nil {
		return nil, withCode(exitStorage, err)
	}
	ledger, err := storage.Open(a.cfg.Ledger.Driver, path, a.logger)
	if err != nil {
		return nil, withCode(exitStorage, err)
	}
	return ledger, nil
}

func (a *app) togglClient() *toggl.Client {
	c := toggl.NewClient(a.cfg.Toggl.APIToken, a.logger)
	if a.cfg.Toggl.BaseURL != "" {
		c.SetBaseURL(a.cfg.Toggl.BaseURL)
	}
	return c
}

func (a *app) jiraClient() *jira.Client {
	var auth jira.Authenticator
	if strings.EqualFold(a.cfg.Jira.Auth, config.AuthBearer) {
		auth = jira.NewTokenAuth(a.cfg.Jira.Token)
	} else {
		auth = &jira.BasicAuth{Username: a.cfg.Jira.Username, Password: a.cfg.Jira.Password}
	}
	return jira.NewClient(a.cfg.Jira.BaseURL, auth, a.logger)
}

func (a *app) syncer(api reconcile.WorkLogAPI, ledger reconcile.DeliveryLedger, m *metrics.Metrics) *reconcile.Syncer {
	return reconcile.New(a.togglClient(), api, ledger, reconcile.Options{
		Username:    a.cfg.Jira.Username,
		NotifyUsers: a.cfg.NotifyUsers(),
		Comments:    reconcile.CommentMode(a.cfg.Sync.CommentMatch),
		Fill: reconcile.FillOptions{
			Issue:           a.cfg.Sync.FillIssue,
			Comment:         a.cfg.Sync.FillComment,
			RequiredSeconds: a.cfg.Sync.RequiredSeconds,
		},
		Location: a.loc,
	}, m, a.logger)
}
