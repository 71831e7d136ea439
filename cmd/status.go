package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/toggl-jira-sync/internal/config"
	"github.com/Tiliavir/toggl-jira-sync/internal/timecalc"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, ledger size and Jira identity",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	path := configPath
	if path == "" {
		if path, err = config.DefaultPath(); err != nil {
			return withCode(exitConfig, err)
		}
	}
	fmt.Fprintf(out, "Config:   %s\n", path)
	fmt.Fprintf(out, "Timezone: %s\n", a.loc)
	fmt.Fprintf(out, "Jira:     %s (user %s, %s auth)\n", orUnset(a.cfg.Jira.BaseURL), orUnset(a.cfg.Jira.Username), a.cfg.Jira.Auth)
	if a.cfg.Sync.FillIssue != "" {
		fmt.Fprintf(out, "Filler:   %s up to %s per weekday\n", a.cfg.Sync.FillIssue, timecalc.FormatDuration(a.cfg.Sync.RequiredSeconds))
	} else {
		fmt.Fprintln(out, "Filler:   disabled")
	}

	ledgerPath, err := a.ledgerPath()
	if err != nil {
		return withCode(exitStorage, err)
	}
	ledger, err := a.openLedger()
	if err != nil {
		return err
	}
	defer ledger.Close()
	ids, err := ledger.Delivered(context.Background())
	if err != nil {
		return withCode(exitStorage, err)
	}
	fmt.Fprintf(out, "Ledger:   %s (%s, %d delivered)\n", ledgerPath, a.cfg.Ledger.Driver, len(ids))

	if err := a.cfg.Validate(); err != nil {
		fmt.Fprintf(out, "\nConfiguration incomplete:\n%v\n", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	user, err := a.jiraClient().User(ctx, a.cfg.Jira.Username)
	if err != nil {
		fmt.Fprintf(out, "Identity: lookup failed: %v\n", err)
		return nil
	}
	fmt.Fprintf(out, "Identity: %s (%s)\n", user.DisplayName, user.IdentityKey())
	return nil
}

func orUnset(s string) string {
	if s == "" {
		return "<unset>"
	}
	return s
}
