package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/toggl-jira-sync/internal/storage"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the delivery ledger",
	Long: `The ledger records which work logs were already written to Jira.
Forgetting an id makes the next sync write that work log again.
A ledger file that cannot be parsed stops every sync until it is repaired.`,
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List delivered ids",
	Args:  cobra.NoArgs,
	RunE:  runLedgerList,
}

var ledgerForgetCmd = &cobra.Command{
	Use:   "forget <delivery-id>",
	Short: "Remove a delivered id so it is synced again",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerForget,
}

var ledgerRepairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Move a corrupt ledger file aside",
	Long: `Renames a ledger file that cannot be parsed to <file>.corrupt so the next
sync starts with an empty ledger. Work logs recorded in it are written again
unless they are put back by hand.`,
	Args: cobra.NoArgs,
	RunE: runLedgerRepair,
}

func init() {
	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerForgetCmd)
	ledgerCmd.AddCommand(ledgerRepairCmd)
}

func runLedgerList(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
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

	out := cmd.OutOrStdout()
	if len(ids) == 0 {
		fmt.Fprintln(out, "No delivered work logs.")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	fmt.Fprintf(out, "%d delivered\n", len(ids))
	return nil
}

func runLedgerForget(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	ledger, err := a.openLedger()
	if err != nil {
		return err
	}
	defer ledger.Close()

	ctx := context.Background()
	id := args[0]
	delivered, err := ledger.IsDelivered(ctx, id)
	if err != nil {
		return withCode(exitStorage, err)
	}
	if !delivered {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is not in the ledger.\n", id)
		return nil
	}
	if err := ledger.Forget(ctx, id); err != nil {
		return withCode(exitStorage, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s; the next sync will write it again.\n", id)
	return nil
}

func runLedgerRepair(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	ledger, err := a.openLedger()
	if err != nil {
		return err
	}
	defer ledger.Close()

	return repairLedger(cmd.OutOrStdout(), ledger)
}

func repairLedger(out io.Writer, ledger storage.Ledger) error {
	fl, ok := ledger.(*storage.FileLedger)
	if !ok {
		return withCode(exitConfig, errors.New("repair is only supported for the file ledger driver"))
	}
	backup, err := fl.Repair()
	if err != nil {
		return withCode(exitStorage, err)
	}
	if backup == "" {
		fmt.Fprintln(out, "Ledger is readable, nothing to repair.")
		return nil
	}
	fmt.Fprintf(out, "Moved corrupt ledger to %s; the next sync starts with an empty ledger.\n", backup)
	return nil
}
