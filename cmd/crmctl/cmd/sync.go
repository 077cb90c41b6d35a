package cmd

import (
	"fmt"

	"crm-service/internal/domain/outcome"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Retry customer and company synchronisation",
}

var syncCustomerCmd = &cobra.Command{
	Use:   "customer <customer-id>",
	Short: "Re-propagate a customer's sender fields and company link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engines, release, err := openEngines(ctx)
		if err != nil {
			return err
		}
		defer release()

		result, err := engines.Customers.Resync(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to sync customer: %w", err)
		}

		if isJSON() {
			return printJSON(cmd.OutOrStdout(), result)
		}
		printOutcome(cmd, result.Propagation)
		printOutcome(cmd, result.Sync)
		return failedOutcome(result.Propagation, result.Sync)
	},
}

var syncCompanyCmd = &cobra.Command{
	Use:   "company <company-id>",
	Short: "Copy a company's status and details back onto its customer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engines, release, err := openEngines(ctx)
		if err != nil {
			return err
		}
		defer release()

		result := engines.Sync.OnCompanyUpdated(ctx, args[0])
		if isJSON() {
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
		} else {
			printOutcome(cmd, result)
		}
		return failedOutcome(result)
	},
}

func printOutcome(cmd *cobra.Command, o outcome.Secondary) {
	line := fmt.Sprintf("%-20s %-9s subject=%s", o.Operation, o.Status, o.SubjectID)
	if o.TargetID != "" {
		line += " target=" + o.TargetID
	}
	if o.Affected > 0 {
		line += fmt.Sprintf(" affected=%d", o.Affected)
	}
	if o.Detail != "" {
		line += " (" + o.Detail + ")"
	}
	if o.Error != "" {
		line += " error=" + o.Error
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
}

func failedOutcome(outcomes ...outcome.Secondary) error {
	for _, o := range outcomes {
		if !o.OK() {
			return fmt.Errorf("%s failed: %s", o.Operation, o.Error)
		}
	}
	return nil
}

func init() {
	syncCmd.AddCommand(syncCustomerCmd, syncCompanyCmd)
	rootCmd.AddCommand(syncCmd)
}
