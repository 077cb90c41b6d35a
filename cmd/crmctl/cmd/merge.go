package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <primary-id> <secondary-id>",
	Short: "Merge the secondary customer into the primary",
	Long: `Moves every conversation and case of the secondary customer onto the
primary, combines their contacts, tags, notes and stats, then deletes the
secondary. The whole merge commits atomically.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engines, release, err := openEngines(ctx)
		if err != nil {
			return err
		}
		defer release()

		result, err := engines.Merge.Merge(ctx, args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to merge customers: %w", err)
		}

		out := cmd.OutOrStdout()
		if isJSON() {
			return printJSON(out, result)
		}
		fmt.Fprintf(out, "Merged %s into %s\n", result.SecondaryID, result.Customer.ID)
		fmt.Fprintf(out, "  conversations moved: %d\n", result.ConversationsMoved)
		fmt.Fprintf(out, "  cases moved:         %d\n", result.CasesMoved)
		fmt.Fprintf(out, "  company sync:        %s %s\n", result.Sync.Status, result.Sync.Error)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
