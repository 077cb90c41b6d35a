package cmd

import (
	"fmt"
	"os"

	"crm-service/internal/service/migration"

	"github.com/spf13/cobra"
)

var (
	migrateDryRun bool
	migrateReport string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate-conversations",
	Short: "Merge duplicate conversations that share an email or phone",
	Long: `Groups conversations by sender email and canonical phone, keeps the
earliest conversation of each group and moves every message of the others onto
it. Use --dry-run to see the groups without writing anything.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engines, release, err := openEngines(ctx)
		if err != nil {
			return err
		}
		defer release()

		report, runErr := engines.Migration.Run(ctx, migration.Options{DryRun: migrateDryRun})
		if report == nil {
			return fmt.Errorf("migration failed: %w", runErr)
		}

		if migrateReport != "" {
			if err := writeReport(migrateReport, report); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		if isJSON() {
			if err := printJSON(out, report); err != nil {
				return err
			}
		} else {
			printMigrationSummary(cmd, report)
		}

		if runErr != nil {
			return fmt.Errorf("%d group(s) failed: %w", report.GroupsFailed, runErr)
		}
		return nil
	},
}

func printMigrationSummary(cmd *cobra.Command, r *migration.Report) {
	out := cmd.OutOrStdout()
	mode := "live"
	if r.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(out, "Conversation migration (%s)\n", mode)
	fmt.Fprintf(out, "  conversations scanned: %d (%d without email or phone)\n", r.TotalConversations, r.Unkeyed)
	fmt.Fprintf(out, "  duplicate groups:      %d\n", len(r.Groups))
	for _, g := range r.Groups {
		status := "ok"
		if g.Error != "" {
			status = "FAILED: " + g.Error
		}
		fmt.Fprintf(out, "    %-40s primary=%s duplicates=%d messages=%d %s\n",
			g.Key, g.PrimaryID, len(g.DuplicateIDs), g.MessagesMoved, status)
	}
	fmt.Fprintf(out, "  groups merged: %d, failed: %d\n", r.GroupsMerged, r.GroupsFailed)
	fmt.Fprintf(out, "  messages moved: %d, conversations deleted: %d\n", r.MessagesMoved, r.ConversationsDeleted)
}

func writeReport(path string, report *migration.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if err := printJSON(f, report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "report the groups without writing")
	migrateCmd.Flags().StringVar(&migrateReport, "report", "", "write the JSON report to this file")
	rootCmd.AddCommand(migrateCmd)
}
