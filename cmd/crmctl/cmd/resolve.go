package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	resolveEmail string
	resolvePhone string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Find the canonical customer for an email or phone",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if resolveEmail == "" && resolvePhone == "" {
			return fmt.Errorf("--email or --phone is required")
		}

		ctx := cmd.Context()
		engines, release, err := openEngines(ctx)
		if err != nil {
			return err
		}
		defer release()

		result, err := engines.Resolver.ResolveDetailed(ctx, resolveEmail, resolvePhone)
		if err != nil {
			return fmt.Errorf("failed to resolve contact: %w", err)
		}

		out := cmd.OutOrStdout()
		if isJSON() {
			return printJSON(out, result)
		}
		if result.Customer == nil {
			fmt.Fprintf(out, "No customer found (scanned %d", result.Scanned)
			if result.Truncated {
				fmt.Fprintf(out, ", scan truncated at %d", engines.Resolver.ScanLimit())
			}
			fmt.Fprintln(out, ")")
			return nil
		}
		c := result.Customer
		fmt.Fprintf(out, "%s  %s  <%s>  %s  (matched by %s)\n", c.ID, c.Name, c.Email, c.Phone, result.Match)
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveEmail, "email", "", "email address")
	resolveCmd.Flags().StringVar(&resolvePhone, "phone", "", "phone number in any format")
	rootCmd.AddCommand(resolveCmd)
}
