package cmd

import (
	"fmt"

	"crm-service/internal/pkg/jwt"

	"github.com/spf13/cobra"
)

var tokenRoles []string

var tokenCmd = &cobra.Command{
	Use:   "token <actor-id>",
	Short: "Issue an operator access token for the admin UI",
	Long: `Signs an access token with JWT_PRIVATE_KEY_PATH. The actor id becomes
the token subject and is recorded on every activity the operator causes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gen, err := jwt.LoadGenerator(cfg.JWT)
		if err != nil {
			return err
		}

		token, jti, err := gen.GenerateAccessToken(args[0], tokenRoles)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}

		out := cmd.OutOrStdout()
		if isJSON() {
			return printJSON(out, map[string]string{"token": token, "jti": jti, "expiresIn": gen.Ttl.String()})
		}
		fmt.Fprintln(out, token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringSliceVar(&tokenRoles, "role", []string{"agent"}, "roles to grant (repeatable)")
	rootCmd.AddCommand(tokenCmd)
}
