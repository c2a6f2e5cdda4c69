package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"pocketwatch/internal/app"
)

var (
	evaluateVault      string
	evaluateSuppressed bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run one evaluation cycle for a vault and print its insights",
	RunE: func(cmd *cobra.Command, args []string) error {
		if evaluateVault == "" {
			return errors.New("--vault is required")
		}

		opts := app.EvaluateOptions{
			VaultID:           evaluateVault,
			IncludeSuppressed: evaluateSuppressed,
		}
		return getApp().Evaluate(cmd.Context(), opts)
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateVault, "vault", "", "Vault identifier to evaluate")
	evaluateCmd.Flags().BoolVar(&evaluateSuppressed, "include-suppressed", false, "Also print suppressed insights with their reason")
}
