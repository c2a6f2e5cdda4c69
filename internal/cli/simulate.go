package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"pocketwatch/internal/app"
)

var (
	simulateVault  string
	simulateLabel  string
	simulateAmount string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Check whether a hypothetical purchase fits the vault's budget and runway",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateVault == "" {
			return errors.New("--vault is required")
		}
		if simulateAmount == "" {
			return errors.New("--amount is required")
		}

		opts := app.SimulateOptions{
			VaultID: simulateVault,
			Label:   simulateLabel,
			Amount:  simulateAmount,
		}
		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateVault, "vault", "", "Vault identifier to simulate against")
	simulateCmd.Flags().StringVar(&simulateLabel, "label", "purchase", "Label for the hypothetical purchase")
	simulateCmd.Flags().StringVar(&simulateAmount, "amount", "", "Purchase amount, e.g. 49.99")
}
