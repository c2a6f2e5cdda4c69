package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"pocketwatch/internal/app"
)

var walletVault string

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Display a vault's wallet risk state",
	RunE: func(cmd *cobra.Command, args []string) error {
		if walletVault == "" {
			return errors.New("--vault is required")
		}

		return getApp().Wallet(cmd.Context(), app.WalletOptions{VaultID: walletVault})
	},
}

func init() {
	walletCmd.Flags().StringVar(&walletVault, "vault", "", "Vault identifier to inspect")
}
