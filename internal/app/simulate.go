package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// Simulate answers "can I afford this?" against the vault's current
// snapshot without committing anything.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	amount, err := decimal.NewFromString(opts.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", opts.Amount, err)
	}
	if !amount.IsPositive() {
		return errors.New("amount must be positive")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot simulate")
	}
	defer closeStore()

	svc := a.newService(store)

	candidate, err := svc.CheckAffordability(ctx, opts.VaultID, opts.Label, amount)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s [%s]\n", candidate.Title, candidate.Severity)
	fmt.Fprintln(os.Stdout, candidate.Description)
	if candidate.Recommendation != "" {
		fmt.Fprintln(os.Stdout, candidate.Recommendation)
	}
	return nil
}
