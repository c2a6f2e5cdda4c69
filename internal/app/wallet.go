package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

// Wallet evaluates a vault and prints its current risk state.
func (a *App) Wallet(ctx context.Context, opts WalletOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot inspect wallet state")
	}
	defer closeStore()

	svc := a.newService(store)

	if _, err := svc.Evaluate(ctx, opts.VaultID); err != nil {
		return err
	}

	state, ok := svc.WalletState(opts.VaultID)
	if !ok {
		fmt.Fprintln(os.Stdout, "no wallet state for this vault")
		return nil
	}

	runway := "unknown"
	if state.RunwayDays != nil {
		runway = state.RunwayDays.StringFixed(1)
	}

	restricted := make([]string, 0, len(state.RestrictedCategories))
	for cat := range state.RestrictedCategories {
		restricted = append(restricted, cat)
	}
	sort.Strings(restricted)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Vault\t%s\n", state.VaultID)
	fmt.Fprintf(writer, "Level\t%s\n", state.Level)
	fmt.Fprintf(writer, "Runway (days)\t%s\n", runway)
	fmt.Fprintf(writer, "Burn rate / day\t%s\n", state.BurnRatePerDay.StringFixed(2))
	fmt.Fprintf(writer, "Entered\t%s\n", state.EnteredAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(writer, "Restricted\t%s\n", strings.Join(restricted, ", "))
	writer.Flush()

	return nil
}
