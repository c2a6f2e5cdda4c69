package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
)

// Evaluate runs one cycle for a vault and prints the ranked insights.
func (a *App) Evaluate(ctx context.Context, opts EvaluateOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot evaluate")
	}
	defer closeStore()

	svc := a.newService(store)

	ranked, err := svc.Evaluate(ctx, opts.VaultID)
	if err != nil {
		return err
	}

	if !opts.IncludeSuppressed {
		visible := ranked[:0]
		for _, ins := range ranked {
			if !ins.Suppressed {
				visible = append(visible, ins)
			}
		}
		ranked = visible
	}

	if len(ranked) == 0 {
		fmt.Fprintln(os.Stdout, "no insights for this vault")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Rule\tSeverity\tScore\tTitle\tSuppressed")

	for _, ins := range ranked {
		suppressed := ""
		if ins.Suppressed {
			suppressed = ins.SuppressReason
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			ins.RuleID,
			ins.Severity,
			ins.FinalScore.StringFixed(1),
			sanitizeInline(ins.Title),
			suppressed,
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
