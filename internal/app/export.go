package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"pocketwatch/internal/model"
	"pocketwatch/internal/storage"
)

// Export renders a vault's spending history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.AddDate(0, 0, -opts.MaxPoints)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	days, err := store.DailySpendBetween(ctx, opts.VaultID, from, to)
	if err != nil {
		return err
	}
	if len(days) == 0 {
		a.Logger.Info().Str("vault", opts.VaultID).Msg("no spending found for export window")
		return nil
	}

	events, err := store.ListWalletEvents(ctx, opts.VaultID, from, to)
	if err != nil {
		return err
	}

	downsampled := downsampleDays(days, opts.MaxPoints)
	a.Logger.Info().Int("total", len(days)).Int("exported", len(downsampled)).Int("events", len(events)).Msg("exporting spending history")

	if opts.CSVPath != "" {
		if err := writeSpendCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSpendPNG(opts.PNGPath, opts.VaultID, downsampled, events); err != nil {
			return err
		}
	}

	return nil
}

func downsampleDays(days []storage.DailySpend, max int) []storage.DailySpend {
	if max <= 0 || len(days) <= max {
		return days
	}

	result := make([]storage.DailySpend, 0, max)
	step := float64(len(days)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(days) {
			idx = len(days) - 1
		}
		result = append(result, days[idx])
	}
	return result
}

func writeSpendCSV(path string, days []storage.DailySpend) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"day", "spent"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, day := range days {
		record := []string{
			day.Day.Format("2006-01-02"),
			day.Amount.StringFixed(2),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSpendPNG(path, vaultID string, days []storage.DailySpend, events []model.WalletEvent) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(days))
	spent := make([]float64, len(days))
	rolling := make([]float64, len(days))

	window := decimal.Zero
	for i, day := range days {
		x[i] = day.Day
		spent[i] = day.Amount.InexactFloat64()

		window = window.Add(day.Amount)
		if i >= 7 {
			window = window.Sub(days[i-7].Amount)
		}
		span := int64(i + 1)
		if span > 7 {
			span = 7
		}
		rolling[i] = window.Div(decimal.NewFromInt(span)).InexactFloat64()
	}

	moneyFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Title:  "Daily spend: " + vaultID,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Spent",
			ValueFormatter: moneyFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Daily",
				XValues: x,
				YValues: spent,
			},
			chart.TimeSeries{
				Name:    "7-day average",
				XValues: x,
				YValues: rolling,
			},
		},
	}

	if series := eventSeries(events); series != nil {
		graph.YAxisSecondary = chart.YAxis{
			Name:           "Runway (days)",
			ValueFormatter: moneyFormatter,
		}
		graph.Series = append(graph.Series, series)
	}

	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

// eventSeries plots the runway recorded at each risk transition. Events
// with an unknown runway are skipped.
func eventSeries(events []model.WalletEvent) chart.Series {
	x := make([]time.Time, 0, len(events))
	y := make([]float64, 0, len(events))
	for _, evt := range events {
		if evt.RunwayDays == nil {
			continue
		}
		x = append(x, evt.OccurredAt)
		y = append(y, evt.RunwayDays.InexactFloat64())
	}
	if len(x) == 0 {
		return nil
	}
	return chart.TimeSeries{
		Name:    "Runway at transition",
		XValues: x,
		YValues: y,
		YAxis:   chart.YAxisSecondary,
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
