package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"yield-rebalancer/internal/storage"
)

// Export renders decision history as CSV and/or PNG.
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
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	decisions, err := store.ListDecisionsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(decisions) == 0 {
		a.Logger.Info().Msg("no decisions found for export window")
		return nil
	}

	downsampled := downsampleDecisions(decisions, opts.MaxPoints)
	a.Logger.Info().Int("total", len(decisions)).Int("exported", len(downsampled)).Msg("exporting decisions")

	if opts.CSVPath != "" {
		if err := writeDecisionsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeDecisionsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleDecisions(decisions []storage.DecisionRecord, max int) []storage.DecisionRecord {
	if max <= 0 || len(decisions) <= max {
		return decisions
	}

	result := make([]storage.DecisionRecord, 0, max)
	step := float64(len(decisions)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(decisions) {
			idx = len(decisions) - 1
		}
		result = append(result, decisions[idx])
	}
	return result
}

func writeDecisionsCSV(path string, decisions []storage.DecisionRecord) error {
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

	header := []string{"bucket_ts", "from_protocol", "to_protocol", "token", "position_usd", "current_apy", "target_apy", "annual_gain_usd", "total_cost_usd", "net_gain_usd", "break_even_days", "profitable", "status", "error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, d := range decisions {
		errMsg := ""
		if d.Error != nil {
			errMsg = *d.Error
		}
		profitable := "false"
		if d.Profitable {
			profitable = "true"
		}
		record := []string{
			d.Bucket.Format(time.RFC3339),
			d.FromProtocol,
			d.ToProtocol,
			d.Token,
			d.PositionUSD.String(),
			d.CurrentAPY.String(),
			d.TargetAPY.String(),
			d.AnnualGainUSD.String(),
			d.TotalCostUSD.String(),
			d.NetGainUSD.String(),
			strconv.FormatInt(d.BreakEvenDays, 10),
			profitable,
			d.Status,
			errMsg,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeDecisionsPNG(path string, decisions []storage.DecisionRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(decisions))
	annualGain := make([]float64, len(decisions))
	totalCost := make([]float64, len(decisions))
	netGain := make([]float64, len(decisions))

	for i, d := range decisions {
		x[i] = d.Bucket
		annualGain[i] = d.AnnualGainUSD.InexactFloat64()
		totalCost[i] = d.TotalCostUSD.InexactFloat64()
		netGain[i] = d.NetGainUSD.InexactFloat64()
	}

	usdFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "USD",
			ValueFormatter: usdFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Annual gain",
				XValues: x,
				YValues: annualGain,
			},
			chart.TimeSeries{
				Name:    "Total cost",
				XValues: x,
				YValues: totalCost,
			},
			chart.TimeSeries{
				Name:    "Net gain (year 1)",
				XValues: x,
				YValues: netGain,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
