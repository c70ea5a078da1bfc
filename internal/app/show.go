package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// Show prints recent rebalance decisions.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show decisions")
	}
	if closeStore != nil {
		defer closeStore()
	}

	decisions, err := store.ListRecentDecisions(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(decisions) == 0 {
		fmt.Fprintln(os.Stdout, "no decisions found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tMove\tPosition\tAPY\tNetGain\tBreakEven\tStatus\tError")

	for _, d := range decisions {
		errMsg := ""
		if d.Error != nil {
			errMsg = sanitizeInline(*d.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s->%s (%s)\t$%s\t%s->%s\t$%s\t%dd\t%s\t%s\n",
			d.Bucket.UTC().Format(time.RFC3339),
			d.FromProtocol,
			d.ToProtocol,
			d.Token,
			formatDecimal(d.PositionUSD, 0),
			formatDecimal(d.CurrentAPY, 2),
			formatDecimal(d.TargetAPY, 2),
			formatDecimal(d.NetGainUSD, 2),
			d.BreakEvenDays,
			d.Status,
			errMsg,
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

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
