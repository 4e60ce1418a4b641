package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/sitewatch/internal/probe"
)

type statusStore interface {
	Recent(ctx context.Context, limit int) ([]probe.Outcome, error)
	UptimePercent(ctx context.Context, last int) (float64, error)
}

func executeStatus(cmd *cobra.Command, db statusStore, limit int) error {
	out := cmd.OutOrStdout()
	ctx := context.Background()

	outcomes, err := db.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("querying history: %w", err)
	}

	if len(outcomes) == 0 {
		fmt.Fprintln(out, "No check history. Run 'sitewatch serve' with storage.path set first.")
		return nil
	}

	uptime, err := db.UptimePercent(ctx, limit)
	if err != nil {
		return fmt.Errorf("querying uptime: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECKED\tSTATUS\tCODE\tRESPONSE\tPROFILE\tERROR")
	for _, o := range outcomes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			o.CheckedAt.Local().Format("2006-01-02 15:04:05"),
			o.Status(),
			formatCode(o.StatusCode),
			formatLatency(o),
			dash(o.Profile),
			o.Error,
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nUptime over last %d checks: %.1f%%\n", len(outcomes), uptime)
	return nil
}
