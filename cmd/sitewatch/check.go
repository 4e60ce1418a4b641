package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/sitewatch/internal/probe"
)

type targetProber interface {
	Target() string
	Probe(ctx context.Context) probe.Outcome
}

func executeCheck(cmd *cobra.Command, p targetProber) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return runChecks(ctx, cmd.OutOrStdout(), p)
}

func runChecks(ctx context.Context, out io.Writer, p targetProber) error {
	o := p.Probe(ctx)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tSTATUS\tCODE\tRESPONSE\tPROFILE\tERROR")
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		p.Target(),
		o.Status(),
		formatCode(o.StatusCode),
		formatLatency(o),
		dash(o.Profile),
		o.Error,
	)
	w.Flush()

	if !o.Up {
		return fmt.Errorf("%s is down: %s", p.Target(), o.Error)
	}
	return nil
}

func formatCode(code int) string {
	if code == 0 {
		return "—"
	}
	return fmt.Sprintf("%d", code)
}

func formatLatency(o probe.Outcome) string {
	if !o.Up {
		return "—"
	}
	return o.Latency.Round(time.Millisecond).String()
}

func dash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}
