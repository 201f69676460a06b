package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hazz-dev/availmon/internal/config"
	"github.com/hazz-dev/availmon/internal/endpoint"
	"github.com/hazz-dev/availmon/internal/health"
	"github.com/hazz-dev/availmon/internal/probe"
	"github.com/hazz-dev/availmon/internal/report"
)

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <endpoints.yml>",
		Short: "Probe every endpoint once and print the results",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	settings, err := config.LoadSettings(cmd.Flags())
	if err != nil {
		return err
	}
	eps, err := config.LoadEndpoints(args[0])
	if err != nil {
		return err
	}
	return runChecks(cmd.Context(), cmd.OutOrStdout(), eps, settings)
}

func runChecks(ctx context.Context, out io.Writer, eps []endpoint.Endpoint, settings *config.Settings) error {
	agg := health.NewAggregator()
	prober := probe.New(agg, probe.Options{
		Timeout:       settings.Timeout,
		SlowThreshold: settings.SlowThreshold,
	})

	results := make([]probe.Outcome, len(eps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(settings.MaxConcurrent)
	for i, ep := range eps {
		i, ep := i, ep
		g.Go(func() error {
			results[i] = prober.Probe(gctx, ep)
			return nil
		})
	}
	_ = g.Wait() // probes never fail outward

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENDPOINT\tMETHOD\tHOST\tSTATUS\tCODE\tLATENCY\tERROR")
	allUp := true
	for i, r := range results {
		code := "—"
		if r.StatusCode != 0 {
			code = fmt.Sprint(r.StatusCode)
		}
		latency := "—"
		if r.Latency > 0 {
			latency = r.Latency.Round(time.Millisecond).String()
		}
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			eps[i].Name(),
			eps[i].Method(),
			r.Host,
			r.Status(),
			code,
			latency,
			errText,
		)
		if !r.Success {
			allUp = false
		}
	}
	w.Flush()

	hosts := agg.Snapshot()
	if len(hosts) > 0 {
		fmt.Fprintln(out)
		for _, h := range hosts {
			fmt.Fprintln(out, report.AvailabilityLine(h))
		}
	}

	if !allUp {
		return fmt.Errorf("one or more endpoints are down")
	}
	return nil
}
