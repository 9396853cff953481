package main

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/docledger/docledger/internal/app"
	"github.com/docledger/docledger/internal/events"
	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Purge documents whose retention deadline has passed",
		Long: "Runs one purge sweep in this process. With --async the sweep is\n" +
			"requested from the worker pool over NATS instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app.App) error {
				out := cmd.OutOrStdout()
				if async {
					if a.NATS == nil {
						return errors.New("--async needs NATS_URL")
					}
					if err := a.Events.RequestSweep(cmd.Context(), events.SweepRequest{Reason: "manual", At: time.Now().UTC()}); err != nil {
						return fmt.Errorf("requesting sweep: %w", err)
					}
					fmt.Fprintln(out, "sweep requested")
					return nil
				}
				report, err := a.Service.PurgeDue(cmd.Context(), time.Now().UTC())
				if err != nil {
					return fmt.Errorf("sweep: %w", err)
				}
				fmt.Fprintf(out, "purged %d document(s)\n", len(report.Purged))
				for _, id := range report.Purged {
					fmt.Fprintf(out, "  %s\n", id)
				}
				if len(report.Failed) > 0 {
					ids := make([]string, 0, len(report.Failed))
					for id := range report.Failed {
						ids = append(ids, id)
					}
					sort.Strings(ids)
					fmt.Fprintf(out, "failed %d document(s)\n", len(ids))
					for _, id := range ids {
						fmt.Fprintf(out, "  %s: %s\n", id, report.Failed[id])
					}
					return fmt.Errorf("%d purge(s) failed", len(ids))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "Publish a sweep request instead of purging in-process")
	return cmd
}
