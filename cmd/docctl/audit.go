package main

import (
	"fmt"
	"time"

	"github.com/docledger/docledger/internal/access"
	"github.com/docledger/docledger/internal/app"
	"github.com/docledger/docledger/internal/audit"
	"github.com/spf13/cobra"
)

func newVerifyAuditCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "verify-audit <document-id>",
		Short: "Check the hash chain of a document's audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				recs, err := a.Service.AuditTrail(cmd.Context(), access.System(), args[0], nil)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if verbose {
					for _, r := range recs {
						fmt.Fprintf(out, "%6d %s %-13s %-8s %s %s\n", r.Seq, r.Timestamp.Format(time.RFC3339), r.Action, r.Result, r.ActorID, r.Reason)
					}
				}
				if err := audit.Verify(recs); err != nil {
					return fmt.Errorf("audit trail of %s is broken: %w", args[0], err)
				}
				fmt.Fprintf(out, "%s: %d record(s), chain intact\n", args[0], len(recs))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print every record")
	return cmd
}
