package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/docledger/docledger/internal/app"
	"github.com/spf13/cobra"
)

func newPoliciesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "List the retention policies loaded from RETENTION_POLICY_FILE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app.App) error {
				policies := a.Policies.List()
				if len(policies) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No retention policies loaded.")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tPERIOD (DAYS)\tMODE")
				for _, p := range policies {
					fmt.Fprintf(w, "%s\t%d\t%s\n", p.ID, int(p.Period/(24*time.Hour)), p.DefaultMode)
				}
				return w.Flush()
			})
		},
	}
}
