package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var runs int
	cmd := &cobra.Command{
		Use:         "stats",
		Short:       "Prints business counts per province and service type and recent runs",
		Annotations: map[string]string{annotationDB: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			provinces, err := a.Businesses.CountByProvince(ctx)
			if err != nil {
				return fmt.Errorf("count by province: %w", err)
			}
			types, err := a.Businesses.CountByServiceType(ctx)
			if err != nil {
				return fmt.Errorf("count by service type: %w", err)
			}

			tw := newTabWriter(cmd.OutOrStdout())
			var total int64
			fmt.Fprintln(tw, "PROVINCE\tBUSINESSES")
			for _, p := range provinces {
				total += p.Count
				fmt.Fprintf(tw, "%s\t%d\n", p.Province, p.Count)
			}
			fmt.Fprintf(tw, "total\t%d\n\n", total)
			fmt.Fprintln(tw, "SERVICE TYPE\tBUSINESSES")
			for _, st := range types {
				fmt.Fprintf(tw, "%s\t%d\n", st.ServiceType, st.Count)
			}

			if runs > 0 && a.Runs != nil {
				recent, err := a.Runs.ListRuns(ctx, runs)
				if err != nil {
					return fmt.Errorf("list runs: %w", err)
				}
				fmt.Fprintln(tw, "\nRUN\tSTATE\tSTARTED\tPROCESSED\tINSERTED\tUPDATED\tFAILED")
				for _, r := range recent {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
						r.ID, r.State, r.StartedAt.Format("2006-01-02 15:04"),
						r.Counters.Processed, r.Counters.Inserted, r.Counters.Updated, r.Counters.FailedItems)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&runs, "runs", 5, "number of recent runs to list (0 disables)")
	cmd.Flags().Bool("no-db", false, "read the local progress file only")
	return cmd
}
