package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vindloodgieter/discovery/internal/geo"
)

func newWorklistCmd() *cobra.Command {
	var (
		filter geo.Filter
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:         "worklist",
		Short:       "Prints the work items a discovery run would process",
		Annotations: map[string]string{annotationOffline: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			items, err := a.Table.Worklist(a.Config.Discovery.SearchTerms, filter)
			if err != nil {
				return fmt.Errorf("build worklist: %w", err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				for _, item := range items {
					if err := enc.Encode(item); err != nil {
						return fmt.Errorf("write worklist: %w", err)
					}
				}
				return nil
			}
			tw := newTabWriter(out)
			fmt.Fprintln(tw, "POSITION\tPROVINCE\tCITY\tTERM")
			for _, item := range items {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", item.Position, item.Province, item.City, item.SearchTerm)
			}
			return tw.Flush()
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&filter.Province, "province", "", "only this province")
	flags.StringVar(&filter.City, "city", "", "only this city")
	flags.IntVar(&filter.Limit, "limit", 0, "print at most this many items")
	flags.BoolVar(&asJSON, "json", false, "print JSON lines")
	return cmd
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
