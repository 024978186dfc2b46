package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vindloodgieter/discovery/internal/discovery"
	"github.com/vindloodgieter/discovery/internal/enrich"
)

func newEnrichCmd() *cobra.Command {
	var filter discovery.ListFilter
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Adds phone numbers and websites to discovered businesses",
		Annotations: map[string]string{
			annotationPlaces: "true",
			annotationDB:     "true",
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			enricher, err := a.Enricher()
			if err != nil {
				return err
			}
			summary, err := enricher.Run(cmd.Context(), filter)
			fmt.Fprintf(cmd.ErrOrStderr(), "candidates: %d, enriched: %d, failed: %d\n",
				summary.Candidates, summary.Enriched, summary.Failed)
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&filter.Province, "province", "", "only this province")
	flags.StringVar(&filter.City, "city", "", "only this city")
	flags.IntVar(&filter.Limit, "limit", enrich.DefaultLimit, "enrich at most this many businesses")
	return cmd
}
