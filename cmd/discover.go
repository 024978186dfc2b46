package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vindloodgieter/discovery/internal/geo"
	"github.com/vindloodgieter/discovery/internal/pipeline"
)

type discoverFlags struct {
	province string
	city     string
	limit    int
	dryRun   bool
	resume   bool
	noDB     bool
	test     bool
}

func newDiscoverCmd() *cobra.Command {
	var f discoverFlags
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Runs the discovery pipeline over the worklist",
		Long: `Queries the Places API for every (province, city, search term) work item,
classifies and deduplicates the results and upserts them one record per
transaction. Exits non-zero when the run is aborted.`,
		Annotations: map[string]string{
			annotationPlaces: "true",
			annotationDB:     "true",
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDiscover(cmd, f)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.province, "province", "", "only this province")
	flags.StringVar(&f.city, "city", "", "only this city")
	flags.IntVar(&f.limit, "limit", 0, "process at most this many work items (after resume skipping)")
	flags.BoolVar(&f.dryRun, "dry-run", false, "fetch and classify only; print would-be records as JSON lines")
	flags.BoolVar(&f.resume, "resume", false, "skip work items completed by earlier runs")
	flags.BoolVar(&f.noDB, "no-db", false, "use in-memory storage and the local progress file")
	flags.BoolVar(&f.test, "test", false, "first search term only, limited to discovery.test_limit items")
	return cmd
}

func runDiscover(cmd *cobra.Command, f discoverFlags) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	terms := a.Config.Discovery.SearchTerms
	limit := f.limit
	if f.test {
		terms = terms[:1]
		if !cmd.Flags().Changed("limit") {
			limit = a.Config.Discovery.TestLimit
		}
	}
	items, err := a.Table.Worklist(terms, geo.Filter{Province: f.province, City: f.city})
	if err != nil {
		return fmt.Errorf("build worklist: %w", err)
	}

	driver, err := a.Driver(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	summary, runErr := driver.Run(cmd.Context(), items, pipeline.Options{
		DryRun: f.dryRun,
		Resume: f.resume,
		Limit:  limit,
	})
	printSummary(cmd.ErrOrStderr(), summary)
	return runErr
}

func printSummary(w io.Writer, s pipeline.Summary) {
	tw := newTabWriter(w)
	fmt.Fprintf(tw, "run\t%s\n", s.RunID)
	fmt.Fprintf(tw, "state\t%s\n", s.State)
	fmt.Fprintf(tw, "processed\t%d\n", s.Processed)
	fmt.Fprintf(tw, "skipped\t%d\n", s.Skipped)
	fmt.Fprintf(tw, "failed items\t%d\n", s.FailedItems)
	fmt.Fprintf(tw, "results\t%d\n", s.Results)
	fmt.Fprintf(tw, "unique places\t%d\n", s.UniquePlaces)
	fmt.Fprintf(tw, "inserted\t%d\n", s.Inserted)
	fmt.Fprintf(tw, "updated\t%d\n", s.Updated)
	fmt.Fprintf(tw, "unchanged\t%d\n", s.Unchanged)
	fmt.Fprintf(tw, "failed records\t%d\n", s.FailedRecords)
	if s.SnapshotURI != "" {
		fmt.Fprintf(tw, "snapshot\t%s\n", s.SnapshotURI)
	}
	fmt.Fprintf(tw, "duration\t%s\n", s.Duration)
	_ = tw.Flush()
	for _, key := range s.FailedKeys {
		fmt.Fprintf(w, "failed: %s\n", key)
	}
}
