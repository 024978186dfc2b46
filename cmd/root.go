// Package cmd defines and implements the CLI commands of the discovery
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vindloodgieter/discovery/internal/app"
	"github.com/vindloodgieter/discovery/internal/config"
	"github.com/vindloodgieter/discovery/internal/logging"
)

// Command annotations read by the root PersistentPreRunE.
const (
	// annotationPlaces marks commands that call the places provider.
	annotationPlaces = "needs-places"
	// annotationDB marks commands that need Postgres unless --no-db or
	// --dry-run is given.
	annotationDB = "needs-db"
	// annotationOffline marks commands that never connect to Postgres.
	annotationOffline = "offline"
	// annotationManualMigrate skips migrate-on-start. Dry runs skip it too.
	annotationManualMigrate = "manual-migrate"
)

type appKeyType struct{}

var appKey appKeyType

// newRootCmd builds the command tree. The returned cleanup closes the
// application container; it runs even when a command fails, which
// PersistentPostRun would not.
func newRootCmd() (*cobra.Command, func()) {
	var (
		cfgFile string
		built   *app.App
	)
	cleanup := func() {
		if built != nil {
			built.Close()
			_ = built.Logger.Sync()
			built = nil
		}
	}
	cmd := &cobra.Command{
		Use:   "discovery",
		Short: "Discovers plumbing businesses in the Netherlands.",
		Long: `discovery walks every (province, city, search term) combination,
queries the Places API, classifies and deduplicates the results and persists
them for the vindloodgieter.nl directory.`,
		SilenceUsage: true,

		// Builds the application container once flags are parsed.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			dryRun := flagBool(cmd, "dry-run")
			// A dry run only reads resume progress, so it needs Postgres
			// for --resume alone and never migrates it.
			noDB := flagBool(cmd, "no-db") || cmd.Annotations[annotationOffline] == "true" ||
				(dryRun && !flagBool(cmd, "resume"))
			waived := noDB || dryRun
			req := config.Requirements{
				APIKey:   cmd.Annotations[annotationPlaces] == "true",
				Database: cmd.Annotations[annotationDB] == "true" && !waived,
			}
			if err := cfg.RequireCredentials(req); err != nil {
				return err
			}
			if cmd.Annotations[annotationManualMigrate] == "true" || dryRun {
				cfg.DB.MigrateOnStart = false
			}

			logger, err := logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, logger.Named(cmd.Name()), app.Options{NoDB: noDB})
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			built = a
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env DISCOVERY_* overrides")

	cmd.AddCommand(
		newDiscoverCmd(),
		newWorklistCmd(),
		newStatsCmd(),
		newEnrichCmd(),
		newServeCmd(),
		newMigrateCmd(),
	)
	return cmd, cleanup
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context so a running discovery finishes as aborted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	root, cleanup := newRootCmd()
	err := root.ExecuteContext(ctx)
	cleanup()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

func flagBool(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	if f == nil {
		return false
	}
	v, err := cmd.Flags().GetBool(name)
	return err == nil && v
}
