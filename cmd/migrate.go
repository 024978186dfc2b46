package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vindloodgieter/discovery/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Applies pending database migrations",
		Annotations: map[string]string{
			annotationDB:            "true",
			annotationManualMigrate: "true",
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			pool := a.Pool()
			if pool == nil {
				return errors.New("migrate needs a database connection")
			}
			res, err := postgres.Migrate(cmd.Context(), pool, a.Logger)
			if err != nil {
				return err
			}
			if !res.Changed() {
				fmt.Fprintf(cmd.OutOrStdout(), "schema is up to date at version %d\n", res.To)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated schema from version %d to %d\n", res.From, res.To)
			return nil
		},
	}
}
