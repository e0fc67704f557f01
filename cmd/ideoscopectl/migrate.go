package main

import (
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/ideoscope/internal/database"
)

func (a *app) newMigrateCmd() *cobra.Command {
	var target int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move the database schema to a version (latest by default).",
		Long: `Apply or roll back the embedded schema migrations.
--target-version -1 applies everything, 0 rolls everything back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := database.Open(database.Config{
				DataDir: a.cfg.Database.DataDir,
				File:    a.cfg.Database.File,
			})
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			result, err := database.Migrate(db, target)
			if err != nil {
				return err
			}

			if !result.Changed {
				a.printf("✅ Schema already at version %d\n", result.From)
				return nil
			}
			a.printf("✅ Migrated schema from version %d to %d\n", result.From, result.To)
			return nil
		},
	}

	cmd.Flags().IntVar(&target, "target-version", database.LatestVersion, "schema version to migrate to")
	return cmd
}
