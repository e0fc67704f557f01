package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/ideoscope/internal/database"
)

func (a *app) newSeedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a catalog document into an empty database.",
		Long: `Load tests, questions, categories, insights, ideologies, public figures
and translations from a YAML catalog. Without --file the built-in catalog
is used. The database must not hold a catalog yet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := loadSeedCatalog(file)
			if err != nil {
				return err
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			repo := database.NewRepository(db)
			tests, err := repo.ListTests(cmd.Context())
			if err != nil {
				return err
			}
			if len(tests) > 0 {
				return fmt.Errorf("database already holds a catalog (%d tests)", len(tests))
			}

			res, err := repo.Seed(cmd.Context(), cat)
			if err != nil {
				return err
			}

			a.printf("✅ Seeded %d tests, %d questions, %d categories, %d insights, %d ideologies, %d public figures, %d translations\n",
				res.Tests, res.Questions, res.Categories, res.Insights, res.Ideologies, res.PublicFigures, res.Translations)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog YAML file (default: built-in catalog)")
	return cmd
}

func loadSeedCatalog(path string) (*database.SeedCatalog, error) {
	if path == "" {
		return database.DefaultSeedCatalog()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() { _ = f.Close() }()

	return database.ParseSeedCatalog(f)
}
