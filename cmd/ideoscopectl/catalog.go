package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/ideoscope/internal/catalog"
	"github.com/ZanzyTHEbar/ideoscope/internal/database"
)

func (a *app) newCatalogCmd() *cobra.Command {
	var builtin bool

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the reference catalog.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	cmd.PersistentFlags().BoolVar(&builtin, "builtin", false, "read the built-in catalog instead of the database")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "ideologies",
			Short: "List ideologies and their reference vectors.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				snap, err := a.snapshot(cmd.Context(), builtin)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(snap.Ideologies))
				for _, ideology := range snap.Ideologies {
					v := ideology.ScoreVector
					rows = append(rows, []string{
						strconv.FormatInt(ideology.ID, 10),
						ideology.Name,
						formatScore(v.Econ),
						formatScore(v.Dipl),
						formatScore(v.Govt),
						formatScore(v.Scty),
					})
				}
				return renderTable(a.out, []string{"ID", "Ideology", "Econ", "Dipl", "Govt", "Scty"}, rows)
			},
		},
		&cobra.Command{
			Use:   "figures",
			Short: "List public figures and the ideology they represent.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				snap, err := a.snapshot(cmd.Context(), builtin)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(snap.Figures))
				for _, figure := range snap.Figures {
					ideology := "?"
					if entry, ok := snap.Ideology(figure.IdeologyID); ok {
						ideology = entry.Name
					}
					rows = append(rows, []string{
						strconv.FormatInt(figure.ID, 10),
						figure.Name,
						ideology,
					})
				}
				return renderTable(a.out, []string{"ID", "Public Figure", "Ideology"}, rows)
			},
		},
		&cobra.Command{
			Use:   "insights",
			Short: "List insight texts per axis and score range.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				snap, err := a.snapshot(cmd.Context(), builtin)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(snap.Insights))
				for _, insight := range snap.Insights {
					rows = append(rows, []string{
						strconv.FormatInt(insight.ID, 10),
						string(insight.Category),
						fmt.Sprintf("[%s, %s)", formatScore(insight.LowerLimit), formatScore(insight.UpperLimit)),
						truncate(insight.InsightText, maxInsightWidth),
					})
				}
				return renderTable(a.out, []string{"ID", "Axis", "Range", "Insight"}, rows)
			},
		},
	)
	return cmd
}

// snapshot reads the catalog from the database, or from the compiled-in
// seed document when builtin is set.
func (a *app) snapshot(ctx context.Context, builtin bool) (*catalog.Snapshot, error) {
	if builtin {
		cat, err := database.DefaultSeedCatalog()
		if err != nil {
			return nil, err
		}
		return snapshotFromSeed(cat), nil
	}

	db, err := a.openDB()
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	snap, err := catalog.Load(ctx, database.NewRepository(db))
	if err != nil {
		return nil, err
	}
	if len(snap.Ideologies) == 0 {
		return nil, fmt.Errorf("database holds no catalog; run 'ideoscopectl seed' or pass --builtin")
	}
	return snap, nil
}

func snapshotFromSeed(cat *database.SeedCatalog) *catalog.Snapshot {
	snap := &catalog.Snapshot{}
	for _, t := range cat.Tests {
		snap.Tests = append(snap.Tests, t.Test)
	}
	for _, c := range cat.Categories {
		snap.Categories = append(snap.Categories, c.Category)
	}
	for _, in := range cat.Insights {
		snap.Insights = append(snap.Insights, in.InsightCatalogEntry)
	}
	for _, ideology := range cat.Ideologies {
		snap.Ideologies = append(snap.Ideologies, ideology.IdeologyCatalogEntry)
	}
	for _, figure := range cat.PublicFigures {
		snap.Figures = append(snap.Figures, figure.PublicFigureCatalogEntry)
	}
	return snap
}
