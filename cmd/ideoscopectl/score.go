package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/ideoscope/internal/scoring"
)

func (a *app) newScoreCmd() *cobra.Command {
	var (
		builtin bool
		seed    int64
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Classify axis scores and find the nearest ideology, offline.",
		Example: `  ideoscopectl score --econ 100 --dipl 70 --govt 40 --scty 80
  ideoscopectl score --builtin --econ 50 --dipl 50 --govt 50 --scty 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			input, err := scoreInputFromFlags(cmd)
			if err != nil {
				return err
			}
			v, err := input.Vector()
			if err != nil {
				return err
			}

			snap, err := a.snapshot(cmd.Context(), builtin)
			if err != nil {
				return err
			}

			if seed == 0 {
				seed = a.cfg.Scoring.Seed
			}
			engine := scoring.NewEngine(scoring.Config{
				MissingAnswerPolicy: a.cfg.MissingAnswerPolicy(),
				Seed:                seed,
			})

			eval, err := engine.Evaluate(v, snap.Insights, snap.Ideologies, snap.Figures)
			if err != nil {
				return err
			}
			return a.printEvaluation(eval)
		},
	}

	flags := cmd.Flags()
	for _, axis := range scoring.Axes {
		flags.Float64(string(axis), 0, fmt.Sprintf("%s axis score in [0, 100]", axis))
	}
	flags.BoolVar(&builtin, "builtin", false, "use the built-in catalog instead of the database")
	flags.Int64Var(&seed, "seed", 0, "seed for public figure selection (default: scoring.seed)")
	return cmd
}

// scoreInputFromFlags leaves unset axes nil so Vector reports them.
func scoreInputFromFlags(cmd *cobra.Command) (scoring.ScoreInput, error) {
	var input scoring.ScoreInput
	targets := map[scoring.Axis]**float64{
		scoring.AxisEcon: &input.Econ,
		scoring.AxisDipl: &input.Dipl,
		scoring.AxisGovt: &input.Govt,
		scoring.AxisScty: &input.Scty,
	}
	for axis, target := range targets {
		if !cmd.Flags().Changed(string(axis)) {
			continue
		}
		value, err := cmd.Flags().GetFloat64(string(axis))
		if err != nil {
			return input, err
		}
		*target = &value
	}
	return input, nil
}

func (a *app) printEvaluation(eval *scoring.Evaluation) error {
	rows := make([][]string, 0, len(eval.Insights))
	for _, in := range eval.Insights {
		rows = append(rows, []string{
			string(in.Category),
			fmt.Sprintf("%d", in.Score),
			bandLabel(in.Band),
			truncate(in.Insight.InsightText, maxInsightWidth),
		})
	}
	if err := renderTable(a.out, []string{"Axis", "Score", "Band", "Insight"}, rows); err != nil {
		return err
	}

	a.printf("\n🧭 Ideology: %s (distance %s)\n", bold(eval.Ideology.Ideology.Name), formatScore(eval.Ideology.Distance))
	if eval.Figure != nil {
		note := ""
		if eval.Figure.Substituted {
			note = " (substituted, no figure shares this ideology)"
		}
		a.printf("👤 Public figure: %s%s\n", eval.Figure.Figure.Name, note)
	}
	return nil
}
