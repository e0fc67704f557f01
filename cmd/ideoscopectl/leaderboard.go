package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/ideoscope/internal/database"
	"github.com/ZanzyTHEbar/ideoscope/internal/leaderboard"
)

func (a *app) newLeaderboardCmd() *cobra.Command {
	var (
		period string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank ideologies by how many users currently match them.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			svc := leaderboard.NewService(db, database.NewRepository(db), 0)
			defer svc.Close()

			board, err := svc.GetLeaderboard(cmd.Context(), period, limit)
			if err != nil {
				return err
			}

			if len(board.Entries) == 0 {
				a.printf("No ideology matches recorded (%s)\n", period)
				return nil
			}

			rows := make([][]string, 0, len(board.Entries))
			for _, entry := range board.Entries {
				rows = append(rows, []string{
					strconv.Itoa(entry.Rank),
					entry.Name,
					strconv.Itoa(entry.Users),
					fmt.Sprintf("%.1f%%", entry.Share),
				})
			}
			if err := renderTable(a.out, []string{"Rank", "Ideology", "Users", "Share"}, rows); err != nil {
				return err
			}

			a.printf("%s %d users (%s)\n", bold("Total:"), board.Total, period)
			return nil
		},
	}

	cmd.Flags().StringVarP(&period, "period", "p", leaderboard.PeriodAllTime, "daily, weekly, monthly or all_time")
	cmd.Flags().IntVarP(&limit, "limit", "n", leaderboard.DefaultLimit, "number of ideologies to show")
	return cmd
}
