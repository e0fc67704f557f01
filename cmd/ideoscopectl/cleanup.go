package main

import (
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/ideoscope/internal/database"
	"github.com/ZanzyTHEbar/ideoscope/internal/privacy"
)

func (a *app) newCleanupCmd() *cobra.Command {
	var retentionDays int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove abandoned anonymous sessions past the retention window.",
		Long: `Delete users older than the retention window who never finished a test,
never matched an ideology and never paid, along with their partial answers.
The server runs the same sweep on privacy.cleanup_interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			days := a.cfg.Privacy.RetentionDays
			if cmd.Flags().Changed("retention-days") {
				days = retentionDays
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			svc := privacy.NewService(db, database.NewRepository(db), days)
			removed, err := svc.CleanupInactive(cmd.Context())
			if err != nil {
				return err
			}

			a.printf("🧹 Removed %d inactive users (retention %d days)\n", removed, svc.RetentionDays())
			return nil
		},
	}

	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "override privacy.retention_days")
	return cmd
}
