package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ZanzyTHEbar/ideoscope/internal/config"
	"github.com/ZanzyTHEbar/ideoscope/internal/database"
)

// Linker flags set at release time.
var (
	version = "dev"
	commit  = "none"
)

// app carries what every subcommand needs. It is built per root command so
// tests can run several in one process.
type app struct {
	out        io.Writer
	v          *viper.Viper
	configPath string
	cfg        *config.Config
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out, v: viper.New()}

	root := &cobra.Command{
		Use:           "ideoscopectl",
		Short:         "Operate an ideoscope database and catalog.",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
				color.NoColor = true
			}
			return a.loadConfig()
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default: ./ideoscope.yaml if present)")
	flags.String("data-dir", "", "database directory (overrides database.data_dir)")
	flags.String("db-file", "", "database file name (overrides database.file)")
	flags.Bool("no-color", false, "disable coloured output")
	_ = a.v.BindPFlag("database.data_dir", flags.Lookup("data-dir"))
	_ = a.v.BindPFlag("database.file", flags.Lookup("db-file"))

	root.AddCommand(
		a.newMigrateCmd(),
		a.newSeedCmd(),
		a.newCatalogCmd(),
		a.newScoreCmd(),
		a.newLeaderboardCmd(),
		a.newCleanupCmd(),
		a.newRateLimitCmd(),
	)
	return root
}

func (a *app) loadConfig() error {
	cfg, err := config.LoadOffline(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// openDB opens and migrates the configured database.
func (a *app) openDB() (*database.DB, error) {
	db, err := database.NewDB(database.Config{
		DataDir: a.cfg.Database.DataDir,
		File:    a.cfg.Database.File,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func (a *app) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}
