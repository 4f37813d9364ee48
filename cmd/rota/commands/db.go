package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/rota/db"
	"github.com/teranos/rota/logger"
)

// DbCmd manages the rota database
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the rota database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	Long:  "Apply pending migrations. Every other command does this on open; use it to prepare a database ahead of time.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		database, err := db.Open(cfg.Database.Path, logger.Logger)
		if err != nil {
			return err
		}
		defer database.Close()

		pending, err := db.Pending(database)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			pterm.Success.Printfln("Database %s is up to date", cfg.Database.Path)
			return nil
		}
		if err := db.Migrate(database, logger.Logger); err != nil {
			return err
		}
		for _, m := range pending {
			pterm.Success.Printfln("Applied %s", m.Name)
		}
		return nil
	},
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job queue statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.queue.GetStats(ctx)
		if err != nil {
			return err
		}
		return pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
			{"QUEUED", "RUNNING", "COMPLETED", "FAILED", "CANCELLED", "TOTAL"},
			{
				fmt.Sprint(stats.Queued), fmt.Sprint(stats.Running), fmt.Sprint(stats.Completed),
				fmt.Sprint(stats.Failed), fmt.Sprint(stats.Cancelled), fmt.Sprint(stats.Total),
			},
		}).Render()
	},
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}
