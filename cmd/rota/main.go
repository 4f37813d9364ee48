package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/rota/cmd/rota/commands"
	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/logger"
)

var rootCmd = &cobra.Command{
	Use:   "rota",
	Short: "rota - staff schedule generation from tenant workbooks",
	Long: `rota - staff schedule generation from tenant workbooks.

rota reads rosters, shift templates and preferences from a workbook
(Google Sheets or a local YAML file), builds an optimal rota under the
configured rest and contract rules, and writes the schedule back.

Available commands:
  run    - Run a schedule now
  status - Show a job's status
  jobs   - List recent jobs
  stale  - Check whether a schedule's source changed
  def    - Manage schedule definitions
  pulse  - Run the worker pool, periodic scheduler and auto-regeneration
  db     - Manage the rota database
  am     - Show configuration ("I am")

Examples:
  rota def apply -f schedules.yaml   # Register schedules
  rota run ward-a --wait             # Generate ward-a's rota and wait for it
  rota pulse start                   # Process jobs until interrupted
  rota am show                       # Show effective configuration`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLog, _ := cmd.Flags().GetBool("json-log")
		verbosity, _ := cmd.Flags().GetCount("verbose")
		if err := logger.Initialize(jsonLog, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default: nearest am.toml, then ~/.rota/am.toml)")
	rootCmd.PersistentFlags().String("db", "", "Database path (overrides database.path)")
	rootCmd.PersistentFlags().Bool("json-log", false, "Log as JSON")
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.StaleCmd)
	rootCmd.AddCommand(commands.DefCmd)
	rootCmd.AddCommand(commands.PulseCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.AmCmd)
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var exit *commands.ExitError
	if errors.As(err, &exit) {
		if exit.Err != nil {
			fmt.Fprintln(os.Stderr, exit.Err)
		}
		os.Exit(exit.Code)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
