package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/rota/logger"
	"github.com/teranos/rota/pulse/async"
	"github.com/teranos/rota/pulse/schedule"
	"github.com/teranos/rota/source"
)

// PulseCmd groups the daemon commands
var PulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Run the schedule daemon (workers, periodic runs, auto-regeneration)",
	Long: `Pulse daemon - background schedule generation.

The daemon provides:
- A worker pool executing queued jobs
- Periodic runs from each schedule's cron expression
- Auto-regeneration when a schedule's input changes
- Recovery of jobs whose lease expired

Example:
  rota pulse start               # Start in foreground
  rota pulse start --workers 4   # Start with 4 concurrent workers`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// PulseStartCmd starts the daemon in the foreground
var PulseStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pulse daemon",
	Long: `Start the pulse daemon in foreground mode.

Runs until interrupted (Ctrl+C). In-flight jobs are requeued on shutdown
and picked up again on the next start.`,
	RunE: runPulseStart,
}

func init() {
	PulseStartCmd.Flags().Int("workers", 0, "Number of workers (default: pulse.workers)")
	PulseCmd.AddCommand(PulseStartCmd)
}

func runPulseStart(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.log.Named("pulse")

	poolCfg := async.WorkerPoolConfig{
		Workers:             a.cfg.Pulse.Workers,
		PollInterval:        a.cfg.Pulse.PollInterval(),
		MaintenanceInterval: a.cfg.Pulse.MaintenanceInterval(),
		StopTimeout:         async.DefaultWorkerPoolConfig().StopTimeout,
	}
	if n, _ := cmd.Flags().GetInt("workers"); n > 0 {
		poolCfg.Workers = n
	}

	pterm.Info.Printfln("Starting pulse with %d worker(s) on %s", poolCfg.Workers, a.cfg.Database.Path)

	var pool *async.WorkerPool
	if poolCfg.Workers > 0 {
		pool = async.NewWorkerPool(ctx, a.queue, a.orch, poolCfg, log.Named("workers"))
		pool.SetMaintenance(a.orch.Maintenance)
		pool.Start()
	} else {
		pterm.Warning.Println("No workers configured; jobs are only queued")
	}

	scheduler := schedule.NewScheduler(a.defs, a.queue, a.orch, schedule.SchedulerConfigFrom(a.cfg.Trigger), log.Named("scheduler"))
	if err := scheduler.Start(ctx); err != nil {
		if pool != nil {
			pool.Stop()
		}
		return err
	}

	regen := schedule.NewRegenerator(schedule.RegeneratorDeps{
		Definitions: a.defs,
		Leases:      a.guard,
		Jobs:        a.queue,
		SyncLogs:    a.syncLogs,
		Stale:       a.stale,
		Dispatcher:  a.orch,
	}, schedule.RegeneratorConfigFrom(a.cfg.Trigger), log.Named("regenerator"))
	regen.Start(ctx)

	if a.cfg.Trigger.WatchFiles {
		watcher, err := watchWorkbooks(ctx, a, regen)
		if err != nil {
			log.Warnw("File watching disabled", logger.FieldError, err)
		} else {
			defer watcher.Close()
		}
	}

	pterm.Success.Printfln("Pulse running with %d periodic schedule(s). Press Ctrl+C to stop.", scheduler.Len())
	<-ctx.Done()

	pterm.Info.Println("Shutting down...")
	regen.Stop()
	scheduler.Stop()
	if pool != nil {
		pool.Stop()
	}
	pterm.Success.Println("Pulse stopped")
	return nil
}

// watchWorkbooks forwards edits of local workbooks to the regenerator.
func watchWorkbooks(ctx context.Context, a *app, regen *schedule.Regenerator) (*source.Watcher, error) {
	watcher, err := source.NewWatcher(a.log.Named("watch"))
	if err != nil {
		return nil, err
	}
	defs, err := a.defs.ListActive(ctx)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	for _, def := range defs {
		if err := watcher.WatchDefinition(def); err != nil {
			a.log.Warnw("Cannot watch schedule inputs", logger.FieldScheduleDefID, def.ID, logger.FieldError, err)
		}
	}
	go watcher.Run(ctx, func(ev source.ChangeEvent) {
		regen.Notify(ev.ScheduleDefID)
	})
	return watcher, nil
}
