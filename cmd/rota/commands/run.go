package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/orchestrator"
	"github.com/teranos/rota/pulse/async"
)

// Exit codes of run --wait.
const (
	ExitFeasible   = 0
	ExitFailed     = 1
	ExitInfeasible = 2
)

// RunCmd requests a manual run of a schedule
var RunCmd = &cobra.Command{
	Use:   "run <schedule-id>",
	Short: "Run a schedule now",
	Long: `Queue a manual run of a schedule.

Without --wait the job id is printed and the command returns; a pulse
daemon (or a later "rota run --wait") executes it. With --wait the job is
executed in this process (unless --inline=false, which waits for a daemon
to pick it up) and the exit code reflects the outcome:

  0  completed with a schedule
  2  completed, but the constraints admit no schedule
  1  failed, cancelled, timed out or could not be queued

Examples:
  rota run ward-a                     # Queue and print the job id
  rota run ward-a --wait              # Run here and wait
  rota run ward-a --wait --json       # Print the final status as JSON`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	RunCmd.Flags().Bool("wait", false, "Wait for the job to finish")
	RunCmd.Flags().Bool("inline", true, "With --wait, execute the job in this process")
	RunCmd.Flags().Duration("timeout", 30*time.Minute, "With --wait, give up after this long")
	RunCmd.Flags().Bool("json", false, "Print the job status as JSON")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	jobID, err := a.orch.RunSchedule(ctx, args[0], async.TriggerManual)
	if err != nil {
		return err
	}

	wait, _ := cmd.Flags().GetBool("wait")
	asJSON, _ := cmd.Flags().GetBool("json")
	if !wait {
		if asJSON {
			return printJSON(map[string]string{"job_id": jobID})
		}
		pterm.Success.Printfln("Queued job %s for %s", jobID, args[0])
		return nil
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	inline, _ := cmd.Flags().GetBool("inline")
	st, err := waitForJob(ctx, a, jobID, inline)
	if err != nil {
		return &ExitError{Code: ExitFailed, Err: err}
	}

	if asJSON {
		if err := printJSON(st); err != nil {
			return err
		}
	} else {
		printStatus(st)
	}
	return exitFor(st)
}

// waitForJob executes the job here when inline, falling back to waiting
// when a daemon has already claimed it.
func waitForJob(ctx context.Context, a *app, jobID string, inline bool) (*orchestrator.JobStatus, error) {
	poll := a.cfg.Pulse.PollInterval()
	if !inline {
		return a.orch.Wait(ctx, jobID, poll)
	}
	st, err := a.orch.ExecuteByID(ctx, jobID)
	switch {
	case errors.Is(err, errors.ErrConflict):
		return a.orch.Wait(ctx, jobID, poll)
	case err != nil && ctx.Err() != nil:
		return nil, errors.Wrapf(err, "job %s interrupted and requeued", jobID)
	case err != nil:
		return nil, err
	}
	return st, nil
}

func exitFor(st *orchestrator.JobStatus) error {
	switch {
	case st.Feasible():
		return nil
	case st.Status == async.JobStatusCompleted:
		return &ExitError{Code: ExitInfeasible}
	default:
		return &ExitError{Code: ExitFailed}
	}
}

// StatusCmd shows one job
var StatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.orch.GetJobStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(st)
		}
		printStatus(st)
		return nil
	},
}

func init() {
	StatusCmd.Flags().Bool("json", false, "Print the job status as JSON")
}

func printStatus(st *orchestrator.JobStatus) {
	header := fmt.Sprintf("%s  %s (%s)", st.JobID, st.ScheduleDefID, st.Trigger)
	switch {
	case st.Feasible():
		pterm.Success.Println(header)
	case st.Status == async.JobStatusCompleted:
		pterm.Warning.Println(header + "  no feasible schedule")
	case st.Status == async.JobStatusFailed || st.Status == async.JobStatusCancelled:
		pterm.Error.Println(header)
	default:
		pterm.Info.Println(header)
	}

	rows := pterm.TableData{
		{"status", string(st.Status)},
		{"created", st.CreatedAt.Local().Format(time.RFC3339)},
	}
	if st.Reason != "" {
		rows = append(rows, []string{"reason", string(st.Reason)})
	}
	if st.Error != "" {
		rows = append(rows, []string{"error", st.Error})
	}
	if st.StartedAt != nil {
		rows = append(rows, []string{"started", st.StartedAt.Local().Format(time.RFC3339)})
	}
	if st.CompletedAt != nil {
		rows = append(rows, []string{"completed", st.CompletedAt.Local().Format(time.RFC3339)})
	}
	if st.ResultRef != "" {
		rows = append(rows, []string{"result", st.ResultRef})
	}
	if s := st.Summary; s != nil {
		rows = append(rows,
			[]string{"verdict", string(s.Verdict)},
			[]string{"objective", fmt.Sprintf("%.0f", s.Objective)},
			[]string{"slots", fmt.Sprintf("%d", s.TotalSlots)},
			[]string{"unmet preferences", fmt.Sprintf("%d", s.UnmetPreferences)},
		)
		if s.Reason != "" {
			rows = append(rows, []string{"why", s.Reason})
		}
	}
	_ = pterm.DefaultTable.WithData(rows).Render()
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal output")
	}
	fmt.Println(string(data))
	return nil
}
