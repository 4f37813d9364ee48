package commands

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/pulse/async"
	"github.com/teranos/rota/pulse/guard"
)

// JobsCmd lists recent jobs
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent jobs",
	Long: `List recent jobs, newest first.

Examples:
  rota jobs                         # Last 20 jobs
  rota jobs --def ward-a            # Jobs of one schedule
  rota jobs --status failed -n 50   # Recent failures`,
	RunE: runJobs,
}

func init() {
	JobsCmd.Flags().String("def", "", "Only jobs of this schedule")
	JobsCmd.Flags().String("status", "", "Only jobs in this status (queued, running, completed, failed, cancelled)")
	JobsCmd.Flags().IntP("limit", "n", 20, "Maximum number of jobs")
	JobsCmd.Flags().Bool("json", false, "Print jobs as JSON")
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	filter := async.ListFilter{}
	filter.ScheduleDefID, _ = cmd.Flags().GetString("def")
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	if status, _ := cmd.Flags().GetString("status"); status != "" {
		if !async.IsValidStatus(status) {
			return errors.NewInvalidRequestError("unknown status %q", status)
		}
		filter.Status = async.JobStatus(status)
	}

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	jobs, err := a.queue.ListJobs(ctx, filter)
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(jobs)
	}
	if len(jobs) == 0 {
		pterm.Info.Println("No jobs")
		return nil
	}

	data := pterm.TableData{{"JOB", "SCHEDULE", "TRIGGER", "STATUS", "REASON", "CREATED", "RESULT"}}
	for _, j := range jobs {
		data = append(data, []string{
			j.ID,
			j.ScheduleDefID,
			string(j.Trigger),
			colorStatus(j.Status),
			string(j.Reason),
			j.CreatedAt.Local().Format(time.DateTime),
			j.ResultRef,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func colorStatus(s async.JobStatus) string {
	switch s {
	case async.JobStatusCompleted:
		return pterm.FgGreen.Sprint(s)
	case async.JobStatusFailed:
		return pterm.FgRed.Sprint(s)
	case async.JobStatusRunning:
		return pterm.FgCyan.Sprint(s)
	case async.JobStatusCancelled:
		return pterm.FgGray.Sprint(s)
	default:
		return string(s)
	}
}

// StaleCmd reports whether a schedule's input changed since the cached result
var StaleCmd = &cobra.Command{
	Use:   "stale <schedule-id>",
	Short: "Check whether a schedule's source changed since its last result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		def, err := a.defs.Get(ctx, args[0])
		if err != nil {
			return err
		}
		st, err := a.stale.IsStale(ctx, def)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(st)
		}
		switch {
		case st.Stale:
			pterm.Warning.Printfln("%s is stale (%s)", def.ID, st.Reason)
		case st.Reason == guard.StaleFresh:
			pterm.Success.Printfln("%s is up to date", def.ID)
		default:
			pterm.Info.Printfln("%s is not regenerated (%s)", def.ID, st.Reason)
		}
		return pterm.DefaultTable.WithData(pterm.TableData{
			{"current", st.Current},
			{"cached", st.Cached},
			{"from snapshot", boolString(st.FromSnapshot)},
		}).Render()
	},
}

func init() {
	StaleCmd.Flags().Bool("json", false, "Print the result as JSON")
}

func boolString(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
