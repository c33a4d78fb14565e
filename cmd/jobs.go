package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Boomnana/test-agent/internal/model"
	"github.com/Boomnana/test-agent/internal/monitoring"
	"github.com/Boomnana/test-agent/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect analysis job history",
	Long:  "Commands for listing and viewing jobs recorded in the job store.",
}

// -- jobs list --

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format, "table", "json", "yaml"); err != nil {
			return err
		}

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		state, _ := cmd.Flags().GetString("state")
		limit, _ := cmd.Flags().GetInt("limit")

		list, err := st.ListJobs(ctx, store.JobFilter{State: model.JobState(state), Limit: limit})
		if err != nil {
			return eris.Wrap(err, "jobs list")
		}

		if len(list) == 0 {
			fmt.Fprintln(os.Stderr, "No jobs found.")
			return nil
		}

		if format == "table" {
			formatJobsList(cmd.OutOrStdout(), list)
			return nil
		}
		return encodeAs(cmd.OutOrStdout(), format, list)
	},
}

// -- jobs show --

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a job with its full log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format, "json", "yaml"); err != nil {
			return err
		}

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs show")
		}
		return encodeAs(cmd.OutOrStdout(), format, job)
	},
}

// -- jobs stats --

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate job health",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		snap, err := monitoring.NewCollector(st, nil).Collect(ctx, since)
		if err != nil {
			return eris.Wrap(err, "jobs stats")
		}

		formatJobStats(cmd.OutOrStdout(), snap)
		return nil
	},
}

func init() {
	jobsListCmd.Flags().String("state", "", "filter by state (pending, running, cancelling, completed, failed, cancelled)")
	jobsListCmd.Flags().Int("limit", 50, "max number of jobs to display")
	jobsListCmd.Flags().String("format", "table", "output format: table, json or yaml")

	jobsShowCmd.Flags().String("format", "json", "output format: json or yaml")

	jobsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsStatsCmd)
	rootCmd.AddCommand(jobsCmd)
}

func checkFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return eris.Errorf("jobs: --format must be one of %v (got %q)", allowed, format)
}

// encodeAs writes v as indented JSON or YAML.
func encodeAs(out io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "jobs: encode yaml")
		}
		return eris.Wrap(enc.Close(), "jobs: encode yaml")
	default:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(v), "jobs: encode json")
	}
}

// formatJobsList writes a tabular list of jobs to w.
func formatJobsList(out io.Writer, list []model.JobStatus) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATE\tCREATED\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "--\t-----\t-------\t--------\t-----")

	for _, j := range list {
		end := j.UpdatedAt
		if j.FinishedAt != nil {
			end = *j.FinishedAt
		}
		dur := end.Sub(j.CreatedAt).Round(time.Second).String()

		errMsg := j.Error
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncateID(j.ID),
			j.State,
			j.CreatedAt.Format("2006-01-02 15:04"),
			dur,
			errMsg,
		)
	}
	_ = w.Flush()
}

// formatJobStats writes aggregate job stats to w.
func formatJobStats(out io.Writer, s *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%s\n", s.Lookback)
	_, _ = fmt.Fprintf(w, "Total jobs:\t%d\n", s.JobsTotal)
	_, _ = fmt.Fprintf(w, "Completed:\t%d\n", s.JobsCompleted)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.JobsFailed)
	_, _ = fmt.Fprintf(w, "  Timed out:\t%d\n", s.JobsTimedOut)
	_, _ = fmt.Fprintf(w, "Cancelled:\t%d\n", s.JobsCancelled)
	_, _ = fmt.Fprintf(w, "Active:\t%d\n", s.JobsActive)
	_, _ = fmt.Fprintf(w, "Failure rate:\t%.1f%%\n", s.FailRate*100)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
