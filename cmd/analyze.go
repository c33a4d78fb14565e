package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Boomnana/test-agent/internal/ingest"
	"github.com/Boomnana/test-agent/internal/jobs"
	"github.com/Boomnana/test-agent/internal/model"
	anthropicpkg "github.com/Boomnana/test-agent/pkg/anthropic"
)

const followInterval = 250 * time.Millisecond

var analyzeSheet string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.xlsx>",
	Short: "Analyze one test report locally",
	Long:  "Runs the full analysis for a spreadsheet as a single job, streams the job log and prints a summary with token usage.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg, "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		src := ingest.FileSource{Path: args[0], Options: ingest.XLSXOptions{SheetName: analyzeSheet}}
		id := env.Jobs.Submit(func(ctx context.Context, ex *jobs.Execution) (string, error) {
			return env.Pipeline.Run(ctx, ex.ID, src, ex.Logf)
		})

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Job %s submitted for %s\n", id, src.Name()) //nolint:errcheck

		st := followJob(ctx, env.Jobs, id, out, followInterval)
		switch st.State {
		case model.JobCompleted:
		case model.JobCancelled:
			return eris.New("analyze: job cancelled")
		default:
			return eris.Errorf("analyze: job %s: %s", st.State, st.Error)
		}

		res, err := env.Reports.Read(id)
		if err != nil {
			return eris.Wrap(err, "analyze: read result")
		}
		printSummary(out, res, st.ResultRef)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeSheet, "sheet", "", "worksheet to read (default: first sheet with a header row)")
	rootCmd.AddCommand(analyzeCmd)
}

// jobFollower is the part of jobs.Manager followJob needs.
type jobFollower interface {
	Status(id string) model.JobStatus
	Cancel(id string) model.CancelResult
}

// followJob prints new log entries for id until the job is terminal. When
// ctx is done the job is cancelled once and following continues until the
// execution unwinds.
func followJob(ctx context.Context, m jobFollower, id string, out io.Writer, interval time.Duration) model.JobStatus {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	printed := 0
	done := ctx.Done()
	for {
		st := m.Status(id)
		for _, e := range st.Log[min(printed, len(st.Log)):] {
			fmt.Fprintln(out, e.String()) //nolint:errcheck
		}
		printed = max(printed, len(st.Log))

		if st.State.Terminal() || st.State == model.JobUnknown {
			return st
		}

		select {
		case <-done:
			m.Cancel(id)
			done = nil
		case <-ticker.C:
		}
	}
}

// printSummary writes the headline numbers of a result.
func printSummary(out io.Writer, res *model.AnalysisResult, ref string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Source:\t%s\n", res.Source)
	_, _ = fmt.Fprintf(w, "Cases:\t%d\n", res.Stats.Total)
	_, _ = fmt.Fprintf(w, "Passed:\t%d\n", res.Stats.Passed)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", res.Stats.Failed)
	_, _ = fmt.Fprintf(w, "Blocked:\t%d\n", res.Stats.Blocked)
	_, _ = fmt.Fprintf(w, "Pass rate:\t%.1f%%\n", res.Stats.PassRate*100)
	_, _ = fmt.Fprintf(w, "Suspicious:\t%d\n", len(res.SuspiciousCases))
	_, _ = fmt.Fprintf(w, "Defects:\t%d\n", len(res.Defects))
	_, _ = fmt.Fprintf(w, "Clusters:\t%d\n", len(res.Clusters))
	_, _ = fmt.Fprintf(w, "Classifier calls:\t%d\n", res.TokenUsage.Calls)
	_, _ = fmt.Fprintf(w, "Tokens:\t%d in / %d out\n", res.TokenUsage.InputTokens, res.TokenUsage.OutputTokens)
	if cost := estimateCost(res.TokenUsage); cost > 0 {
		_, _ = fmt.Fprintf(w, "Estimated cost:\t$%.4f\n", cost)
	}
	if ref != "" {
		_, _ = fmt.Fprintf(w, "Result:\t%s\n", ref)
	}
	_ = w.Flush()

	for _, c := range res.Clusters {
		_, _ = fmt.Fprintf(out, "\n%s (%d defects)\n  %s\n", c.Name, len(c.Defects), c.Summary)
	}
}

// estimateCost prices usage for the Anthropic provider; other providers
// report zero.
func estimateCost(u model.TokenUsage) float64 {
	if cfg == nil || cfg.Classifier.Provider != "anthropic" {
		return 0
	}
	usage := anthropicpkg.TokenUsage{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens}
	return usage.EstimateCost(cfg.Anthropic.Model)
}
