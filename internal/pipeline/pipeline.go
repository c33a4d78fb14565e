// Package pipeline runs the analysis stages of one job: ingest, tag, audit,
// stats, extract and cluster, then hands the result to a report writer.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Boomnana/test-agent/internal/classifier"
	"github.com/Boomnana/test-agent/internal/fanout"
	"github.com/Boomnana/test-agent/internal/ingest"
	"github.com/Boomnana/test-agent/internal/model"
	"github.com/Boomnana/test-agent/internal/report"
)

// Stage names, in execution order.
const (
	StageIngest  = "ingest"
	StageTag     = "tag"
	StageAudit   = "audit"
	StageStats   = "stats"
	StageExtract = "extract"
	StageCluster = "cluster"
)

const stageCount = 6

// Logf appends a line to the job's user-visible log.
type Logf func(format string, args ...any)

// Options tunes a Pipeline.
type Options struct {
	// MaxConcurrency caps classifier calls in flight per stage.
	MaxConcurrency int
}

// Pipeline wires a classifier and a report writer into the stage sequence.
// It holds no per-job state and is safe for concurrent Runs.
type Pipeline struct {
	classifier classifier.Classifier
	writer     report.Writer
	opts       Options
}

// New creates a Pipeline.
func New(c classifier.Classifier, w report.Writer, opts Options) *Pipeline {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = fanout.DefaultLimit
	}
	return &Pipeline{classifier: c, writer: w, opts: opts}
}

// checkpoint returns the cancellation cause once ctx is done.
func checkpoint(ctx context.Context) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}

// Run executes every stage for one job and returns the result reference.
// Stages run strictly in sequence; ctx is checked before each one and after
// each fan-out, and partial output is discarded once it is done.
func (p *Pipeline) Run(ctx context.Context, jobID string, src ingest.Source, logf Logf) (string, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	log := zap.L().With(zap.String("job_id", jobID), zap.String("source", src.Name()))
	log.Info("pipeline: starting analysis")

	meter := classifier.NewMeter(p.classifier)
	result := &model.AnalysisResult{JobID: jobID, Source: src.Name()}

	trackStage := func(name string, fn func() (*model.StageResult, error)) error {
		if err := checkpoint(ctx); err != nil {
			return err
		}

		start := time.Now()
		sr, fnErr := fn()
		duration := time.Since(start).Milliseconds()

		if sr == nil {
			sr = &model.StageResult{}
		}
		sr.Name = name
		sr.Duration = duration

		if fnErr != nil {
			sr.Status = model.StageFailed
			sr.Error = fnErr.Error()
			log.Error("pipeline: stage failed",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
		} else {
			sr.Status = model.StageComplete
			log.Info("pipeline: stage complete",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
				zap.Int("input", sr.Input),
				zap.Int("output", sr.Output),
				zap.Int("failed", sr.Failed),
			)
		}
		result.Stages = append(result.Stages, *sr)
		if fnErr != nil {
			return fnErr
		}
		// A stage that drained because ctx ended produced partial output.
		return checkpoint(ctx)
	}

	var cases []*model.TestCase

	// ===== Stage 1: Ingest =====
	err := trackStage(StageIngest, func() (*model.StageResult, error) {
		logf("Step 1/%d: parsing test cases from %s.", stageCount, src.Name())
		loaded, loadErr := src.Load(ctx)
		if loadErr != nil {
			return nil, eris.Wrap(loadErr, "pipeline: ingest")
		}
		cases = loaded
		logf("Parsed %d test cases.", len(cases))
		return &model.StageResult{Output: len(cases)}, nil
	})
	if err != nil {
		return "", err
	}

	// ===== Stage 2: Module tagging =====
	err = trackStage(StageTag, func() (*model.StageResult, error) {
		logf("Step 2/%d: tagging business modules.", stageCount)
		in := len(cases)
		res := fanout.Map(ctx, cases, p.fanoutOpts(StageTag), func(ctx context.Context, tc *model.TestCase) (*model.TestCase, error) {
			return tagCase(ctx, meter, tc)
		})
		cases = res.Succeeded
		logf("Tagged %d of %d test cases (%d failed).", len(cases), in, len(res.Failed))
		return &model.StageResult{Input: in, Output: len(cases), Failed: len(res.Failed)}, nil
	})
	if err != nil {
		return "", err
	}

	// ===== Stage 3: Result audit =====
	var suspicious []*model.TestCase
	err = trackStage(StageAudit, func() (*model.StageResult, error) {
		logf("Step 3/%d: auditing recorded results for false passes.", stageCount)
		in := len(cases)
		res := fanout.Map(ctx, cases, p.fanoutOpts(StageAudit), func(ctx context.Context, tc *model.TestCase) (*model.TestCase, error) {
			return auditCase(ctx, meter, tc)
		})
		cases = res.Succeeded
		suspicious = nil
		for _, tc := range cases {
			if tc.AuditStatus == model.AuditFlagged {
				suspicious = append(suspicious, tc)
			}
		}
		logf("Found %d suspicious test cases.", len(suspicious))
		return &model.StageResult{
			Input:    in,
			Output:   len(cases),
			Failed:   len(res.Failed),
			Metadata: map[string]any{"flagged": len(suspicious)},
		}, nil
	})
	if err != nil {
		return "", err
	}

	// ===== Stage 4: Statistics =====
	err = trackStage(StageStats, func() (*model.StageResult, error) {
		logf("Step 4/%d: computing statistics.", stageCount)
		result.Stats = ComputeStats(cases)
		logf("Pass rate %.1f%% over %d test cases.", result.Stats.PassRate*100, result.Stats.Total)
		return &model.StageResult{Input: len(cases), Output: len(cases)}, nil
	})
	if err != nil {
		return "", err
	}

	// ===== Stage 5: Defect extraction =====
	var facts []*model.DefectAnalysis
	err = trackStage(StageExtract, func() (*model.StageResult, error) {
		logf("Step 5/%d: extracting defect facts.", stageCount)
		var failing []*model.TestCase
		for _, tc := range cases {
			if tc.Result.IsDefect() {
				failing = append(failing, tc)
			}
		}
		res := fanout.Map(ctx, failing, p.fanoutOpts(StageExtract), func(ctx context.Context, tc *model.TestCase) (*model.DefectAnalysis, error) {
			return extractDefect(ctx, meter, tc)
		})
		facts = res.Succeeded
		logf("Extracted %d defect analyses from %d failing test cases.", len(facts), len(failing))
		return &model.StageResult{Input: len(failing), Output: len(facts), Failed: len(res.Failed)}, nil
	})
	if err != nil {
		return "", err
	}

	// ===== Stage 6: Clustering =====
	err = trackStage(StageCluster, func() (*model.StageResult, error) {
		logf("Step 6/%d: clustering defects.", stageCount)
		g := Cluster(ctx, meter, facts)
		result.Clusters = g.Clusters
		meta := map[string]any{"unclaimed": g.Unclaimed}
		if g.Err != nil {
			meta["fallback"] = true
			logf("Automatic clustering failed, all %d defects placed in one group: %v", len(facts), g.Err)
		} else {
			logf("Grouped %d defects into %d clusters.", len(facts), len(g.Clusters))
		}
		return &model.StageResult{Input: len(facts), Output: len(g.Clusters), Metadata: meta}, nil
	})
	if err != nil {
		return "", err
	}

	if err := checkpoint(ctx); err != nil {
		return "", err
	}

	result.GeneratedAt = time.Now().UTC()
	result.Cases = cases
	result.SuspiciousCases = suspicious
	result.Defects = facts
	result.TokenUsage = meter.Usage()

	ref, err := p.writer.Write(ctx, result)
	if err != nil {
		return "", eris.Wrap(err, "pipeline: write result")
	}
	if err := checkpoint(ctx); err != nil {
		return "", err
	}

	log.Info("pipeline: analysis complete",
		zap.String("result_ref", ref),
		zap.Int("cases", len(cases)),
		zap.Int("defects", len(facts)),
		zap.Int("clusters", len(result.Clusters)),
		zap.Int64("calls", result.TokenUsage.Calls),
		zap.Int64("input_tokens", result.TokenUsage.InputTokens),
		zap.Int64("output_tokens", result.TokenUsage.OutputTokens),
	)
	return ref, nil
}

func (p *Pipeline) fanoutOpts(stage string) fanout.Options {
	return fanout.Options{Limit: p.opts.MaxConcurrency, Name: stage}
}
