package model

import "time"

// StageStatus represents the outcome of one pipeline stage.
type StageStatus string

const (
	StageComplete StageStatus = "complete"
	StageFailed   StageStatus = "failed"
	StageSkipped  StageStatus = "skipped"
)

// TokenUsage tracks classifier token consumption.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	Calls        int64 `json:"calls"`
}

// Add accumulates another usage into u.
func (u *TokenUsage) Add(o TokenUsage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.Calls += o.Calls
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// StageResult records how a stage went.
type StageResult struct {
	Name     string         `json:"name"`
	Status   StageStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Input    int            `json:"input"`
	Output   int            `json:"output"`
	Failed   int            `json:"failed"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ModuleStats is the per-module breakdown of results.
type ModuleStats struct {
	Module  string `json:"module"`
	Total   int    `json:"total"`
	Passed  int    `json:"passed"`
	Failed  int    `json:"failed"`
	Blocked int    `json:"blocked"`
}

// Stats summarizes pass/fail counts for a report.
type Stats struct {
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Blocked  int           `json:"blocked"`
	Skipped  int           `json:"skipped"`
	Unknown  int           `json:"unknown"`
	Flagged  int           `json:"flagged"`
	PassRate float64       `json:"pass_rate"`
	ByModule []ModuleStats `json:"by_module"`
}

// AnalysisResult is the complete output of one job.
type AnalysisResult struct {
	JobID           string            `json:"job_id"`
	Source          string            `json:"source"`
	GeneratedAt     time.Time         `json:"generated_at"`
	Stats           Stats             `json:"stats"`
	Cases           []*TestCase       `json:"cases"`
	SuspiciousCases []*TestCase       `json:"suspicious_cases"`
	Defects         []*DefectAnalysis `json:"defects"`
	Clusters        []DefectCluster   `json:"clusters"`
	Stages          []StageResult     `json:"stages"`
	TokenUsage      TokenUsage        `json:"token_usage"`
}
