package model

import "strings"

// Severity is the classifier's guess at how serious a defect is.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityMajor    Severity = "Major"
	SeverityMinor    Severity = "Minor"
)

// ParseSeverity maps free-form classifier output onto a known severity.
// Anything unrecognized becomes Major.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "blocker", "致命", "严重":
		return SeverityCritical
	case "minor", "trivial", "low", "一般", "轻微":
		return SeverityMinor
	default:
		return SeverityMajor
	}
}

// DefectAnalysis is the structured fact extracted from one failing test case.
// Case points back to the originating case; the case does not own it.
type DefectAnalysis struct {
	Case          *TestCase `json:"-"`
	CaseKey       string    `json:"case_id"`
	Module        string    `json:"module,omitempty"`
	Phenomenon    string    `json:"phenomenon"`
	ObservedFact  string    `json:"observed_fact"`
	Hypothesis    string    `json:"hypothesis"`
	Evidence      []string  `json:"evidence"`
	ReproSteps    string    `json:"repro_steps"`
	SeverityGuess Severity  `json:"severity_guess"`
}

// ClusterKind tells a classifier-proposed cluster apart from the two
// synthesized fallbacks.
type ClusterKind string

const (
	ClusterProposed ClusterKind = "proposed"
	ClusterIsolated ClusterKind = "isolated"
	ClusterFallback ClusterKind = "fallback"
)

// DefectCluster is a named group of defects. Every narrative field is set when
// the cluster is built.
type DefectCluster struct {
	Name                string            `json:"cluster_name"`
	Kind                ClusterKind       `json:"kind"`
	Summary             string            `json:"summary"`
	RootCauseHypothesis string            `json:"root_cause_hypothesis"`
	RiskAssessment      string            `json:"risk_assessment"`
	ActionSuggestion    string            `json:"action_suggestion"`
	Defects             []*DefectAnalysis `json:"defects"`
}
