package pipeline

import (
	"fmt"
	"strings"

	"github.com/Boomnana/test-agent/internal/model"
)

const tagSystemPrompt = `You are a senior QA engineer. Assign the test case to the single business module it exercises (for example "Login", "Payment", "Order", "User Center"). Prefer short module names and reuse the same name for cases that test the same area. Respond with a valid JSON object only: {"module": "<module name>"}`

const auditSystemPrompt = `You are a meticulous QA auditor. Check whether the recorded result of a test case is credible. Flag the case when the result contradicts the actual behaviour (a "false pass", for example a Pass whose actual result shows an error or differs from the expected result), when a Fail has an actual result that matches the expected result, or when the actual result is missing for an executed case. Respond with a valid JSON object only: {"status": "Passed" | "Flagged", "reason": "<one sentence, empty when Passed>"}`

const extractSystemPrompt = `You are a senior test engineer. Extract structured defect facts from a failed test case so the defects can be grouped later.

Fields:
- phenomenon: one sentence "[Module] scenario - visible error", naming the module, the operation and the user-visible failure.
- observed_fact: only what was directly observed in the page or logs, no speculation.
- hypothesis: "Type: <category>; Detail: <reasoning>", category one of requirement defect, logic error, interface contract mismatch, configuration error, boundary/null handling, concurrency/timing, compatibility, environment/deployment, third-party dependency, performance, security, test data, test design, other.
- evidence: array of short quotes from the steps, actual result or remark that support the hypothesis.
- repro_steps: the minimal complete steps that reproduce the defect from scratch.
- severity_guess: one of "Critical" (core flow unusable, data loss or security risk), "Major" (main feature impaired but can be worked around), "Minor" (cosmetic or limited impact).

Respond with a valid JSON object only:
{"phenomenon": "", "observed_fact": "", "hypothesis": "", "evidence": [""], "repro_steps": "", "severity_guess": "Critical|Major|Minor"}`

const clusterSystemPrompt = `You are a senior test architect. Group the defects found in this test run by root cause, symptom or affected module.

Rules:
- Every defect belongs to at most one cluster. Do not repeat an ID.
- Same module with similar symptoms can share a cluster; the same symptom in different modules should not be merged.
- Aim for 3 to 7 clusters. Split a cluster with more than 7 defects by error code or sub-module where possible.
- Leave out a defect only when its description has no usable technical detail at all.

Fields:
- cluster_name: short name, "<module> - <problem type>".
- summary: 1-2 sentences on what the defects have in common.
- root_cause_hypothesis: a reasoned guess at the underlying cause.
- risk_assessment: "High/Medium/Low - impact".
- action_suggestion: a concrete action that could be used as a ticket title.
- defect_ids: the IDs from the list below.

Respond with a valid JSON object only:
{"clusters": [{"cluster_name": "", "summary": "", "root_cause_hypothesis": "", "risk_assessment": "", "action_suggestion": "", "defect_ids": ["0", "1"]}]}`

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func tagPrompt(tc *model.TestCase) string {
	return fmt.Sprintf("Case ID: %s\nTitle: %s\nPrecondition: %s\nSteps: %s\nExpected: %s",
		orDash(tc.CaseID), orDash(tc.Title), orDash(tc.Precondition), orDash(tc.Steps), orDash(tc.Expected))
}

func auditPrompt(tc *model.TestCase) string {
	return fmt.Sprintf("Title: %s\nModule: %s\nSteps: %s\nExpected: %s\nActual: %s\nRecorded result: %s (normalized %s)\nRemark: %s",
		orDash(tc.Title), orDash(tc.Module), orDash(tc.Steps), orDash(tc.Expected), orDash(tc.Actual),
		orDash(tc.RawResult), tc.Result, orDash(tc.Remark))
}

func extractPrompt(tc *model.TestCase) string {
	return fmt.Sprintf("Title: %s\nModule: %s\nSteps: %s\nExpected: %s\nActual: %s\nResult: %s\nRemark: %s",
		orDash(tc.Title), orDash(tc.Module), orDash(tc.Steps), orDash(tc.Expected), orDash(tc.Actual),
		tc.Result, orDash(tc.Remark))
}

func clusterPrompt(facts []*model.DefectAnalysis) string {
	var b strings.Builder
	b.WriteString("Defects:\n")
	for i, d := range facts {
		module := d.Module
		if module == "" {
			module = "unknown module"
		}
		fmt.Fprintf(&b, "ID: %d | Module: %s | Severity: %s | Phenomenon: %s\n",
			i, module, d.SeverityGuess, orDash(d.Phenomenon))
	}
	return b.String()
}
