package model

import "strconv"

// CaseResult is the normalized outcome recorded for a test case.
type CaseResult string

const (
	ResultPass    CaseResult = "Pass"
	ResultFail    CaseResult = "Fail"
	ResultBlocked CaseResult = "Blocked"
	ResultSkipped CaseResult = "Skipped"
	ResultUnknown CaseResult = "Unknown"
)

// IsDefect reports whether the outcome should produce a defect analysis.
func (r CaseResult) IsDefect() bool {
	return r == ResultFail || r == ResultBlocked
}

// AuditStatus is the verdict of the result audit stage.
type AuditStatus string

const (
	AuditPending AuditStatus = ""
	AuditPassed  AuditStatus = "Passed"
	AuditFlagged AuditStatus = "Flagged"
)

// TestCase is one row of an uploaded test report. Raw fields come from the
// spreadsheet; Module and the audit fields are set by pipeline stages.
type TestCase struct {
	Row          int         `json:"row"`
	CaseID       string      `json:"case_id"`
	Title        string      `json:"title"`
	Module       string      `json:"module,omitempty"`
	ModuleSource string      `json:"module_source,omitempty"` // "sheet" or "classifier"
	Precondition string      `json:"precondition,omitempty"`
	Steps        string      `json:"steps,omitempty"`
	Expected     string      `json:"expected,omitempty"`
	Actual       string      `json:"actual,omitempty"`
	RawResult    string      `json:"raw_result,omitempty"`
	Result       CaseResult  `json:"normalized_result"`
	Remark       string      `json:"remark,omitempty"`
	Tester       string      `json:"tester,omitempty"`
	AuditStatus  AuditStatus `json:"audit_status,omitempty"`
	AuditReason  string      `json:"audit_reason,omitempty"`
}

// Key identifies the case in logs and prompts.
func (c *TestCase) Key() string {
	if c.CaseID != "" {
		return c.CaseID
	}
	return "row-" + strconv.Itoa(c.Row)
}
