package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/Boomnana/test-agent/internal/classifier"
	"github.com/Boomnana/test-agent/internal/model"
)

const (
	tagMaxTokens     = 128
	auditMaxTokens   = 256
	extractMaxTokens = 1024
)

// unassignedModule labels cases without a module in statistics.
const unassignedModule = "Unassigned"

type tagResponse struct {
	Module string `json:"module"`
}

// tagCase sets tc.Module. A module already present in the sheet is kept and
// no call is made.
func tagCase(ctx context.Context, c classifier.Classifier, tc *model.TestCase) (*model.TestCase, error) {
	if tc.Module != "" {
		if tc.ModuleSource == "" {
			tc.ModuleSource = "sheet"
		}
		return tc, nil
	}

	var resp tagResponse
	_, err := classifier.ClassifyJSON(ctx, c, classifier.Request{
		Task:      classifier.TaskTag,
		System:    tagSystemPrompt,
		Prompt:    tagPrompt(tc),
		MaxTokens: tagMaxTokens,
	}, &resp)
	if err != nil {
		return nil, eris.Wrapf(err, "tag %s", tc.Key())
	}
	module := strings.TrimSpace(resp.Module)
	if module == "" {
		return nil, eris.Wrapf(classifier.ErrMalformed, "tag %s: empty module", tc.Key())
	}
	tc.Module = module
	tc.ModuleSource = "classifier"
	return tc, nil
}

type auditResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// auditCase sets the audit verdict on tc.
func auditCase(ctx context.Context, c classifier.Classifier, tc *model.TestCase) (*model.TestCase, error) {
	var resp auditResponse
	_, err := classifier.ClassifyJSON(ctx, c, classifier.Request{
		Task:      classifier.TaskAudit,
		System:    auditSystemPrompt,
		Prompt:    auditPrompt(tc),
		MaxTokens: auditMaxTokens,
	}, &resp)
	if err != nil {
		return nil, eris.Wrapf(err, "audit %s", tc.Key())
	}
	if strings.EqualFold(strings.TrimSpace(resp.Status), string(model.AuditFlagged)) {
		tc.AuditStatus = model.AuditFlagged
		tc.AuditReason = strings.TrimSpace(resp.Reason)
	} else {
		tc.AuditStatus = model.AuditPassed
		tc.AuditReason = ""
	}
	return tc, nil
}

type extractResponse struct {
	Phenomenon    string   `json:"phenomenon"`
	ObservedFact  string   `json:"observed_fact"`
	Hypothesis    string   `json:"hypothesis"`
	Evidence      []string `json:"evidence"`
	ReproSteps    string   `json:"repro_steps"`
	SeverityGuess string   `json:"severity_guess"`
}

// extractDefect builds the defect fact for one failing case.
func extractDefect(ctx context.Context, c classifier.Classifier, tc *model.TestCase) (*model.DefectAnalysis, error) {
	var resp extractResponse
	_, err := classifier.ClassifyJSON(ctx, c, classifier.Request{
		Task:      classifier.TaskExtract,
		System:    extractSystemPrompt,
		Prompt:    extractPrompt(tc),
		MaxTokens: extractMaxTokens,
	}, &resp)
	if err != nil {
		return nil, eris.Wrapf(err, "extract %s", tc.Key())
	}
	evidence := resp.Evidence
	if evidence == nil {
		evidence = []string{}
	}
	return &model.DefectAnalysis{
		Case:          tc,
		CaseKey:       tc.Key(),
		Module:        tc.Module,
		Phenomenon:    resp.Phenomenon,
		ObservedFact:  resp.ObservedFact,
		Hypothesis:    resp.Hypothesis,
		Evidence:      evidence,
		ReproSteps:    resp.ReproSteps,
		SeverityGuess: model.ParseSeverity(resp.SeverityGuess),
	}, nil
}

// ComputeStats counts results overall and per module. PassRate is
// Passed/Total, zero for an empty set.
func ComputeStats(cases []*model.TestCase) model.Stats {
	s := model.Stats{ByModule: []model.ModuleStats{}}
	byModule := make(map[string]*model.ModuleStats)

	for _, tc := range cases {
		s.Total++
		module := tc.Module
		if module == "" {
			module = unassignedModule
		}
		ms, ok := byModule[module]
		if !ok {
			ms = &model.ModuleStats{Module: module}
			byModule[module] = ms
		}
		ms.Total++

		switch tc.Result {
		case model.ResultPass:
			s.Passed++
			ms.Passed++
		case model.ResultFail:
			s.Failed++
			ms.Failed++
		case model.ResultBlocked:
			s.Blocked++
			ms.Blocked++
		case model.ResultSkipped:
			s.Skipped++
		default:
			s.Unknown++
		}
		if tc.AuditStatus == model.AuditFlagged {
			s.Flagged++
		}
	}

	if s.Total > 0 {
		s.PassRate = float64(s.Passed) / float64(s.Total)
	}
	for _, ms := range byModule {
		s.ByModule = append(s.ByModule, *ms)
	}
	sort.Slice(s.ByModule, func(i, j int) bool {
		return s.ByModule[i].Module < s.ByModule[j].Module
	})
	return s
}
