package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Boomnana/test-agent/internal/classifier"
	"github.com/Boomnana/test-agent/internal/model"
)

// clusterMaxTokens leaves room for narrative fields on every cluster.
const clusterMaxTokens = 4096

// Narrative for defects the classifier did not place in any cluster.
var isolatedCluster = model.DefectCluster{
	Name:                "Unconfirmed / isolated defects",
	Kind:                model.ClusterIsolated,
	Summary:             "These defects lack the details needed to place them in a group with confidence.",
	RootCauseHypothesis: "The information available is insufficient to infer a specific root cause.",
	RiskAssessment:      "Medium - actual risk depends on the missing details.",
	ActionSuggestion:    "Collect logs, request parameters or screenshots for these defects, then re-run grouping.",
}

// Narrative for the single cluster used when grouping failed outright.
var fallbackCluster = model.DefectCluster{
	Name:                "All defects (automatic grouping failed)",
	Kind:                model.ClusterFallback,
	Summary:             "Automatic grouping could not be completed, so every defect is listed in one group.",
	RootCauseHypothesis: "The grouping call failed; no root cause hypothesis could be produced.",
	RiskAssessment:      "Medium - assess the business impact and priority of each defect manually.",
	ActionSuggestion:    "Triage the defect list manually, or re-run the analysis once the classifier is available.",
}

// Grouping is the outcome of Cluster.
type Grouping struct {
	Clusters []model.DefectCluster
	// Unclaimed counts facts placed in the isolated cluster.
	Unclaimed int
	// Err is set when the whole proposal was discarded and every fact went
	// into the fallback cluster.
	Err error
}

type proposal struct {
	Clusters *[]proposedCluster `json:"clusters"`
}

type proposedCluster struct {
	Name                string   `json:"cluster_name"`
	Summary             string   `json:"summary"`
	RootCauseHypothesis string   `json:"root_cause_hypothesis"`
	RiskAssessment      string   `json:"risk_assessment"`
	ActionSuggestion    string   `json:"action_suggestion"`
	DefectIDs           []factID `json:"defect_ids"`
}

// factID accepts "3", 3 or 3.0. Anything else decodes to "" and is ignored.
type factID string

func (f *factID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = factID(strings.TrimSpace(s))
		return nil
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil || n != float64(int64(n)) {
		*f = ""
		return nil
	}
	*f = factID(strconv.FormatInt(int64(n), 10))
	return nil
}

// Cluster asks c to group facts and reconciles the answer so every fact ends
// up in exactly one cluster. Ids are the facts' ordinals. The first cluster
// to claim an id keeps it; unknown ids are ignored and clusters left empty
// are dropped. Facts nobody claimed go into one isolated cluster. If the call
// fails or the answer cannot be decoded the proposal is discarded and every
// fact goes into a single fallback cluster. Empty input makes no call.
func Cluster(ctx context.Context, c classifier.Classifier, facts []*model.DefectAnalysis) Grouping {
	if len(facts) == 0 {
		return Grouping{Clusters: []model.DefectCluster{}}
	}

	var p proposal
	_, err := classifier.ClassifyJSON(ctx, c, classifier.Request{
		Task:      classifier.TaskCluster,
		System:    clusterSystemPrompt,
		Prompt:    clusterPrompt(facts),
		MaxTokens: clusterMaxTokens,
	}, &p)
	if err == nil && p.Clusters == nil {
		err = eris.Wrap(classifier.ErrMalformed, "cluster: response has no clusters")
	}
	if err != nil {
		zap.L().Warn("pipeline: clustering failed, using fallback",
			zap.Int("defects", len(facts)),
			zap.Error(err),
		)
		fb := fallbackCluster
		fb.Defects = append([]*model.DefectAnalysis(nil), facts...)
		return Grouping{Clusters: []model.DefectCluster{fb}, Err: err}
	}

	claimed := make([]bool, len(facts))
	var clusters []model.DefectCluster
	for _, pc := range *p.Clusters {
		var members []*model.DefectAnalysis
		for _, id := range pc.DefectIDs {
			idx, convErr := strconv.Atoi(string(id))
			if convErr != nil || idx < 0 || idx >= len(facts) || claimed[idx] {
				continue
			}
			claimed[idx] = true
			members = append(members, facts[idx])
		}
		if len(members) == 0 {
			continue
		}
		name := strings.TrimSpace(pc.Name)
		if name == "" {
			name = "Unnamed cluster"
		}
		clusters = append(clusters, model.DefectCluster{
			Name:                name,
			Kind:                model.ClusterProposed,
			Summary:             pc.Summary,
			RootCauseHypothesis: pc.RootCauseHypothesis,
			RiskAssessment:      pc.RiskAssessment,
			ActionSuggestion:    pc.ActionSuggestion,
			Defects:             members,
		})
	}

	var unclaimed []*model.DefectAnalysis
	for i, ok := range claimed {
		if !ok {
			unclaimed = append(unclaimed, facts[i])
		}
	}
	if len(unclaimed) > 0 {
		iso := isolatedCluster
		iso.Defects = unclaimed
		clusters = append(clusters, iso)
	}
	return Grouping{Clusters: clusters, Unclaimed: len(unclaimed)}
}
