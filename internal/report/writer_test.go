package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Boomnana/test-agent/internal/model"
)

func sampleResult() *model.AnalysisResult {
	tc := &model.TestCase{Row: 2, CaseID: "TC-1", Title: "Login", Result: model.ResultFail}
	d := &model.DefectAnalysis{Case: tc, CaseKey: "TC-1", Phenomenon: "500 on submit", SeverityGuess: model.SeverityMajor}
	return &model.AnalysisResult{
		JobID:       "abc",
		Source:      "report.xlsx",
		GeneratedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Stats:       model.Stats{Total: 1, Failed: 1},
		Cases:       []*model.TestCase{tc},
		Defects:     []*model.DefectAnalysis{d},
		Clusters: []model.DefectCluster{{
			Name: "Auth", Kind: model.ClusterProposed, Defects: []*model.DefectAnalysis{d},
		}},
	}
}

func TestFileWriter_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	w, err := NewFileWriter(dir, "/reports/")
	require.NoError(t, err)

	ref, err := w.Write(context.Background(), sampleResult())
	require.NoError(t, err)
	assert.Equal(t, "/reports/result_abc.json", ref)

	_, err = os.Stat(filepath.Join(dir, "result_abc.json"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be renamed away")

	got, err := w.Read("abc")
	require.NoError(t, err)
	assert.Equal(t, "report.xlsx", got.Source)
	require.Len(t, got.Clusters, 1)
	require.Len(t, got.Clusters[0].Defects, 1)
	assert.Equal(t, "TC-1", got.Clusters[0].Defects[0].CaseKey)
	assert.Nil(t, got.Clusters[0].Defects[0].Case)
}

func TestFileWriter_RequiresJobID(t *testing.T) {
	w, err := NewFileWriter(t.TempDir(), "")
	require.NoError(t, err)

	_, err = w.Write(context.Background(), &model.AnalysisResult{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no job id")
}

func TestFileWriter_CancelledContext(t *testing.T) {
	w, err := NewFileWriter(t.TempDir(), "")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = w.Write(ctx, sampleResult())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "result_x.json", joinURL("", "result_x.json"))
	assert.Equal(t, "/reports/result_x.json", joinURL("/reports", "result_x.json"))
	assert.Equal(t, "https://cdn.example.com/r/result_x.json", joinURL("https://cdn.example.com/r/", "result_x.json"))
}
