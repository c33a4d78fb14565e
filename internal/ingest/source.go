package ingest

import (
	"context"
	"path/filepath"

	"github.com/Boomnana/test-agent/internal/model"
)

// Source supplies the test cases for one job.
type Source interface {
	// Name describes the source in logs and results.
	Name() string
	Load(ctx context.Context) ([]*model.TestCase, error)
}

// FileSource reads an uploaded spreadsheet.
type FileSource struct {
	Path    string
	Options XLSXOptions
}

// Name returns the file's base name.
func (s FileSource) Name() string { return filepath.Base(s.Path) }

// Load parses the spreadsheet.
func (s FileSource) Load(ctx context.Context) ([]*model.TestCase, error) {
	return ReadXLSX(ctx, s.Path, s.Options)
}

// StaticSource serves cases submitted directly. Each Load returns fresh
// copies so no two jobs share a case.
type StaticSource struct {
	Label string
	Cases []model.TestCase
}

// Name returns the label.
func (s StaticSource) Name() string { return s.Label }

// Load copies the cases and normalizes their results.
func (s StaticSource) Load(_ context.Context) ([]*model.TestCase, error) {
	out := make([]*model.TestCase, len(s.Cases))
	for i := range s.Cases {
		tc := s.Cases[i]
		if tc.Row == 0 {
			tc.Row = i + 1
		}
		if tc.Result == "" || tc.Result == model.ResultUnknown {
			tc.Result = NormalizeResult(tc.RawResult)
		} else {
			tc.Result = NormalizeResult(string(tc.Result))
		}
		if tc.Module != "" && tc.ModuleSource == "" {
			tc.ModuleSource = "sheet"
		}
		out[i] = &tc
	}
	return out, nil
}
