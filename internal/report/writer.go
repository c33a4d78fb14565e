// Package report persists analysis results where the API can serve them.
package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Boomnana/test-agent/internal/model"
)

// Writer stores an AnalysisResult and returns a reference to it.
type Writer interface {
	Write(ctx context.Context, result *model.AnalysisResult) (string, error)
}

// FileWriter writes result_<job_id>.json files into Dir.
type FileWriter struct {
	Dir       string
	URLPrefix string
}

// NewFileWriter creates the report directory if needed.
func NewFileWriter(dir, urlPrefix string) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "report: create dir %s", dir)
	}
	return &FileWriter{Dir: dir, URLPrefix: urlPrefix}, nil
}

// FileName is the name of the result file for a job.
func FileName(jobID string) string {
	return "result_" + jobID + ".json"
}

// Write marshals the result and writes it atomically. The returned ref is
// URLPrefix joined with the file name.
func (w *FileWriter) Write(ctx context.Context, result *model.AnalysisResult) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "report: write")
	}
	if result.JobID == "" {
		return "", eris.New("report: result has no job id")
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "report: marshal result")
	}

	name := FileName(result.JobID)
	final := filepath.Join(w.Dir, name)
	tmp, err := os.CreateTemp(w.Dir, name+".*.tmp")
	if err != nil {
		return "", eris.Wrap(err, "report: create temp file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()           //nolint:errcheck
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", eris.Wrap(err, "report: write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", eris.Wrap(err, "report: close temp file")
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", eris.Wrap(err, "report: rename")
	}

	ref := joinURL(w.URLPrefix, name)
	zap.L().Info("report: written",
		zap.String("job_id", result.JobID),
		zap.String("path", final),
		zap.Int("bytes", len(data)),
	)
	return ref, nil
}

// Read loads a previously written result.
func (w *FileWriter) Read(jobID string) (*model.AnalysisResult, error) {
	data, err := os.ReadFile(filepath.Join(w.Dir, FileName(jobID)))
	if err != nil {
		return nil, eris.Wrapf(err, "report: read %s", jobID)
	}
	var res model.AnalysisResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, eris.Wrapf(err, "report: unmarshal %s", jobID)
	}
	return &res, nil
}

func joinURL(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return strings.TrimSuffix(prefix, "/") + "/" + name
}
