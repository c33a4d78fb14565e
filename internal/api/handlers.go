package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Boomnana/test-agent/internal/ingest"
	"github.com/Boomnana/test-agent/internal/jobs"
	"github.com/Boomnana/test-agent/internal/model"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: status, Message: msg}})
}

type submitResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

func (s *Server) submit(src ingest.Source) string {
	return s.jobs.Submit(func(ctx context.Context, ex *jobs.Execution) (string, error) {
		return s.analyzer.Run(ctx, ex.ID, src, ex.Logf)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".xlsx") {
		writeError(w, http.StatusBadRequest, "only .xlsx files are supported")
		return
	}

	path, err := s.saveUpload(file, name)
	if err != nil {
		zap.L().Error("api: save upload", zap.String("file", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not store the uploaded file")
		return
	}

	id := s.submit(ingest.FileSource{Path: path})
	writeJSON(w, http.StatusAccepted, submitResponse{JobID: id, Message: "Analysis pipeline started."})
}

func (s *Server) saveUpload(src io.Reader, name string) (string, error) {
	if err := os.MkdirAll(s.opts.UploadDir, 0o755); err != nil {
		return "", eris.Wrap(err, "api: create upload dir")
	}
	path := filepath.Join(s.opts.UploadDir, uuid.New().String()+"_"+name)
	dst, err := os.Create(path)
	if err != nil {
		return "", eris.Wrap(err, "api: create upload file")
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()     //nolint:errcheck
		os.Remove(path) //nolint:errcheck
		return "", eris.Wrap(err, "api: write upload file")
	}
	return path, eris.Wrap(dst.Close(), "api: close upload file")
}

type createJobRequest struct {
	Name  string           `json:"name"`
	Cases []model.TestCase `json:"cases"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "inline"
	}

	id := s.submit(ingest.StaticSource{Label: name, Cases: req.Cases})
	writeJSON(w, http.StatusAccepted, submitResponse{JobID: id, Message: "Analysis pipeline started."})
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]model.JobStatus{"jobs": s.jobs.List()})
}

// handleGetJob always answers 200; unknown ids carry the unknown state.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.Status(chi.URLParam(r, "id")))
}

type cancelResponse struct {
	model.CancelResult
	Message string `json:"message"`
}

var cancelMessages = map[model.CancelOutcome]string{
	model.CancelAccepted:           "Cancellation requested.",
	model.CancelAlreadyFinished:    "Job already finished.",
	model.CancelNoRunningExecution: "No running execution found to cancel.",
	model.CancelNotFound:           "Job not found.",
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	res := s.jobs.Cancel(chi.URLParam(r, "id"))
	status := http.StatusOK
	switch res.Outcome {
	case model.CancelAccepted:
		status = http.StatusAccepted
	case model.CancelNotFound:
		status = http.StatusNotFound
	}
	writeJSON(w, status, cancelResponse{CancelResult: res, Message: cancelMessages[res.Outcome]})
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	st := s.jobs.Status(chi.URLParam(r, "id"))
	if st.State != model.JobCompleted || st.ResultRef == "" {
		writeError(w, http.StatusNotFound, "Result not found")
		return
	}
	http.Redirect(w, r, st.ResultRef, http.StatusFound)
}
