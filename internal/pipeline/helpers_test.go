package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Boomnana/test-agent/internal/classifier"
	"github.com/Boomnana/test-agent/internal/ingest"
	"github.com/Boomnana/test-agent/internal/model"
)

// scriptedClassifier answers each task with its handler and counts calls.
type scriptedClassifier struct {
	mu    sync.Mutex
	calls map[string]int

	tag     func(req classifier.Request) (string, error)
	audit   func(req classifier.Request) (string, error)
	extract func(req classifier.Request) (string, error)
	cluster func(req classifier.Request) (string, error)
}

func newScripted() *scriptedClassifier {
	return &scriptedClassifier{
		calls:   make(map[string]int),
		tag:     func(classifier.Request) (string, error) { return `{"module":"Core"}`, nil },
		audit:   func(classifier.Request) (string, error) { return `{"status":"Passed","reason":""}`, nil },
		extract: func(classifier.Request) (string, error) { return extractJSON("boom"), nil },
		cluster: func(classifier.Request) (string, error) { return `{"clusters":[]}`, nil },
	}
}

func (s *scriptedClassifier) Classify(_ context.Context, req classifier.Request) (*classifier.Response, error) {
	s.mu.Lock()
	s.calls[req.Task]++
	s.mu.Unlock()

	var h func(classifier.Request) (string, error)
	switch req.Task {
	case classifier.TaskTag:
		h = s.tag
	case classifier.TaskAudit:
		h = s.audit
	case classifier.TaskExtract:
		h = s.extract
	case classifier.TaskCluster:
		h = s.cluster
	default:
		return nil, fmt.Errorf("unexpected task %q", req.Task)
	}
	text, err := h(req)
	if err != nil {
		return nil, err
	}
	return &classifier.Response{Text: text, Usage: model.TokenUsage{InputTokens: 10, OutputTokens: 2}}, nil
}

func (s *scriptedClassifier) count(task string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[task]
}

func (s *scriptedClassifier) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func extractJSON(phenomenon string) string {
	return fmt.Sprintf(`{"phenomenon":%q,"observed_fact":"seen","hypothesis":"Type: logic error","evidence":["e1"],"repro_steps":"1. do it","severity_guess":"critical"}`, phenomenon)
}

// titled reports whether the prompt is for the case with the given title.
func titled(req classifier.Request, title string) bool {
	return strings.Contains(req.Prompt, "Title: "+title+"\n")
}

// memWriter keeps the last result in memory.
type memWriter struct {
	mu     sync.Mutex
	result *model.AnalysisResult
	calls  int
	err    error
}

func (w *memWriter) Write(_ context.Context, r *model.AnalysisResult) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return "", w.err
	}
	w.result = r
	return "/reports/result_" + r.JobID + ".json", nil
}

type errSource struct{ err error }

func (errSource) Name() string { return "broken.xlsx" }

func (s errSource) Load(context.Context) ([]*model.TestCase, error) { return nil, s.err }

var errUnavailable = errors.New("classifier unavailable")

func casesSource(cases ...model.TestCase) ingest.StaticSource {
	return ingest.StaticSource{Label: "inline", Cases: cases}
}

// logCollector captures Logf output.
type logCollector struct {
	mu    sync.Mutex
	lines []string
}

func (l *logCollector) logf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *logCollector) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}
