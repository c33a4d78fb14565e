package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Boomnana/test-agent/internal/config"
	"github.com/Boomnana/test-agent/internal/resilience"
)

// minFinishedForRate is the number of finished jobs needed before the
// failure rate is judged.
const minFinishedForRate = 5

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertJobFailureRate AlertType = "job_failure_rate"
	AlertJobTimeouts    AlertType = "job_timeouts"
	AlertCircuitOpen    AlertType = "classifier_circuit_open"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.JobsCompleted + snap.JobsFailed
	if finished >= minFinishedForRate && a.cfg.FailureRateThreshold > 0 && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertJobFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Job failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %s)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.JobsFailed, finished, snap.Lookback,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.JobsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if a.cfg.TimeoutThreshold > 0 && snap.JobsTimedOut >= a.cfg.TimeoutThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertJobTimeouts,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d job(s) hit the job timeout in last %s",
				snap.JobsTimedOut, snap.Lookback,
			),
			Details: map[string]any{
				"timed_out": snap.JobsTimedOut,
				"threshold": a.cfg.TimeoutThreshold,
			},
			Timestamp: now,
		})
	}

	if snap.CircuitState == resilience.CircuitOpen.String() {
		alerts = append(alerts, Alert{
			Type:      AlertCircuitOpen,
			Severity:  "high",
			Message:   "Classifier circuit breaker is open; classifier calls are being rejected",
			Details:   map[string]any{"active_jobs": snap.JobsActive},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
