package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sensorcal/sensorcal/server/internal/config"
)

const webhookAttempts = 3

// webhookSink posts alerts to one Slack, Teams or generic HTTP endpoint.
// The URL is resolved from the environment on every delivery so rotated
// secrets apply without a restart.
type webhookSink struct {
	cfg     config.WebhookConfig
	client  *http.Client
	delay   func() *retryDelay
}

func newWebhookSink(cfg config.WebhookConfig) *webhookSink {
	return &webhookSink{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		delay:   newRetryDelay,
	}
}

func (s *webhookSink) Name() string { return "webhook:" + s.cfg.Type }

// Deliver posts a, retrying 5xx and transport errors with backoff.
// A missing URL is not an error; the target is simply not configured.
func (s *webhookSink) Deliver(ctx context.Context, a Alert) error {
	url := s.cfg.URL()
	if url == "" {
		return nil
	}

	var body []byte
	switch s.cfg.Type {
	case "slack":
		body, _ = json.Marshal(map[string]string{
			"text": fmt.Sprintf("*%s* %s", severityLabel(a.Severity), stateMessage(a)),
		})
	case "teams":
		body, _ = json.Marshal(map[string]interface{}{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": severityColor(a.Severity),
			"summary":    a.RuleName,
			"title":      fmt.Sprintf("Sensor Calibration Alert: %s", a.RuleName),
			"text":       stateMessage(a),
		})
	case "http":
		body, _ = json.Marshal(map[string]interface{}{"alert": a})
	default:
		return fmt.Errorf("unknown webhook type %q", s.cfg.Type)
	}

	delay := s.delay()
	var err error
	for attempt := 1; attempt <= webhookAttempts; attempt++ {
		var retry bool
		retry, err = s.post(ctx, url, body)
		if err == nil || !retry || attempt == webhookAttempts {
			break
		}
		if werr := delay.wait(ctx); werr != nil {
			return werr
		}
	}
	return err
}

// post sends body once. retry is true for failures worth another attempt.
func (s *webhookSink) post(ctx context.Context, url string, body []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return true, fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return false, nil
}

func stateMessage(a Alert) string {
	if a.State == StateResolved {
		return "RESOLVED: " + a.Message
	}
	return a.Message
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
