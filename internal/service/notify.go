package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"codeops/internal/config"
	"codeops/internal/domain"
	"codeops/internal/util"
)

// Lifecycle events emitted to the webhook sink.
const (
	EventReady   = "ready"
	EventStopped = "stopped"
	EventFailed  = "failed"
)

// webhookPayload is the JSON body posted for each event.
type webhookPayload struct {
	Event     string            `json:"event"`
	Timestamp time.Time         `json:"timestamp"`
	Server    domain.ServerInfo `json:"server"`
}

// WebhookNotifier posts lifecycle events to a configured webhook URL.
// Deliveries are best-effort: failures are logged and never propagated.
type WebhookNotifier struct {
	cfg    *config.Config
	logger *zap.Logger
	client *util.HTTPClient
}

// NewNotifier creates a webhook notifier.
func NewNotifier(cfg *config.Config, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		cfg:    cfg,
		logger: logger,
		client: util.NewHTTPClient(10*time.Second, logger),
	}
}

// Notify posts the event if notifications are configured and the event type
// is enabled.
func (n *WebhookNotifier) Notify(ctx context.Context, event string, info domain.ServerInfo) {
	if !n.enabled(event) {
		return
	}

	body, err := json.Marshal(webhookPayload{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Server:    info,
	})
	if err != nil {
		n.logger.Warn("Failed to encode webhook payload", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.Notifications.WebhookURL, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("Failed to build webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("Webhook delivery failed",
			zap.String("event", event), zap.Error(err))
		return
	}
	defer util.CloseResponseBodySilent(resp.Body)

	if resp.StatusCode >= 300 {
		n.logger.Warn("Webhook rejected event",
			zap.String("event", event), zap.Int("status", resp.StatusCode))
		return
	}
	n.logger.Debug("Webhook delivered", zap.String("event", event))
}

// HealthCheck verifies the webhook endpoint is reachable.
func (n *WebhookNotifier) HealthCheck(ctx context.Context) []domain.HealthCheck {
	const name = "Webhook"
	if n.cfg.Notifications.WebhookURL == "" {
		return []domain.HealthCheck{{Name: name, Status: domain.StatusWarn, Message: "No webhook configured"}}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, n.cfg.Notifications.WebhookURL, nil)
	if err != nil {
		return []domain.HealthCheck{{Name: name, Status: domain.StatusError, Message: err.Error()}}
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return []domain.HealthCheck{{Name: name, Status: domain.StatusError, Message: "Connection failed"}}
	}
	util.CloseResponseBodySilent(resp.Body)

	return []domain.HealthCheck{{Name: name, Status: domain.StatusOK, Message: fmt.Sprintf("Status %d", resp.StatusCode)}}
}

func (n *WebhookNotifier) enabled(event string) bool {
	if n.cfg.Notifications.WebhookURL == "" {
		return false
	}
	switch event {
	case EventReady:
		return n.cfg.Notifications.OnReady
	case EventStopped:
		return n.cfg.Notifications.OnStop
	case EventFailed:
		return n.cfg.Notifications.OnFailure
	default:
		return false
	}
}
