package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ytmusicdl/internal/config"
)

const userAgent = "ytmusicdl/0.1.0"

// Event identifies a notification kind.
type Event string

const (
	EventWorkerLost      Event = "worker_lost"
	EventPackagingFailed Event = "packaging_failed"
	EventTest            Event = "test"
)

// Payload carries event fields. Unknown keys are ignored.
type Payload map[string]any

// Service defines the notification surface exposed to broker components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventWorkerLost:      cfg.Notifications.WorkerLost,
			EventPackagingFailed: cfg.Notifications.PackagingFailures,
			EventTest:            true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventWorkerLost:
		body := fmt.Sprintf("Lost downloader %s", payloadString(payload, "worker"))
		if title := payloadString(payload, "title"); title != "" {
			body += fmt.Sprintf("\nFailed job: %s", title)
		}
		return message{
			title: "ytmusicdl - Downloader Lost",
			body:  body,
			tags:  []string{"ytmusicdl", "downloader", "lost"},
		}, true
	case EventPackagingFailed:
		return message{
			title:    "ytmusicdl - Packaging Failed",
			body:     fmt.Sprintf("Packaging failed for session %s: %s", payloadString(payload, "session"), payloadString(payload, "reason")),
			tags:     []string{"ytmusicdl", "packaging", "error"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "ytmusicdl - Test",
			body:     "Notification system test",
			tags:     []string{"ytmusicdl", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

// Noop returns a Service that drops every event.
func Noop() Service { return noopService{} }
