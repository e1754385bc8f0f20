package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fingerid/internal/config"
)

const userAgent = "fingerid/0.1.0"

// Event identifies the kind of notification being published.
type Event string

const (
	EventRegistrationPending Event = "registration_pending"
	EventAccountReviewed     Event = "account_reviewed"
	EventTest                Event = "test"
)

// Payload carries event-specific values keyed by name.
type Payload map[string]string

// Service publishes account events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op when the topic is empty.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := cfg.NotifyTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether svc delivers anything.
func Enabled(svc Service) bool {
	if svc == nil {
		return false
	}
	_, noop := svc.(noopService)
	return !noop
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
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	get := func(key string) string {
		if payload == nil {
			return ""
		}
		return strings.TrimSpace(payload[key])
	}

	switch event {
	case EventRegistrationPending:
		body := fmt.Sprintf("New registration awaiting review: %s", get("username"))
		if id := get("identityID"); id != "" {
			body = fmt.Sprintf("%s (#%s)", body, id)
		}
		if name := get("realName"); name != "" {
			body = fmt.Sprintf("%s\nName: %s", body, name)
		}
		return message{
			title: "fingerid - Registration Pending",
			body:  body,
			tags:  []string{"fingerid", "registration", "pending"},
		}, true
	case EventAccountReviewed:
		action := strings.ToLower(get("action"))
		outcome := "approved"
		if action == "reject" {
			outcome = "rejected"
		}
		body := fmt.Sprintf("Account %s was %s", get("username"), outcome)
		if reason := get("reason"); reason != "" {
			body = fmt.Sprintf("%s: %s", body, reason)
		}
		return message{
			title: "fingerid - Account " + strings.ToUpper(outcome[:1]) + outcome[1:],
			body:  body,
			tags:  []string{"fingerid", "review", outcome},
		}, true
	case EventTest:
		return message{
			title:    "fingerid - Test",
			body:     "Notification system test",
			tags:     []string{"fingerid", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

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
