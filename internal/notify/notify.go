// Package notify delivers outbound messages to the chat gateway. The
// gateway owns retries and formatting for its platform; this package
// only hands text to a target and suppresses duplicate sends from
// concurrent evaluators.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Notifier sends one text message to a target (a group or channel id).
type Notifier interface {
	Notify(ctx context.Context, target int64, text string) error
}

// Webhook posts messages as JSON to the chat gateway's webhook.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	Target int64  `json:"target"`
	Text   string `json:"text"`
}

func (w *Webhook) Notify(ctx context.Context, target int64, text string) error {
	const op = "notify.Webhook.Notify"

	body, err := json.Marshal(webhookPayload{Target: target, Text: text})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: gateway returned %d", op, resp.StatusCode)
	}
	return nil
}

// Logger is a Notifier that only logs, used when no gateway is
// configured.
type Logger struct {
	Log *slog.Logger
}

func (l *Logger) Notify(_ context.Context, target int64, text string) error {
	l.Log.Info("notification", slog.Int64("target", target), slog.String("text", text))
	return nil
}

// Deduper suppresses identical (target, text) sends inside a short
// window, so duplicate concurrent evaluators of the same timer cannot
// double-notify.
type Deduper struct {
	next Notifier
	seen *gocache.Cache
}

// NewDeduper wraps a notifier with a dedup window.
func NewDeduper(next Notifier, window time.Duration) *Deduper {
	return &Deduper{
		next: next,
		seen: gocache.New(window, 2*window),
	}
}

func (d *Deduper) Notify(ctx context.Context, target int64, text string) error {
	h := fnv.New64a()
	h.Write([]byte(text))
	key := fmt.Sprintf("%d:%x", target, h.Sum64())

	// Add fails when the key is already present: a duplicate inside
	// the window, swallowed on purpose.
	if err := d.seen.Add(key, struct{}{}, gocache.DefaultExpiration); err != nil {
		return nil
	}
	return d.next.Notify(ctx, target, text)
}
