package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook posts routed records to a Slack, Teams or generic HTTP endpoint.
type Webhook struct {
	kind   string // slack | teams | http
	url    string
	client *http.Client
}

// NewWebhook returns a webhook sink of the given kind.
func NewWebhook(kind, url string) *Webhook {
	return &Webhook{
		kind:   kind,
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *Webhook) Deliver(ctx context.Context, d Delivery) error {
	p := d.payload()

	var body interface{}
	switch w.kind {
	case "slack":
		body = map[string]string{
			"text": fmt.Sprintf("*%s* %s", channelLabel(p.Channel), summary(p)),
		}
	case "teams":
		body = map[string]interface{}{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": channelColor(p.Channel),
			"summary":    "Transaction " + p.ID,
			"title":      fmt.Sprintf("txnroute: %s transaction", p.Channel),
			"text":       summary(p),
		}
	case "http":
		body = map[string]interface{}{"record": p}
	default:
		return fmt.Errorf("webhook: unknown type %q", w.kind)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}
	return w.post(ctx, data)
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (w *Webhook) Close() error { return nil }

func summary(p payload) string {
	s := fmt.Sprintf("transaction %s amount %s routed to %s", p.ID, p.Amount, p.Channel)
	if p.Category != "" {
		s += " (category " + p.Category + ")"
	}
	return s
}

func channelLabel(ch string) string {
	if ch == "fraud" {
		return "[FRAUD]"
	}
	return "[OK]"
}

func channelColor(ch string) string {
	if ch == "fraud" {
		return "FF4F6A"
	}
	return "00D4FF"
}
