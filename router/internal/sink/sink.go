package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/txnroute/txnroute/pkg/types"
	"github.com/txnroute/txnroute/router/internal/config"
	"github.com/txnroute/txnroute/router/internal/flowfile"
)

// Delivery is one routed record bound for the sinks of its channel.
type Delivery struct {
	Channel  string
	Record   *flowfile.Record
	RoutedAt time.Time
}

// payload is the JSON form of a Delivery shared by the webhook and file sinks.
type payload struct {
	ID         string            `json:"id"`
	Channel    string            `json:"channel"`
	Status     string            `json:"status"`
	Amount     string            `json:"amount"`
	Category   string            `json:"category,omitempty"`
	Attributes map[string]string `json:"attributes"`
	RoutedAt   time.Time         `json:"routed_at"`
}

func (d Delivery) payload() payload {
	attrs := d.Record.Attributes()
	return payload{
		ID:         d.Record.ID(),
		Channel:    d.Channel,
		Status:     attrs[types.AttrStatus],
		Amount:     attrs[types.AttrAmount],
		Category:   attrs[types.AttrCategory],
		Attributes: attrs,
		RoutedAt:   d.RoutedAt.UTC(),
	}
}

// Sink is a delivery target.
type Sink interface {
	Deliver(ctx context.Context, d Delivery) error
	Close() error
}

// Build opens every configured sink. On error, sinks opened so far are closed.
func Build(ctx context.Context, cfgs []config.SinkConfig) (map[string]Sink, error) {
	out := make(map[string]Sink, len(cfgs))
	for _, c := range cfgs {
		s, err := open(ctx, c)
		if err != nil {
			for _, opened := range out {
				opened.Close() //nolint:errcheck
			}
			return nil, fmt.Errorf("sink %q: %w", c.Name, err)
		}
		out[c.Name] = s
	}
	return out, nil
}

func open(ctx context.Context, c config.SinkConfig) (Sink, error) {
	switch c.Type {
	case "webhook":
		url := c.Webhook.URL()
		if url == "" {
			return nil, fmt.Errorf("environment variable %s is empty", c.Webhook.URLEnv)
		}
		return NewWebhook(c.Webhook.Type, url), nil
	case "postgres":
		return OpenPostgres(ctx, c.Postgres.DSN(), c.Postgres.Table)
	case "file":
		return OpenFile(c.File.Path)
	default:
		return nil, fmt.Errorf("unsupported type %q", c.Type)
	}
}
