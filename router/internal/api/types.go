package api

import (
	"github.com/txnroute/txnroute/router/internal/classifier"
	"github.com/txnroute/txnroute/router/internal/flow"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State     string         `json:"state"` // idle | healthy | degraded
	Threshold int64          `json:"threshold"`
	Submitted uint64         `json:"submitted"`
	Routed    uint64         `json:"routed"`
	Dropped   uint64         `json:"dropped"`
	DropPct   float64        `json:"drop_pct"`
	Window    map[string]int `json:"window"` // live records per channel
}

// RecordResponse is one routed record in GET /api/v1/channels/{name}.
type RecordResponse struct {
	ID         string            `json:"id"`
	Attributes map[string]string `json:"attributes"`
	EnteredAt  string            `json:"entered_at"` // RFC3339Nano
	RoutedAt   string            `json:"routed_at"`  // RFC3339Nano
}

// ChannelResponse is the payload for GET /api/v1/channels/{name}.
type ChannelResponse struct {
	Channel    string           `json:"channel"`
	TTLSeconds float64          `json:"ttl_seconds"`
	Count      int              `json:"count"`
	Records    []RecordResponse `json:"records"`
}

// StatsResponse is the payload for GET /api/v1/stats.
type StatsResponse struct {
	flow.Stats
	SinkQueue        int `json:"sink_queue"`
	SinkQueueDropped int `json:"sink_queue_dropped"`
}

// ProcessorResponse is the payload for GET /api/v1/processor.
type ProcessorResponse struct {
	Properties    []PropertyResponse        `json:"properties"`
	Relationships []classifier.Relationship `json:"relationships"`
	Threshold     int64                     `json:"threshold"`
}

// PropertyResponse is a property descriptor with its current value.
type PropertyResponse struct {
	classifier.PropertyDescriptor
	Value string `json:"value"`
}

// ThresholdRequest is the body of PUT /api/v1/processor/threshold.
// Value is a string so it goes through the same validator as configuration.
type ThresholdRequest struct {
	Value string `json:"value"`
}

// ThresholdResponse is returned after a successful threshold update.
type ThresholdResponse struct {
	Previous  int64 `json:"previous"`
	Threshold int64 `json:"threshold"`
}

// DiagnosticsResponse is the payload for GET /api/v1/diagnostics.
type DiagnosticsResponse struct {
	Hints       []DiagnosticHint `json:"hints"`
	GeneratedAt string           `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
