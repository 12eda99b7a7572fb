package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/txnroute/txnroute/pkg/wire"
	"github.com/txnroute/txnroute/router/internal/classifier"
	"github.com/txnroute/txnroute/router/internal/flow"
	"github.com/txnroute/txnroute/router/internal/store"
)

// maxBodyBytes caps request bodies on POST and PUT endpoints.
const maxBodyBytes = 4 << 20

// ThresholdGauge receives the threshold after every successful update.
type ThresholdGauge interface {
	SetThreshold(v int64)
}

// QueueStats reports the state of the sink delivery buffer.
type QueueStats interface {
	Pending() int
	Dropped() int
}

// Option configures a Handler.
type Option func(*Handler)

// WithThresholdGauge mirrors threshold updates into g.
func WithThresholdGauge(g ThresholdGauge) Option {
	return func(h *Handler) { h.gauge = g }
}

// WithQueueStats exposes sink queue state in stats and diagnostics.
func WithQueueStats(q QueueStats) Option {
	return func(h *Handler) { h.queue = q }
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	flow  *flow.Flow
	store *store.Store
	gauge ThresholdGauge
	queue QueueStats
	mux   *http.ServeMux
}

// New creates a Handler wired to the given flow and window store and
// registers all routes.
func New(f *flow.Flow, st *store.Store, opts ...Option) http.Handler {
	h := &Handler{flow: f, store: st, mux: http.NewServeMux()}
	for _, o := range opts {
		o(h)
	}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/records", h.submit)
	h.mux.HandleFunc("/api/v1/channels/", h.channel) // subtree, extracts {name}
	h.mux.HandleFunc("/api/v1/stats", h.stats)
	h.mux.HandleFunc("/api/v1/processor", h.processor)
	h.mux.HandleFunc("/api/v1/processor/threshold", h.threshold)
	h.mux.HandleFunc("/api/v1/diagnostics", h.diagnostics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s := h.flow.Stats()
	resp := HealthResponse{
		Threshold: s.Threshold,
		Submitted: s.Submitted,
		Routed:    sum(s.Routed),
		Dropped:   sum(s.Dropped),
		Window:    make(map[string]int, len(s.Routed)),
	}
	for _, ch := range classifier.Channels {
		resp.Window[string(ch)] = len(h.store.List(string(ch)))
	}
	resp.DropPct = dropPct(resp.Dropped, resp.Submitted)
	resp.State = stateFromDrops(resp.Submitted, resp.DropPct)
	jsonResp(w, http.StatusOK, resp)
}

// submit handles POST /api/v1/records with the gRPC SubmitRequest body.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req wire.SubmitRequest
	if err := decodeBody(w, r, &req); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.flow.Submit(r.Context(), req.Records)
	switch {
	case errors.Is(err, wire.ErrNoRecords):
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("api: submit failed", "records", len(req.Records), "err", err)
		jsonErr(w, http.StatusInternalServerError, "submit failed")
		return
	}
	jsonResp(w, http.StatusOK, wire.SubmitResponse{Ok: true, Results: results})
}

// channel returns GET /api/v1/channels/{name}, the live window for one
// output channel.
func (h *Handler) channel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/v1/channels/")
	if !knownChannel(name) {
		jsonErr(w, http.StatusNotFound, "channel not found")
		return
	}

	n, err := limit(r)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	entries := h.store.List(name)
	if n > 0 && n < len(entries) {
		entries = entries[:n]
	}

	out := make([]RecordResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, RecordResponse{
			ID:         e.Record.ID(),
			Attributes: e.Record.Attributes(),
			EnteredAt:  e.Record.EnteredAt().UTC().Format(time.RFC3339Nano),
			RoutedAt:   e.RoutedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	jsonResp(w, http.StatusOK, ChannelResponse{
		Channel:    name,
		TTLSeconds: h.store.TTL().Seconds(),
		Count:      len(out),
		Records:    out,
	})
}

// stats returns GET /api/v1/stats.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := StatsResponse{Stats: h.flow.Stats()}
	if h.queue != nil {
		resp.SinkQueue = h.queue.Pending()
		resp.SinkQueueDropped = h.queue.Dropped()
	}
	jsonResp(w, http.StatusOK, resp)
}

// processor returns GET /api/v1/processor.
func (h *Handler) processor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	proc := h.flow.Processor()
	threshold := proc.Threshold()
	props := make([]PropertyResponse, 0, 1)
	for _, p := range proc.Properties() {
		pr := PropertyResponse{PropertyDescriptor: p, Value: p.DefaultValue}
		if p.Name == classifier.ThresholdProperty.Name {
			pr.Value = strconv.FormatInt(threshold, 10)
		}
		props = append(props, pr)
	}
	jsonResp(w, http.StatusOK, ProcessorResponse{
		Properties:    props,
		Relationships: proc.Relationships(),
		Threshold:     threshold,
	})
}

// threshold handles PUT /api/v1/processor/threshold.
func (h *Handler) threshold(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ThresholdRequest
	if err := decodeBody(w, r, &req); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := classifier.ThresholdProperty.Validate(req.Value); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := classifier.ParseThreshold(req.Value)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	proc := h.flow.Processor()
	prev := proc.Threshold()
	if err := proc.SetThreshold(v); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.gauge != nil {
		h.gauge.SetThreshold(v)
	}
	jsonResp(w, http.StatusOK, ThresholdResponse{Previous: prev, Threshold: v})
}

// diagnostics returns GET /api/v1/diagnostics.
func (h *Handler) diagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	queueDropped := 0
	if h.queue != nil {
		queueDropped = h.queue.Dropped()
	}
	jsonResp(w, http.StatusOK, DiagnosticsResponse{
		Hints:       computeDiagnostics(h.flow.Stats(), queueDropped),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// limit reads the optional ?limit=N query parameter.
func limit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer")
	}
	return n, nil
}

func knownChannel(name string) bool {
	for _, c := range classifier.Channels {
		if string(c) == name {
			return true
		}
	}
	return false
}

func sum(m map[string]uint64) uint64 {
	var t uint64
	for _, v := range m {
		t += v
	}
	return t
}

func dropPct(dropped, submitted uint64) float64 {
	if submitted == 0 {
		return 0
	}
	return float64(dropped) / float64(submitted) * 100
}

// stateFromDrops converts the drop share into a health state string.
func stateFromDrops(submitted uint64, pct float64) string {
	switch {
	case submitted == 0:
		return "idle"
	case pct >= 10:
		return "degraded"
	default:
		return "healthy"
	}
}
