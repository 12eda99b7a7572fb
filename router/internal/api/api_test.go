package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/txnroute/txnroute/pkg/types"
	"github.com/txnroute/txnroute/pkg/wire"
	"github.com/txnroute/txnroute/router/internal/api"
	"github.com/txnroute/txnroute/router/internal/flow"
	"github.com/txnroute/txnroute/router/internal/processor"
	"github.com/txnroute/txnroute/router/internal/store"
)

// --- test helpers -----------------------------------------------------------

type fakeGauge struct{ v int64 }

func (g *fakeGauge) SetThreshold(v int64) { g.v = v }

type fakeQueue struct{ pending, dropped int }

func (q fakeQueue) Pending() int { return q.pending }
func (q fakeQueue) Dropped() int { return q.dropped }

func newFlow(t *testing.T) (*flow.Flow, *store.Store) {
	t.Helper()
	proc, err := processor.New(1000)
	if err != nil {
		t.Fatalf("processor.New: %v", err)
	}
	st := store.New(5*time.Minute, 100)
	return flow.New(proc, st, nil), st
}

func newHandler(t *testing.T, opts ...api.Option) (http.Handler, *flow.Flow) {
	t.Helper()
	f, st := newFlow(t)
	return api.New(f, st, opts...), f
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	h.ServeHTTP(rr, r)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

func submitBody(t *testing.T, amounts ...string) string {
	t.Helper()
	req := wire.SubmitRequest{}
	for i, a := range amounts {
		attrs := map[string]string{}
		if a != "" {
			attrs[types.AttrAmount] = a
		}
		req.Records = append(req.Records, types.Record{ID: "r" + string(rune('0'+i)), Attributes: attrs})
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.String()
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_Idle(t *testing.T) {
	h, _ := newHandler(t)
	rr := do(t, h, http.MethodGet, "/api/v1/health", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.State != "idle" {
		t.Errorf("state: got %q, want idle", resp.State)
	}
	if resp.Threshold != 1000 {
		t.Errorf("threshold: got %d, want 1000", resp.Threshold)
	}
}

func TestHealth_AfterTraffic(t *testing.T) {
	h, _ := newHandler(t)
	do(t, h, http.MethodPost, "/api/v1/records", submitBody(t, "1500", "10", "20"))

	var resp api.HealthResponse
	decode(t, do(t, h, http.MethodGet, "/api/v1/health", ""), &resp)
	if resp.State != "healthy" {
		t.Errorf("state: got %q, want healthy", resp.State)
	}
	if resp.Submitted != 3 || resp.Routed != 3 || resp.Dropped != 0 {
		t.Errorf("totals: got %+v", resp)
	}
	if resp.Window["fraud"] != 1 || resp.Window["non-fraud"] != 2 {
		t.Errorf("window: got %v", resp.Window)
	}
}

func TestHealth_Degraded(t *testing.T) {
	h, _ := newHandler(t)
	do(t, h, http.MethodPost, "/api/v1/records", submitBody(t, "abc", "10"))

	var resp api.HealthResponse
	decode(t, do(t, h, http.MethodGet, "/api/v1/health", ""), &resp)
	if resp.State != "degraded" {
		t.Errorf("state: got %q, want degraded", resp.State)
	}
	if resp.DropPct != 50 {
		t.Errorf("drop_pct: got %v, want 50", resp.DropPct)
	}
}

// --- /api/v1/records --------------------------------------------------------

func TestSubmit_ReturnsResultsInOrder(t *testing.T) {
	h, _ := newHandler(t)
	rr := do(t, h, http.MethodPost, "/api/v1/records", submitBody(t, "1000.01", "1000", "", "12,50"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	var resp wire.SubmitResponse
	decode(t, rr, &resp)
	if !resp.Ok || len(resp.Results) != 4 {
		t.Fatalf("response: got %+v", resp)
	}
	want := []types.Result{
		{ID: "r0", Outcome: "routed", Channel: "fraud", Status: "fraud"},
		{ID: "r1", Outcome: "routed", Channel: "non-fraud", Status: "non-fraud"},
		{ID: "r2", Outcome: "dropped", Reason: "missing_amount"},
		{ID: "r3", Outcome: "dropped", Reason: "unparseable_amount"},
	}
	for i, w := range want {
		if resp.Results[i] != w {
			t.Errorf("result[%d]: got %+v, want %+v", i, resp.Results[i], w)
		}
	}
}

func TestSubmit_BadRequests(t *testing.T) {
	h, _ := newHandler(t)

	cases := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"invalid json", "{not json"},
		{"no records", `{"records":[]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/api/v1/records", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", rr.Code)
			}
		})
	}
}

// --- /api/v1/channels/{name} ------------------------------------------------

func TestChannel_ListsNewestFirst(t *testing.T) {
	h, _ := newHandler(t)
	do(t, h, http.MethodPost, "/api/v1/records", submitBody(t, "5000", "6000", "1"))

	rr := do(t, h, http.MethodGet, "/api/v1/channels/fraud", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.ChannelResponse
	decode(t, rr, &resp)
	if resp.Channel != "fraud" || resp.Count != 2 {
		t.Fatalf("response: got %+v", resp)
	}
	if resp.Records[0].ID != "r1" || resp.Records[1].ID != "r0" {
		t.Errorf("order: got %s, %s; want r1, r0", resp.Records[0].ID, resp.Records[1].ID)
	}
	if got := resp.Records[0].Attributes[types.AttrStatus]; got != "fraud" {
		t.Errorf("transaction.status: got %q, want fraud", got)
	}
	if resp.TTLSeconds != 300 {
		t.Errorf("ttl_seconds: got %v, want 300", resp.TTLSeconds)
	}
}

func TestChannel_Limit(t *testing.T) {
	h, _ := newHandler(t)
	do(t, h, http.MethodPost, "/api/v1/records", submitBody(t, "1", "2", "3"))

	var resp api.ChannelResponse
	decode(t, do(t, h, http.MethodGet, "/api/v1/channels/non-fraud?limit=2", ""), &resp)
	if resp.Count != 2 {
		t.Errorf("count: got %d, want 2", resp.Count)
	}

	rr := do(t, h, http.MethodGet, "/api/v1/channels/non-fraud?limit=x", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit status: got %d, want 400", rr.Code)
	}
}

func TestChannel_Unknown404(t *testing.T) {
	h, _ := newHandler(t)
	for _, path := range []string{"/api/v1/channels/other", "/api/v1/channels/"} {
		if rr := do(t, h, http.MethodGet, path, ""); rr.Code != http.StatusNotFound {
			t.Errorf("%s: got %d, want 404", path, rr.Code)
		}
	}
}

// --- /api/v1/stats ----------------------------------------------------------

func TestStats_IncludesQueue(t *testing.T) {
	h, _ := newHandler(t, api.WithQueueStats(fakeQueue{pending: 3, dropped: 7}))
	do(t, h, http.MethodPost, "/api/v1/records", submitBody(t, "2000", ""))

	var resp api.StatsResponse
	decode(t, do(t, h, http.MethodGet, "/api/v1/stats", ""), &resp)
	if resp.Submitted != 2 {
		t.Errorf("submitted: got %d, want 2", resp.Submitted)
	}
	if resp.Routed["fraud"] != 1 || resp.Dropped["missing_amount"] != 1 {
		t.Errorf("totals: routed=%v dropped=%v", resp.Routed, resp.Dropped)
	}
	if resp.SinkQueue != 3 || resp.SinkQueueDropped != 7 {
		t.Errorf("queue: got %d/%d, want 3/7", resp.SinkQueue, resp.SinkQueueDropped)
	}
}

// --- /api/v1/processor ------------------------------------------------------

func TestProcessor_Describes(t *testing.T) {
	h, _ := newHandler(t)

	var resp api.ProcessorResponse
	decode(t, do(t, h, http.MethodGet, "/api/v1/processor", ""), &resp)
	if len(resp.Properties) != 1 {
		t.Fatalf("properties: got %d, want 1", len(resp.Properties))
	}
	p := resp.Properties[0]
	if p.Name != "Transaction Threshold" || !p.Required || p.DefaultValue != "1000" || p.Value != "1000" {
		t.Errorf("property: got %+v", p)
	}
	if len(resp.Relationships) != 2 || resp.Relationships[0].Name != "fraud" || resp.Relationships[1].Name != "non-fraud" {
		t.Errorf("relationships: got %+v", resp.Relationships)
	}
}

func TestThreshold_Update(t *testing.T) {
	g := &fakeGauge{}
	h, f := newHandler(t, api.WithThresholdGauge(g))

	rr := do(t, h, http.MethodPut, "/api/v1/processor/threshold", `{"value":"1500"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	var resp api.ThresholdResponse
	decode(t, rr, &resp)
	if resp.Previous != 1000 || resp.Threshold != 1500 {
		t.Errorf("response: got %+v", resp)
	}
	if f.Processor().Threshold() != 1500 {
		t.Errorf("processor threshold: got %d", f.Processor().Threshold())
	}
	if g.v != 1500 {
		t.Errorf("gauge: got %d, want 1500", g.v)
	}

	// 1200 was fraud at 1000 and is non-fraud at 1500.
	var sub wire.SubmitResponse
	decode(t, do(t, h, http.MethodPost, "/api/v1/records", submitBody(t, "1200")), &sub)
	if sub.Results[0].Channel != "non-fraud" {
		t.Errorf("channel after update: got %q, want non-fraud", sub.Results[0].Channel)
	}
}

func TestThreshold_Invalid(t *testing.T) {
	g := &fakeGauge{v: -1}
	h, f := newHandler(t, api.WithThresholdGauge(g))

	for _, body := range []string{`{"value":"-1"}`, `{"value":"abc"}`, `{"value":""}`, `{"value":"1.5"}`, `nope`} {
		rr := do(t, h, http.MethodPut, "/api/v1/processor/threshold", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", body, rr.Code)
		}
	}
	if f.Processor().Threshold() != 1000 {
		t.Errorf("threshold changed to %d", f.Processor().Threshold())
	}
	if g.v != -1 {
		t.Errorf("gauge touched: %d", g.v)
	}
}

// --- methods ----------------------------------------------------------------

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newHandler(t)

	cases := []struct{ method, path string }{
		{http.MethodPost, "/api/v1/health"},
		{http.MethodGet, "/api/v1/records"},
		{http.MethodDelete, "/api/v1/channels/fraud"},
		{http.MethodPost, "/api/v1/stats"},
		{http.MethodPut, "/api/v1/processor"},
		{http.MethodGet, "/api/v1/processor/threshold"},
		{http.MethodPost, "/api/v1/diagnostics"},
	}
	for _, tc := range cases {
		rr := do(t, h, tc.method, tc.path, "")
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: got %d, want 405", tc.method, tc.path, rr.Code)
		}
	}
}

// --- /api/v1/diagnostics ----------------------------------------------------

func TestDiagnostics_NoTraffic(t *testing.T) {
	h, _ := newHandler(t)

	var resp api.DiagnosticsResponse
	decode(t, do(t, h, http.MethodGet, "/api/v1/diagnostics", ""), &resp)
	if len(resp.Hints) != 1 || resp.Hints[0].Key != "no_traffic" {
		t.Errorf("hints: got %+v", resp.Hints)
	}
}

func TestDiagnostics_OrderedBySeverity(t *testing.T) {
	h, _ := newHandler(t, api.WithQueueStats(fakeQueue{dropped: 2}))
	do(t, h, http.MethodPost, "/api/v1/records", submitBody(t, "abc", "5000"))

	var resp api.DiagnosticsResponse
	decode(t, do(t, h, http.MethodGet, "/api/v1/diagnostics", ""), &resp)

	keys := make([]string, len(resp.Hints))
	for i, hint := range resp.Hints {
		keys[i] = hint.Key
	}
	want := []string{"dropped_unparseable_amount", "sink_queue_overflow", "all_fraud"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Errorf("hints: got %v, want %v", keys, want)
	}
	if resp.Hints[0].Level != "critical" {
		t.Errorf("level: got %q, want critical", resp.Hints[0].Level)
	}
}

func TestDiagnostics_AllClear(t *testing.T) {
	h, _ := newHandler(t)
	do(t, h, http.MethodPost, "/api/v1/records", submitBody(t, "1", "5000"))

	var resp api.DiagnosticsResponse
	decode(t, do(t, h, http.MethodGet, "/api/v1/diagnostics", ""), &resp)
	if len(resp.Hints) != 1 || resp.Hints[0].Level != "ok" {
		t.Errorf("hints: got %+v", resp.Hints)
	}
}
