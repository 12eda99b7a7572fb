package shipper

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/txnroute/txnroute/feeder/internal/config"
	"github.com/txnroute/txnroute/pkg/types"
	"github.com/txnroute/txnroute/pkg/wire"
)

// mockRouter records every batch and can fail the first calls.
type mockRouter struct {
	wire.UnimplementedRecordServiceServer
	mu      sync.Mutex
	batches [][]types.Record
	keys    []string
	failN   int
	failErr error
}

func (m *mockRouter) Submit(ctx context.Context, req *wire.SubmitRequest) (*wire.SubmitResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("x-api-key"); len(v) > 0 {
			m.keys = append(m.keys, v[0])
		}
	}
	if m.failN > 0 {
		m.failN--
		return nil, m.failErr
	}

	m.batches = append(m.batches, req.Records)
	resp := &wire.SubmitResponse{Ok: true}
	for _, r := range req.Records {
		res := types.Result{ID: r.ID, Outcome: types.OutcomeRouted, Channel: "non-fraud"}
		if r.Attributes[types.AttrAmount] == "" {
			res = types.Result{ID: r.ID, Outcome: types.OutcomeDropped, Reason: "missing_amount"}
		}
		resp.Results = append(resp.Results, res)
	}
	return resp, nil
}

func (m *mockRouter) received() []types.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Record
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

func (m *mockRouter) batchSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.batches))
	for i, b := range m.batches {
		out[i] = len(b)
	}
	return out
}

// startRouter serves m on a loopback port and returns a dialer for it.
func startRouter(t *testing.T, m *mockRouter) dialFunc {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	gs := grpc.NewServer()
	wire.RegisterRecordServiceServer(gs, m)
	go gs.Serve(lis) //nolint:errcheck
	t.Cleanup(gs.Stop)

	addr := lis.Addr().String()
	return func(ctx context.Context, _ string, _ config.FeederConfig) (*grpc.ClientConn, error) {
		return grpc.DialContext(ctx, addr, //nolint:staticcheck
			grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
}

func feederCfg() config.FeederConfig {
	return config.FeederConfig{
		RouterEndpoint: "unused-overridden-by-dialFn",
		BufferSize:     10,
		BatchSize:      4,
	}
}

func record(id, amount string) types.Record {
	attrs := map[string]string{}
	if amount != "" {
		attrs[types.AttrAmount] = amount
	}
	return types.Record{ID: id, Attributes: attrs}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// --- tests ------------------------------------------------------------------

func TestShipper_DeliversRecords(t *testing.T) {
	m := &mockRouter{}
	s := New(feederCfg())
	s.dialFn = startRouter(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go s.Run(ctx)

	s.Ship(record("a", "1500"))
	s.Ship(record("b", ""))

	waitFor(t, func() bool { return len(m.received()) == 2 })
	got := m.received()
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("order: got %s, %s", got[0].ID, got[1].ID)
	}

	waitFor(t, func() bool { return s.Stats().Shipped == 2 })
	st := s.Stats()
	if st.Routed != 1 || st.Dropped != 1 {
		t.Errorf("stats: got %+v", st)
	}
}

func TestShipper_BatchesUpToBatchSize(t *testing.T) {
	m := &mockRouter{}
	s := New(feederCfg())
	s.dialFn = startRouter(t, m)

	// Fill the buffer before Run so the first batches are full.
	for i := 0; i < 10; i++ {
		s.Ship(record(string(rune('a'+i)), "1"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go s.Run(ctx)

	waitFor(t, func() bool { return len(m.received()) == 10 })
	for i, n := range m.batchSizes() {
		if n > 4 {
			t.Errorf("batch %d has %d records, max 4", i, n)
		}
	}
}

func TestShipper_BufferEvictsOldest(t *testing.T) {
	s := New(config.FeederConfig{BufferSize: 3, BatchSize: 3})
	for i := 0; i < 5; i++ {
		s.Ship(record(string(rune('0'+i)), "1"))
	}

	var ids []string
	for len(s.buf) > 0 {
		ids = append(ids, (<-s.buf).ID)
	}
	if len(ids) != 3 || ids[0] != "2" || ids[1] != "3" || ids[2] != "4" {
		t.Errorf("buffer: got %v, want [2 3 4]", ids)
	}
	if s.Stats().Evicted != 2 {
		t.Errorf("evicted: got %d, want 2", s.Stats().Evicted)
	}
}

func TestShipper_PermanentErrorDiscards(t *testing.T) {
	m := &mockRouter{failN: 1, failErr: status.Error(codes.InvalidArgument, "bad")}
	s := New(feederCfg())
	s.dialFn = startRouter(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.Ship(record("lost", "1"))
	go s.Run(ctx)
	waitFor(t, func() bool { return s.Stats().Discarded == 1 })

	s.Ship(record("kept", "1"))
	waitFor(t, func() bool { return len(m.received()) == 1 })
	if id := m.received()[0].ID; id != "kept" {
		t.Errorf("received: got %q, want kept", id)
	}
}

func TestShipper_TransientErrorRetriesBatch(t *testing.T) {
	m := &mockRouter{failN: 1, failErr: status.Error(codes.Unavailable, "busy")}
	s := New(feederCfg())
	s.dialFn = startRouter(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.Ship(record("retry-me", "1"))
	go s.Run(ctx)

	// one backoff step (about 1s) then the same batch is resent
	waitFor(t, func() bool { return len(m.received()) == 1 })
	if id := m.received()[0].ID; id != "retry-me" {
		t.Errorf("received: got %q, want retry-me", id)
	}
	if s.Stats().Discarded != 0 {
		t.Errorf("discarded: got %d, want 0", s.Stats().Discarded)
	}
}

func TestShipper_SendsAPIKey(t *testing.T) {
	t.Setenv("TEST_ROUTER_KEY", "k-123")
	m := &mockRouter{}
	cfg := feederCfg()
	cfg.RouterAuth = config.AuthConfig{Mode: "apikey", KeyEnv: "TEST_ROUTER_KEY"}
	s := New(cfg)
	s.dialFn = startRouter(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go s.Run(ctx)

	s.Ship(record("a", "1"))
	waitFor(t, func() bool { return len(m.received()) == 1 })

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.keys) == 0 || m.keys[0] != "k-123" {
		t.Errorf("api key metadata: got %v", m.keys)
	}
}

func TestBackoff_ResetsAndCaps(t *testing.T) {
	b := newBackoff()
	if first := b.next(); first > 2*time.Second {
		t.Errorf("first backoff too large: %v", first)
	}
	for i := 0; i < 50; i++ {
		if d := b.next(); d > backoffMax*5/4 {
			t.Errorf("backoff[%d] = %v exceeds max plus jitter", i, d)
		}
	}
	b.reset()
	if after := b.next(); after > 2*time.Second {
		t.Errorf("backoff after reset too large: %v", after)
	}
}

func TestIsPermanentError(t *testing.T) {
	cases := map[codes.Code]bool{
		codes.InvalidArgument:  true,
		codes.Unauthenticated:  true,
		codes.PermissionDenied: true,
		codes.Unavailable:      false,
		codes.DeadlineExceeded: false,
		codes.Internal:         false,
	}
	for code, want := range cases {
		if got := isPermanentError(status.Error(code, "x")); got != want {
			t.Errorf("%v: got %v, want %v", code, got, want)
		}
	}
}

func TestShipper_GracefulShutdown(t *testing.T) {
	s := New(feederCfg())
	s.dialFn = startRouter(t, &mockRouter{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}
