package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/txnroute/txnroute/pkg/types"
	"github.com/txnroute/txnroute/pkg/wire"
	"github.com/txnroute/txnroute/router/internal/classifier"
	"github.com/txnroute/txnroute/router/internal/processor"
	"github.com/txnroute/txnroute/router/internal/sink"
	"github.com/txnroute/txnroute/router/internal/store"
)

type memSink struct {
	mu  sync.Mutex
	got []sink.Delivery
}

func (m *memSink) Deliver(_ context.Context, d sink.Delivery) error {
	m.mu.Lock()
	m.got = append(m.got, d)
	m.mu.Unlock()
	return nil
}

func (m *memSink) Close() error { return nil }

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.got)
}

type countingObserver struct {
	mu      sync.Mutex
	routed  map[classifier.Channel]int
	dropped map[classifier.Reason]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{
		routed:  make(map[classifier.Channel]int),
		dropped: make(map[classifier.Reason]int),
	}
}

func (o *countingObserver) ObserveRouted(ch classifier.Channel) {
	o.mu.Lock()
	o.routed[ch]++
	o.mu.Unlock()
}

func (o *countingObserver) ObserveDropped(r classifier.Reason) {
	o.mu.Lock()
	o.dropped[r]++
	o.mu.Unlock()
}

func (o *countingObserver) total() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, v := range o.routed {
		n += v
	}
	for _, v := range o.dropped {
		n += v
	}
	return n
}

func newFlow(t *testing.T, d *sink.Dispatcher, opts ...processor.Option) (*Flow, *store.Store) {
	t.Helper()
	p, err := processor.New(1000, opts...)
	if err != nil {
		t.Fatalf("processor.New: %v", err)
	}
	st := store.New(time.Minute, 100)
	return New(p, st, d), st
}

func amount(id, v string) types.Record {
	return types.Record{ID: id, Attributes: map[string]string{types.AttrAmount: v}}
}

func TestSubmit_Scenarios(t *testing.T) {
	f, st := newFlow(t, nil)

	results, err := f.Submit(context.Background(), []types.Record{
		amount("1", "1500"),
		amount("2", "500"),
		amount("3", "1000"),
		{ID: "4", Attributes: map[string]string{}},
		amount("5", "N/A"),
		amount("6", "-50"),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	want := []types.Result{
		{ID: "1", Outcome: "routed", Channel: "fraud", Status: "fraud"},
		{ID: "2", Outcome: "routed", Channel: "non-fraud", Status: "non-fraud"},
		{ID: "3", Outcome: "routed", Channel: "non-fraud", Status: "non-fraud"},
		{ID: "4", Outcome: "dropped", Reason: "missing_amount"},
		{ID: "5", Outcome: "dropped", Reason: "unparseable_amount"},
		{ID: "6", Outcome: "routed", Channel: "non-fraud", Status: "non-fraud"},
	}
	if len(results) != len(want) {
		t.Fatalf("results: got %d, want %d", len(results), len(want))
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("result[%d]: got %+v, want %+v", i, results[i], want[i])
		}
	}

	if st.Count("fraud") != 1 || st.Count("non-fraud") != 3 {
		t.Errorf("store: fraud=%d non-fraud=%d", st.Count("fraud"), st.Count("non-fraud"))
	}
	stored := st.List("fraud")[0].Record
	if v, _ := stored.Attribute(types.AttrStatus); v != "fraud" {
		t.Errorf("stored record status: got %q", v)
	}

	s := f.Stats()
	if s.Submitted != 6 || s.Routed["fraud"] != 1 || s.Routed["non-fraud"] != 3 {
		t.Errorf("stats routed: %+v", s)
	}
	if s.Dropped["missing_amount"] != 1 || s.Dropped["unparseable_amount"] != 1 {
		t.Errorf("stats dropped: %+v", s.Dropped)
	}
	if s.Threshold != 1000 {
		t.Errorf("stats threshold: got %d", s.Threshold)
	}
}

func TestSubmit_AssignsIDs(t *testing.T) {
	f, _ := newFlow(t, nil)
	results, err := f.Submit(context.Background(), []types.Record{amount("", "1")})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if results[0].ID == "" {
		t.Error("ID: got empty, want generated")
	}
}

func TestSubmit_Empty(t *testing.T) {
	f, _ := newFlow(t, nil)
	if _, err := f.Submit(context.Background(), nil); !errors.Is(err, wire.ErrNoRecords) {
		t.Errorf("err: got %v, want ErrNoRecords", err)
	}
}

func TestSubmit_CancelledContext(t *testing.T) {
	obs := newCountingObserver()
	f, _ := newFlow(t, nil, processor.WithObserver(obs))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Submit(ctx, []types.Record{amount("1", "1"), amount("2", "5000")}); !errors.Is(err, context.Canceled) {
		t.Errorf("err: got %v, want context.Canceled", err)
	}
	if n := obs.total(); n != 0 {
		t.Errorf("observer saw %d outcomes for a cancelled batch", n)
	}
	if got := f.Stats().Submitted; got != 0 {
		t.Errorf("Submitted: got %d, want 0", got)
	}
}

func TestSubmit_RepeatedIDs(t *testing.T) {
	obs := newCountingObserver()
	f, st := newFlow(t, nil, processor.WithObserver(obs))

	results, err := f.Submit(context.Background(), []types.Record{amount("tx-1", "1500"), amount("tx-1", "20")})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results: got %d, want 2", len(results))
	}
	for i, want := range []string{"fraud", "non-fraud"} {
		if results[i].ID != "tx-1" || results[i].Channel != want {
			t.Errorf("result %d: got %s on %q, want tx-1 on %q", i, results[i].ID, results[i].Channel, want)
		}
	}

	stats := f.Stats()
	if stats.Submitted != 2 || stats.Routed["fraud"] != 1 || stats.Routed["non-fraud"] != 1 {
		t.Errorf("stats: got %+v", stats)
	}
	if obs.routed[classifier.ChannelFraud] != 1 || obs.routed[classifier.ChannelNonFraud] != 1 {
		t.Errorf("observer: got %v", obs.routed)
	}
	if st.Count("fraud") != 1 || st.Count("non-fraud") != 1 {
		t.Errorf("store: fraud=%d non-fraud=%d", st.Count("fraud"), st.Count("non-fraud"))
	}
}

func TestSubmit_EnqueuesSinkDeliveries(t *testing.T) {
	s := &memSink{}
	d := sink.NewDispatcher(10, nil)
	d.Add("mem", s, []string{"fraud"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	f, _ := newFlow(t, d)
	if _, err := f.Submit(ctx, []types.Record{amount("a", "5000"), amount("b", "5")}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for s.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.count() != 1 {
		t.Fatalf("sink deliveries: got %d, want 1", s.count())
	}
	if s.got[0].Record.ID() != "a" || s.got[0].Channel != "fraud" {
		t.Errorf("delivery: got %s on %s", s.got[0].Record.ID(), s.got[0].Channel)
	}
}

func TestSubmit_FollowsThresholdChange(t *testing.T) {
	f, _ := newFlow(t, nil)
	if err := f.Processor().SetThreshold(10); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	results, _ := f.Submit(context.Background(), []types.Record{amount("1", "11")})
	if results[0].Channel != "fraud" {
		t.Errorf("channel: got %q, want fraud", results[0].Channel)
	}
	if f.Stats().Threshold != 10 {
		t.Errorf("stats threshold: got %d", f.Stats().Threshold)
	}
}
