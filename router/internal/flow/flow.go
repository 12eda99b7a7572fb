// Package flow runs a batch of submitted records through the transaction
// processor and forwards each routed record to the window store and the sink
// dispatcher. It is the single entry point shared by the gRPC receiver and
// the REST API.
package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/txnroute/txnroute/pkg/types"
	"github.com/txnroute/txnroute/pkg/wire"
	"github.com/txnroute/txnroute/router/internal/classifier"
	"github.com/txnroute/txnroute/router/internal/flowfile"
	"github.com/txnroute/txnroute/router/internal/processor"
	"github.com/txnroute/txnroute/router/internal/sink"
	"github.com/txnroute/txnroute/router/internal/store"
)

// Stats are running totals since the router started.
type Stats struct {
	Threshold int64             `json:"threshold"`
	Submitted uint64            `json:"submitted"`
	Routed    map[string]uint64 `json:"routed"`
	Dropped   map[string]uint64 `json:"dropped"`
}

// Flow wires the processor to its outputs. Safe for concurrent use.
type Flow struct {
	proc  *processor.TransactionProcessor
	store *store.Store
	sinks *sink.Dispatcher

	mu        sync.Mutex
	submitted uint64
	routed    map[string]uint64
	dropped   map[string]uint64
}

// New creates a Flow. sinks may be nil when no sinks are configured.
func New(proc *processor.TransactionProcessor, st *store.Store, sinks *sink.Dispatcher) *Flow {
	f := &Flow{
		proc:    proc,
		store:   st,
		sinks:   sinks,
		routed:  make(map[string]uint64),
		dropped: make(map[string]uint64),
	}
	for _, ch := range classifier.Channels {
		f.routed[string(ch)] = 0
	}
	f.dropped[string(classifier.ReasonMissingAmount)] = 0
	f.dropped[string(classifier.ReasonUnparseableAmount)] = 0
	return f
}

// Processor returns the underlying processor.
func (f *Flow) Processor() *processor.TransactionProcessor { return f.proc }

// Submit classifies records and returns one Result per record, in order.
func (f *Flow) Submit(ctx context.Context, records []types.Record) ([]types.Result, error) {
	if len(records) == 0 {
		return nil, wire.ErrNoRecords
	}
	// The processor reports each outcome to its observer as it goes, so a
	// batch is either run in full or not started.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in := make([]*flowfile.Record, len(records))
	for i, r := range records {
		in[i] = flowfile.NewRecord(r.ID, r.Attributes)
	}
	session := flowfile.NewMemorySession(in, f.proc.RelationshipNames()...)

	results := make([]types.Result, 0, len(in))
	for _, rec := range in {
		out, ok := f.proc.OnTrigger(session)
		if !ok {
			break
		}
		res := types.Result{ID: rec.ID(), Outcome: out.Kind.String()}
		if out.Routed() {
			res.Channel = string(out.Channel)
			res.Status = out.Status()
		} else {
			res.Reason = string(out.Reason)
		}
		results = append(results, res)
	}
	if err := session.Err(); err != nil {
		return nil, fmt.Errorf("flow: session: %w", err)
	}

	now := time.Now()
	for _, ch := range f.proc.RelationshipNames() {
		for _, rec := range session.Transferred(ch) {
			f.store.Put(ch, rec)
			if f.sinks != nil {
				f.sinks.Enqueue(sink.Delivery{Channel: ch, Record: rec, RoutedAt: now})
			}
		}
	}

	f.mu.Lock()
	f.submitted += uint64(len(results))
	for _, r := range results {
		if r.Routed() {
			f.routed[r.Channel]++
		} else {
			f.dropped[r.Reason]++
		}
	}
	f.mu.Unlock()

	return results, nil
}

// Stats returns a copy of the running totals.
func (f *Flow) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := Stats{
		Threshold: f.proc.Threshold(),
		Submitted: f.submitted,
		Routed:    make(map[string]uint64, len(f.routed)),
		Dropped:   make(map[string]uint64, len(f.dropped)),
	}
	for k, v := range f.routed {
		s.Routed[k] = v
	}
	for k, v := range f.dropped {
		s.Dropped[k] = v
	}
	return s
}
