// Package processor adapts the threshold classifier to the flowfile session
// API: one OnTrigger call consumes one record, tags it and transfers it to
// the fraud or non-fraud relationship, or removes it when it cannot be
// classified.
package processor

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/txnroute/txnroute/pkg/types"
	"github.com/txnroute/txnroute/router/internal/classifier"
	"github.com/txnroute/txnroute/router/internal/flowfile"
)

// Observer is notified of every classification outcome.
type Observer interface {
	ObserveRouted(ch classifier.Channel)
	ObserveDropped(reason classifier.Reason)
}

// Option configures a TransactionProcessor.
type Option func(*TransactionProcessor)

// WithLogger sets the logger passed to the classifier.
func WithLogger(l *slog.Logger) Option {
	return func(p *TransactionProcessor) { p.log = l }
}

// WithObserver registers an outcome observer.
func WithObserver(o Observer) Option {
	return func(p *TransactionProcessor) { p.observer = o }
}

// TransactionProcessor routes transaction records by amount.
// OnTrigger may be called concurrently with itself and with SetThreshold.
type TransactionProcessor struct {
	threshold  atomic.Int64
	classifier *classifier.Classifier
	observer   Observer
	log        *slog.Logger
}

// New returns a processor using threshold. A negative threshold is rejected.
func New(threshold int64, opts ...Option) (*TransactionProcessor, error) {
	if err := classifier.CheckThreshold(threshold); err != nil {
		return nil, fmt.Errorf("processor: %w", err)
	}
	p := &TransactionProcessor{log: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	p.classifier = classifier.New(p.log)
	p.threshold.Store(threshold)
	return p, nil
}

// Properties lists the supported property descriptors.
func (p *TransactionProcessor) Properties() []classifier.PropertyDescriptor {
	return []classifier.PropertyDescriptor{classifier.ThresholdProperty}
}

// Relationships lists the output relationships.
func (p *TransactionProcessor) Relationships() []classifier.Relationship {
	return []classifier.Relationship{classifier.RelFraud, classifier.RelNonFraud}
}

// RelationshipNames returns the relationship names, for building sessions.
func (p *TransactionProcessor) RelationshipNames() []string {
	rels := p.Relationships()
	out := make([]string, len(rels))
	for i, r := range rels {
		out[i] = r.Name
	}
	return out
}

// Threshold returns the current threshold.
func (p *TransactionProcessor) Threshold() int64 {
	return p.threshold.Load()
}

// SetThreshold replaces the threshold for subsequent triggers.
func (p *TransactionProcessor) SetThreshold(v int64) error {
	if err := classifier.CheckThreshold(v); err != nil {
		return fmt.Errorf("processor: %w", err)
	}
	if old := p.threshold.Swap(v); old != v {
		p.log.Info("processor: threshold changed", "old", old, "new", v)
	}
	return nil
}

// OnTrigger processes at most one record from s. It returns false when the
// session had nothing queued.
func (p *TransactionProcessor) OnTrigger(s flowfile.Session) (classifier.Outcome, bool) {
	rec := s.Get()
	if rec == nil {
		return classifier.Outcome{}, false
	}

	out := p.classifier.Classify(rec.Attributes(), p.threshold.Load())
	if !out.Routed() {
		s.Remove(rec)
		if p.observer != nil {
			p.observer.ObserveDropped(out.Reason)
		}
		return out, true
	}

	rec = s.PutAttribute(rec, types.AttrStatus, out.Status())
	s.Transfer(rec, string(out.Channel))
	if p.observer != nil {
		p.observer.ObserveRouted(out.Channel)
	}
	return out, true
}
