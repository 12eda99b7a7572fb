package flowfile

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnknownRelationship is reported when a record is transferred to a
	// relationship the session was not built with.
	ErrUnknownRelationship = errors.New("unknown relationship")

	// ErrAlreadyDisposed is reported when a record is transferred or removed
	// more than once.
	ErrAlreadyDisposed = errors.New("record already transferred or removed")
)

// Session is the host API a processor uses to consume and dispose records.
type Session interface {
	// Get returns the next queued record, or nil when none is left.
	Get() *Record
	// PutAttribute sets an attribute and returns the updated handle.
	PutAttribute(r *Record, key, value string) *Record
	// Transfer forwards r to the named relationship.
	Transfer(r *Record, relationship string)
	// Remove discards r.
	Remove(r *Record)
}

// MemorySession is an in-process Session seeded with a fixed batch.
// It is safe for concurrent use, although the router uses one per request.
type MemorySession struct {
	mu          sync.Mutex
	queue       []*Record
	allowed     map[string]struct{}
	transferred map[string][]*Record
	removed     []*Record
	disposed    map[uint64]struct{}
	errs        []error
}

// NewMemorySession returns a session that serves records in order and accepts
// transfers to the given relationships only.
func NewMemorySession(records []*Record, relationships ...string) *MemorySession {
	s := &MemorySession{
		queue:       append([]*Record(nil), records...),
		allowed:     make(map[string]struct{}, len(relationships)),
		transferred: make(map[string][]*Record, len(relationships)),
		disposed:    make(map[uint64]struct{}),
	}
	for _, rel := range relationships {
		s.allowed[rel] = struct{}{}
	}
	return s
}

func (s *MemorySession) Get() *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	r := s.queue[0]
	s.queue = s.queue[1:]
	return r
}

func (s *MemorySession) PutAttribute(r *Record, key, value string) *Record {
	return r.PutAttribute(key, value)
}

func (s *MemorySession) Transfer(r *Record, relationship string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.allowed[relationship]; !ok {
		s.errs = append(s.errs, fmt.Errorf("transfer %s to %q: %w", r.ID(), relationship, ErrUnknownRelationship))
		return
	}
	if !s.dispose(r) {
		return
	}
	s.transferred[relationship] = append(s.transferred[relationship], r)
}

func (s *MemorySession) Remove(r *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dispose(r) {
		return
	}
	s.removed = append(s.removed, r)
}

// dispose marks r as handled. Handles returned by PutAttribute share the
// original's identity; distinct records with the same id do not. Callers
// hold s.mu.
func (s *MemorySession) dispose(r *Record) bool {
	if _, ok := s.disposed[r.seq]; ok {
		s.errs = append(s.errs, fmt.Errorf("record %s: %w", r.ID(), ErrAlreadyDisposed))
		return false
	}
	s.disposed[r.seq] = struct{}{}
	return true
}

// Transferred returns the records sent to relationship, in transfer order.
func (s *MemorySession) Transferred(relationship string) []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Record(nil), s.transferred[relationship]...)
}

// Removed returns the discarded records.
func (s *MemorySession) Removed() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Record(nil), s.removed...)
}

// Pending returns the number of records not yet handed out by Get.
func (s *MemorySession) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Err joins every misuse recorded so far, or returns nil.
func (s *MemorySession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.errs...)
}
