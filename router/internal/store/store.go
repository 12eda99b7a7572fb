package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/txnroute/txnroute/router/internal/flowfile"
)

// Entry is a routed record together with the time it was routed.
type Entry struct {
	Record   *flowfile.Record
	RoutedAt time.Time
}

// Store is a thread-safe in-memory window of routed records, keyed by
// channel. Each channel holds at most max entries (oldest evicted first); a
// background goroutine (Run) evicts entries older than the TTL.
type Store struct {
	mu   sync.RWMutex
	data map[string][]*Entry // oldest first
	ttl  time.Duration
	max  int
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL and per-channel cap.
func New(ttl time.Duration, maxPerChannel int) *Store {
	return &Store{
		data: make(map[string][]*Entry),
		ttl:  ttl,
		max:  maxPerChannel,
		now:  time.Now,
	}
}

// TTL returns the configured time-to-live.
func (s *Store) TTL() time.Duration { return s.ttl }

// Put appends rec to channel, evicting the oldest entry when the channel is full.
func (s *Store) Put(channel string, rec *flowfile.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := append(s.data[channel], &Entry{Record: rec, RoutedAt: s.now()})
	if over := len(entries) - s.max; s.max > 0 && over > 0 {
		entries = append(entries[:0:0], entries[over:]...)
	}
	s.data[channel] = entries
}

// List returns the live entries of channel, newest first.
// Entries older than the TTL that have not yet been evicted are excluded.
func (s *Store) List(channel string) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	entries := s.data[channel]
	out := make([]*Entry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].RoutedAt.After(cutoff) {
			out = append(out, entries[i])
		}
	}
	return out
}

// Count returns the number of entries held for channel, including stale ones.
func (s *Store) Count(channel string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[channel])
}

// Evict removes entries whose RoutedAt is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for ch, entries := range s.data {
		// Entries are appended in time order, so the stale ones form a prefix.
		i := 0
		for i < len(entries) && !entries[i].RoutedAt.After(cutoff) {
			i++
		}
		if i == 0 {
			continue
		}
		removed += i
		if i == len(entries) {
			delete(s.data, ch)
			continue
		}
		s.data[ch] = append(entries[:0:0], entries[i:]...)
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL interval
// (minimum 1 second) so entries are evicted promptly. Run blocks until ctx is
// cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale records", "count", n)
			}
		}
	}
}
