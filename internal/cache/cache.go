// Package cache holds the latest result record per symbol. Freshness
// only gates reprocessing: stale entries are still served to readers
// until the next pass overwrites them.
package cache

import (
	"sync"
	"time"

	"signalflow/internal/model"
)

type entry struct {
	storedAt time.Time
	record   *model.Record
}

// Store is a freshness-bounded record store keyed by symbol.
type Store struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry

	now func() time.Time
}

// New creates a store whose entries count as fresh for ttl.
func New(ttl time.Duration) *Store {
	return &Store{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached record for symbol and whether it is still
// fresh. A missing symbol returns (nil, false).
func (s *Store) Get(symbol string) (*model.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[symbol]
	if !ok {
		return nil, false
	}
	return e.record, s.now().Sub(e.storedAt) < s.ttl
}

// Put stores the record under its symbol, stamping it with the current
// time.
func (s *Store) Put(record *model.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[record.Symbol] = entry{storedAt: s.now(), record: record}
}

// Snapshot returns every cached record, fresh or stale, for the pull API
// and for seeding new subscribers.
func (s *Store) Snapshot() []*model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*model.Record, 0, len(s.entries))
	for _, e := range s.entries {
		records = append(records, e.record)
	}
	return records
}

// Len reports the number of cached symbols.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
