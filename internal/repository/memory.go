package repository

import (
	"sync"
	"time"

	"github.com/gst3d/pushserver/internal/domain"
)

// MemoryRegistry implements domain.TokenRepository in process memory
type MemoryRegistry struct {
	mu      sync.RWMutex
	records map[string]domain.TokenRecord
	order   []string
	now     func() time.Time
}

// NewMemoryRegistry creates an empty registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		records: make(map[string]domain.TokenRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source, for tests
func (r *MemoryRegistry) WithClock(now func() time.Time) *MemoryRegistry {
	r.now = now
	return r
}

// Upsert inserts a new record or merges into the existing one under a single lock
func (r *MemoryRegistry) Upsert(candidate domain.TokenRecord) (domain.TokenRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	existing, ok := r.records[candidate.Token]
	if !ok {
		candidate.RegisteredAt = now
		candidate.LastSeen = now
		r.records[candidate.Token] = candidate
		r.order = append(r.order, candidate.Token)
		return candidate, true
	}

	merged := existing.Merge(candidate, now)
	r.records[candidate.Token] = merged
	return merged, false
}

// List returns every record in insertion order
func (r *MemoryRegistry) List() []domain.TokenRecord {
	return r.Filter(nil)
}

// Filter returns a snapshot of the records accepted by match, in insertion order.
// A nil match accepts everything.
func (r *MemoryRegistry) Filter(match func(domain.TokenRecord) bool) []domain.TokenRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.TokenRecord, 0, len(r.order))
	for _, token := range r.order {
		rec := r.records[token]
		if match == nil || match(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Evict removes all listed tokens in one critical section
func (r *MemoryRegistry) Evict(tokens map[string]struct{}) int {
	if len(tokens) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	kept := r.order[:0]
	for _, token := range r.order {
		if _, drop := tokens[token]; drop {
			delete(r.records, token)
			removed++
			continue
		}
		kept = append(kept, token)
	}
	clear(r.order[len(kept):])
	r.order = kept
	return removed
}

// Count returns the number of registered tokens
func (r *MemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
