// Package collection holds the client-side snapshot of a user's memories
// together with its loading and error flags.
package collection

import (
	"sync"

	"github.com/ajitpratap0/cortex-vault/internal/models"
)

// Store is the single source of truth for the fetched memory list.
//
// Every mutation builds a new backing slice, so a slice returned by Records
// is never modified afterwards and may be held by projections.
type Store struct {
	mu      sync.RWMutex
	records []models.Memory
	loading bool
	errMsg  string

	// ticket is the most recently issued fetch ticket. Responses carrying an
	// older ticket are stale.
	ticket uint64
}

// New creates an empty store.
func New() *Store {
	return &Store{records: []models.Memory{}}
}

// Records returns the current snapshot. Callers must not modify it.
func (s *Store) Records() []models.Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// ReplaceAll overwrites the whole collection. Duplicate ids are kept as-is.
func (s *Store) ReplaceAll(records []models.Memory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(records)
}

func (s *Store) replaceLocked(records []models.Memory) {
	next := make([]models.Memory, len(records))
	copy(next, records)
	s.records = next
}

// Add prepends a record.
func (s *Store) Add(m models.Memory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]models.Memory, 0, len(s.records)+1)
	next = append(next, m)
	next = append(next, s.records...)
	s.records = next
}

// Remove drops every record whose id matches. Unknown ids are a no-op.
// It returns the removed record and its former index when exactly one
// record was present, so a caller can restore it later.
func (s *Store) Remove(id string) (removed models.Memory, index int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index = -1
	hits := 0
	next := make([]models.Memory, 0, len(s.records))
	for i := range s.records {
		if s.records[i].ID == id {
			if hits == 0 {
				removed, index = s.records[i], i
			}
			hits++
			continue
		}
		next = append(next, s.records[i])
	}
	if hits == 0 {
		return models.Memory{}, -1, false
	}
	s.records = next
	return removed, index, hits == 1
}

// Restore reinserts m at index, clamped to the current bounds. It does
// nothing if a record with the same id is already present.
func (s *Store) Restore(m models.Memory, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].ID == m.ID {
			return
		}
	}
	if index < 0 {
		index = 0
	}
	if index > len(s.records) {
		index = len(s.records)
	}
	next := make([]models.Memory, 0, len(s.records)+1)
	next = append(next, s.records[:index]...)
	next = append(next, m)
	next = append(next, s.records[index:]...)
	s.records = next
}

// Loading reports whether a fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// SetLoading sets the loading flag.
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
}

// Err returns the display error, or "" when there is none.
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

// SetError stores a display-only error message. Loaded records are kept.
func (s *Store) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = msg
}

// ClearError removes the display error.
func (s *Store) ClearError() {
	s.SetError("")
}

// BeginFetch issues a new fetch ticket, marks the store as loading and
// clears any previous error. Only the response holding the latest ticket
// may replace the collection.
func (s *Store) BeginFetch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticket++
	s.loading = true
	s.errMsg = ""
	return s.ticket
}

// ReplaceIfCurrent applies records if ticket is still the latest issued
// ticket and reports whether it did. A stale response leaves the store
// untouched.
func (s *Store) ReplaceIfCurrent(ticket uint64, records []models.Memory) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket != s.ticket {
		return false
	}
	s.replaceLocked(records)
	s.loading = false
	return true
}

// FailIfCurrent records msg if ticket is still the latest issued ticket and
// reports whether it did.
func (s *Store) FailIfCurrent(ticket uint64, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket != s.ticket {
		return false
	}
	s.errMsg = msg
	s.loading = false
	return true
}
