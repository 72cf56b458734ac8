// Package query holds the user-editable search, type filter and sort intent
// for the memory view.
package query

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ajitpratap0/cortex-vault/internal/models"
)

// SortKey selects the descending order of the projection.
type SortKey string

const (
	SortByDate       SortKey = "date"
	SortByConfidence SortKey = "confidence"
	SortByAccess     SortKey = "access"
)

// ValidSortKeys lists every supported sort key.
var ValidSortKeys = []SortKey{SortByDate, SortByConfidence, SortByAccess}

// IsValid returns true if the sort key is recognized.
func (k SortKey) IsValid() bool {
	for _, v := range ValidSortKeys {
		if k == v {
			return true
		}
	}
	return false
}

// ParseSortKey converts user input into a SortKey. An empty string yields
// SortByDate.
func ParseSortKey(s string) (SortKey, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return SortByDate, nil
	}
	k := SortKey(s)
	if !k.IsValid() {
		return "", fmt.Errorf("invalid sort key %q: must be one of date, confidence, access", s)
	}
	return k, nil
}

// Snapshot is an immutable copy of the query state.
type Snapshot struct {
	Search string
	Types  map[models.MemoryType]struct{} // empty = no type filter
	SortBy SortKey
}

// HasTypeFilter reports whether any type is selected.
func (s Snapshot) HasTypeFilter() bool { return len(s.Types) > 0 }

// Includes reports whether mt passes the type filter.
func (s Snapshot) Includes(mt models.MemoryType) bool {
	if len(s.Types) == 0 {
		return true
	}
	_, ok := s.Types[mt]
	return ok
}

// NewSnapshot builds a Snapshot directly, for one-off projections that do
// not need a mutable State.
func NewSnapshot(search string, types []models.MemoryType, sortBy SortKey) Snapshot {
	set := make(map[models.MemoryType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	if sortBy == "" {
		sortBy = SortByDate
	}
	return Snapshot{Search: search, Types: set, SortBy: sortBy}
}

// State is the mutable query state. It is not safe for concurrent use;
// callers that share it across goroutines must serialise access.
type State struct {
	search   string
	selected map[models.MemoryType]struct{}
	sortBy   SortKey
}

// NewState returns the default state: no search, no type filter, newest first.
func NewState() *State {
	return &State{
		selected: make(map[models.MemoryType]struct{}),
		sortBy:   SortByDate,
	}
}

// Search returns the current search text.
func (s *State) Search() string { return s.search }

// SetSearch replaces the search text. Any string is accepted.
func (s *State) SetSearch(text string) { s.search = text }

// SortBy returns the current sort key.
func (s *State) SortBy() SortKey { return s.sortBy }

// SetSortBy replaces the sort key.
func (s *State) SetSortBy(k SortKey) { s.sortBy = k }

// ToggleType removes t from the selection if present, otherwise adds it.
func (s *State) ToggleType(t models.MemoryType) {
	if _, ok := s.selected[t]; ok {
		delete(s.selected, t)
		return
	}
	s.selected[t] = struct{}{}
}

// SetTypes replaces the whole selection.
func (s *State) SetTypes(types ...models.MemoryType) {
	s.selected = make(map[models.MemoryType]struct{}, len(types))
	for _, t := range types {
		s.selected[t] = struct{}{}
	}
}

// SelectedTypes returns the selection in canonical type order.
func (s *State) SelectedTypes() []models.MemoryType {
	out := make([]models.MemoryType, 0, len(s.selected))
	for _, t := range models.ValidMemoryTypes {
		if _, ok := s.selected[t]; ok {
			out = append(out, t)
		}
	}
	// Unknown types can only arrive through SetTypes/ToggleType with
	// unvalidated input; keep them visible at the end.
	if len(out) < len(s.selected) {
		var unknown []models.MemoryType
		for t := range s.selected {
			if !t.IsValid() {
				unknown = append(unknown, t)
			}
		}
		slices.Sort(unknown)
		out = append(out, unknown...)
	}
	return out
}

// Reset restores the default state.
func (s *State) Reset() {
	s.search = ""
	s.selected = make(map[models.MemoryType]struct{})
	s.sortBy = SortByDate
}

// Snapshot returns an immutable copy of the state.
func (s *State) Snapshot() Snapshot {
	types := make(map[models.MemoryType]struct{}, len(s.selected))
	for t := range s.selected {
		types[t] = struct{}{}
	}
	return Snapshot{Search: s.search, Types: types, SortBy: s.sortBy}
}
