// Package projection derives the ordered display list from a memory
// collection and a query snapshot. Every function here is pure.
package projection

import (
	"cmp"
	"slices"
	"strings"

	"github.com/ajitpratap0/cortex-vault/internal/models"
	"github.com/ajitpratap0/cortex-vault/internal/query"
)

// Project filters by search text, then by type, then stable-sorts the
// result descending by q.SortBy. The returned pointers refer into records.
func Project(records []models.Memory, q query.Snapshot) []*models.Memory {
	out := refs(records)
	out = FilterSearch(out, q.Search)
	out = FilterTypes(out, q)
	Sort(out, q.SortBy)
	return out
}

func refs(records []models.Memory) []*models.Memory {
	out := make([]*models.Memory, len(records))
	for i := range records {
		out[i] = &records[i]
	}
	return out
}

// MatchesSearch reports whether m contains term, case-insensitively, in its
// text, its category or any of its entities. An empty term matches all.
func MatchesSearch(m *models.Memory, term string) bool {
	if term == "" {
		return true
	}
	needle := strings.ToLower(term)
	if strings.Contains(strings.ToLower(m.Text), needle) {
		return true
	}
	if m.Category != nil && strings.Contains(strings.ToLower(*m.Category), needle) {
		return true
	}
	for _, e := range m.Entities {
		if strings.Contains(strings.ToLower(e), needle) {
			return true
		}
	}
	return false
}

// FilterSearch keeps the memories matching term. It returns in unchanged
// when term is empty.
func FilterSearch(in []*models.Memory, term string) []*models.Memory {
	if term == "" {
		return in
	}
	out := make([]*models.Memory, 0, len(in))
	for _, m := range in {
		if MatchesSearch(m, term) {
			out = append(out, m)
		}
	}
	return out
}

// FilterTypes keeps the memories whose type is selected in q. It returns in
// unchanged when no type is selected.
func FilterTypes(in []*models.Memory, q query.Snapshot) []*models.Memory {
	if !q.HasTypeFilter() {
		return in
	}
	out := make([]*models.Memory, 0, len(in))
	for _, m := range in {
		if q.Includes(m.Type) {
			out = append(out, m)
		}
	}
	return out
}

// Sort orders ms in place, descending by key. Equal keys keep their input
// order. Unknown keys leave ms untouched.
func Sort(ms []*models.Memory, key query.SortKey) {
	var less func(a, b *models.Memory) int
	switch key {
	case query.SortByDate:
		less = func(a, b *models.Memory) int { return b.CreatedAt.Compare(a.CreatedAt) }
	case query.SortByConfidence:
		less = func(a, b *models.Memory) int { return cmp.Compare(b.Confidence, a.Confidence) }
	case query.SortByAccess:
		less = func(a, b *models.Memory) int { return cmp.Compare(b.AccessCount, a.AccessCount) }
	default:
		return
	}
	slices.SortStableFunc(ms, less)
}

// Summary holds the header figures shown above the memory list.
type Summary struct {
	Total             int                         `json:"total"`
	AverageConfidence float64                     `json:"average_confidence"`
	ByType            map[models.MemoryType]int   `json:"by_type"`
	ByStatus          map[models.MemoryStatus]int `json:"by_status"`
}

// Summarize computes a Summary over records. An empty input yields zero
// counts and a zero average.
func Summarize(records []models.Memory) Summary {
	s := Summary{
		Total:    len(records),
		ByType:   make(map[models.MemoryType]int),
		ByStatus: make(map[models.MemoryStatus]int),
	}
	var sum float64
	for i := range records {
		sum += records[i].Confidence
		s.ByType[records[i].Type]++
		if records[i].Status != "" {
			s.ByStatus[records[i].Status]++
		}
	}
	if s.Total > 0 {
		s.AverageConfidence = sum / float64(s.Total)
	}
	return s
}
