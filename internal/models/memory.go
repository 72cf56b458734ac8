package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MemoryType classifies the kind of memory.
type MemoryType string

const (
	MemoryTypeIdentity   MemoryType = "identity"
	MemoryTypeFact       MemoryType = "fact"
	MemoryTypePreference MemoryType = "preference"
	MemoryTypeEvent      MemoryType = "event"
	MemoryTypeContext    MemoryType = "context"
)

// ValidMemoryTypes is the set of all valid memory types, in display order.
var ValidMemoryTypes = []MemoryType{
	MemoryTypeIdentity,
	MemoryTypeFact,
	MemoryTypePreference,
	MemoryTypeEvent,
	MemoryTypeContext,
}

// IsValid returns true if the memory type is recognized.
func (mt MemoryType) IsValid() bool {
	for _, v := range ValidMemoryTypes {
		if mt == v {
			return true
		}
	}
	return false
}

// ParseMemoryType converts user input into a MemoryType.
func ParseMemoryType(s string) (MemoryType, error) {
	mt := MemoryType(strings.ToLower(strings.TrimSpace(s)))
	if !mt.IsValid() {
		return "", fmt.Errorf("invalid memory type %q: must be one of identity, fact, preference, event, context", s)
	}
	return mt, nil
}

// MemoryStatus is the lifecycle state the backend assigns to a memory.
type MemoryStatus string

const (
	StatusActive   MemoryStatus = "active"
	StatusOutdated MemoryStatus = "outdated"
	StatusArchived MemoryStatus = "archived"
)

// ValidMemoryStatuses is the set of all valid memory statuses.
var ValidMemoryStatuses = []MemoryStatus{
	StatusActive,
	StatusOutdated,
	StatusArchived,
}

// IsValid returns true if the status is recognized.
func (ms MemoryStatus) IsValid() bool {
	for _, v := range ValidMemoryStatuses {
		if ms == v {
			return true
		}
	}
	return false
}

// Memory is one persisted fact, preference, event or identity statement
// about a user, as returned by the backend.
type Memory struct {
	ID             string       `json:"id"`
	Text           string       `json:"text"`
	Type           MemoryType   `json:"type"`
	Confidence     float64      `json:"confidence"`
	Category       *string      `json:"category,omitempty"` // nil = absent
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	LastAccessedAt *time.Time   `json:"last_accessed_at,omitempty"`
	AccessCount    int64        `json:"access_count"`
	Status         MemoryStatus `json:"status"`
	Entities       []string     `json:"entities"`
	SourceText     string       `json:"source_text,omitempty"`
}

// UnmarshalJSON decodes a Memory and normalises a null or missing entities
// list to an empty slice. Timestamps are read with ParseTimestamp.
func (m *Memory) UnmarshalJSON(data []byte) error {
	type alias Memory
	var a struct {
		alias
		CreatedAt      *string `json:"created_at"`
		UpdatedAt      *string `json:"updated_at"`
		LastAccessedAt *string `json:"last_accessed_at"`
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	out := Memory(a.alias)
	var err error
	if out.CreatedAt, err = parseOptional("created_at", a.CreatedAt); err != nil {
		return err
	}
	if out.UpdatedAt, err = parseOptional("updated_at", a.UpdatedAt); err != nil {
		return err
	}
	if a.LastAccessedAt != nil && *a.LastAccessedAt != "" {
		t, err := ParseTimestamp(*a.LastAccessedAt)
		if err != nil {
			return fmt.Errorf("last_accessed_at: %w", err)
		}
		out.LastAccessedAt = &t
	}
	if out.Entities == nil {
		out.Entities = []string{}
	}
	*m = out
	return nil
}

// timestampLayouts are tried in order. Layouts without a zone parse as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp reads the timestamp forms the backend emits: RFC 3339,
// ISO-8601 without a zone (taken as UTC) and a bare date.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func parseOptional(field string, raw *string) (time.Time, error) {
	if raw == nil || *raw == "" {
		return time.Time{}, nil
	}
	t, err := ParseTimestamp(*raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	return t, nil
}

// CategoryValue returns the category, or "" when absent.
func (m *Memory) CategoryValue() string {
	if m.Category == nil {
		return ""
	}
	return *m.Category
}

// Validate checks the record invariants.
func (m *Memory) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("memory: id must not be empty")
	}
	if strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("memory %s: text must not be empty", m.ID)
	}
	if !m.Type.IsValid() {
		return fmt.Errorf("memory %s: invalid type %q", m.ID, m.Type)
	}
	if m.Status != "" && !m.Status.IsValid() {
		return fmt.Errorf("memory %s: invalid status %q", m.ID, m.Status)
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return fmt.Errorf("memory %s: confidence %.3f out of range [0,1]", m.ID, m.Confidence)
	}
	if m.AccessCount < 0 {
		return fmt.Errorf("memory %s: access_count must be >= 0", m.ID)
	}
	return nil
}

// RetrievedMemory wraps a Memory with the scores the backend attached
// during retrieval.
type RetrievedMemory struct {
	Memory
	Similarity  *float64 `json:"similarity,omitempty"`
	HybridScore *float64 `json:"hybrid_score,omitempty"`
	RerankScore *float64 `json:"rerank_score,omitempty"`
}

// UnmarshalJSON decodes the embedded Memory and the score fields. It is
// needed because Memory's own UnmarshalJSON would otherwise be promoted
// and swallow the score fields.
func (r *RetrievedMemory) UnmarshalJSON(data []byte) error {
	var mem Memory
	if err := json.Unmarshal(data, &mem); err != nil {
		return err
	}
	var scores struct {
		Similarity  *float64 `json:"similarity"`
		HybridScore *float64 `json:"hybrid_score"`
		RerankScore *float64 `json:"rerank_score"`
	}
	if err := json.Unmarshal(data, &scores); err != nil {
		return err
	}
	r.Memory = mem
	r.Similarity = scores.Similarity
	r.HybridScore = scores.HybridScore
	r.RerankScore = scores.RerankScore
	return nil
}

// CollectionStats holds summary statistics reported by the backend.
type CollectionStats struct {
	TotalMemories int64            `json:"total_memories"`
	ByType        map[string]int64 `json:"by_type"`
	ByStatus      map[string]int64 `json:"by_status,omitempty"`
}
