package models

// Credentials are the user's own provider keys. The backend expects them in
// the body of every memory request.
type Credentials struct {
	OpenAIKey   string `json:"openai_key"`
	SupabaseURL string `json:"supabase_url"`
	SupabaseKey string `json:"supabase_key"`
	CohereKey   string `json:"cohere_key,omitempty"`
}

// Complete reports whether the required keys are present. The Cohere key is
// optional.
func (c Credentials) Complete() bool {
	return c.OpenAIKey != "" && c.SupabaseURL != "" && c.SupabaseKey != ""
}

// Message is one conversation turn sent to the add endpoint.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DecisionAction is what the backend decided to do with an extracted fact.
type DecisionAction string

const (
	ActionAdd      DecisionAction = "ADD"
	ActionUpdate   DecisionAction = "UPDATE"
	ActionDelete   DecisionAction = "DELETE"
	ActionConflict DecisionAction = "CONFLICT"
	ActionNone     DecisionAction = "NONE"
)

// ExtractedFact is a fact the backend pulled out of a conversation.
type ExtractedFact struct {
	Text       string     `json:"text"`
	Type       MemoryType `json:"type"`
	Confidence float64    `json:"confidence"`
	Category   string     `json:"category,omitempty"`
	Entities   []string   `json:"entities,omitempty"`
	Source     string     `json:"source,omitempty"`
}

// Decision records the backend's action for one extracted fact.
type Decision struct {
	Action        DecisionAction `json:"action"`
	Reason        string         `json:"reason"`
	MemoryID      string         `json:"memory_id,omitempty"`
	NewText       string         `json:"new_text,omitempty"`
	NewConfidence *float64       `json:"new_confidence,omitempty"`
}

// DebugInfo is the per-exchange trace returned alongside a chat reply.
type DebugInfo struct {
	TokensIn          int               `json:"tokens_in"`
	TokensOut         int               `json:"tokens_out"`
	LatencyMS         float64           `json:"latency_ms"`
	Cost              float64           `json:"cost"`
	ExtractedFacts    []ExtractedFact   `json:"extracted_facts"`
	Decisions         []Decision        `json:"decisions"`
	RetrievedMemories []RetrievedMemory `json:"retrieved_memories"`
}

// ChatResult is the reply from the memory-augmented chat endpoint.
type ChatResult struct {
	Response       string    `json:"response"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Debug          DebugInfo `json:"debug"`
}

// AddResultItem is one stored (or skipped) fact from an add request.
type AddResultItem struct {
	Action    string  `json:"action"`
	Memory    *Memory `json:"memory,omitempty"`
	Reasoning string  `json:"reasoning,omitempty"`
}

// AddResult is the reply from the add endpoint.
type AddResult struct {
	Memories       []AddResultItem `json:"memories"`
	ExtractedCount int             `json:"extracted_count"`
	StoredCount    int             `json:"stored_count"`
	Message        string          `json:"message,omitempty"`
}

// AuthSession is the reply from signup, login and refresh.
type AuthSession struct {
	Message      string `json:"message,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	Email        string `json:"email,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}
