// Package backend is the REST client for the Cortex memory API. It performs
// no memory logic of its own; every operation is a single request.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ajitpratap0/cortex-vault/internal/models"
)

const (
	// DefaultBaseURL is where the Cortex API listens in local development.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout bounds every request.
	DefaultTimeout = 30 * time.Second

	// DefaultSearchLimit is the result count used when a caller passes 0.
	DefaultSearchLimit = 10

	// DefaultRetrieveK is how many memories chat retrieves for context.
	DefaultRetrieveK = 5

	maxResponseBytes = 8 << 20
)

// Client talks to the Cortex API. The access token is shared state and may
// be replaced while requests are in flight.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	mu          sync.RWMutex
	accessToken string
}

// NewClient creates a client for baseURL. An empty baseURL selects
// DefaultBaseURL and a zero timeout selects DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// BaseURL returns the API root the client sends requests to.
func (c *Client) BaseURL() string { return c.baseURL }

// SetAccessToken sets the JWT sent as a bearer token.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// ClearAuth drops the access token.
func (c *Client) ClearAuth() { c.SetAccessToken("") }

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// ChatOptions tunes a chat request. Zero values select the defaults.
type ChatOptions struct {
	ConversationID string
	RetrieveK      int
	SkipExtraction bool
}

type credentialsBody struct {
	Credentials models.Credentials `json:"credentials"`
}

type addRequest struct {
	Credentials    models.Credentials `json:"credentials"`
	Messages       []models.Message   `json:"messages"`
	ConversationID string             `json:"conversation_id,omitempty"`
}

type searchRequest struct {
	Credentials models.Credentials `json:"credentials"`
	Query       string             `json:"query"`
	Limit       int                `json:"limit"`
}

type chatRequest struct {
	Credentials     models.Credentials `json:"credentials"`
	Message         string             `json:"message"`
	ConversationID  string             `json:"conversation_id,omitempty"`
	RetrieveK       int                `json:"retrieve_k"`
	ExtractMemories bool               `json:"extract_memories"`
}

// Records are kept raw so one malformed entry does not fail the whole
// response.
type listResponse struct {
	Memories []json.RawMessage `json:"memories"`
}

type searchResponse struct {
	Memories []json.RawMessage `json:"memories"`
	Results  []json.RawMessage `json:"results"`
}

type getResponse struct {
	Memory models.Memory `json:"memory"`
}

// errorResponse is FastAPI's error body. Detail is a string for
// HTTPException and a list of objects for validation errors.
type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// --- auth ---

// Signup creates an account. The returned session has no token when the
// backend requires email confirmation first.
func (c *Client) Signup(ctx context.Context, email, password string) (*models.AuthSession, error) {
	var out models.AuthSession
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, "signup", http.MethodPost, "/auth/signup", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges email and password for an access and refresh token.
func (c *Client) Login(ctx context.Context, email, password string) (*models.AuthSession, error) {
	var out models.AuthSession
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*models.AuthSession, error) {
	var out models.AuthSession
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, "refresh", http.MethodPost, "/auth/refresh", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health calls the unauthenticated health endpoint and returns its status.
func (c *Client) Health(ctx context.Context) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, "health", http.MethodGet, "/health", nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// --- memory ---

// ListMemories fetches every memory of the authenticated user.
func (c *Client) ListMemories(ctx context.Context, creds models.Credentials) ([]models.Memory, error) {
	if err := c.authorize(creds); err != nil {
		return nil, err
	}
	var out listResponse
	if err := c.do(ctx, "list memories", http.MethodPost, "/memory/list", credentialsBody{Credentials: creds}, &out); err != nil {
		return nil, err
	}
	return decodeValid[models.Memory](c.logger, "memory", out.Memories), nil
}

// SearchMemories runs a server-side search. limit bounds the result count;
// 0 selects DefaultSearchLimit.
func (c *Client) SearchMemories(ctx context.Context, creds models.Credentials, query string, limit int) ([]models.RetrievedMemory, error) {
	if err := c.authorize(creds); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	var out searchResponse
	req := searchRequest{Credentials: creds, Query: query, Limit: limit}
	if err := c.do(ctx, "search memories", http.MethodPost, "/memory/search", req, &out); err != nil {
		return nil, err
	}
	raw := out.Memories
	if raw == nil {
		raw = out.Results
	}
	valid := decodeValid[models.RetrievedMemory](c.logger, "search result", raw)
	if len(valid) > limit {
		valid = valid[:limit]
	}
	return valid, nil
}

// GetMemory fetches a single memory. A 404 matches ErrNotFound.
func (c *Client) GetMemory(ctx context.Context, creds models.Credentials, id string) (*models.Memory, error) {
	if err := c.authorize(creds); err != nil {
		return nil, err
	}
	var out getResponse
	path := "/memory/" + url.PathEscape(id)
	if err := c.do(ctx, "get memory", http.MethodPost, path, credentialsBody{Credentials: creds}, &out); err != nil {
		return nil, err
	}
	return &out.Memory, nil
}

// DeleteMemory asks the backend to delete a memory. A failure does not mean
// the memory still exists.
func (c *Client) DeleteMemory(ctx context.Context, creds models.Credentials, id string) error {
	if err := c.authorize(creds); err != nil {
		return err
	}
	path := "/memory/" + url.PathEscape(id) + "/delete"
	return c.do(ctx, "delete memory", http.MethodPost, path, credentialsBody{Credentials: creds}, nil)
}

// Stats fetches collection statistics.
func (c *Client) Stats(ctx context.Context, creds models.Credentials) (*models.CollectionStats, error) {
	if err := c.authorize(creds); err != nil {
		return nil, err
	}
	var out models.CollectionStats
	if err := c.do(ctx, "stats", http.MethodPost, "/memory/stats", credentialsBody{Credentials: creds}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddMemory submits conversation turns for fact extraction.
func (c *Client) AddMemory(ctx context.Context, creds models.Credentials, messages []models.Message, conversationID string) (*models.AddResult, error) {
	if err := c.authorize(creds); err != nil {
		return nil, err
	}
	var out models.AddResult
	req := addRequest{Credentials: creds, Messages: messages, ConversationID: conversationID}
	if err := c.do(ctx, "add memory", http.MethodPost, "/memory/add", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Chat sends a message to the memory-augmented chat endpoint.
func (c *Client) Chat(ctx context.Context, creds models.Credentials, message string, opts ChatOptions) (*models.ChatResult, error) {
	if err := c.authorize(creds); err != nil {
		return nil, err
	}
	k := opts.RetrieveK
	if k <= 0 {
		k = DefaultRetrieveK
	}
	var out models.ChatResult
	req := chatRequest{
		Credentials:     creds,
		Message:         message,
		ConversationID:  opts.ConversationID,
		RetrieveK:       k,
		ExtractMemories: !opts.SkipExtraction,
	}
	if err := c.do(ctx, "chat", http.MethodPost, "/memory/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- helpers ---

// authorize fails fast, without a request, when the caller cannot possibly
// be authorized.
func (c *Client) authorize(creds models.Credentials) error {
	if !creds.Complete() {
		return &AuthError{Reason: "missing required credentials: configure openai_key, supabase_url and supabase_key"}
	}
	if c.token() == "" {
		return &AuthError{Reason: "not logged in", Err: ErrNotLoggedIn}
	}
	return nil
}

// record is a decoded backend record that can check its own invariants.
type record[T any] interface {
	*T
	Validate() error
}

// decodeValid decodes each raw record on its own and drops, with a warning,
// the ones that fail to decode or violate the record invariants.
func decodeValid[T any, P record[T]](logger *slog.Logger, what string, raw []json.RawMessage) []T {
	out := make([]T, 0, len(raw))
	for i, r := range raw {
		var rec T
		if err := json.Unmarshal(r, &rec); err != nil {
			logger.Warn("backend: dropping undecodable "+what, "index", i, "error", err)
			continue
		}
		if err := P(&rec).Validate(); err != nil {
			logger.Warn("backend: dropping invalid "+what, "index", i, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out
}

// do sends one JSON request and decodes a 2xx body into out (when non-nil).
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend: %s: marshaling request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backend: %s: creating request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("reading response body: %w", err)}
	}

	c.logger.Debug("backend request", "op", op, "method", method, "path", path,
		"status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := errorDetail(rawBody)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			if detail == "" {
				detail = http.StatusText(resp.StatusCode)
			}
			return &AuthError{Reason: detail}
		}
		return &ServerError{Op: op, StatusCode: resp.StatusCode, Detail: detail}
	}

	if out == nil || len(bytes.TrimSpace(rawBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(rawBody, out); err != nil {
		return &ServerError{Op: op, StatusCode: resp.StatusCode, Detail: "malformed response", Err: err}
	}
	return nil
}

// errorDetail extracts a readable message from an error body.
func errorDetail(raw []byte) string {
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err != nil || len(er.Detail) == 0 {
		return strings.TrimSpace(string(raw))
	}
	var s string
	if err := json.Unmarshal(er.Detail, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(er.Detail, &items); err == nil && len(items) > 0 {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return string(er.Detail)
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool { return errors.Is(err, ErrAuth) }
