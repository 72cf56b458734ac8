package backend

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cortex-vault/internal/models"
)

var testCreds = models.Credentials{
	OpenAIKey:   "sk-test",
	SupabaseURL: "https://example.supabase.co",
	SupabaseKey: "service-key",
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newFakeAPI starts an httptest server that routes to handler and returns an
// authenticated client pointed at it.
func newFakeAPI(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, 5*time.Second, testLogger())
	c.SetAccessToken("jwt-token")
	return c
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("", 0, testLogger())
	assert.Equal(t, DefaultBaseURL, c.BaseURL())

	c = NewClient("http://api.example.com/", 0, testLogger())
	assert.Equal(t, "http://api.example.com", c.BaseURL())
}

func TestListMemories_HappyPath(t *testing.T) {
	c := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/memory/list", r.URL.Path)
		assert.Equal(t, "Bearer jwt-token", r.Header.Get("Authorization"))

		body := decodeBody(t, r)
		creds, ok := body["credentials"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "sk-test", creds["openai_key"])

		writeJSON(w, http.StatusOK, map[string]any{"memories": []map[string]any{
			{"id": "1", "text": "Lives in Berlin", "type": "fact", "confidence": 0.9,
				"created_at": "2024-01-01T00:00:00Z", "updated_at": "2024-01-01T00:00:00Z",
				"access_count": 2, "status": "active", "entities": []string{"Berlin"}},
			{"id": "2", "text": "Prefers dark mode", "type": "preference", "confidence": 0.6,
				"created_at": "2024-02-01T00:00:00Z", "updated_at": "2024-02-01T00:00:00Z",
				"access_count": 9, "status": "active", "entities": nil},
		}})
	})

	got, err := c.ListMemories(context.Background(), testCreds)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, []string{"Berlin"}, got[0].Entities)
	assert.NotNil(t, got[1].Entities)
	assert.Equal(t, int64(9), got[1].AccessCount)
}

// TestListMemories_DropsInvalid verifies that records breaking the record
// invariants never reach the caller.
func TestListMemories_DropsInvalid(t *testing.T) {
	c := newFakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"memories": []map[string]any{
			{"id": "ok", "text": "fine", "type": "fact", "confidence": 0.5},
			{"id": "hi", "text": "too sure", "type": "fact", "confidence": 1.5},
			{"id": "ty", "text": "bad type", "type": "rule", "confidence": 0.5},
		}})
	})

	got, err := c.ListMemories(context.Background(), testCreds)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].ID)
}

func TestListMemories_MixedTimestamps(t *testing.T) {
	c := newFakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"memories":[
			{"id":"1","text":"Lives in Berlin","type":"fact","confidence":0.9,
			 "created_at":"2024-01-01T00:00:00Z","updated_at":"2024-01-01T00:00:00Z"},
			{"id":"2","text":"Prefers dark mode","type":"preference","confidence":0.6,
			 "created_at":"2024-01-01","updated_at":"2024-02-01T10:00:00.123456"},
			{"id":"3","text":"Broken","type":"fact","confidence":0.5,
			 "created_at":"last tuesday"},
			{"id":"4","text":"Wrong shape","type":"fact","confidence":"high"}
		]}`))
	})

	got, err := c.ListMemories(context.Background(), testCreds)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].ID)
	assert.Equal(t, time.Date(2024, 2, 1, 10, 0, 0, 123456000, time.UTC), got[1].UpdatedAt)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), got[1].CreatedAt)
}

func TestListMemories_MalformedBody(t *testing.T) {
	c := newFakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"memories": "nope"`))
	})

	_, err := c.ListMemories(context.Background(), testCreds)
	var srvErr *ServerError
	require.ErrorAs(t, err, &srvErr)
	assert.Equal(t, http.StatusOK, srvErr.StatusCode)
	assert.Equal(t, "malformed response", srvErr.Detail)
	assert.Error(t, errors.Unwrap(srvErr))
}

func TestListMemories_MissingCredentials(t *testing.T) {
	var calls atomic.Int32
	c := newFakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"memories": []any{}})
	})

	_, err := c.ListMemories(context.Background(), models.Credentials{OpenAIKey: "sk"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuth))
	assert.Equal(t, int32(0), calls.Load(), "no request should be sent")
}

func TestListMemories_NotLoggedIn(t *testing.T) {
	c := newFakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"memories": []any{}})
	})
	c.ClearAuth()

	_, err := c.ListMemories(context.Background(), testCreds)
	assert.True(t, IsAuth(err))
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestErrors_Unauthorized(t *testing.T) {
	c := newFakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token"})
	})

	_, err := c.ListMemories(context.Background(), testCreds)
	require.Error(t, err)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "Invalid token", authErr.Reason)
	assert.True(t, errors.Is(err, ErrAuth))
}

func TestErrors_ServerError(t *testing.T) {
	c := newFakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "database unavailable"})
	})

	_, err := c.ListMemories(context.Background(), testCreds)
	var srvErr *ServerError
	require.True(t, errors.As(err, &srvErr))
	assert.Equal(t, http.StatusInternalServerError, srvErr.StatusCode)
	assert.Equal(t, "database unavailable", srvErr.Detail)
	assert.False(t, errors.Is(err, ErrAuth))
}

func TestErrors_ValidationDetailList(t *testing.T) {
	c := newFakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{"loc": []string{"body", "query"}, "msg": "field required"}},
		})
	})

	_, err := c.SearchMemories(context.Background(), testCreds, "x", 5)
	var srvErr *ServerError
	require.True(t, errors.As(err, &srvErr))
	assert.Equal(t, "field required", srvErr.Detail)
}

func TestErrors_NotFound(t *testing.T) {
	c := newFakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Memory not found"})
	})

	_, err := c.GetMemory(context.Background(), testCreds, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestErrors_Network(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second, testLogger())
	c.SetAccessToken("jwt")
	_, err := c.ListMemories(context.Background(), testCreds)
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, "list memories", netErr.Op)
}

func TestSearchMemories_LimitAndScores(t *testing.T) {
	c := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/memory/search", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "coffee", body["query"])
		assert.Equal(t, float64(2), body["limit"])

		writeJSON(w, http.StatusOK, map[string]any{"memories": []map[string]any{
			{"id": "a", "text": "Drinks coffee", "type": "preference", "confidence": 0.8, "similarity": 0.93},
			{"id": "b", "text": "Coffee at 8am", "type": "event", "confidence": 0.7, "similarity": 0.81},
			{"id": "c", "text": "Hates decaf", "type": "preference", "confidence": 0.6, "similarity": 0.52},
		}})
	})

	got, err := c.SearchMemories(context.Background(), testCreds, "coffee", 2)
	require.NoError(t, err)
	require.Len(t, got, 2, "limit bounds the result count")
	require.NotNil(t, got[0].Similarity)
	assert.InDelta(t, 0.93, *got[0].Similarity, 1e-9)
}

func TestSearchMemories_DropsUndecodable(t *testing.T) {
	c := newFakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"memories": []map[string]any{
			{"id": "a", "text": "Drinks coffee", "type": "preference", "confidence": 0.8,
				"created_at": "2024-03-01T08:00:00", "similarity": 0.9},
			{"id": "b", "text": "Coffee at 8am", "type": "event", "confidence": 0.7, "created_at": 17},
		}})
	})

	got, err := c.SearchMemories(context.Background(), testCreds, "coffee", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	require.NotNil(t, got[0].Similarity)
	assert.InDelta(t, 0.9, *got[0].Similarity, 1e-9)
}

func TestSearchMemories_DefaultLimitAndResultsKey(t *testing.T) {
	c := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, float64(DefaultSearchLimit), body["limit"])
		writeJSON(w, http.StatusOK, map[string]any{"results": []map[string]any{
			{"id": "a", "text": "x", "type": "fact", "confidence": 0.8},
		}})
	})

	got, err := c.SearchMemories(context.Background(), testCreds, "x", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestDeleteMemory_EscapesID(t *testing.T) {
	c := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/memory/a%2Fb/delete", r.URL.EscapedPath())
		writeJSON(w, http.StatusOK, map[string]string{"message": "deleted", "id": "a/b"})
	})

	require.NoError(t, c.DeleteMemory(context.Background(), testCreds, "a/b"))
}

func TestGetMemory(t *testing.T) {
	c := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/memory/42", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"memory": map[string]any{
			"id": "42", "text": "Has a cat", "type": "fact", "confidence": 0.7, "category": "pets",
		}})
	})

	m, err := c.GetMemory(context.Background(), testCreds, "42")
	require.NoError(t, err)
	assert.Equal(t, "pets", m.CategoryValue())
}

func TestStats(t *testing.T) {
	c := newFakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"total_memories": 3, "by_type": map[string]int{"fact": 2, "event": 1}})
	})

	s, err := c.Stats(context.Background(), testCreds)
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.TotalMemories)
	assert.Equal(t, int64(2), s.ByType["fact"])
}

func TestChat_Defaults(t *testing.T) {
	c := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/memory/chat", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, float64(DefaultRetrieveK), body["retrieve_k"])
		assert.Equal(t, true, body["extract_memories"])
		assert.Equal(t, "conv-1", body["conversation_id"])
		writeJSON(w, http.StatusOK, map[string]any{
			"response": "Hello again",
			"debug": map[string]any{
				"tokens_in": 12, "tokens_out": 4,
				"decisions": []map[string]any{{"action": "ADD", "reason": "new fact"}},
			},
		})
	})

	res, err := c.Chat(context.Background(), testCreds, "hi", ChatOptions{ConversationID: "conv-1"})
	require.NoError(t, err)
	assert.Equal(t, "Hello again", res.Response)
	require.Len(t, res.Debug.Decisions, 1)
	assert.Equal(t, models.ActionAdd, res.Debug.Decisions[0].Action)
}

func TestAddMemory(t *testing.T) {
	c := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		msgs, ok := body["messages"].([]any)
		require.True(t, ok)
		assert.Len(t, msgs, 2)
		writeJSON(w, http.StatusOK, map[string]any{
			"memories":        []map[string]any{{"action": "ADD", "memory": map[string]any{"id": "n1", "text": "Owns a bike", "type": "fact", "confidence": 0.8}}},
			"extracted_count": 1,
			"stored_count":    1,
		})
	})

	res, err := c.AddMemory(context.Background(), testCreds, []models.Message{
		{Role: "user", Content: "I bought a bike"},
		{Role: "assistant", Content: "Nice!"},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.StoredCount)
	require.NotNil(t, res.Memories[0].Memory)
	assert.Equal(t, "n1", res.Memories[0].Memory.ID)
}

func TestLoginAndHealth(t *testing.T) {
	c := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			body := decodeBody(t, r)
			assert.Equal(t, "ada@example.com", body["email"])
			writeJSON(w, http.StatusOK, map[string]string{
				"user_id": "u1", "email": "ada@example.com",
				"access_token": "new-jwt", "refresh_token": "refresh",
			})
		case "/health":
			assert.Equal(t, http.MethodGet, r.Method)
			writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		default:
			http.NotFound(w, r)
		}
	})

	sess, err := c.Login(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "new-jwt", sess.AccessToken)

	status, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", status)
}

func TestLogin_Rejected(t *testing.T) {
	c := newFakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid credentials: bad password"})
	})
	_, err := c.Login(context.Background(), "ada@example.com", "nope")
	assert.True(t, IsAuth(err))
}
