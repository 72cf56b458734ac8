package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cortex-vault/internal/backend"
	"github.com/ajitpratap0/cortex-vault/internal/metrics"
	"github.com/ajitpratap0/cortex-vault/internal/models"
	"github.com/ajitpratap0/cortex-vault/internal/query"
	"github.com/ajitpratap0/cortex-vault/internal/vault"
)

type stubBackend struct {
	records   []models.Memory
	listErr   error
	deleteErr error
	searched  string
}

func (b *stubBackend) ListMemories(context.Context, models.Credentials) ([]models.Memory, error) {
	return b.records, b.listErr
}

func (b *stubBackend) SearchMemories(_ context.Context, _ models.Credentials, q string, _ int) ([]models.RetrievedMemory, error) {
	b.searched = q
	out := make([]models.RetrievedMemory, 0, 1)
	if len(b.records) > 0 {
		out = append(out, models.RetrievedMemory{Memory: b.records[0]})
	}
	return out, nil
}

func (b *stubBackend) DeleteMemory(context.Context, models.Credentials, string) error {
	return b.deleteErr
}

func sample() []models.Memory {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	return []models.Memory{
		{ID: "1", Text: "Lives in Berlin", Type: models.MemoryTypeFact, Confidence: 0.9,
			CreatedAt: jan, UpdatedAt: jan, AccessCount: 2, Status: models.StatusActive, Entities: []string{}},
		{ID: "2", Text: "Prefers dark mode", Type: models.MemoryTypePreference, Confidence: 0.6,
			CreatedAt: feb, UpdatedAt: feb, AccessCount: 9, Status: models.StatusActive, Entities: []string{}},
	}
}

func newTestServer(t *testing.T, b *stubBackend, opts Options) (*httptest.Server, *vault.Vault) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	v := vault.New(b, vault.Options{Metrics: m}, logger)
	if b.listErr == nil {
		require.NoError(t, v.Load(context.Background()))
	}
	ts := httptest.NewServer(NewServer(v, m, logger, opts).Handler())
	t.Cleanup(ts.Close)
	return ts, v
}

func do(t *testing.T, method, url, body, token string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func memoryIDs(list []*models.Memory) []string {
	out := make([]string, len(list))
	for i, m := range list {
		out[i] = m.ID
	}
	return out
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, &stubBackend{}, Options{AuthToken: "secret"})
	resp := do(t, http.MethodGet, ts.URL+"/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
}

func TestRequestID_Propagated(t *testing.T) {
	ts, _ := newTestServer(t, &stubBackend{}, Options{})
	id := "6f1c7d3e-2b1a-4c5e-9f0a-1b2c3d4e5f60"
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, id)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, id, resp.Header.Get(RequestIDHeader))
}

func TestAuth(t *testing.T) {
	ts, _ := newTestServer(t, &stubBackend{records: sample()}, Options{AuthToken: "secret"})

	assert.Equal(t, http.StatusUnauthorized, do(t, http.MethodGet, ts.URL+"/v1/memories", "", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, do(t, http.MethodGet, ts.URL+"/v1/memories", "", "wrong").StatusCode)
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/v1/memories", "", "secret").StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, &stubBackend{records: sample()}, Options{AuthToken: "secret"})
	resp := do(t, http.MethodGet, ts.URL+"/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "cortex_vault_fetch_total 1")
}

func TestListMemories_HeldQuery(t *testing.T) {
	ts, v := newTestServer(t, &stubBackend{records: sample()}, Options{})

	got := decode[listResponse](t, do(t, http.MethodGet, ts.URL+"/v1/memories", "", ""))
	assert.Equal(t, []string{"2", "1"}, memoryIDs(got.Memories))
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, 2, got.Total)

	v.SetSortBy(query.SortByConfidence)
	got = decode[listResponse](t, do(t, http.MethodGet, ts.URL+"/v1/memories", "", ""))
	assert.Equal(t, []string{"1", "2"}, memoryIDs(got.Memories))
}

func TestListMemories_Overrides(t *testing.T) {
	ts, v := newTestServer(t, &stubBackend{records: sample()}, Options{})

	got := decode[listResponse](t, do(t, http.MethodGet, ts.URL+"/v1/memories?type=preference&type=fact&sort=access&search=dark", "", ""))
	assert.Equal(t, []string{"2"}, memoryIDs(got.Memories))
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, query.SortByAccess, got.Query.SortBy)

	// The held query is untouched.
	assert.Equal(t, query.SortByDate, v.Query().SortBy)
	assert.Empty(t, v.Query().Search)
}

func TestListMemories_BadParams(t *testing.T) {
	ts, _ := newTestServer(t, &stubBackend{records: sample()}, Options{})
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, ts.URL+"/v1/memories?type=bogus", "", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, ts.URL+"/v1/memories?sort=similarity", "", "").StatusCode)
}

func TestRefresh(t *testing.T) {
	b := &stubBackend{records: sample()}
	ts, v := newTestServer(t, b, Options{})

	resp := do(t, http.MethodPost, ts.URL+"/v1/memories/refresh", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, decode[refreshResponse](t, resp).Total)

	resp = do(t, http.MethodPost, ts.URL+"/v1/memories/refresh", `{"query":"berlin"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "berlin", b.searched)
	assert.Len(t, v.Records(), 1)
}

func TestRefresh_BackendErrors(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
		msg    string
	}{
		"auth":    {&backend.AuthError{Reason: "bad key"}, http.StatusForbidden, vault.MsgConfigureKeys},
		"network": {&backend.NetworkError{Op: "list memories", Err: errors.New("refused")}, http.StatusBadGateway, vault.MsgNetwork},
		"server":  {&backend.ServerError{Op: "list memories", StatusCode: 500}, http.StatusBadGateway, vault.MsgRequestFailed},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ts, v := newTestServer(t, &stubBackend{listErr: tc.err}, Options{})
			resp := do(t, http.MethodPost, ts.URL+"/v1/memories/refresh", "", "")
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.msg, decode[map[string]string](t, resp)["error"])
			assert.Equal(t, tc.msg, v.Err())
		})
	}
}

func TestRefresh_InvalidBody(t *testing.T) {
	ts, _ := newTestServer(t, &stubBackend{}, Options{})
	resp := do(t, http.MethodPost, ts.URL+"/v1/memories/refresh", `{not json`, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteMemory(t *testing.T) {
	ts, v := newTestServer(t, &stubBackend{records: sample()}, Options{})
	resp := do(t, http.MethodDelete, ts.URL+"/v1/memories/1", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, v.Records(), 1)
}

func TestDeleteMemory_NotFound(t *testing.T) {
	b := &stubBackend{records: sample(), deleteErr: &backend.ServerError{Op: "delete memory", StatusCode: 404, Detail: "Memory not found"}}
	ts, _ := newTestServer(t, b, Options{})
	resp := do(t, http.MethodDelete, ts.URL+"/v1/memories/1", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Request failed: Memory not found", decode[map[string]string](t, resp)["error"])
}

func TestQueryEndpoints(t *testing.T) {
	ts, v := newTestServer(t, &stubBackend{records: sample()}, Options{})

	got := decode[vault.QueryState](t, do(t, http.MethodPatch, ts.URL+"/v1/query",
		`{"search":"berlin","types":["fact"],"sort_by":"confidence"}`, ""))
	assert.Equal(t, "berlin", got.Search)
	assert.Equal(t, []models.MemoryType{models.MemoryTypeFact}, got.SelectedTypes)
	assert.Equal(t, query.SortByConfidence, got.SortBy)
	assert.Equal(t, []string{"1"}, memoryIDs(v.Projection()))

	got = decode[vault.QueryState](t, do(t, http.MethodPost, ts.URL+"/v1/query/types/preference", "", ""))
	assert.Equal(t, []models.MemoryType{models.MemoryTypeFact, models.MemoryTypePreference}, got.SelectedTypes)

	got = decode[vault.QueryState](t, do(t, http.MethodPatch, ts.URL+"/v1/query", `{"reset":true}`, ""))
	assert.Equal(t, vault.QueryState{SelectedTypes: []models.MemoryType{}, SortBy: query.SortByDate}, got)

	got = decode[vault.QueryState](t, do(t, http.MethodGet, ts.URL+"/v1/query", "", ""))
	assert.Equal(t, query.SortByDate, got.SortBy)
}

func TestPatchQuery_InvalidLeavesStateUnchanged(t *testing.T) {
	ts, v := newTestServer(t, &stubBackend{records: sample()}, Options{})
	resp := do(t, http.MethodPatch, ts.URL+"/v1/query", `{"search":"x","sort_by":"nope"}`, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, v.Query().Search)

	resp = do(t, http.MethodPost, ts.URL+"/v1/query/types/bogus", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSummary(t *testing.T) {
	ts, _ := newTestServer(t, &stubBackend{records: sample()}, Options{})
	resp := do(t, http.MethodGet, ts.URL+"/v1/summary", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got struct {
		Total             int            `json:"total"`
		AverageConfidence float64        `json:"average_confidence"`
		ByType            map[string]int `json:"by_type"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, 2, got.Total)
	assert.InDelta(t, 0.75, got.AverageConfidence, 1e-9)
	assert.Equal(t, 1, got.ByType["fact"])
}

func TestCORS_Preflight(t *testing.T) {
	ts, _ := newTestServer(t, &stubBackend{}, Options{CORSOrigins: []string{"http://localhost:3000"}})
	req, err := http.NewRequestWithContext(context.Background(), http.MethodOptions, ts.URL+"/v1/memories", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}
