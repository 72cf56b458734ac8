package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/ajitpratap0/cortex-vault/internal/backend"
	"github.com/ajitpratap0/cortex-vault/internal/metrics"
	"github.com/ajitpratap0/cortex-vault/internal/models"
	"github.com/ajitpratap0/cortex-vault/internal/query"
	"github.com/ajitpratap0/cortex-vault/internal/vault"
)

// RequestIDHeader carries the per-request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Options configures a Server.
type Options struct {
	AuthToken   string   // empty = no auth required
	CORSOrigins []string // empty = CORS disabled
}

// Server is an HTTP API over a memory view.
type Server struct {
	vault   *vault.Vault
	metrics *metrics.Metrics
	logger  *slog.Logger
	opts    Options
}

// NewServer creates a new Server with the given dependencies.
func NewServer(v *vault.Vault, m *metrics.Metrics, logger *slog.Logger, opts Options) *Server {
	return &Server{
		vault:   v,
		metrics: m,
		logger:  logger,
		opts:    opts,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	if len(s.opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Origin", "Content-Type", "Authorization", RequestIDHeader},
			ExposedHeaders: []string{RequestIDHeader},
			MaxAge:         300,
		}))
	}

	// Unauthenticated.
	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/v1/memories", s.handleListMemories)
		r.Post("/v1/memories/refresh", s.handleRefresh)
		r.Delete("/v1/memories/{id}", s.handleDeleteMemory)
		r.Get("/v1/query", s.handleGetQuery)
		r.Patch("/v1/query", s.handlePatchQuery)
		r.Post("/v1/query/types/{type}", s.handleToggleType)
		r.Get("/v1/summary", s.handleSummary)
	})

	return r
}

// --- middleware ---

type ctxKey struct{}

// requestID propagates the caller's X-Request-ID or assigns a fresh one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// RequestIDFrom returns the request id stored by the server, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", RequestIDFrom(r.Context()),
		)
	})
}

// auth wraps a handler with Bearer token authentication when AuthToken is set.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AuthToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.AuthToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listResponse is returned by GET /v1/memories.
type listResponse struct {
	Memories []*models.Memory `json:"memories"`
	Count    int              `json:"count"`
	Total    int              `json:"total"`
	Loading  bool             `json:"loading"`
	Error    string           `json:"error,omitempty"`
	Query    vault.QueryState `json:"query"`
}

// handleListMemories serves the projection of the held state. The search,
// type and sort parameters override the held query for this request only.
func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	held := s.vault.Query()
	params := r.URL.Query()

	search := held.Search
	if params.Has("search") {
		search = params.Get("search")
	}
	types := held.SelectedTypes
	if params.Has("type") {
		types = []models.MemoryType{}
		for _, raw := range params["type"] {
			if raw == "" {
				continue
			}
			mt, err := models.ParseMemoryType(raw)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			types = append(types, mt)
		}
	}
	sortBy := held.SortBy
	if params.Has("sort") {
		k, err := query.ParseSortKey(params.Get("sort"))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sortBy = k
	}

	list := s.vault.ProjectWith(query.NewSnapshot(search, types, sortBy))
	s.writeJSON(w, http.StatusOK, listResponse{
		Memories: list,
		Count:    len(list),
		Total:    len(s.vault.Records()),
		Loading:  s.vault.Loading(),
		Error:    s.vault.Err(),
		Query:    vault.QueryState{Search: search, SelectedTypes: types, SortBy: sortBy},
	})
}

// refreshRequest is the optional body accepted by POST /v1/memories/refresh.
type refreshRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// refreshResponse is returned by POST /v1/memories/refresh.
type refreshResponse struct {
	Total int `json:"total"`
}

// handleRefresh reloads the collection, or replaces it with remote search
// results when a query is given.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength != 0 {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	var err error
	if q := strings.TrimSpace(req.Query); q != "" {
		_, err = s.vault.RemoteSearch(r.Context(), q, req.Limit)
	} else {
		err = s.vault.Load(r.Context())
	}
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, refreshResponse{Total: len(s.vault.Records())})
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := s.vault.Delete(r.Context(), id); err != nil {
		s.logger.Error("failed to delete memory", "id", id, "error", err)
		s.writeBackendError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleGetQuery(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.vault.Query())
}

// patchQueryRequest is the body accepted by PATCH /v1/query. Absent fields
// are left unchanged; Reset is applied first.
type patchQueryRequest struct {
	Reset  bool      `json:"reset"`
	Search *string   `json:"search"`
	Types  *[]string `json:"types"`
	SortBy *string   `json:"sort_by"`
}

func (s *Server) handlePatchQuery(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req patchQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Validate everything before touching the held query.
	var sortBy query.SortKey
	if req.SortBy != nil {
		k, err := query.ParseSortKey(*req.SortBy)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sortBy = k
	}
	var types []models.MemoryType
	if req.Types != nil {
		types = make([]models.MemoryType, 0, len(*req.Types))
		for _, raw := range *req.Types {
			mt, err := models.ParseMemoryType(raw)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			types = append(types, mt)
		}
	}

	if req.Reset {
		s.vault.ResetQuery()
	}
	if req.Search != nil {
		s.vault.SetSearch(*req.Search)
	}
	if req.Types != nil {
		s.vault.SetTypes(types...)
	}
	if req.SortBy != nil {
		s.vault.SetSortBy(sortBy)
	}

	s.writeJSON(w, http.StatusOK, s.vault.Query())
}

func (s *Server) handleToggleType(w http.ResponseWriter, r *http.Request) {
	mt, err := models.ParseMemoryType(chi.URLParam(r, "type"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.vault.ToggleType(mt)
	s.writeJSON(w, http.StatusOK, s.vault.Query())
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.vault.Summary())
}

// --- helpers ---

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeBackendError maps a Cortex API failure to a status and the message
// the view would display.
func (s *Server) writeBackendError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, backend.ErrAuth):
		status = http.StatusForbidden
	case errors.Is(err, backend.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	s.writeError(w, status, vault.DisplayError(err))
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
// This is a convenience helper used by the serve command.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
