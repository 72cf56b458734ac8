// Package vault is the memory view-model: a client-side collection of
// memories, the user's query state over it, and the actions that keep it
// in step with the backend.
package vault

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ajitpratap0/cortex-vault/internal/backend"
	"github.com/ajitpratap0/cortex-vault/internal/collection"
	"github.com/ajitpratap0/cortex-vault/internal/metrics"
	"github.com/ajitpratap0/cortex-vault/internal/models"
	"github.com/ajitpratap0/cortex-vault/internal/projection"
	"github.com/ajitpratap0/cortex-vault/internal/query"
)

// Backend is the part of the Cortex API the view depends on.
type Backend interface {
	ListMemories(ctx context.Context, creds models.Credentials) ([]models.Memory, error)
	SearchMemories(ctx context.Context, creds models.Credentials, query string, limit int) ([]models.RetrievedMemory, error)
	DeleteMemory(ctx context.Context, creds models.Credentials, id string) error
}

// DeletePolicy decides what happens to an optimistic removal when the
// backend delete fails.
type DeletePolicy string

const (
	// DeleteOptimistic keeps the record removed locally.
	DeleteOptimistic DeletePolicy = "optimistic"
	// DeleteRollback puts the record back where it was.
	DeleteRollback DeletePolicy = "rollback"
)

// Options configures a Vault.
type Options struct {
	Credentials  models.Credentials
	DeletePolicy DeletePolicy
	SearchLimit  int
	SortBy       query.SortKey
	Metrics      *metrics.Metrics // nil = a private, unexported registry
}

// Vault is safe for concurrent use. Collection mutations are serialised by
// the collection store; query mutations by the vault's own lock.
type Vault struct {
	backend Backend
	store   *collection.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	policy  DeletePolicy
	limit   int

	mu    sync.Mutex
	query *query.State
	creds models.Credentials
}

// New creates a Vault over b.
func New(b Backend, opts Options, logger *slog.Logger) *Vault {
	if opts.DeletePolicy == "" {
		opts.DeletePolicy = DeleteOptimistic
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = backend.DefaultSearchLimit
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	q := query.NewState()
	if opts.SortBy.IsValid() {
		q.SetSortBy(opts.SortBy)
	}
	return &Vault{
		backend: b,
		store:   collection.New(),
		metrics: opts.Metrics,
		logger:  logger,
		policy:  opts.DeletePolicy,
		limit:   opts.SearchLimit,
		query:   q,
		creds:   opts.Credentials,
	}
}

// SetCredentials replaces the provider keys sent with backend calls.
func (v *Vault) SetCredentials(creds models.Credentials) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.creds = creds
}

func (v *Vault) credentials() models.Credentials {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.creds
}

// --- backend actions ---

// Load fetches the full collection. On failure the display error is set and
// previously loaded records are kept. A response overtaken by a newer fetch
// is discarded.
func (v *Vault) Load(ctx context.Context) error {
	ticket := v.store.BeginFetch()
	v.metrics.FetchTotal.Inc()
	start := time.Now()

	records, err := v.backend.ListMemories(ctx, v.credentials())
	v.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	return v.settle(ticket, "load", records, err)
}

// RemoteSearch replaces the collection with the backend's search results
// and returns them, scores included. limit <= 0 uses the configured search
// limit. The results are returned even when a newer fetch has already
// replaced the collection; a failure is returned even when it is too stale
// to be shown.
func (v *Vault) RemoteSearch(ctx context.Context, text string, limit int) ([]models.RetrievedMemory, error) {
	if limit <= 0 {
		limit = v.limit
	}
	ticket := v.store.BeginFetch()
	v.metrics.FetchTotal.Inc()
	start := time.Now()

	results, err := v.backend.SearchMemories(ctx, v.credentials(), text, limit)
	v.metrics.FetchDuration.Observe(time.Since(start).Seconds())

	var records []models.Memory
	if err == nil {
		records = make([]models.Memory, len(results))
		for i := range results {
			records[i] = results[i].Memory
		}
	}
	if serr := v.settle(ticket, "search", records, err); serr != nil {
		return nil, serr
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (v *Vault) settle(ticket uint64, op string, records []models.Memory, err error) error {
	if err != nil {
		v.metrics.FetchErrors.WithLabelValues(ErrorKind(err)).Inc()
		if !v.store.FailIfCurrent(ticket, DisplayError(err)) {
			v.metrics.StaleDiscarded.Inc()
			v.logger.Debug("vault: discarded stale failure", "op", op, "ticket", ticket, "error", err)
			return nil
		}
		v.logger.Warn("vault: fetch failed", "op", op, "error", err)
		return err
	}
	if !v.store.ReplaceIfCurrent(ticket, records) {
		v.metrics.StaleDiscarded.Inc()
		v.logger.Debug("vault: discarded stale response", "op", op, "ticket", ticket, "count", len(records))
		return nil
	}
	v.logger.Debug("vault: collection replaced", "op", op, "ticket", ticket, "count", len(records))
	return nil
}

// Delete removes id from the collection before the backend answers, then
// asks the backend to delete it. If the backend fails, the error is shown;
// under DeleteRollback the record is also restored at its old position.
func (v *Vault) Delete(ctx context.Context, id string) error {
	v.metrics.DeleteTotal.Inc()
	removed, index, restorable := v.store.Remove(id)

	err := v.backend.DeleteMemory(ctx, v.credentials(), id)
	if err == nil {
		v.logger.Info("vault: memory deleted", "id", id)
		return nil
	}

	v.metrics.DeleteFailed.Inc()
	v.store.SetError(DisplayError(err))
	if v.policy == DeleteRollback && restorable {
		v.store.Restore(removed, index)
		v.metrics.RolledBack.Inc()
		v.logger.Warn("vault: delete failed, restored memory", "id", id, "error", err)
	} else {
		v.logger.Warn("vault: delete failed, memory stays removed locally", "id", id, "error", err)
	}
	return err
}

// --- collection state ---

// Records returns the full collection snapshot. Callers must not modify it.
func (v *Vault) Records() []models.Memory { return v.store.Records() }

// Loading reports whether a fetch is in flight.
func (v *Vault) Loading() bool { return v.store.Loading() }

// Err returns the display error, or "".
func (v *Vault) Err() string { return v.store.Err() }

// ClearError dismisses the display error.
func (v *Vault) ClearError() { v.store.ClearError() }

// --- query state ---

// SetSearch replaces the search text.
func (v *Vault) SetSearch(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.query.SetSearch(text)
}

// SetSortBy replaces the sort key.
func (v *Vault) SetSortBy(k query.SortKey) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.query.SetSortBy(k)
}

// ToggleType flips t in the type filter.
func (v *Vault) ToggleType(t models.MemoryType) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.query.ToggleType(t)
}

// SetTypes replaces the type filter.
func (v *Vault) SetTypes(types ...models.MemoryType) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.query.SetTypes(types...)
}

// ResetQuery restores the default query.
func (v *Vault) ResetQuery() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.query.Reset()
}

// QueryState describes the current query for display.
type QueryState struct {
	Search        string              `json:"search"`
	SelectedTypes []models.MemoryType `json:"selected_types"`
	SortBy        query.SortKey       `json:"sort_by"`
}

// Query returns the current query.
func (v *Vault) Query() QueryState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return QueryState{
		Search:        v.query.Search(),
		SelectedTypes: v.query.SelectedTypes(),
		SortBy:        v.query.SortBy(),
	}
}

// Snapshot returns an immutable copy of the current query.
func (v *Vault) Snapshot() query.Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.query.Snapshot()
}

// --- derived views ---

// Projection derives the display list from the current collection and query.
func (v *Vault) Projection() []*models.Memory {
	return v.ProjectWith(v.Snapshot())
}

// ProjectWith derives a display list for q without touching the held query.
func (v *Vault) ProjectWith(q query.Snapshot) []*models.Memory {
	v.metrics.Projections.Inc()
	return projection.Project(v.store.Records(), q)
}

// Summary computes the header figures over the whole collection.
func (v *Vault) Summary() projection.Summary {
	return projection.Summarize(v.store.Records())
}

// --- errors ---

// Display messages shown in place of the list.
const (
	MsgConfigureKeys = "Please configure your API keys in Settings to view memories."
	MsgLogin         = "Please log in to view memories."
	MsgNetwork       = "Could not reach the memory service."
	MsgRequestFailed = "Request failed"
)

// DisplayError maps a backend error to the message shown to the user.
func DisplayError(err error) string {
	var authErr *backend.AuthError
	var netErr *backend.NetworkError
	var srvErr *backend.ServerError
	switch {
	case errors.As(err, &authErr):
		if errors.Is(err, backend.ErrNotLoggedIn) {
			return MsgLogin
		}
		return MsgConfigureKeys
	case errors.As(err, &netErr):
		return MsgNetwork
	case errors.As(err, &srvErr):
		if srvErr.Detail != "" {
			return MsgRequestFailed + ": " + srvErr.Detail
		}
		return MsgRequestFailed
	default:
		return err.Error()
	}
}

// ErrorKind classifies err for metrics labels.
func ErrorKind(err error) string {
	var netErr *backend.NetworkError
	var srvErr *backend.ServerError
	switch {
	case errors.Is(err, backend.ErrAuth):
		return "auth"
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &srvErr):
		return "server"
	default:
		return "other"
	}
}
