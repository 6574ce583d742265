// internal/registry/registry.go
package registry

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	apperrors "crowd-monitor/internal/common/errors"
	"crowd-monitor/internal/common/logger"
	"crowd-monitor/internal/common/validation"
	"crowd-monitor/internal/models"
	querystore "crowd-monitor/internal/workers/data-access/query-store"
)

const (
	kindQuery         = "query"
	kindArchivedQuery = "archived query"
)

// Scheduler is the part of scheduler.Scheduler the registry drives.
type Scheduler interface {
	Schedule(q models.Query)
	Reschedule(q models.Query)
	Unschedule(id string)
}

// Notifier receives lifecycle events after a mutation has been applied.
type Notifier interface {
	Notify(ctx context.Context, evt models.LifecycleEvent) error
}

// Registry is the in-memory authority over active and archived queries.
// Mutations are serialized by writeMu and reach memory only after the store
// accepted them; reads take mu shared.
type Registry struct {
	store    querystore.Store
	sched    Scheduler
	notifier Notifier
	location *time.Location
	logger   logger.Logger
	now      func() time.Time

	writeMu  sync.Mutex
	mu       sync.RWMutex
	active   map[string]models.Query
	archived map[string]models.ArchivedQuery
}

func New(store querystore.Store, sched Scheduler, notifier Notifier, location *time.Location, log logger.Logger) *Registry {
	if location == nil {
		location = time.UTC
	}
	return &Registry{
		store:    store,
		sched:    sched,
		notifier: notifier,
		location: location,
		logger:   log.WithFields(map[string]interface{}{"component": "registry"}),
		now:      time.Now,
		active:   make(map[string]models.Query),
		archived: make(map[string]models.ArchivedQuery),
	}
}

// Load reads both collections from the store and schedules every active
// query. The caller treats a failure as fatal.
func (r *Registry) Load(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	active, err := r.store.ListQueries(ctx)
	if err != nil {
		return fmt.Errorf("load active queries: %w", err)
	}
	archived, err := r.store.ListArchivedQueries(ctx)
	if err != nil {
		return fmt.Errorf("load archived queries: %w", err)
	}

	r.mu.Lock()
	r.active = make(map[string]models.Query, len(active))
	for _, q := range active {
		q.State = models.QueryStateActive
		r.active[q.ID] = q
	}
	r.archived = make(map[string]models.ArchivedQuery, len(archived))
	for _, aq := range archived {
		aq.State = models.QueryStateArchived
		r.archived[aq.ID] = aq
	}
	for _, q := range r.active {
		r.sched.Schedule(q)
	}
	r.mu.Unlock()

	r.logger.Info("registry loaded", map[string]interface{}{
		"active":   len(active),
		"archived": len(archived),
	})
	return nil
}

// Create validates d, persists it and starts its schedule.
func (r *Registry) Create(ctx context.Context, d models.QueryDraft) (models.Query, error) {
	q, err := validation.ValidateQueryDraft(d, r.location)
	if err != nil {
		return models.Query{}, err
	}

	r.writeMu.Lock()
	created, err := r.store.InsertQuery(ctx, q)
	if err != nil {
		r.writeMu.Unlock()
		return models.Query{}, err
	}
	created.State = models.QueryStateActive

	r.mu.Lock()
	r.active[created.ID] = created
	r.sched.Schedule(created)
	r.mu.Unlock()
	r.writeMu.Unlock()

	r.logger.Info("query created", map[string]interface{}{"queryId": created.ID, "name": created.Name})
	r.notify(ctx, models.EventQueryCreated, created.ID, created.Name, nil)
	return created, nil
}

// Update replaces the parameters of an active query. Identical parameters
// are a successful no-op that leaves the running schedule alone.
func (r *Registry) Update(ctx context.Context, id string, d models.QueryDraft) (models.Query, error) {
	q, err := validation.ValidateQueryDraft(d, r.location)
	if err != nil {
		return models.Query{}, err
	}

	r.writeMu.Lock()
	current, ok := r.LookupActive(id)
	if !ok {
		r.writeMu.Unlock()
		return models.Query{}, apperrors.NewNotFoundError(kindQuery, id)
	}
	if current.SameParameters(q) {
		r.writeMu.Unlock()
		r.logger.Debug("update is a no-op", map[string]interface{}{"queryId": id})
		return current, nil
	}

	q.ID = id
	q.State = models.QueryStateActive
	if err := r.store.UpdateQuery(ctx, q); err != nil {
		r.writeMu.Unlock()
		return models.Query{}, err
	}

	r.mu.Lock()
	r.active[id] = q
	r.sched.Reschedule(q)
	r.mu.Unlock()
	r.writeMu.Unlock()

	r.logger.Info("query updated", map[string]interface{}{"queryId": id})
	r.notify(ctx, models.EventQueryUpdated, id, q.Name, nil)
	return q, nil
}

// Archive retires an active query. The archived copy starts private.
func (r *Registry) Archive(ctx context.Context, id string) (models.ArchivedQuery, error) {
	r.writeMu.Lock()
	if _, ok := r.LookupActive(id); !ok {
		r.writeMu.Unlock()
		return models.ArchivedQuery{}, apperrors.NewNotFoundError(kindQuery, id)
	}

	aq, err := r.store.ArchiveQuery(ctx, id, r.now())
	if err != nil {
		r.writeMu.Unlock()
		return models.ArchivedQuery{}, err
	}
	aq.State = models.QueryStateArchived
	aq.IsPublic = false

	r.mu.Lock()
	r.sched.Unschedule(id)
	delete(r.active, id)
	r.archived[id] = aq
	r.mu.Unlock()
	r.writeMu.Unlock()

	r.logger.Info("query archived", map[string]interface{}{"queryId": id})
	r.notify(ctx, models.EventQueryArchived, id, aq.Name, nil)
	return aq, nil
}

// Remove deletes an active query and stops its schedule. Its scored posts
// stay in the store.
func (r *Registry) Remove(ctx context.Context, id string) error {
	return r.remove(ctx, id, models.EventQueryRemoved)
}

// RemoveExpired is the scheduler's expiry hook. A query that is already gone
// is not an error.
func (r *Registry) RemoveExpired(ctx context.Context, id string) error {
	err := r.remove(ctx, id, models.EventQueryExpired)
	if apperrors.IsNotFound(err) {
		return nil
	}
	return err
}

func (r *Registry) remove(ctx context.Context, id, event string) error {
	r.writeMu.Lock()
	q, ok := r.LookupActive(id)
	if !ok {
		r.writeMu.Unlock()
		return apperrors.NewNotFoundError(kindQuery, id)
	}
	if err := r.store.DeleteQuery(ctx, id); err != nil {
		r.writeMu.Unlock()
		return err
	}

	r.mu.Lock()
	r.sched.Unschedule(id)
	delete(r.active, id)
	r.mu.Unlock()
	r.writeMu.Unlock()

	r.logger.Info("query removed", map[string]interface{}{"queryId": id, "reason": event})
	r.notify(ctx, event, id, q.Name, nil)
	return nil
}

// RemoveArchived permanently deletes an archived query.
func (r *Registry) RemoveArchived(ctx context.Context, id string) error {
	r.writeMu.Lock()
	aq, ok := r.LookupArchived(id)
	if !ok {
		r.writeMu.Unlock()
		return apperrors.NewNotFoundError(kindArchivedQuery, id)
	}
	if err := r.store.DeleteArchivedQuery(ctx, id); err != nil {
		r.writeMu.Unlock()
		return err
	}

	r.mu.Lock()
	delete(r.archived, id)
	r.mu.Unlock()
	r.writeMu.Unlock()

	r.logger.Info("archived query removed", map[string]interface{}{"queryId": id})
	r.notify(ctx, models.EventArchivedQueryRemoved, id, aq.Name, nil)
	return nil
}

// SetPublic changes the visibility of an archived query.
func (r *Registry) SetPublic(ctx context.Context, id string, public bool) (models.ArchivedQuery, error) {
	r.writeMu.Lock()
	aq, ok := r.LookupArchived(id)
	if !ok {
		r.writeMu.Unlock()
		return models.ArchivedQuery{}, apperrors.NewNotFoundError(kindArchivedQuery, id)
	}

	aq.IsPublic = public
	if err := r.store.UpdateArchivedQuery(ctx, aq); err != nil {
		r.writeMu.Unlock()
		return models.ArchivedQuery{}, err
	}

	r.mu.Lock()
	r.archived[id] = aq
	r.mu.Unlock()
	r.writeMu.Unlock()

	r.logger.Info("archived query visibility changed", map[string]interface{}{"queryId": id, "isPublic": public})
	r.notify(ctx, models.EventQueryVisibilityChanged, id, aq.Name, &public)
	return aq, nil
}

func (r *Registry) LookupActive(id string) (models.Query, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.active[id]
	return q, ok
}

func (r *Registry) LookupArchived(id string) (models.ArchivedQuery, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	aq, ok := r.archived[id]
	return aq, ok
}

// ListActive returns active queries sorted by name, then id.
func (r *Registry) ListActive() []models.Query {
	r.mu.RLock()
	out := make([]models.Query, 0, len(r.active))
	for _, q := range r.active {
		out = append(out, q)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.Query) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// ListArchived returns archived queries sorted by name, then id.
func (r *Registry) ListArchived() []models.ArchivedQuery {
	return r.archivedWhere(func(models.ArchivedQuery) bool { return true })
}

// ListPublicArchived returns public archived queries sorted by name, then id.
func (r *Registry) ListPublicArchived() []models.ArchivedQuery {
	return r.archivedWhere(func(aq models.ArchivedQuery) bool { return aq.IsPublic })
}

func (r *Registry) archivedWhere(keep func(models.ArchivedQuery) bool) []models.ArchivedQuery {
	r.mu.RLock()
	out := make([]models.ArchivedQuery, 0, len(r.archived))
	for _, aq := range r.archived {
		if keep(aq) {
			out = append(out, aq)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.ArchivedQuery) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func (r *Registry) notify(ctx context.Context, eventType, id, name string, public *bool) {
	if r.notifier == nil {
		return
	}
	evt := models.LifecycleEvent{
		Type:       eventType,
		QueryID:    id,
		QueryName:  name,
		IsPublic:   public,
		OccurredAt: r.now().UTC(),
	}
	if err := r.notifier.Notify(ctx, evt); err != nil {
		r.logger.Warn("lifecycle notification failed", map[string]interface{}{
			"queryId":   id,
			"eventType": eventType,
			"error":     err.Error(),
		})
	}
}
