// internal/common/scheduler/scheduler.go
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"crowd-monitor/internal/common/logger"
	"crowd-monitor/internal/common/metrics"
	"crowd-monitor/internal/models"

	"github.com/robfig/cron/v3"
)

// TickFunc runs one fetch-score-persist cycle for q.
type TickFunc func(ctx context.Context, q models.Query) error

// ExpiryFunc retires a query whose window has closed. It is expected to end
// up calling Unschedule for id.
type ExpiryFunc func(ctx context.Context, id string) error

// Options configures a Scheduler.
type Options struct {
	// TimeoutQueries makes each tick check the query's end date first and
	// hand the query to the expiry handler instead of fetching.
	TimeoutQueries bool
	// TickTimeout bounds a single tick. Zero leaves ticks unbounded.
	TickTimeout time.Duration
	// Location is the cron clock zone.
	Location *time.Location
	// Now overrides the clock used for expiry checks.
	Now func() time.Time
}

// gate serializes ticks for one query id. It survives Reschedule so a tick
// still running on the old timer blocks the first tick of the new one.
type gate struct {
	running atomic.Bool
}

type entry struct {
	cronID    cron.EntryID
	query     models.Query
	gate      *gate
	cancelled bool
}

// Scheduler owns one recurring timer per active query id.
type Scheduler struct {
	cron   *cron.Cron
	tick   TickFunc
	logger logger.Logger
	opts   Options

	mu       sync.Mutex
	entries  map[string]*entry
	onExpire ExpiryFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(tick TickFunc, log logger.Logger, opts Options) *Scheduler {
	log = log.WithFields(map[string]interface{}{"component": "scheduler"})
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(NewCronLogger(log)),
		),
		tick:    tick,
		logger:  log,
		opts:    opts,
		entries: make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetExpiryHandler wires the callback used when TimeoutQueries is on.
func (s *Scheduler) SetExpiryHandler(fn ExpiryFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = fn
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", map[string]interface{}{"queries": s.Len()})
}

// Stop cancels every timer and waits for in-flight ticks until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	s.logger.Info("stopping scheduler", nil)

	s.mu.Lock()
	for id, e := range s.entries {
		e.cancelled = true
		s.cron.Remove(e.cronID)
		delete(s.entries, id)
	}
	metrics.ScheduledQueries.Set(0)
	s.mu.Unlock()

	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("in-flight ticks still running at shutdown", nil)
	}
	s.cancel()
}

// Schedule starts a timer for q firing every q.Interval(), first fire one
// full interval from now. Scheduling an id that already has a timer
// replaces it, as Reschedule does. A query whose interval is not positive
// gets no timer; any previous timer for its id is cancelled.
func (s *Scheduler) Schedule(q models.Query) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduleLocked(q)
}

// Reschedule swaps the timer for q.ID in one step. The old timer gets no
// further ticks; a tick already running on it finishes with its own
// snapshot and keeps the id gated until then.
func (s *Scheduler) Reschedule(q models.Query) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduleLocked(q)
}

func (s *Scheduler) scheduleLocked(q models.Query) {
	g := &gate{}
	if old, ok := s.entries[q.ID]; ok {
		old.cancelled = true
		s.cron.Remove(old.cronID)
		delete(s.entries, q.ID)
		g = old.gate
	}

	interval := q.Interval()
	if interval <= 0 {
		metrics.ScheduledQueries.Set(float64(len(s.entries)))
		s.logger.Error("query not scheduled, interval out of range", map[string]interface{}{
			"queryId":   q.ID,
			"frequency": q.Frequency,
		})
		return
	}

	e := &entry{query: q, gate: g}
	e.cronID = s.cron.Schedule(every(interval), cron.FuncJob(func() { s.fire(e) }))
	s.entries[q.ID] = e
	metrics.ScheduledQueries.Set(float64(len(s.entries)))

	s.logger.Debug("query scheduled", map[string]interface{}{
		"queryId":  q.ID,
		"interval": interval.String(),
	})
}

// Unschedule cancels the timer for id. No tick starts after it returns; a
// tick already running is not interrupted. Unknown ids are ignored.
func (s *Scheduler) Unschedule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return
	}
	e.cancelled = true
	s.cron.Remove(e.cronID)
	delete(s.entries, id)
	metrics.ScheduledQueries.Set(float64(len(s.entries)))

	s.logger.Debug("query unscheduled", map[string]interface{}{"queryId": id})
}

// Scheduled reports whether id currently has a timer.
func (s *Scheduler) Scheduled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Trigger runs a tick for id right now, on the calling goroutine, subject
// to the same gate as timer fires. It returns false if id has no timer or
// a tick for it is already running.
func (s *Scheduler) Trigger(id string) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return s.fire(e)
}

// fire runs one tick for e unless e was cancelled or its gate is busy.
func (s *Scheduler) fire(e *entry) bool {
	s.mu.Lock()
	if e.cancelled {
		s.mu.Unlock()
		return false
	}
	if !e.gate.running.CompareAndSwap(false, true) {
		s.mu.Unlock()
		metrics.TicksSkipped.Inc()
		s.logger.Info("previous tick still running, skipping", map[string]interface{}{
			"queryId": e.query.ID,
		})
		return false
	}
	s.wg.Add(1)
	onExpire := s.onExpire
	s.mu.Unlock()

	defer s.wg.Done()
	defer e.gate.running.Store(false)

	q := e.query
	if s.opts.TimeoutQueries && q.Expired(s.opts.Now()) {
		s.expire(q, onExpire)
		return true
	}

	ctx := s.ctx
	if s.opts.TickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TickTimeout)
		defer cancel()
	}

	if err := s.tick(ctx, q); err != nil {
		s.logger.Error("tick failed", map[string]interface{}{
			"queryId": q.ID,
			"error":   err,
		})
	}
	return true
}

func (s *Scheduler) expire(q models.Query, onExpire ExpiryFunc) {
	s.logger.Info("query window closed, removing", map[string]interface{}{
		"queryId": q.ID,
		"endDate": q.EndDate.Format(time.RFC3339),
	})
	if onExpire == nil {
		s.Unschedule(q.ID)
		return
	}
	if err := onExpire(s.ctx, q.ID); err != nil {
		s.logger.Error("failed to remove expired query", map[string]interface{}{
			"queryId": q.ID,
			"error":   err,
		})
	}
}
