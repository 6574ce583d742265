package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crowd-monitor/internal/common/logger"
	"crowd-monitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Helpers
// ==========================

func testQuery(id string, interval time.Duration) models.Query {
	return models.Query{
		ID:        id,
		Name:      "query " + id,
		Location:  "43.65,-79.38,10km",
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2099, 1, 1, 23, 59, 59, 0, time.UTC),
		Keywords:  []string{"storm"},
		Frequency: interval.Minutes(),
		MaxTweets: 10,
		State:     models.QueryStateActive,
	}
}

type tickRecorder struct {
	mu      sync.Mutex
	calls   []models.Query
	release chan struct{}
	started chan struct{}
}

func newBlockingRecorder() *tickRecorder {
	return &tickRecorder{release: make(chan struct{}), started: make(chan struct{}, 8)}
}

func (r *tickRecorder) tick(ctx context.Context, q models.Query) error {
	r.mu.Lock()
	r.calls = append(r.calls, q)
	r.mu.Unlock()

	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.release != nil {
		<-r.release
	}
	return nil
}

func (r *tickRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// ==========================
// Tests
// ==========================

func TestIntervalSchedule_NoRounding(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(1500*time.Millisecond), every(1500*time.Millisecond).Next(base))
	assert.Equal(t, base.Add(time.Millisecond), every(time.Millisecond).Next(base))
}

func TestScheduler_RefusesIntervalOutOfRange(t *testing.T) {
	s := New(func(ctx context.Context, q models.Query) error { return nil }, logger.NewTestLogger(t), Options{})

	tests := []struct {
		name      string
		frequency float64
	}{
		{"overflowing frequency", 1e12},
		{"sub-millisecond frequency", 1e-12},
		{"zero frequency", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := testQuery("q1", time.Hour)
			s.Schedule(q)
			require.True(t, s.Scheduled("q1"))

			q.Frequency = tt.frequency
			s.Reschedule(q)
			assert.False(t, s.Scheduled("q1"), "no fallback timer for %v minutes", tt.frequency)
			assert.False(t, s.Trigger("q1"))
			assert.Equal(t, 0, s.Len())
		})
	}
}

func TestScheduler_FirstFireAfterOneInterval(t *testing.T) {
	var ticks atomic.Int32
	s := New(func(ctx context.Context, q models.Query) error {
		ticks.Add(1)
		return nil
	}, logger.NewTestLogger(t), Options{})

	s.Schedule(testQuery("q1", 300*time.Millisecond))
	s.Start()
	defer s.Stop(context.Background())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), ticks.Load(), "must not fire immediately")

	assert.Eventually(t, func() bool { return ticks.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)
}

func TestScheduler_SkipsOverlappingTick(t *testing.T) {
	rec := newBlockingRecorder()
	s := New(rec.tick, logger.NewTestLogger(t), Options{})
	s.Schedule(testQuery("q1", time.Hour))

	done := make(chan bool)
	go func() { done <- s.Trigger("q1") }()
	<-rec.started

	assert.False(t, s.Trigger("q1"), "second tick must be skipped while the first runs")

	close(rec.release)
	assert.True(t, <-done)
	assert.Equal(t, 1, rec.count())

	assert.True(t, s.Trigger("q1"), "gate reopens once the tick finishes")
	assert.Equal(t, 2, rec.count())
}

func TestScheduler_UnscheduleStopsFutureTicks(t *testing.T) {
	var ticks atomic.Int32
	s := New(func(ctx context.Context, q models.Query) error {
		ticks.Add(1)
		return nil
	}, logger.NewTestLogger(t), Options{})
	s.Start()
	defer s.Stop(context.Background())

	s.Schedule(testQuery("q1", 50*time.Millisecond))
	require.Eventually(t, func() bool { return ticks.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	s.Unschedule("q1")
	assert.False(t, s.Scheduled("q1"))
	assert.False(t, s.Trigger("q1"))

	after := ticks.Load()
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, after, ticks.Load())

	assert.NotPanics(t, func() { s.Unschedule("q1") })
}

func TestScheduler_RescheduleKeepsGateAndSwapsParameters(t *testing.T) {
	rec := newBlockingRecorder()
	s := New(rec.tick, logger.NewTestLogger(t), Options{})

	old := testQuery("q1", time.Hour)
	s.Schedule(old)

	done := make(chan bool)
	go func() { done <- s.Trigger("q1") }()
	<-rec.started

	updated := old
	updated.Keywords = []string{"hail"}
	s.Reschedule(updated)
	assert.Equal(t, 1, s.Len())

	assert.False(t, s.Trigger("q1"), "new timer must wait for the old in-flight tick")

	close(rec.release)
	<-done

	rec.release = nil
	assert.True(t, s.Trigger("q1"))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.calls, 2)
	assert.Equal(t, []string{"storm"}, rec.calls[0].Keywords)
	assert.Equal(t, []string{"hail"}, rec.calls[1].Keywords)
}

func TestScheduler_TickErrorKeepsSchedule(t *testing.T) {
	s := New(func(ctx context.Context, q models.Query) error {
		return errors.New("source down")
	}, logger.NewTestLogger(t), Options{})
	s.Schedule(testQuery("q1", time.Hour))

	assert.True(t, s.Trigger("q1"))
	assert.True(t, s.Scheduled("q1"))
}

func TestScheduler_TimeoutQueries(t *testing.T) {
	var ticks atomic.Int32
	s := New(func(ctx context.Context, q models.Query) error {
		ticks.Add(1)
		return nil
	}, logger.NewTestLogger(t), Options{
		TimeoutQueries: true,
		Now:            func() time.Time { return time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC) },
	})

	var expired []string
	s.SetExpiryHandler(func(ctx context.Context, id string) error {
		expired = append(expired, id)
		s.Unschedule(id)
		return nil
	})

	s.Schedule(testQuery("q1", time.Hour))
	assert.True(t, s.Trigger("q1"))

	assert.Equal(t, []string{"q1"}, expired)
	assert.Equal(t, int32(0), ticks.Load(), "expired queries are not fetched")
	assert.False(t, s.Scheduled("q1"))
}

func TestScheduler_TickTimeout(t *testing.T) {
	var deadline atomic.Bool
	s := New(func(ctx context.Context, q models.Query) error {
		_, ok := ctx.Deadline()
		deadline.Store(ok)
		return nil
	}, logger.NewTestLogger(t), Options{TickTimeout: time.Second})
	s.Schedule(testQuery("q1", time.Hour))

	require.True(t, s.Trigger("q1"))
	assert.True(t, deadline.Load())
}

func TestScheduler_StopClearsEntries(t *testing.T) {
	s := New(func(ctx context.Context, q models.Query) error { return nil }, logger.NewTestLogger(t), Options{})
	s.Schedule(testQuery("q1", time.Hour))
	s.Schedule(testQuery("q2", time.Hour))
	s.Schedule(testQuery("q2", time.Hour))
	assert.Equal(t, 2, s.Len())

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	assert.Equal(t, 0, s.Len())
}

func TestCronLogger_PairsToFields(t *testing.T) {
	fields := pairsToFields([]interface{}{"entry", 3, "next", "soon", "dangling"})
	assert.Equal(t, map[string]interface{}{"entry": 3, "next": "soon", "dangling": nil}, fields)

	l := NewCronLogger(logger.NewTestLogger(t))
	l.Info("wake", "now", time.Now())
	l.Error(errors.New("panic in job"), "job failed", "entry", 1)
}
