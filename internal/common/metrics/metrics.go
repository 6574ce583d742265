// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crowd_monitor_ticks_completed_total",
			Help: "Total number of pipeline ticks that persisted their batch",
		},
		[]string{"task_type"},
	)

	TicksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crowd_monitor_ticks_failed_total",
			Help: "Total number of pipeline ticks that ended in an error",
		},
		[]string{"task_type", "error_code"},
	)

	TicksSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crowd_monitor_ticks_skipped_total",
			Help: "Timer fires dropped because the previous tick for the query was still running",
		},
	)

	TickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "crowd_monitor_tick_duration_seconds",
			Help: "Duration of one fetch-score-persist tick in seconds",
		},
		[]string{"task_type"},
	)

	TicksActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crowd_monitor_ticks_active",
			Help: "Number of ticks currently running",
		},
		[]string{"task_type"},
	)

	PostsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crowd_monitor_posts_persisted_total",
			Help: "Scored posts written to the store",
		},
	)

	PostsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crowd_monitor_posts_dropped_total",
			Help: "Raw posts discarded before scoring",
		},
		[]string{"reason"},
	)

	ScheduledQueries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crowd_monitor_scheduled_queries",
			Help: "Number of queries with a live timer",
		},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crowd_monitor_cache_lookups_total",
			Help: "Top-post cache lookups by result",
		},
		[]string{"result"},
	)
)
