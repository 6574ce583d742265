// internal/common/scheduler/schedule.go
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// intervalSchedule fires every d, measured from the previous activation.
// cron.Every rounds to whole seconds, which would break fractional-minute
// frequencies below one second.
type intervalSchedule struct {
	d time.Duration
}

// every expects d > 0; scheduleLocked refuses anything else.
func every(d time.Duration) cron.Schedule {
	return intervalSchedule{d: d}
}

func (s intervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.d)
}
