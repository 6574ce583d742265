// internal/common/scheduler/logger.go
package scheduler

import (
	"fmt"

	"crowd-monitor/internal/common/logger"

	"github.com/robfig/cron/v3"
)

type cronLogger struct {
	log logger.Logger
}

// NewCronLogger routes cron's internal logging through log. Info is demoted
// to debug since cron logs every wake-up.
func NewCronLogger(log logger.Logger) cron.Logger {
	return cronLogger{log: log.WithFields(map[string]interface{}{"engine": "cron"})}
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(msg, pairsToFields(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := pairsToFields(keysAndValues)
	fields["error"] = err
	c.log.Error(msg, fields)
}

// pairsToFields turns cron's alternating key/value list into a field map.
// A trailing key without a value is kept with a nil value.
func pairsToFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2+1)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 < len(kv) {
			fields[key] = kv[i+1]
		} else {
			fields[key] = nil
		}
	}
	return fields
}
