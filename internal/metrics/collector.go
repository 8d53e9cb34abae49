// Package metrics counts what the recorder did during a run: polls, fills,
// sheet writes, backups. Counters are process-local and reported through
// the structured log, not exposed over HTTP.
package metrics

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide collector.
var Collector = NewCollector()

type CollectorSet struct {
	startTime time.Time
	counters  sync.Map // name -> *Counter
}

func NewCollector() *CollectorSet {
	return &CollectorSet{startTime: time.Now()}
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Counter returns or creates a counter with the given name.
func (s *CollectorSet) Counter(name string) *Counter {
	if v, ok := s.counters.Load(name); ok {
		return v.(*Counter)
	}
	actual, _ := s.counters.LoadOrStore(name, &Counter{name: name})
	return actual.(*Counter)
}

// Uptime returns how long the collector has been running.
func (s *CollectorSet) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Snapshot returns all non-zero counters.
func (s *CollectorSet) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	s.counters.Range(func(key, value any) bool {
		if v := value.(*Counter).Value(); v > 0 {
			out[key.(string)] = v
		}
		return true
	})
	return out
}

// Log writes the run's counters as one structured log record.
func (s *CollectorSet) Log(logger *slog.Logger, msg string) {
	attrs := []any{slog.Int64("uptime_seconds", int64(s.Uptime().Seconds()))}
	for name, v := range s.Snapshot() {
		attrs = append(attrs, slog.Int64(name, v))
	}
	logger.Info(msg, attrs...)
}

// Counter names used across the recorder.
const (
	Polls           = "polls_total"
	PollErrors      = "poll_errors_total"
	MessagesHandled = "messages_handled_total"
	RepliesSent     = "replies_sent_total"
	FillsProcessed  = "fills_processed_total"
	SheetWrites     = "sheet_writes_total"
	BackupsCreated  = "backups_created_total"
	BackupFailures  = "backup_failures_total"
)
