package session

import (
	"context"
	"time"
)

// MetricsRecorder captures per-operation timings and outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Event is one journaled session operation.
type Event struct {
	SessionID string
	Op        string
	Detail    string
	Err       string
	Duration  time.Duration
	At        time.Time
}

// Journal persists session events.
type Journal interface {
	Record(ctx context.Context, ev Event) error
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// journaled lists the operations written to the journal. Reads such as
// entity accessors and option lookups are not recorded.
var journaled = map[string]bool{
	"open":       true,
	"close":      true,
	"eval":       true,
	"read":       true,
	"read_data":  true,
	"reset":      true,
	"solve":      true,
	"display":    true,
	"set_option": true,
	"set_data":   true,
	"cd":         true,
}

const maxDetail = 256

func truncate(s string) string {
	if len(s) <= maxDetail {
		return s
	}
	return s[:maxDetail] + "..."
}
