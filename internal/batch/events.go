package batch

import (
	"context"
	"time"

	"github.com/conneroisu/casefiler/internal/logging"
)

// EventType names a processor event.
type EventType string

const (
	EventJobStarted     EventType = "job_started"
	EventJobProgress    EventType = "job_progress"
	EventJobCompleted   EventType = "job_completed"
	EventJobFailed      EventType = "job_failed"
	EventQueueProgress  EventType = "queue_progress"
	EventBatchCompleted EventType = "batch_completed"
)

// Event reports processor progress.
type Event struct {
	Type      EventType `json:"type"`
	Time      time.Time `json:"time"`
	JobID     string    `json:"job_id,omitempty"`
	JobName   string    `json:"job_name,omitempty"`
	Message   string    `json:"message,omitempty"`
	Done      int       `json:"done"`
	Total     int       `json:"total"`
	Percent   float64   `json:"percent"`
	Error     string    `json:"error,omitempty"`
	Succeeded int       `json:"succeeded,omitempty"`
	Failed    int       `json:"failed,omitempty"`
}

// EventSink receives processor events. Publish must not block for long; the
// processor calls sinks inline.
type EventSink interface {
	Publish(ctx context.Context, e Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, e Event)

func (f SinkFunc) Publish(ctx context.Context, e Event) { f(ctx, e) }

// LogSink writes events to a logger.
type LogSink struct {
	Logger logging.Logger
}

func (s LogSink) Publish(ctx context.Context, e Event) {
	fields := []interface{}{"event", string(e.Type)}
	if e.JobID != "" {
		fields = append(fields, "job_id", e.JobID, "job_name", e.JobName)
	}
	if e.Total > 0 {
		fields = append(fields, "done", e.Done, "total", e.Total)
	}

	switch e.Type {
	case EventJobFailed:
		s.Logger.Warn(ctx, nil, "job failed", append(fields, "error", e.Error)...)
	case EventJobProgress:
		s.Logger.Debug(ctx, "job progress", append(fields, "current", e.Message)...)
	default:
		msg := e.Message
		if msg == "" {
			msg = string(e.Type)
		}
		s.Logger.Info(ctx, msg, fields...)
	}
}

func percent(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) * 100 / float64(total)
}
