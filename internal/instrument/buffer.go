package instrument

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink receives flushed event batches.
type Sink interface {
	WriteEvents(events []Event)
}

type SinkFunc func(events []Event)

func (f SinkFunc) WriteEvents(events []Event) { f(events) }

// LogSink writes each event as one structured log line at debug level.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) WriteEvents(events []Event) {
	for _, e := range events {
		s.Logger.Debug("span",
			zap.String("trace_id", e.TraceID),
			zap.String("span_id", e.SpanID),
			zap.String("parent_span_id", e.ParentSpanID),
			zap.String("event_type", e.EventType),
			zap.String("source", e.Source),
			zap.String("component", e.Component),
			zap.String("action", e.Action),
			zap.String("entity", e.Entity),
			zap.String("record_id", e.RecordID),
			zap.String("user_id", e.UserID),
			zap.Float64("duration_ms", e.DurationMs),
			zap.String("status", e.Status),
			zap.Any("metadata", e.Metadata),
		)
	}
}

// EventBuffer collects events in memory and hands them to its sink in
// batches, on a timer or when full.
type EventBuffer struct {
	mu      sync.Mutex
	events  []Event
	sink    Sink
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
	stop    sync.Once
}

// NewEventBuffer starts a buffer flushing every interval. A zero interval
// flushes only when the buffer is full or on Stop.
func NewEventBuffer(sink Sink, maxSize int, interval time.Duration) *EventBuffer {
	if maxSize <= 0 {
		maxSize = 100
	}
	eb := &EventBuffer{
		sink:    sink,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	if interval > 0 {
		eb.ticker = time.NewTicker(interval)
		go eb.run()
	}
	return eb
}

func (eb *EventBuffer) run() {
	for {
		select {
		case <-eb.done:
			return
		case <-eb.ticker.C:
			eb.Flush()
		}
	}
}

// Enqueue adds an event, flushing synchronously once maxSize is reached.
func (eb *EventBuffer) Enqueue(event Event) {
	eb.mu.Lock()
	eb.events = append(eb.events, event)
	full := len(eb.events) >= eb.maxSize
	eb.mu.Unlock()
	if full {
		eb.Flush()
	}
}

func (eb *EventBuffer) Flush() {
	eb.mu.Lock()
	if len(eb.events) == 0 {
		eb.mu.Unlock()
		return
	}
	batch := eb.events
	eb.events = nil
	eb.mu.Unlock()
	eb.sink.WriteEvents(batch)
}

// Stop halts the ticker and flushes what is left. It is safe to call twice.
func (eb *EventBuffer) Stop() {
	eb.stop.Do(func() {
		if eb.ticker != nil {
			eb.ticker.Stop()
		}
		close(eb.done)
		eb.Flush()
	})
}
