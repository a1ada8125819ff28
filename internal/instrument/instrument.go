package instrument

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ctxKey int

const (
	traceIDKey ctxKey = iota
	parentSpanIDKey
	instrumenterKey
	userIDKey
)

// Instrumenter starts timed spans and emits one-shot business events.
type Instrumenter interface {
	StartSpan(ctx context.Context, source, component, action string) (context.Context, Span)
	EmitBusinessEvent(ctx context.Context, action, entity, recordID string, metadata map[string]any)
}

// Span is one timed operation.
type Span interface {
	End()
	SetStatus(status string)
	SetMetadata(key string, value any)
	SetEntity(entity, recordID string)
	TraceID() string
	SpanID() string
}

// Event is a finished span or a business event.
type Event struct {
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID string         `json:"parent_span_id,omitempty"`
	EventType    string         `json:"event_type"`
	Source       string         `json:"source"`
	Component    string         `json:"component"`
	Action       string         `json:"action"`
	Entity       string         `json:"entity,omitempty"`
	RecordID     string         `json:"record_id,omitempty"`
	UserID       string         `json:"user_id,omitempty"`
	DurationMs   float64        `json:"duration_ms,omitempty"`
	Status       string         `json:"status,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

func withParentSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, parentSpanIDKey, spanID)
}

func getParentSpanID(ctx context.Context) string {
	if v, ok := ctx.Value(parentSpanIDKey).(string); ok {
		return v
	}
	return ""
}

func WithInstrumenter(ctx context.Context, inst Instrumenter) context.Context {
	return context.WithValue(ctx, instrumenterKey, inst)
}

// GetInstrumenter returns the instrumenter stored in ctx, or a no-op one.
func GetInstrumenter(ctx context.Context) Instrumenter {
	if v, ok := ctx.Value(instrumenterKey).(Instrumenter); ok {
		return v
	}
	return Nop()
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func getUserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

// BufferedInstrumenter enqueues finished spans and business events into an
// EventBuffer.
type BufferedInstrumenter struct {
	buffer *EventBuffer
}

func NewInstrumenter(buffer *EventBuffer) *BufferedInstrumenter {
	return &BufferedInstrumenter{buffer: buffer}
}

// StartSpan creates a span and returns a context in which it is the parent
// of any further spans.
func (i *BufferedInstrumenter) StartSpan(ctx context.Context, source, component, action string) (context.Context, Span) {
	span := &bufferedSpan{
		traceID:      GetTraceID(ctx),
		spanID:       uuid.NewString(),
		parentSpanID: getParentSpanID(ctx),
		source:       source,
		component:    component,
		action:       action,
		userID:       getUserID(ctx),
		startTime:    time.Now(),
		buffer:       i.buffer,
	}
	return withParentSpanID(ctx, span.spanID), span
}

func (i *BufferedInstrumenter) EmitBusinessEvent(ctx context.Context, action, entity, recordID string, metadata map[string]any) {
	i.buffer.Enqueue(Event{
		TraceID:      GetTraceID(ctx),
		SpanID:       uuid.NewString(),
		ParentSpanID: getParentSpanID(ctx),
		EventType:    "business",
		Source:       "business",
		Component:    "service",
		Action:       action,
		Entity:       entity,
		RecordID:     recordID,
		UserID:       getUserID(ctx),
		Metadata:     metadata,
		CreatedAt:    time.Now(),
	})
}

type bufferedSpan struct {
	traceID      string
	spanID       string
	parentSpanID string
	source       string
	component    string
	action       string
	userID       string
	startTime    time.Time
	buffer       *EventBuffer

	mu       sync.Mutex
	entity   string
	recordID string
	status   string
	metadata map[string]any
	ended    bool
}

func (s *bufferedSpan) TraceID() string { return s.traceID }
func (s *bufferedSpan) SpanID() string  { return s.spanID }

func (s *bufferedSpan) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *bufferedSpan) SetMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metadata == nil {
		s.metadata = make(map[string]any)
	}
	s.metadata[key] = value
}

func (s *bufferedSpan) SetEntity(entity, recordID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entity = entity
	if recordID != "" {
		s.recordID = recordID
	}
}

// End records the span. Calls after the first are ignored.
func (s *bufferedSpan) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	event := Event{
		TraceID:      s.traceID,
		SpanID:       s.spanID,
		ParentSpanID: s.parentSpanID,
		EventType:    "system",
		Source:       s.source,
		Component:    s.component,
		Action:       s.action,
		Entity:       s.entity,
		RecordID:     s.recordID,
		UserID:       s.userID,
		DurationMs:   float64(time.Since(s.startTime).Microseconds()) / 1000.0,
		Status:       s.status,
		Metadata:     s.metadata,
		CreatedAt:    time.Now(),
	}
	s.mu.Unlock()
	s.buffer.Enqueue(event)
}
