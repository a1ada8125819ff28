package instrument

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) WriteEvents(events []Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, events...)
}

func (c *collector) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestSpan_ParentChildLinks(t *testing.T) {
	sink := &collector{}
	buf := NewEventBuffer(sink, 10, 0)
	inst := NewInstrumenter(buf)

	ctx := WithUserID(WithTraceID(context.Background(), "trace-1"), "u1")
	ctx, parent := inst.StartSpan(ctx, "service", "entity", "find_all")
	_, child := inst.StartSpan(ctx, "repository", "sql", "query")
	child.SetEntity("customer", "")
	child.SetStatus("ok")
	child.End()
	child.End()
	parent.SetMetadata("rows", 3)
	parent.End()
	buf.Stop()

	events := sink.all()
	require.Len(t, events, 2)
	assert.Equal(t, "trace-1", events[0].TraceID)
	assert.Equal(t, parent.SpanID(), events[0].ParentSpanID)
	assert.Equal(t, "customer", events[0].Entity)
	assert.Equal(t, "u1", events[0].UserID)
	assert.Empty(t, events[1].ParentSpanID)
	assert.Equal(t, 3, events[1].Metadata["rows"])
}

func TestEventBuffer_FlushesWhenFull(t *testing.T) {
	sink := &collector{}
	buf := NewEventBuffer(sink, 2, 0)
	defer buf.Stop()

	buf.Enqueue(Event{Action: "a"})
	assert.Empty(t, sink.all())
	buf.Enqueue(Event{Action: "b"})
	assert.Len(t, sink.all(), 2)
}

func TestBusinessEvent(t *testing.T) {
	sink := &collector{}
	buf := NewEventBuffer(sink, 10, 0)
	inst := NewInstrumenter(buf)

	inst.EmitBusinessEvent(WithTraceID(context.Background(), "t"), "entity.saved", "customer", "7", nil)
	buf.Stop()
	buf.Stop()

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "business", events[0].EventType)
	assert.Equal(t, "7", events[0].RecordID)
}

func TestGetInstrumenter_DefaultsToNop(t *testing.T) {
	inst := GetInstrumenter(context.Background())
	ctx, span := inst.StartSpan(context.Background(), "a", "b", "c")
	span.End()
	assert.Empty(t, span.SpanID())
	assert.Equal(t, context.Background(), ctx)
}

func TestLogSink_DoesNotPanic(t *testing.T) {
	LogSink{Logger: zap.NewNop()}.WriteEvents([]Event{{Action: "x", Metadata: map[string]any{"k": 1}}})
}

func TestMiddleware_PropagatesTraceID(t *testing.T) {
	sink := &collector{}
	buf := NewEventBuffer(sink, 100, 0)
	app := fiber.New()
	app.Use(Middleware(NewInstrumenter(buf)))
	app.Get("/ping", func(c *fiber.Ctx) error {
		assert.Equal(t, "abc", GetTraceID(c.UserContext()))
		return c.SendString("pong")
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "nope")
	})

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-Trace-ID", "abc")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "abc", resp.Header.Get("X-Trace-ID"))

	resp, err = app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))
	buf.Stop()

	events := sink.all()
	require.Len(t, events, 2)
	assert.Equal(t, "ok", events[0].Status)
	assert.Equal(t, "error", events[1].Status)
	assert.Equal(t, fiber.StatusNotFound, events[1].Metadata["status_code"])
}
