package instrument

import "context"

// Nop returns an instrumenter that records nothing. GetInstrumenter falls
// back to it when the context carries none.
func Nop() Instrumenter { return noopInstrumenter{} }

type noopInstrumenter struct{}

func (noopInstrumenter) StartSpan(ctx context.Context, _, _, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (noopInstrumenter) EmitBusinessEvent(context.Context, string, string, string, map[string]any) {}

type noopSpan struct{}

func (noopSpan) End()                     {}
func (noopSpan) SetStatus(string)         {}
func (noopSpan) SetMetadata(string, any)  {}
func (noopSpan) SetEntity(string, string) {}
func (noopSpan) TraceID() string          { return "" }
func (noopSpan) SpanID() string           { return "" }
