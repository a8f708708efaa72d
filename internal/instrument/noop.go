package instrument

import "context"

var noop Instrumenter = discard{}

// discard drops everything. Used when instrumentation is disabled, the
// request is sampled out, or there is no request at all.
type discard struct{}

func (discard) StartSpan(ctx context.Context, _, _, _ string) (context.Context, Span) {
	return ctx, discardSpan{}
}

func (discard) EmitBusinessEvent(context.Context, Entity, string, string, map[string]any) {}

type discardSpan struct{}

func (discardSpan) End()                     {}
func (discardSpan) SetStatus(string)         {}
func (discardSpan) SetMetadata(string, any)  {}
func (discardSpan) SetEntity(Entity, string) {}
func (discardSpan) Fail(error)               {}
