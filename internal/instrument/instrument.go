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

// Entity names what a span or business event is about. Stored in the
// entity column of _events.
type Entity string

const (
	EntityTemplate     Entity = "template"
	EntityScreen       Entity = "screen"
	EntityField        Entity = "field"
	EntitySession      Entity = "session"
	EntitySubmission   Entity = "submission"
	EntityOrganization Entity = "organization"
	EntityMembership   Entity = "membership"
)

// Instrumenter starts spans and records business events.
type Instrumenter interface {
	StartSpan(ctx context.Context, source, component, action string) (context.Context, Span)
	// EmitBusinessEvent records a completed domain change, such as a form
	// submission or a membership grant, against the entity it touched.
	EmitBusinessEvent(ctx context.Context, entity Entity, recordID, action string, metadata map[string]any)
}

// Span is a timed operation. End is idempotent.
type Span interface {
	End()
	SetStatus(status string)
	SetMetadata(key string, value any)
	SetEntity(entity Entity, recordID string)
	// Fail marks the span as failed and records err.
	Fail(err error)
}

// Event represents a row in the _events table.
type Event struct {
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID *string        `json:"parent_span_id"`
	EventType    string         `json:"event_type"`
	Source       string         `json:"source"`
	Component    string         `json:"component"`
	Action       string         `json:"action"`
	Entity       *string        `json:"entity"`
	RecordID     *string        `json:"record_id"`
	UserID       *string        `json:"user_id"`
	DurationMs   *float64       `json:"duration_ms"`
	Status       *string        `json:"status"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID returns the request's trace id, or "" outside a traced request.
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

func WithInstrumenter(ctx context.Context, inst Instrumenter) context.Context {
	return context.WithValue(ctx, instrumenterKey, inst)
}

// GetInstrumenter returns the request's instrumenter. Untraced contexts
// (sampled out, background work, CLI) get one that discards everything.
func GetInstrumenter(ctx context.Context) Instrumenter {
	if v, ok := ctx.Value(instrumenterKey).(Instrumenter); ok {
		return v
	}
	return noop
}

// WithUserID records the acting user for spans started from ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func optional(ctx context.Context, key ctxKey) *string {
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return &v
	}
	return nil
}

// BufferedInstrumenter writes spans and business events to an EventBuffer.
type BufferedInstrumenter struct {
	buffer *EventBuffer
}

func NewInstrumenter(buffer *EventBuffer) *BufferedInstrumenter {
	return &BufferedInstrumenter{buffer: buffer}
}

// StartSpan starts a span under the span in ctx, if any. The returned
// context makes it the parent of spans started from it.
func (i *BufferedInstrumenter) StartSpan(ctx context.Context, source, component, action string) (context.Context, Span) {
	s := &span{
		buffer: i.buffer,
		event: Event{
			TraceID:      GetTraceID(ctx),
			SpanID:       uuid.NewString(),
			ParentSpanID: optional(ctx, parentSpanIDKey),
			EventType:    "system",
			Source:       source,
			Component:    component,
			Action:       action,
			UserID:       optional(ctx, userIDKey),
			Metadata:     map[string]any{},
		},
		start: time.Now(),
	}
	return context.WithValue(ctx, parentSpanIDKey, s.event.SpanID), s
}

func (i *BufferedInstrumenter) EmitBusinessEvent(ctx context.Context, entity Entity, recordID, action string, metadata map[string]any) {
	e := Event{
		TraceID:      GetTraceID(ctx),
		SpanID:       uuid.NewString(),
		ParentSpanID: optional(ctx, parentSpanIDKey),
		EventType:    "business",
		Source:       "business",
		Component:    string(entity),
		Action:       action,
		UserID:       optional(ctx, userIDKey),
		Metadata:     metadata,
	}
	if entity != "" {
		name := string(entity)
		e.Entity = &name
	}
	if recordID != "" {
		e.RecordID = &recordID
	}
	i.buffer.Enqueue(e)
}

type span struct {
	buffer *EventBuffer
	start  time.Time

	mu    sync.Mutex
	event Event
	ended bool
}

func (s *span) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.event.Status = &status
}

func (s *span) SetMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.event.Metadata[key] = value
}

func (s *span) SetEntity(entity Entity, recordID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := string(entity)
	s.event.Entity = &name
	if recordID != "" {
		s.event.RecordID = &recordID
	}
}

func (s *span) Fail(err error) {
	s.SetStatus("error")
	if err != nil {
		s.SetMetadata("error", err.Error())
	}
}

func (s *span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	ms := float64(time.Since(s.start).Microseconds()) / 1000.0
	s.event.DurationMs = &ms
	s.buffer.Enqueue(s.event)
}
