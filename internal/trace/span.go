package trace

import (
	"context"
	"sync/atomic"
	"time"
)

var (
	seq     atomic.Uint64
	spanIDs atomic.Uint64
	// open counts spans begun and not yet ended; heartbeats report it.
	open atomic.Int64
)

// NextSeq returns a process-wide increasing sequence number.
func NextSeq() uint64 { return seq.Add(1) }

// OpenSpans returns how many spans are currently running.
func OpenSpans() int64 { return open.Load() }

// Span times one operation. End must be called exactly once; a span from
// a disabled tracer ignores every call.
type Span struct {
	tracer  Tracer
	id      uint64
	parent  uint64
	scope   Scope
	name    string
	started time.Time
	attrs   []Attr
}

var nopSpan = &Span{tracer: Nop}

// Begin starts a span below parent (0 for a root span).
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	if t == nil || !t.Enabled() || !t.Level().Records(scope) {
		return nopSpan
	}
	s := &Span{
		tracer:  t,
		id:      spanIDs.Add(1),
		parent:  parent,
		scope:   scope,
		name:    name,
		started: time.Now(),
	}
	open.Add(1)
	t.Emit(s.event(KindSpanBegin, s.started, ""))
	return s
}

// BeginCtx starts a span under the one ctx carries and returns a context
// for its children.
func BeginCtx(ctx context.Context, scope Scope, name string) (context.Context, *Span) {
	s := Begin(FromContext(ctx), scope, name, ParentID(ctx))
	if s == nopSpan {
		return ctx, s
	}
	return withParent(ctx, s.id), s
}

// Attr adds key=value to the end event.
func (s *Span) Attr(key, value string) *Span {
	if s == nil || s == nopSpan {
		return s
	}
	s.attrs = append(s.attrs, Attr{Key: key, Value: value})
	return s
}

// End emits the end event and returns how long the span ran.
func (s *Span) End(detail string) time.Duration {
	if s == nil || s == nopSpan {
		return 0
	}
	now := time.Now()
	open.Add(-1)
	s.tracer.Emit(s.event(KindSpanEnd, now, detail))
	return now.Sub(s.started)
}

func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

func (s *Span) event(kind Kind, at time.Time, detail string) *Event {
	ev := &Event{
		Time:     at,
		Seq:      NextSeq(),
		Kind:     kind,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parent,
		Name:     s.name,
		Detail:   detail,
	}
	if kind == KindSpanEnd {
		ev.Attrs = s.attrs
	}
	return ev
}

// Point emits an instant event.
func Point(t Tracer, scope Scope, name, detail string) {
	if t == nil || !t.Enabled() || !t.Level().Records(scope) {
		return
	}
	t.Emit(&Event{Time: time.Now(), Seq: NextSeq(), Kind: KindPoint, Scope: scope, Name: name, Detail: detail})
}
