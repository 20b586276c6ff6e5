package trace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Tracer receives events. Emit must be safe for concurrent use: the graph
// builder and the packager trace from many goroutines at once.
type Tracer interface {
	Emit(ev *Event)
	Flush() error
	Close() error
	Level() Level
	Enabled() bool
}

// Mode selects where events are kept.
type Mode uint8

const (
	ModeStream Mode = iota + 1
	ModeRing
	ModeBoth
)

var modeNames = []string{"stream", "ring", "both"}

func (m Mode) String() string {
	if m >= ModeStream && int(m) <= len(modeNames) {
		return modeNames[m-1]
	}
	return "unknown"
}

func ParseMode(s string) (Mode, error) {
	i, err := parseName(s, modeNames, "trace mode")
	if err != nil {
		return 0, err
	}
	return Mode(i + 1), nil
}

const defaultRingSize = 4096

// Config describes the tracer a build runs with.
type Config struct {
	Level  Level
	Mode   Mode
	Format Format
	// Output wins over OutputPath. OutputPath "" or "-" is stderr.
	Output     io.Writer
	OutputPath string
	RingSize   int
}

// New builds the tracer cfg describes. LevelOff yields Nop.
func New(cfg Config) (Tracer, error) {
	if cfg.Level == LevelOff {
		return Nop, nil
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = defaultRingSize
	}
	if cfg.Mode == ModeRing {
		return NewRingTracer(cfg.RingSize, cfg.Level), nil
	}
	if cfg.Mode != ModeStream && cfg.Mode != ModeBoth {
		return nil, fmt.Errorf("unknown trace mode %v", cfg.Mode)
	}
	w, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}
	stream := NewStreamTracer(w, cfg.Level, formatFor(cfg.Format, cfg.OutputPath))
	if cfg.Mode == ModeStream {
		return stream, nil
	}
	return NewMultiTracer(cfg.Level, stream, NewRingTracer(cfg.RingSize, cfg.Level)), nil
}

func openOutput(cfg Config) (io.Writer, error) {
	switch {
	case cfg.Output != nil:
		return cfg.Output, nil
	case cfg.OutputPath == "" || cfg.OutputPath == "-":
		return struct{ io.Writer }{os.Stderr}, nil
	}
	f, err := os.Create(cfg.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("open trace output: %w", err)
	}
	return f, nil
}

// RingOf returns the ring buffer inside t, or nil when t keeps none.
func RingOf(t Tracer) *RingTracer {
	switch t := t.(type) {
	case *RingTracer:
		return t
	case *MultiTracer:
		for _, inner := range t.tracers {
			if r := RingOf(inner); r != nil {
				return r
			}
		}
	}
	return nil
}

// StreamTracer writes every event it accepts as soon as it arrives.
type StreamTracer struct {
	mu     sync.Mutex
	w      io.Writer
	level  Level
	format Format
	start  time.Time
}

func NewStreamTracer(w io.Writer, level Level, format Format) *StreamTracer {
	return &StreamTracer{w: w, level: level, format: formatFor(format, ""), start: time.Now()}
}

func (t *StreamTracer) Emit(ev *Event) {
	if ev == nil || t.level <= LevelError {
		return
	}
	if ev.Kind != KindHeartbeat && !t.level.ShouldEmit(ev.Scope) {
		return
	}
	data := formatEvent(ev, t.format, t.start)
	t.mu.Lock()
	defer t.mu.Unlock()
	// a broken trace sink never fails the build
	_, _ = t.w.Write(data)
}

func (t *StreamTracer) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch w := t.w.(type) {
	case interface{ Flush() error }:
		return w.Flush()
	case interface{ Sync() error }:
		_ = w.Sync()
	}
	return nil
}

func (t *StreamTracer) Close() error {
	if err := t.Flush(); err != nil {
		return err
	}
	if c, ok := t.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (t *StreamTracer) Level() Level  { return t.level }
func (t *StreamTracer) Enabled() bool { return t.level > LevelOff }

// RingTracer keeps the most recent events of every scope in memory so a
// failed build can dump the tail of what happened.
type RingTracer struct {
	mu     sync.Mutex
	events []Event
	next   int
	count  int
	level  Level
}

func NewRingTracer(capacity int, level Level) *RingTracer {
	if capacity <= 0 {
		capacity = defaultRingSize
	}
	return &RingTracer{events: make([]Event, capacity), level: level}
}

func (t *RingTracer) Emit(ev *Event) {
	if ev == nil || t.level == LevelOff {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events[t.next] = *ev
	t.next = (t.next + 1) % len(t.events)
	t.count = min(t.count+1, len(t.events))
}

// Snapshot returns the stored events, oldest first.
func (t *RingTracer) Snapshot() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, 0, t.count)
	first := (t.next - t.count + len(t.events)) % len(t.events)
	for i := range t.count {
		out = append(out, t.events[(first+i)%len(t.events)])
	}
	return out
}

// Dump writes the stored events to w, timed from the oldest one.
func (t *RingTracer) Dump(w io.Writer, format Format) error {
	events := t.Snapshot()
	if len(events) == 0 {
		return nil
	}
	format = formatFor(format, "")
	for i := range events {
		if _, err := w.Write(formatEvent(&events[i], format, events[0].Time)); err != nil {
			return err
		}
	}
	return nil
}

func (t *RingTracer) Flush() error  { return nil }
func (t *RingTracer) Close() error  { return nil }
func (t *RingTracer) Level() Level  { return t.level }
func (t *RingTracer) Enabled() bool { return t.level > LevelOff }

// MultiTracer sends every event to each of its tracers.
type MultiTracer struct {
	tracers []Tracer
	level   Level
}

func NewMultiTracer(level Level, tracers ...Tracer) *MultiTracer {
	return &MultiTracer{tracers: tracers, level: level}
}

func (t *MultiTracer) Emit(ev *Event) {
	for _, tr := range t.tracers {
		tr.Emit(ev)
	}
}

func (t *MultiTracer) Flush() error {
	var errs []error
	for _, tr := range t.tracers {
		errs = append(errs, tr.Flush())
	}
	return errors.Join(errs...)
}

func (t *MultiTracer) Close() error {
	var errs []error
	for _, tr := range t.tracers {
		errs = append(errs, tr.Close())
	}
	return errors.Join(errs...)
}

func (t *MultiTracer) Level() Level  { return t.level }
func (t *MultiTracer) Enabled() bool { return t.level > LevelOff }

type nopTracer struct{}

func (nopTracer) Emit(*Event)   {}
func (nopTracer) Flush() error  { return nil }
func (nopTracer) Close() error  { return nil }
func (nopTracer) Level() Level  { return LevelOff }
func (nopTracer) Enabled() bool { return false }

// Nop discards everything.
var Nop Tracer = nopTracer{}
