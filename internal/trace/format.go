package trace

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Format is the encoding of a stream tracer's output.
type Format uint8

const (
	FormatAuto Format = iota
	FormatText
	FormatNDJSON
)

// formatFor picks NDJSON for .ndjson and .jsonl outputs, text otherwise.
func formatFor(f Format, path string) Format {
	if f != FormatAuto {
		return f
	}
	if strings.HasSuffix(path, ".ndjson") || strings.HasSuffix(path, ".jsonl") {
		return FormatNDJSON
	}
	return FormatText
}

func formatEvent(ev *Event, format Format, start time.Time) []byte {
	if format == FormatNDJSON {
		return formatNDJSON(ev)
	}
	return formatText(ev, start)
}

type jsonEvent struct {
	Time     string            `json:"time"`
	Seq      uint64            `json:"seq"`
	Kind     string            `json:"kind"`
	Scope    string            `json:"scope"`
	SpanID   uint64            `json:"span,omitempty"`
	ParentID uint64            `json:"parent,omitempty"`
	Name     string            `json:"name"`
	Detail   string            `json:"detail,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
}

func formatNDJSON(ev *Event) []byte {
	je := jsonEvent{
		Time:     ev.Time.UTC().Format(time.RFC3339Nano),
		Seq:      ev.Seq,
		Kind:     ev.Kind.String(),
		Scope:    ev.Scope.String(),
		SpanID:   ev.SpanID,
		ParentID: ev.ParentID,
		Name:     ev.Name,
		Detail:   ev.Detail,
	}
	if len(ev.Attrs) > 0 {
		je.Attrs = make(map[string]string, len(ev.Attrs))
		for _, a := range ev.Attrs {
			je.Attrs[a.Key] = a.Value
		}
	}
	data, err := json.Marshal(je)
	if err != nil {
		return nil
	}
	return append(data, '\n')
}

var kindMarks = [...]string{KindSpanBegin: "+", KindSpanEnd: "-", KindPoint: ".", KindHeartbeat: "~"}

// formatText renders "[   12.345ms] stage  - bundle (ok) bundles=2".
// Child spans are indented by one step.
func formatText(ev *Event, start time.Time) []byte {
	var b strings.Builder
	var elapsed time.Duration
	if !start.IsZero() && !ev.Time.IsZero() {
		elapsed = ev.Time.Sub(start)
	}
	fmt.Fprintf(&b, "[%10.3fms] %-6s ", float64(elapsed.Microseconds())/1000, ev.Scope)
	if ev.ParentID != 0 {
		b.WriteString("  ")
	}
	if int(ev.Kind) < len(kindMarks) && kindMarks[ev.Kind] != "" {
		b.WriteString(kindMarks[ev.Kind])
		b.WriteByte(' ')
	}
	b.WriteString(ev.Name)
	if ev.Detail != "" {
		fmt.Fprintf(&b, " (%s)", ev.Detail)
	}
	for _, a := range ev.Attrs {
		fmt.Fprintf(&b, " %s=%s", a.Key, a.Value)
	}
	b.WriteByte('\n')
	return []byte(b.String())
}
