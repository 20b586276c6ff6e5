package trace

import "time"

// Kind says what an event marks.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat
)

var kindNames = [...]string{KindSpanBegin: "begin", KindSpanEnd: "end", KindPoint: "point", KindHeartbeat: "heartbeat"}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "unknown"
}

// Scope is the granularity of an event: the CLI driving a build, one
// pipeline stage, one asset or bundle inside a stage, or one plugin call.
// Lower values are coarser.
type Scope uint8

const (
	ScopeDriver Scope = iota + 1
	ScopeStage
	ScopeAsset
	ScopePlugin
)

var scopeNames = [...]string{ScopeDriver: "driver", ScopeStage: "stage", ScopeAsset: "asset", ScopePlugin: "plugin"}

func (s Scope) String() string {
	if int(s) < len(scopeNames) && scopeNames[s] != "" {
		return scopeNames[s]
	}
	return "unknown"
}

// Attr is one key/value pair attached to a span, such as the file an
// asset span covers or the plugin a call went to.
type Attr struct {
	Key   string
	Value string
}

// Event is a single trace record.
type Event struct {
	Time     time.Time
	Seq      uint64
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64
	Name     string
	Detail   string
	Attrs    []Attr
}
