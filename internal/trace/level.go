package trace

import (
	"fmt"
	"slices"
	"strings"
)

// Level controls how much of a build is traced.
type Level uint8

const (
	LevelOff Level = iota
	LevelError
	LevelPhase
	LevelDetail
	LevelDebug
)

var levelNames = []string{"off", "error", "phase", "detail", "debug"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("level(%d)", l)
}

// ParseLevel accepts the names printed by Level.String, in any case.
func ParseLevel(s string) (Level, error) {
	i, err := parseName(s, levelNames, "trace level")
	return Level(i), err
}

// ShouldEmit reports whether a stream tracer at level l prints events of
// scope. LevelError prints nothing; it only feeds the ring dumped on
// failure.
func (l Level) ShouldEmit(scope Scope) bool {
	switch l {
	case LevelPhase:
		return scope <= ScopeStage
	case LevelDetail:
		return scope <= ScopeAsset
	case LevelDebug:
		return true
	}
	return false
}

// Records reports whether spans of scope are created at all. LevelError
// records stage spans so the ring has something to dump.
func (l Level) Records(scope Scope) bool {
	if l == LevelError {
		return scope <= ScopeStage
	}
	return l.ShouldEmit(scope)
}

// parseName returns the index of s in names.
func parseName(s string, names []string, what string) (int, error) {
	i := slices.Index(names, strings.ToLower(strings.TrimSpace(s)))
	if i < 0 {
		return 0, fmt.Errorf("invalid %s %q (expected %s)", what, s, strings.Join(names, "|"))
	}
	return i, nil
}
