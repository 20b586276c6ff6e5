package buildpipeline

import "time"

// Stage is one step of a build as the progress UI sees it.
type Stage string

const (
	StageResolve   Stage = "resolve"
	StageTransform Stage = "transform"
	StageBundle    Stage = "bundle"
	StagePackage   Stage = "package"
	StageEmit      Stage = "emit"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{StageResolve, StageTransform, StageBundle, StagePackage, StageEmit}

// Status captures progress state within a stage.
type Status string

const (
	StatusWorking Status = "working"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Event reports progress for an asset or bundle, or for the whole pipeline
// when File is empty.
type Event struct {
	File    string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. OnEvent may be called from several
// goroutines.
type ProgressSink interface {
	OnEvent(Event)
}

// State is where a Compilation stands.
type State string

const (
	StateEmpty        State = "empty"
	StateResolving    State = "resolving"
	StateTransforming State = "transforming"
	StateBundling     State = "bundling"
	StatePackaging    State = "packaging"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Timings holds stage durations.
type Timings struct {
	stages map[Stage]time.Duration
}

func (t *Timings) ensure() {
	if t.stages == nil {
		t.stages = make(map[Stage]time.Duration)
	}
}

// Set stores a duration for the given stage.
func (t *Timings) Set(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	t.ensure()
	t.stages[stage] = dur
}

func (t Timings) Has(stage Stage) bool {
	if t.stages == nil {
		return false
	}
	_, ok := t.stages[stage]
	return ok
}

func (t Timings) Duration(stage Stage) time.Duration {
	if t.stages == nil {
		return 0
	}
	return t.stages[stage]
}

// Sum returns the sum of durations across the provided stages; all stages
// when none are given.
func (t Timings) Sum(stages ...Stage) time.Duration {
	if t.stages == nil {
		return 0
	}
	if len(stages) == 0 {
		stages = Stages
	}
	var total time.Duration
	for _, stage := range stages {
		total += t.stages[stage]
	}
	return total
}
