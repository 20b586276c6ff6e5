package buildpipeline

import (
	"context"
	"time"

	"mach/internal/trace"
)

// progress forwards pipeline events to an optional sink.
type progress struct {
	sink ProgressSink
}

func (p progress) stage(stage Stage, status Status, err error, elapsed time.Duration) {
	if p.sink == nil {
		return
	}
	p.sink.OnEvent(Event{Stage: stage, Status: status, Err: err, Elapsed: elapsed})
}

func (p progress) file(file string, stage Stage, status Status) {
	if p.sink == nil {
		return
	}
	p.sink.OnEvent(Event{File: file, Stage: stage, Status: status})
}

// timed runs fn as stage: it reports start and outcome, records the
// duration and wraps fn in a stage span.
func (p progress) timed(ctx context.Context, timings *Timings, stage Stage, fn func(context.Context) error) error {
	p.stage(stage, StatusWorking, nil, 0)
	start := time.Now()
	sctx, span := trace.BeginCtx(ctx, trace.ScopeStage, string(stage))
	err := fn(sctx)
	elapsed := time.Since(start)
	timings.Set(stage, elapsed)
	if err != nil {
		span.End("error")
		p.stage(stage, StatusError, err, elapsed)
		return err
	}
	span.End("")
	p.stage(stage, StatusDone, nil, elapsed)
	return nil
}
