package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mach/internal/trace"
)

// traceFlags mirrors the persistent --trace* flags.
type traceFlags struct {
	output    string
	level     string
	mode      string
	ringSize  int
	heartbeat time.Duration
}

func readTraceFlags(cmd *cobra.Command) (traceFlags, error) {
	flags := cmd.Root().PersistentFlags()
	var tf traceFlags
	var err error
	if tf.output, err = flags.GetString("trace"); err != nil {
		return tf, err
	}
	if tf.level, err = flags.GetString("trace-level"); err != nil {
		return tf, err
	}
	if tf.mode, err = flags.GetString("trace-mode"); err != nil {
		return tf, err
	}
	if tf.ringSize, err = flags.GetInt("trace-ring-size"); err != nil {
		return tf, err
	}
	tf.heartbeat, err = flags.GetDuration("trace-heartbeat")
	return tf, err
}

// setupTracing attaches the tracer the flags describe to the command
// context. The returned finish func stops the heartbeat and closes the
// tracer; given a non-nil build error it first dumps the ring buffer, if
// any, to stderr.
func setupTracing(cmd *cobra.Command) (func(buildErr error), error) {
	tf, err := readTraceFlags(cmd)
	if err != nil {
		return nil, err
	}
	level, err := trace.ParseLevel(tf.level)
	if err != nil {
		return nil, &usageError{err}
	}
	if level == trace.LevelOff {
		if tf.output == "" {
			cmd.SetContext(trace.WithTracer(cmd.Context(), trace.Nop))
			return func(error) {}, nil
		}
		// --trace without a level means "show the stages"
		level = trace.LevelPhase
	}
	mode, err := trace.ParseMode(tf.mode)
	if err != nil {
		return nil, &usageError{err}
	}

	tracer, err := trace.New(trace.Config{
		Level:      level,
		Mode:       mode,
		OutputPath: tf.output,
		RingSize:   tf.ringSize,
	})
	if err != nil {
		return nil, err
	}
	cmd.SetContext(trace.WithTracer(cmd.Context(), tracer))
	heartbeat := trace.StartHeartbeat(tracer, tf.heartbeat)

	stderr := cmd.ErrOrStderr()
	return func(buildErr error) {
		heartbeat.Stop()
		if ring := trace.RingOf(tracer); buildErr != nil && ring != nil && mode == trace.ModeRing {
			fmt.Fprintln(stderr, "trace: last events before the failure")
			if err := ring.Dump(stderr, trace.FormatText); err != nil {
				fmt.Fprintf(stderr, "trace: dump: %v\n", err)
			}
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(stderr, "trace: close: %v\n", err)
		}
	}, nil
}
