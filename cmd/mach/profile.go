package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"mach/internal/prof"
)

// setupProfiling starts the profilers named by the persistent flags. The
// cleanup is safe to call more than once.
func setupProfiling(cmd *cobra.Command) (func(), error) {
	flags := cmd.Root().PersistentFlags()
	var opts prof.Options
	var err error
	if opts.CPU, err = flags.GetString("cpu-profile"); err != nil {
		return nil, err
	}
	if opts.Mem, err = flags.GetString("mem-profile"); err != nil {
		return nil, err
	}
	if opts.Trace, err = flags.GetString("runtime-trace"); err != nil {
		return nil, err
	}
	session, err := prof.Start(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start profiling: %w", err)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := session.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "profiling: %v\n", err)
			}
		})
	}, nil
}
