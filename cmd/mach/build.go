package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"mach/internal/buildpipeline"
	"mach/internal/config"
)

var buildCmd = &cobra.Command{
	Use:   "build [flags] [entries...]",
	Short: "Bundle the given entries, or package.json targets.source",
	RunE:  buildExecution,
}

func init() {
	f := buildCmd.Flags()
	f.String("dist", "", "output directory (default package.json targets.dist_dir, then dist)")
	f.Bool("clean", false, "remove the output directory before writing")
	f.Bool("no-optimize", false, "skip minification")
	f.Bool("bundle-splitting", false, "move code shared by several bundles into shared bundles")
	f.Int("threads", 0, "graph builder workers (default MACH_THREADS, then GOMAXPROCS)")
	f.Int("node-workers", 0, "request slots per plugin engine (default MACH_NODE_WORKERS, then threads)")
	f.Duration("plugin-timeout", 0, "deadline for one plugin call (default 60s)")
	f.Bool("debug", false, "trace every stage to stderr and list bundle members")
	f.String("ui", "auto", "progress UI (auto|on|off)")
}

func buildExecution(cmd *cobra.Command, args []string) (err error) {
	f := cmd.Flags()
	dist, _ := f.GetString("dist")
	clean, _ := f.GetBool("clean")
	noOptimize, _ := f.GetBool("no-optimize")
	splitting, _ := f.GetBool("bundle-splitting")
	threads, _ := f.GetInt("threads")
	nodeWorkers, _ := f.GetInt("node-workers")
	pluginTimeout, _ := f.GetDuration("plugin-timeout")
	debug, _ := f.GetBool("debug")
	uiValue, _ := f.GetString("ui")

	root := cmd.Root().PersistentFlags()
	quiet, _ := root.GetBool("quiet")
	showTimings, _ := root.GetBool("timings")
	maxDiagnostics, _ := root.GetInt("max-diagnostics")

	mode, err := readUIMode(uiValue)
	if err != nil {
		return &usageError{err}
	}
	if threads < 0 || nodeWorkers < 0 {
		return &usageError{fmt.Errorf("--threads and --node-workers must not be negative")}
	}
	if debug && !root.Changed("trace-level") {
		if err := root.Set("trace-level", "debug"); err != nil {
			return err
		}
	}

	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling()
	stopTracing, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer func() { stopTracing(err) }()

	cfg, err := config.Load(config.Options{
		Entries:         args,
		DistDir:         dist,
		Clean:           clean,
		NoOptimize:      noOptimize,
		BundleSplitting: splitting,
		Threads:         threads,
		NodeWorkers:     nodeWorkers,
		PluginTimeout:   pluginTimeout,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	req := &buildpipeline.BuildRequest{Config: cfg}
	var c *buildpipeline.Compilation
	if !quiet && !debug && shouldUseTUI(mode) {
		c, err = runBuildWithUI(ctx, "mach build", req)
	} else {
		c, err = buildpipeline.BuildEmit(ctx, req)
	}
	if c != nil {
		printDiagnostics(cmd.ErrOrStderr(), c.Diagnostics, maxDiagnostics, quiet)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if debug {
		printBundles(out, c)
	}
	if !quiet {
		printOutputs(out, cfg.DistDir, c.Outputs)
	}
	if showTimings {
		printStageTimings(out, c.Timings)
	}
	return nil
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the output directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dist, _ := cmd.Flags().GetString("dist")
		cfg, err := config.Load(config.Options{DistDir: dist, NoEntries: true})
		if err != nil {
			return err
		}
		if rel, err := filepath.Rel(cfg.DistDir, cfg.Root); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return &usageError{fmt.Errorf("refusing to remove %s: it contains the project root", cfg.DistDir)}
		}
		if err := os.RemoveAll(cfg.DistDir); err != nil {
			return err
		}
		if quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet"); !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", cfg.DistDir)
		}
		return nil
	},
}

func init() {
	cleanCmd.Flags().String("dist", "", "output directory to remove")
}
