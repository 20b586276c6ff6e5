// Package buildpipeline orchestrates a build: graph building, bundling,
// packaging and writing the outputs.
package buildpipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mach/internal/bundler"
	"mach/internal/config"
	"mach/internal/diag"
	"mach/internal/graphbuild"
	"mach/internal/packager"
	"mach/internal/plugin"
	"mach/internal/resolve"
	"mach/internal/rpc"
	"mach/internal/trace"
	"mach/internal/transform"
)

// BuildRequest configures one build.
type BuildRequest struct {
	Config   *config.MachConfig
	Progress ProgressSink
	// Hosts starts remote engines; nil spawns the commands named in
	// .machrc.
	Hosts plugin.HostFactory
}

// Build runs the pipeline up to packaging. The returned compilation is
// never nil once the request is valid, even when err is set.
func Build(ctx context.Context, req *BuildRequest) (*Compilation, error) {
	return run(ctx, req, false)
}

// BuildEmit builds and then writes the outputs into the dist directory.
func BuildEmit(ctx context.Context, req *BuildRequest) (*Compilation, error) {
	return run(ctx, req, true)
}

func run(ctx context.Context, req *BuildRequest, write bool) (c *Compilation, err error) {
	if req == nil || req.Config == nil {
		return nil, errors.New("missing build config")
	}
	cfg := req.Config
	c = NewCompilation(cfg)
	reporter := diag.BagReporter{Bag: c.Diagnostics}
	p := progress{sink: req.Progress}
	ctx, span := trace.BeginCtx(ctx, trace.ScopeDriver, "build")
	defer func() {
		c.Diagnostics.Dedup()
		c.Diagnostics.Sort()
		detail := string(c.State())
		span.End(detail)
	}()

	reg, err := newRegistry(cfg, req.Hosts)
	if err != nil {
		return c, c.fail(err)
	}
	defer func() {
		if cerr := reg.Close(); cerr != nil && err == nil {
			err = c.fail(cerr)
		}
	}()

	_ = c.advance(StateResolving)
	_ = c.advance(StateTransforming)
	p.stage(StageResolve, StatusWorking, nil, 0)
	p.stage(StageTransform, StatusWorking, nil, 0)
	start := time.Now()
	builder := graphbuild.New(c.Graph, resolve.NewDriver(reg.Resolvers()), transform.NewDriver(reg, cfg), graphbuild.Options{
		Root:     cfg.Root,
		Threads:  max(cfg.Threads, 1),
		OnAsset:  func(rel string) { p.file(rel, StageTransform, StatusWorking) },
		Reporter: reporter,
	})
	sctx, stageSpan := trace.BeginCtx(ctx, trace.ScopeStage, "graph")
	err = builder.Build(sctx, cfg.Entries)
	stageSpan.End(fmt.Sprintf("%d assets", c.Graph.Len()))
	elapsed := time.Since(start)
	c.Timings.Set(StageTransform, elapsed)
	if err != nil {
		p.stage(StageTransform, StatusError, err, elapsed)
		return c, c.fail(err)
	}
	p.stage(StageResolve, StatusDone, nil, 0)
	p.stage(StageTransform, StatusDone, nil, elapsed)
	if cfg.Machrc.Path != "" {
		for _, pattern := range reg.UnmatchedPatterns() {
			diag.Warn(reporter, diag.WarnUnmatchedGlob, cfg.Machrc.Path, fmt.Sprintf("transformer pattern %q matched no files", pattern))
		}
	}

	_ = c.advance(StateBundling)
	err = p.timed(ctx, &c.Timings, StageBundle, func(context.Context) error {
		var berr error
		c.Bundles, berr = bundler.Partition(c.Graph, bundler.Options{
			Splitting: cfg.BundleSplitting,
			MinUsers:  cfg.SharedBundleMinUsers,
		})
		return berr
	})
	if err != nil {
		return c, c.fail(err)
	}

	_ = c.advance(StatePackaging)
	err = p.timed(ctx, &c.Timings, StagePackage, func(sctx context.Context) error {
		var perr error
		c.Outputs, perr = packager.Package(sctx, c.Graph, c.Bundles, packager.Options{
			Optimize: cfg.Optimize,
			Threads:  max(cfg.Threads, 1),
			Reporter: reporter,
		})
		return perr
	})
	if err != nil {
		return c, c.fail(err)
	}
	for _, o := range c.Outputs {
		p.file(o.FilePath, StagePackage, StatusDone)
	}

	if write {
		err = p.timed(ctx, &c.Timings, StageEmit, func(context.Context) error {
			return emit(cfg, c.Outputs, reporter)
		})
		if err != nil {
			return c, c.fail(err)
		}
	}
	_ = c.advance(StateDone)
	return c, nil
}

// newRegistry wires the built-in plugins and the remote engine factory.
func newRegistry(cfg *config.MachConfig, hosts plugin.HostFactory) (*plugin.Registry, error) {
	node, err := resolve.NewNodeResolver(cfg.Root, cfg.Package)
	if err != nil {
		return nil, err
	}
	if hosts == nil {
		hosts = rpc.Factory(cfg)
	}
	return plugin.NewRegistry(cfg.Machrc, plugin.Builtins{
		Resolvers:    map[string]plugin.Resolver{config.BuiltinResolver: node},
		Transformers: transform.Builtins(),
	}, hosts)
}
