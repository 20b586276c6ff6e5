// Package graphbuild discovers the asset graph: a pool of workers resolves
// dependencies, reads and transforms new assets, and feeds the dependencies
// those assets declare back into a shared queue until nothing is left.
package graphbuild

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"mach/internal/asset"
	"mach/internal/diag"
	"mach/internal/digest"
	"mach/internal/failure"
	"mach/internal/graph"
	"mach/internal/trace"
)

// Resolver maps a dependency to an absolute file path.
type Resolver interface {
	Resolve(ctx context.Context, dep *asset.Dependency) (string, error)
}

// Transformer runs the pipeline for a fresh asset and returns the
// dependencies it declared.
type Transformer interface {
	Run(ctx context.Context, a *asset.Asset) ([]asset.DependencyOptions, error)
}

// Options configure a Builder.
type Options struct {
	// Root is the project directory; entries are resolved from it.
	Root    string
	Threads int
	// OnAsset, when set, is called once per created asset with its
	// project-relative path. It may be called from several goroutines.
	OnAsset  func(rel string)
	Reporter diag.Reporter
}

// Builder fills an AssetGraph. A Builder is single-use.
type Builder struct {
	graph       *graph.AssetGraph
	resolver    Resolver
	transformer Transformer
	opts        Options

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []*asset.Dependency
	inFlight int

	aborted atomic.Bool
	group   singleflight.Group

	hashMu sync.Mutex
	hashes map[string]digest.Digest
}

func New(g *graph.AssetGraph, res Resolver, tr Transformer, opts Options) *Builder {
	if opts.Threads < 1 {
		opts.Threads = 1
	}
	if opts.Reporter == nil {
		opts.Reporter = diag.NopReporter{}
	}
	b := &Builder{
		graph:       g,
		resolver:    res,
		transformer: tr,
		opts:        opts,
		hashes:      make(map[string]digest.Digest),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Build seeds one Root dependency per entry and runs the workers until the
// queue drains or the first error. Entries are absolute paths.
func (b *Builder) Build(ctx context.Context, entries []string) error {
	if len(entries) == 0 {
		return errors.New("graphbuild: no entries")
	}
	for _, entry := range entries {
		b.queue = append(b.queue, &asset.Dependency{
			Specifier:   b.entrySpecifier(entry),
			ResolveFrom: b.opts.Root,
			Source:      graph.RootID,
		})
	}

	stop := context.AfterFunc(ctx, b.abort)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for range b.opts.Threads {
		g.Go(func() error {
			return b.work(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.graph.Validate(); err != nil {
		return err
	}
	b.reportDuplicates()
	return nil
}

func (b *Builder) entrySpecifier(entry string) string {
	rel, err := filepath.Rel(b.opts.Root, entry)
	if err != nil || filepath.IsAbs(rel) {
		return entry
	}
	rel = filepath.ToSlash(rel)
	if len(rel) >= 3 && rel[:3] == "../" {
		return rel
	}
	return "./" + rel
}

func (b *Builder) work(ctx context.Context) error {
	for {
		dep, ok := b.next()
		if !ok {
			return nil
		}
		err := b.process(ctx, dep)
		b.finish()
		if err != nil {
			b.abort()
			return err
		}
	}
}

// next blocks until there is work or the build is over. The queue and the
// in-flight count are checked under one lock so a worker that is about to
// enqueue keeps the others alive.
func (b *Builder) next() (*asset.Dependency, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.queue) == 0 && b.inFlight > 0 && !b.aborted.Load() {
		b.cond.Wait()
	}
	if b.aborted.Load() || len(b.queue) == 0 {
		b.cond.Broadcast()
		return nil, false
	}
	dep := b.queue[0]
	b.queue[0] = nil
	b.queue = b.queue[1:]
	b.inFlight++
	return dep, true
}

func (b *Builder) finish() {
	b.mu.Lock()
	b.inFlight--
	b.mu.Unlock()
	b.cond.Broadcast()
}

func (b *Builder) enqueue(deps []*asset.Dependency) {
	if len(deps) == 0 || b.aborted.Load() {
		return
	}
	b.mu.Lock()
	b.queue = append(b.queue, deps...)
	b.mu.Unlock()
	b.cond.Broadcast()
}

func (b *Builder) abort() {
	b.aborted.Store(true)
	b.mu.Lock()
	b.mu.Unlock()
	b.cond.Broadcast()
}

func (b *Builder) process(ctx context.Context, dep *asset.Dependency) error {
	path, err := b.resolve(ctx, dep)
	if err != nil {
		return err
	}
	if id, ok := b.graph.Lookup(path); ok {
		_, err := b.graph.AddEdge(dep, id)
		return err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return &failure.ReadError{Path: path, Err: err}
	}
	rel := b.rel(path)
	a := asset.New(path, rel, content)
	id, inserted, err := b.graph.InsertIfAbsent(a)
	if err != nil {
		return err
	}
	if _, err := b.graph.AddEdge(dep, id); err != nil {
		return err
	}
	if !inserted {
		return nil
	}
	if len(content) > 0 {
		b.hashMu.Lock()
		b.hashes[rel] = digest.OfBytes(content)
		b.hashMu.Unlock()
	}
	if b.opts.OnAsset != nil {
		b.opts.OnAsset(rel)
	}

	actx, span := trace.BeginCtx(ctx, trace.ScopeAsset, "asset")
	span.Attr("file", rel)
	opts, err := b.transformer.Run(actx, a)
	span.End(a.Kind)
	if err != nil {
		return err
	}
	var next []*asset.Dependency
	for _, o := range opts {
		next = append(next, asset.FromOptions(o, id, path)...)
	}
	b.enqueue(next)
	return nil
}

// resolve coalesces identical lookups that are in flight at the same time.
func (b *Builder) resolve(ctx context.Context, dep *asset.Dependency) (string, error) {
	key := fmt.Sprintf("%s\x00%s\x00%d", dep.ResolveFrom, dep.Specifier, dep.SpecifierType)
	v, err, _ := b.group.Do(key, func() (any, error) {
		return b.resolver.Resolve(ctx, dep)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (b *Builder) rel(path string) string {
	rel, err := filepath.Rel(b.opts.Root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// reportDuplicates warns about paths whose sources were byte-identical
// when read, which usually means a package is installed twice.
func (b *Builder) reportDuplicates() {
	first := make(map[digest.Digest]string)
	for _, a := range b.graph.Assets() {
		h, ok := b.hashes[a.FilePath]
		if !ok {
			continue
		}
		if other, seen := first[h]; seen {
			diag.Warn(b.opts.Reporter, diag.WarnDuplicateAsset, a.FilePath, "same content as "+other)
			continue
		}
		first[h] = a.FilePath
	}
}
