// Package packager renders bundles into output files: JS bundles become a
// runtime stub plus one registration per module, CSS bundles are
// concatenated stylesheets, HTML documents get their references pointed at
// sibling bundles and everything else passes through.
package packager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"mach/internal/asset"
	"mach/internal/bundler"
	"mach/internal/diag"
	"mach/internal/failure"
	"mach/internal/graph"
	"mach/internal/ident"
	"mach/internal/trace"
)

// Output is one file to write into the dist directory.
type Output struct {
	Content []byte
	// FilePath is the bundle name, relative to the dist directory.
	FilePath string
}

type Options struct {
	Optimize bool
	Threads  int
	Reporter diag.Reporter
}

type packager struct {
	g    *graph.AssetGraph
	opts Options
}

// Package renders every bundle. Outputs come back in the order of bundles,
// which the bundler sorts by name.
func Package(ctx context.Context, g *graph.AssetGraph, bundles []*bundler.Bundle, opts Options) ([]Output, error) {
	if opts.Reporter == nil {
		opts.Reporter = diag.NopReporter{}
	}
	if opts.Threads < 1 {
		opts.Threads = 1
	}
	p := &packager{g: g, opts: opts}
	p.reportStarCycles()
	if !opts.Optimize && hasKind(bundles, "js") {
		diag.Warn(opts.Reporter, diag.WarnSourceMapMissing, "", "source maps are not emitted for unoptimized builds")
	}

	out := make([]Output, len(bundles))
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.Threads)
	for i, b := range bundles {
		eg.Go(func() error {
			bctx, span := trace.BeginCtx(ectx, trace.ScopeAsset, "package")
			span.Attr("bundle", b.Name)
			content, err := p.render(bctx, b)
			span.End("")
			if err != nil {
				return packagerError(b, err)
			}
			out[i] = Output{Content: content, FilePath: b.Name}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *packager) render(ctx context.Context, b *bundler.Bundle) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch b.Kind {
	case "js":
		return p.renderJS(ctx, b)
	case "css":
		return p.renderCSS(ctx, b)
	case "html":
		return p.renderHTML(ctx, b)
	}
	return p.renderRaw(b), nil
}

// renderRaw concatenates member content unchanged.
func (p *packager) renderRaw(b *bundler.Bundle) []byte {
	var buf bytes.Buffer
	for _, id := range b.Assets {
		buf.Write(p.g.Asset(id).Content)
	}
	return buf.Bytes()
}

// reportStarCycles warns once per chain of modules re-exporting each other
// through `export *`.
func (p *packager) reportStarCycles() {
	var ids []ident.InternalID
	for _, a := range p.g.Assets() {
		if a.Kind == "js" {
			ids = append(ids, a.ID.MustGet())
		}
	}
	sg := p.g.Subgraph(ids, func(e graph.Edge) bool {
		return e.Dep.LinkingSymbol == asset.Namespace("*")
	})
	for _, comp := range graph.StronglyConnected(sg) {
		paths := make([]string, len(comp))
		for i, id := range comp {
			paths[i] = p.g.Asset(id).FilePath
		}
		diag.Warn(p.opts.Reporter, diag.WarnExportStarCycle, paths[0],
			"export * cycle through "+strings.Join(paths, " -> "))
	}
}

// targets maps the specifiers an asset used to the assets they resolved
// to, with any behavior suffix stripped.
func (p *packager) targets(id ident.InternalID) map[string]ident.InternalID {
	out := make(map[string]ident.InternalID)
	for _, e := range p.g.Outgoing(id) {
		spec, _ := asset.SplitBehaviorSuffix(e.Dep.Specifier)
		if _, ok := out[spec]; !ok {
			out[spec] = e.To
		}
	}
	return out
}

func (p *packager) lookup(targets map[string]ident.InternalID, spec string) (ident.InternalID, bool) {
	spec, _ = asset.SplitBehaviorSuffix(spec)
	id, ok := targets[spec]
	return id, ok
}

func hasKind(bundles []*bundler.Bundle, kind string) bool {
	for _, b := range bundles {
		if b.Kind == kind {
			return true
		}
	}
	return false
}

func packagerError(b *bundler.Bundle, err error) error {
	var pe *failure.PackagerError
	if errors.As(err, &pe) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &failure.PackagerError{Bundle: b.Name, Reason: err.Error()}
}

// errorf reports a failure inside one asset of a bundle.
func errorf(a *asset.Asset, format string, args ...any) error {
	return fmt.Errorf("%s: %s", a.FilePath, fmt.Sprintf(format, args...))
}
