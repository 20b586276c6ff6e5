// Package resolve turns dependency specifiers into files. Driver walks the
// configured resolver chain; NodeResolver is the builtin mach:resolver.
package resolve

import (
	"context"
	"errors"
	"path/filepath"

	"mach/internal/asset"
	"mach/internal/failure"
	"mach/internal/plugin"
	"mach/internal/trace"
)

// Driver asks each resolver in order until one claims the dependency.
type Driver struct {
	resolvers []*plugin.Plugin
}

func NewDriver(resolvers []*plugin.Plugin) *Driver {
	return &Driver{resolvers: resolvers}
}

// Resolve returns the absolute path of dep's target.
func (d *Driver) Resolve(ctx context.Context, dep *asset.Dependency) (string, error) {
	for _, p := range d.resolvers {
		_, span := trace.BeginCtx(ctx, trace.ScopePlugin, "resolve")
		span.Attr("plugin", p.ID).Attr("specifier", dep.Specifier)
		res, err := p.Resolve(ctx, dep)
		if err != nil {
			span.End("error")
			return "", wrapResolverError(p.ID, err)
		}
		if res == nil {
			span.End("yield")
			continue
		}
		span.End(res.FilePath)
		path := res.FilePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir(dep.ResolveFrom), path)
		}
		return filepath.Clean(path), nil
	}
	return "", &failure.UnresolvedSpecifier{Specifier: dep.Specifier, From: dep.ResolveFrom}
}

func wrapResolverError(id string, err error) error {
	var (
		pt *failure.PluginTimeout
		pe *failure.PluginError
		re *failure.ResolverError
	)
	if errors.As(err, &pt) || errors.As(err, &pe) || errors.As(err, &re) {
		return err
	}
	return &failure.ResolverError{Plugin: id, Message: err.Error()}
}
