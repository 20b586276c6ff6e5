// Package transform runs transformer pipelines over assets until their kind
// settles, and provides the builtin transformers.
package transform

import (
	"context"
	"errors"
	"path"
	"strings"

	"mach/internal/asset"
	"mach/internal/config"
	"mach/internal/failure"
	"mach/internal/plugin"
	"mach/internal/trace"
)

// MaxIterations bounds kind changes per asset.
const MaxIterations = 8

// Router picks the pipeline for a project-relative path.
type Router interface {
	TransformersFor(rel string) (pattern string, plugins []*plugin.Plugin, ok bool)
}

// Driver applies the routed pipeline to an asset, rerouting whenever a
// plugin changes the asset's kind.
type Driver struct {
	router Router
	cfg    *config.MachConfig
}

func NewDriver(router Router, cfg *config.MachConfig) *Driver {
	return &Driver{router: router, cfg: cfg}
}

// Run transforms a in place and returns the dependencies the pipeline
// collected, in the order they were added.
func (d *Driver) Run(ctx context.Context, a *asset.Asset) ([]asset.DependencyOptions, error) {
	m := asset.NewMutable(a)
	kinds := []string{a.Kind}
	for range MaxIterations {
		_, plugins, ok := d.router.TransformersFor(RoutePath(a.FilePath, a.Kind))
		if !ok {
			return m.Dependencies(), nil
		}
		changed := false
		for _, p := range plugins {
			before := a.Kind
			pctx, span := trace.BeginCtx(ctx, trace.ScopePlugin, "transform")
			span.Attr("plugin", p.ID).Attr("file", a.FilePath)
			err := p.Transform(pctx, m, d.cfg)
			span.End(a.Kind)
			if err != nil {
				return nil, wrapTransformerError(p.ID, a.FilePath, err)
			}
			if a.Kind != before {
				changed = true
			}
		}
		if !changed {
			return m.Dependencies(), nil
		}
		kinds = append(kinds, a.Kind)
	}
	return nil, &failure.TransformerLoop{File: a.FilePath, Kinds: kinds}
}

// RoutePath is rel with its extension replaced by kind.
func RoutePath(rel, kind string) string {
	ext := path.Ext(rel)
	if strings.TrimPrefix(ext, ".") == kind || kind == "" {
		return rel
	}
	return strings.TrimSuffix(rel, ext) + "." + kind
}

func wrapTransformerError(id, file string, err error) error {
	var (
		pt *failure.PluginTimeout
		pe *failure.PluginError
		te *failure.TransformerError
	)
	if errors.As(err, &pt) || errors.As(err, &pe) || errors.As(err, &te) {
		return err
	}
	return &failure.TransformerError{Plugin: id, File: file, Message: err.Error()}
}

// Builtins returns the transformers behind the mach:transformer/* ids.
func Builtins() map[string]plugin.Transformer {
	return map[string]plugin.Transformer{
		config.TransformerJS:   plugin.TransformerFunc(JavaScript),
		config.TransformerJSON: plugin.TransformerFunc(JSON),
		config.TransformerCSS:  plugin.TransformerFunc(CSS),
		config.TransformerHTML: plugin.TransformerFunc(HTML),
		config.TransformerDrop: plugin.TransformerFunc(Drop),
	}
}
