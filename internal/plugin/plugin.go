// Package plugin defines the resolver and transformer contracts, the
// Builtin/Remote plugin variant and the registry built from .machrc.
package plugin

import (
	"context"
	"fmt"
	"strings"

	"mach/internal/asset"
	"mach/internal/config"
)

// ResolveResult is what a resolver returns when it claims a specifier.
type ResolveResult struct {
	FilePath string `msgpack:"file_path" json:"file_path"`
}

// Resolver maps a dependency to a file. A nil result with a nil error
// means the resolver yields to the next one.
type Resolver interface {
	Resolve(ctx context.Context, dep *asset.Dependency) (*ResolveResult, error)
}

// Transformer rewrites an asset in place.
type Transformer interface {
	Transform(ctx context.Context, a *asset.MutableAsset, cfg *config.MachConfig) error
}

type ResolverFunc func(ctx context.Context, dep *asset.Dependency) (*ResolveResult, error)

func (f ResolverFunc) Resolve(ctx context.Context, dep *asset.Dependency) (*ResolveResult, error) {
	return f(ctx, dep)
}

type TransformerFunc func(ctx context.Context, a *asset.MutableAsset, cfg *config.MachConfig) error

func (f TransformerFunc) Transform(ctx context.Context, a *asset.MutableAsset, cfg *config.MachConfig) error {
	return f(ctx, a, cfg)
}

type Kind uint8

const (
	KindBuiltin Kind = iota
	KindRemote
)

func (k Kind) String() string {
	if k == KindRemote {
		return "remote"
	}
	return "builtin"
}

// Plugin is either a builtin implementation or a name served by a remote
// engine. Both expose the same two operations.
type Plugin struct {
	ID     string
	Engine string
	Name   string
	Kind   Kind

	resolver    Resolver
	transformer Transformer
	remote      *engine
}

// ParseID splits "engine:name".
func ParseID(id string) (engine, name string, err error) {
	engine, name, ok := strings.Cut(id, ":")
	if !ok || engine == "" || name == "" {
		return "", "", fmt.Errorf("invalid plugin identifier %q (expected engine:name)", id)
	}
	return engine, name, nil
}

func (p *Plugin) String() string { return p.ID }

// Resolve runs the resolver half of the plugin.
func (p *Plugin) Resolve(ctx context.Context, dep *asset.Dependency) (*ResolveResult, error) {
	if p.Kind == KindBuiltin {
		if p.resolver == nil {
			return nil, fmt.Errorf("plugin %s is not a resolver", p.ID)
		}
		return p.resolver.Resolve(ctx, dep)
	}
	conn, err := p.remote.connection(ctx)
	if err != nil {
		return nil, err
	}
	return conn.Resolve(ctx, p.Name, dep)
}

// Transform runs the transformer half of the plugin. Remote patches are
// applied to a before returning.
func (p *Plugin) Transform(ctx context.Context, a *asset.MutableAsset, cfg *config.MachConfig) error {
	if p.Kind == KindBuiltin {
		if p.transformer == nil {
			return fmt.Errorf("plugin %s is not a transformer", p.ID)
		}
		return p.transformer.Transform(ctx, a, cfg)
	}
	conn, err := p.remote.connection(ctx)
	if err != nil {
		return err
	}
	patch, err := conn.Transform(ctx, p.Name, ViewOf(a), ConfigViewOf(cfg))
	if err != nil {
		return err
	}
	patch.ApplyTo(a)
	return nil
}
