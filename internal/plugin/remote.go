package plugin

import (
	"context"
	"sync"

	"mach/internal/asset"
	"mach/internal/config"
)

// AssetView is the serializable asset handed to a remote transformer.
type AssetView struct {
	FilePath         string                `msgpack:"file_path" json:"file_path"`
	FilePathAbsolute string                `msgpack:"file_path_absolute" json:"file_path_absolute"`
	Kind             string                `msgpack:"kind" json:"kind"`
	Content          []byte                `msgpack:"content" json:"content"`
	LinkingSymbols   []asset.LinkingSymbol `msgpack:"linking_symbols" json:"linking_symbols"`
}

func ViewOf(a *asset.MutableAsset) AssetView {
	return AssetView{
		FilePath:         a.FilePath(),
		FilePathAbsolute: a.FilePathAbsolute(),
		Kind:             a.Kind(),
		Content:          a.Bytes(),
		LinkingSymbols:   a.LinkingSymbols(),
	}
}

// ConfigView is the part of MachConfig a remote transformer sees.
type ConfigView struct {
	Root     string            `msgpack:"root" json:"root"`
	Entries  []string          `msgpack:"entries" json:"entries"`
	DistDir  string            `msgpack:"dist_dir" json:"dist_dir"`
	Optimize bool              `msgpack:"optimize" json:"optimize"`
	Env      map[string]string `msgpack:"env" json:"env"`
}

func ConfigViewOf(cfg *config.MachConfig) ConfigView {
	if cfg == nil {
		return ConfigView{}
	}
	return ConfigView{
		Root:     cfg.Root,
		Entries:  cfg.Entries,
		DistDir:  cfg.DistDir,
		Optimize: cfg.Optimize,
		Env:      cfg.Env,
	}
}

// Patch is a remote transformer's answer. Empty NewKind and ContentSet
// false leave the asset as it was.
type Patch struct {
	NewKind             string                    `msgpack:"new_kind,omitempty" json:"new_kind,omitempty"`
	NewContent          []byte                    `msgpack:"new_content" json:"new_content"`
	ContentSet          bool                      `msgpack:"content_set" json:"content_set"`
	AddedDependencies   []asset.DependencyOptions `msgpack:"added_dependencies" json:"added_dependencies"`
	AddedLinkingSymbols []asset.LinkingSymbol     `msgpack:"added_linking_symbols" json:"added_linking_symbols"`
}

func (p *Patch) ApplyTo(a *asset.MutableAsset) {
	if p == nil {
		return
	}
	if p.NewKind != "" {
		a.SetKind(p.NewKind)
	}
	if p.ContentSet {
		a.SetBytes(p.NewContent)
	}
	for _, d := range p.AddedDependencies {
		a.AddDependency(d)
	}
	for _, s := range p.AddedLinkingSymbols {
		a.AddLinkingSymbol(s)
	}
}

// Connection is a live session with an engine host.
type Connection interface {
	Ping(ctx context.Context) error
	Resolve(ctx context.Context, plugin string, dep *asset.Dependency) (*ResolveResult, error)
	Transform(ctx context.Context, plugin string, view AssetView, cfg ConfigView) (*Patch, error)
	Close() error
}

// Host starts connections to one engine.
type Host interface {
	Engine() string
	Start(ctx context.Context) (Connection, error)
}

// HostFactory returns the host for an engine named in .machrc.
type HostFactory func(engine string) (Host, error)

// engine holds at most one connection, started on first use.
type engine struct {
	name string
	host Host

	mu     sync.Mutex
	conn   Connection
	err    error
	closed bool
}

func (e *engine) connection(ctx context.Context) (Connection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn != nil || e.err != nil {
		return e.conn, e.err
	}
	if e.closed {
		return nil, errEngineClosed(e.name)
	}
	conn, err := e.host.Start(ctx)
	if err != nil {
		e.err = err
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		e.err = err
		return nil, err
	}
	e.conn = conn
	return conn, nil
}

func (e *engine) close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.conn == nil {
		return nil
	}
	err := e.conn.Close()
	e.conn = nil
	return err
}
