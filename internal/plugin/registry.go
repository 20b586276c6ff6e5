package plugin

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"

	"mach/internal/config"
	"mach/internal/failure"
)

// Builtins are the in-process plugin implementations by identifier.
type Builtins struct {
	Resolvers    map[string]Resolver
	Transformers map[string]Transformer
}

type rule struct {
	pattern string
	plugins []*Plugin
	hits    atomic.Int64
}

// Registry resolves .machrc identifiers to plugins. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	resolvers []*Plugin
	rules     []*rule
	engines   map[string]*engine
}

// NewRegistry builds the registry for rc. hosts is consulted once per
// remote engine referenced by rc; it may be nil when rc uses builtins only.
func NewRegistry(rc config.Machrc, builtins Builtins, hosts HostFactory) (*Registry, error) {
	r := &Registry{engines: make(map[string]*engine)}
	for _, id := range rc.Resolvers {
		p, err := r.plugin(id, builtins, hosts, true)
		if err != nil {
			return nil, err
		}
		r.resolvers = append(r.resolvers, p)
	}
	for _, tr := range rc.Transformers {
		if !doublestar.ValidatePattern(tr.Pattern) {
			return nil, &failure.ConfigError{Path: rc.Path, Err: fmt.Errorf("invalid glob %q", tr.Pattern)}
		}
		ru := &rule{pattern: tr.Pattern}
		for _, id := range tr.Plugins {
			p, err := r.plugin(id, builtins, hosts, false)
			if err != nil {
				return nil, err
			}
			ru.plugins = append(ru.plugins, p)
		}
		r.rules = append(r.rules, ru)
	}
	return r, nil
}

func (r *Registry) plugin(id string, builtins Builtins, hosts HostFactory, resolver bool) (*Plugin, error) {
	engineName, name, err := ParseID(id)
	if err != nil {
		return nil, &failure.ConfigError{Err: err}
	}
	p := &Plugin{ID: id, Engine: engineName, Name: name}
	if engineName == config.BuiltinEnginePrefix {
		if resolver {
			p.resolver = builtins.Resolvers[id]
		} else {
			p.transformer = builtins.Transformers[id]
		}
		if p.resolver == nil && p.transformer == nil {
			return nil, &failure.ConfigError{Err: fmt.Errorf("unknown builtin plugin %q", id)}
		}
		return p, nil
	}
	p.Kind = KindRemote
	e, ok := r.engines[engineName]
	if !ok {
		if hosts == nil {
			return nil, &failure.ConfigError{Err: fmt.Errorf("plugin %q needs engine %q but no engine hosts are available", id, engineName)}
		}
		host, err := hosts(engineName)
		if err != nil {
			return nil, &failure.PluginError{Plugin: id, Op: "start", Err: err}
		}
		e = &engine{name: engineName, host: host}
		r.engines[engineName] = e
	}
	p.remote = e
	return p, nil
}

// Resolvers returns the resolver chain in .machrc order.
func (r *Registry) Resolvers() []*Plugin {
	return r.resolvers
}

// TransformersFor returns the pipeline of the first rule matching rel. A
// pattern without a slash is matched against the base name, otherwise
// against the whole project-relative path.
func (r *Registry) TransformersFor(rel string) (pattern string, plugins []*Plugin, ok bool) {
	rel = strings.TrimPrefix(rel, "./")
	base := path.Base(rel)
	for _, ru := range r.rules {
		subject := rel
		if !strings.Contains(ru.pattern, "/") {
			subject = base
		}
		if matched, _ := doublestar.Match(ru.pattern, subject); matched {
			ru.hits.Add(1)
			return ru.pattern, ru.plugins, true
		}
	}
	return "", nil, false
}

// UnmatchedPatterns lists patterns that no asset has matched so far.
func (r *Registry) UnmatchedPatterns() []string {
	var out []string
	for _, ru := range r.rules {
		if ru.hits.Load() == 0 {
			out = append(out, ru.pattern)
		}
	}
	return out
}

// Close shuts down every started engine connection.
func (r *Registry) Close() error {
	var errs []error
	for _, e := range r.engines {
		if err := e.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func errEngineClosed(name string) error {
	return fmt.Errorf("engine %s is closed", name)
}
