package asset

import (
	"strings"

	"mach/internal/ident"
)

// DependencyOptions is what a transformer emits for each specifier it finds.
type DependencyOptions struct {
	Specifier      string          `msgpack:"specifier" json:"specifier"`
	SpecifierType  SpecifierType   `msgpack:"specifier_type" json:"specifier_type"`
	Priority       Priority        `msgpack:"priority" json:"priority"`
	LinkingSymbols []LinkingSymbol `msgpack:"linking_symbols" json:"linking_symbols"`
	BundleBehavior BundleBehavior  `msgpack:"bundle_behavior" json:"bundle_behavior"`
}

// Dependency is an edge from an importer (or Root) to an imported asset.
type Dependency struct {
	ID             ident.Identifier[Dependency]
	Specifier      string
	SpecifierType  SpecifierType
	Priority       Priority
	ResolveFrom    string
	LinkingSymbol  LinkingSymbol
	BundleBehavior BundleBehavior
	// Source is the importer's id; zero for dependencies from Root.
	Source ident.InternalID
}

// EdgeKey is the comparable identity of a dependency edge.
type EdgeKey struct {
	From           ident.InternalID
	To             ident.InternalID
	Specifier      string
	SpecifierType  SpecifierType
	Priority       Priority
	LinkingSymbol  LinkingSymbol
	BundleBehavior BundleBehavior
}

// Key returns the edge identity of d pointing at to.
func (d *Dependency) Key(to ident.InternalID) EdgeKey {
	return EdgeKey{
		From:           d.Source,
		To:             to,
		Specifier:      d.Specifier,
		SpecifierType:  d.SpecifierType,
		Priority:       d.Priority,
		LinkingSymbol:  d.LinkingSymbol,
		BundleBehavior: d.BundleBehavior,
	}
}

// FromOptions expands opts into one dependency per linking symbol.
func FromOptions(opts DependencyOptions, source ident.InternalID, resolveFrom string) []*Dependency {
	syms := opts.LinkingSymbols
	if len(syms) == 0 {
		syms = []LinkingSymbol{Unnamed()}
	}
	out := make([]*Dependency, 0, len(syms))
	for _, s := range syms {
		out = append(out, &Dependency{
			Specifier:      opts.Specifier,
			SpecifierType:  opts.SpecifierType,
			Priority:       opts.Priority,
			ResolveFrom:    resolveFrom,
			LinkingSymbol:  s,
			BundleBehavior: opts.BundleBehavior,
			Source:         source,
		})
	}
	return out
}

// SplitBehaviorSuffix strips a trailing "?inline" or "?isolated" from a
// specifier and returns the behavior it requests.
func SplitBehaviorSuffix(spec string) (string, BundleBehavior) {
	base, query, ok := strings.Cut(spec, "?")
	if !ok {
		return spec, BehaviorDefault
	}
	switch query {
	case "inline":
		return base, BehaviorInline
	case "isolated":
		return base, BehaviorIsolated
	}
	return spec, BehaviorDefault
}
