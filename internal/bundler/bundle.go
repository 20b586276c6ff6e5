// Package bundler partitions an asset graph into bundles: one per entry,
// one per lazy or isolated boundary, one per change of kind, and
// optionally shared bundles for code used by several bundles.
package bundler

import (
	"slices"

	"mach/internal/ident"
)

// Bundle is one output file's worth of assets.
type Bundle struct {
	Kind string
	// Entry is the seed asset; zero for shared bundles.
	Entry ident.InternalID
	Name  string
	// Assets are the members in walk order.
	Assets []ident.InternalID
	// Inline are assets embedded into this bundle instead of getting
	// their own file.
	Inline []ident.InternalID
	// Refs maps assets referenced from this bundle but placed elsewhere to
	// the bundle that holds them.
	Refs map[ident.InternalID]*Bundle
	// LoadMap lists bundles that must be loaded before the entry runs.
	LoadMap []*Bundle
	// Boot is set when loading the bundle runs its entry.
	Boot   bool
	Shared bool

	index   int
	members map[ident.InternalID]bool
}

func newBundle(index int, kind string, entry ident.InternalID) *Bundle {
	return &Bundle{
		Kind:    kind,
		Entry:   entry,
		Refs:    make(map[ident.InternalID]*Bundle),
		index:   index,
		members: make(map[ident.InternalID]bool),
	}
}

// Has reports whether id is a member.
func (b *Bundle) Has(id ident.InternalID) bool {
	return b.members[id]
}

// IsInline reports whether id is embedded into b.
func (b *Bundle) IsInline(id ident.InternalID) bool {
	return slices.Contains(b.Inline, id)
}

func (b *Bundle) add(id ident.InternalID) bool {
	if b.members[id] {
		return false
	}
	b.members[id] = true
	b.Assets = append(b.Assets, id)
	return true
}

func (b *Bundle) remove(drop map[ident.InternalID]bool) {
	b.Assets = slices.DeleteFunc(b.Assets, func(id ident.InternalID) bool {
		if drop[id] {
			delete(b.members, id)
			return true
		}
		return false
	})
}

func (b *Bundle) needs(other *Bundle) {
	if other == b || slices.Contains(b.LoadMap, other) {
		return
	}
	b.LoadMap = append(b.LoadMap, other)
}

// LoadOrder returns the bundles to fetch for b to run, dependencies first,
// b last.
func (b *Bundle) LoadOrder() []*Bundle {
	var out []*Bundle
	seen := make(map[*Bundle]bool)
	var visit func(*Bundle)
	visit = func(x *Bundle) {
		if seen[x] {
			return
		}
		seen[x] = true
		for _, dep := range x.LoadMap {
			visit(dep)
		}
		out = append(out, x)
	}
	visit(b)
	return out
}

func (b *Bundle) String() string {
	return b.Name
}
