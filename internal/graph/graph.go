// Package graph holds the asset graph: an arena of assets keyed by id, a
// set of dependency edges and a synthetic Root node with one edge per entry.
package graph

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"mach/internal/asset"
	"mach/internal/ident"
)

// RootID names the synthetic root. Real assets never get id 0.
const RootID ident.InternalID = 0

// Edge is one dependency edge. Dep.Source equals From.
type Edge struct {
	From ident.InternalID
	To   ident.InternalID
	Dep  *asset.Dependency
}

// AssetGraph is safe for concurrent use: writers take the lock for the
// duration of one insert, readers for one lookup.
type AssetGraph struct {
	mu      sync.RWMutex
	ids     *ident.Counter
	depIDs  *ident.Counter
	assets  map[ident.InternalID]*asset.Asset
	byPath  map[string]ident.InternalID
	edges   []Edge
	edgeSet map[asset.EdgeKey]struct{}
	out     map[ident.InternalID][]int
	in      map[ident.InternalID][]int
}

// New returns an empty graph drawing ids from the given counters. Nil
// counters get private ones.
func New(assetIDs, depIDs *ident.Counter) *AssetGraph {
	if assetIDs == nil {
		assetIDs = new(ident.Counter)
	}
	if depIDs == nil {
		depIDs = new(ident.Counter)
	}
	return &AssetGraph{
		ids:     assetIDs,
		depIDs:  depIDs,
		assets:  make(map[ident.InternalID]*asset.Asset),
		byPath:  make(map[string]ident.InternalID),
		edgeSet: make(map[asset.EdgeKey]struct{}),
		out:     make(map[ident.InternalID][]int),
		in:      make(map[ident.InternalID][]int),
	}
}

// InsertIfAbsent adds a keyed on its absolute path. When another asset
// already owns the path its id is returned with inserted=false and a is
// left untouched.
func (g *AssetGraph) InsertIfAbsent(a *asset.Asset) (id ident.InternalID, inserted bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.byPath[a.FilePathAbsolute]; ok {
		return id, false, nil
	}
	id = g.ids.Next()
	if err := a.ID.Set(id); err != nil {
		return 0, false, fmt.Errorf("insert %s: %w", a.FilePath, err)
	}
	g.assets[id] = a
	g.byPath[a.FilePathAbsolute] = id
	return id, true, nil
}

// Lookup returns the id of the asset at an absolute path.
func (g *AssetGraph) Lookup(path string) (ident.InternalID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.byPath[path]
	return id, ok
}

// Asset returns the asset with id, or nil.
func (g *AssetGraph) Asset(id ident.InternalID) *asset.Asset {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.assets[id]
}

// AddEdge links dep to the asset to. Duplicate edges are ignored and
// reported with added=false.
func (g *AssetGraph) AddEdge(dep *asset.Dependency, to ident.InternalID) (added bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if dep.Source != RootID {
		if _, ok := g.assets[dep.Source]; !ok {
			return false, fmt.Errorf("edge %q: unknown source asset %d", dep.Specifier, dep.Source)
		}
	}
	if _, ok := g.assets[to]; !ok {
		return false, fmt.Errorf("edge %q: unknown target asset %d", dep.Specifier, to)
	}
	key := dep.Key(to)
	if _, dup := g.edgeSet[key]; dup {
		return false, nil
	}
	if err := dep.ID.Set(g.depIDs.Next()); err != nil {
		return false, fmt.Errorf("edge %q: %w", dep.Specifier, err)
	}
	g.edgeSet[key] = struct{}{}
	idx := len(g.edges)
	g.edges = append(g.edges, Edge{From: dep.Source, To: to, Dep: dep})
	g.out[dep.Source] = append(g.out[dep.Source], idx)
	g.in[to] = append(g.in[to], idx)
	return true, nil
}

// Outgoing returns the edges leaving id in a deterministic order.
func (g *AssetGraph) Outgoing(id ident.InternalID) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(g.out[id])
}

// Incoming returns the edges entering id in a deterministic order.
func (g *AssetGraph) Incoming(id ident.InternalID) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(g.in[id])
}

// Entries returns the Root edges.
func (g *AssetGraph) Entries() []Edge {
	return g.Outgoing(RootID)
}

func (g *AssetGraph) collect(idxs []int) []Edge {
	out := make([]Edge, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, g.edges[i])
	}
	slices.SortFunc(out, g.compareEdges)
	return out
}

// compareEdges orders by endpoint paths, then by dependency attributes, so
// the result does not depend on insertion order.
func (g *AssetGraph) compareEdges(a, b Edge) int {
	return cmp.Or(
		cmp.Compare(g.pathOf(a.From), g.pathOf(b.From)),
		cmp.Compare(g.pathOf(a.To), g.pathOf(b.To)),
		cmp.Compare(a.Dep.Specifier, b.Dep.Specifier),
		cmp.Compare(a.Dep.Priority, b.Dep.Priority),
		cmp.Compare(a.Dep.SpecifierType, b.Dep.SpecifierType),
		cmp.Compare(a.Dep.BundleBehavior, b.Dep.BundleBehavior),
		cmp.Compare(a.Dep.LinkingSymbol.Kind, b.Dep.LinkingSymbol.Kind),
		cmp.Compare(a.Dep.LinkingSymbol.Sym, b.Dep.LinkingSymbol.Sym),
		cmp.Compare(a.Dep.LinkingSymbol.SymAs, b.Dep.LinkingSymbol.SymAs),
	)
}

func (g *AssetGraph) pathOf(id ident.InternalID) string {
	if a := g.assets[id]; a != nil {
		return a.FilePath
	}
	return ""
}

// Assets returns every asset sorted by project-relative path.
func (g *AssetGraph) Assets() []*asset.Asset {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*asset.Asset, 0, len(g.assets))
	for _, a := range g.assets {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b *asset.Asset) int { return cmp.Compare(a.FilePath, b.FilePath) })
	return out
}

// Edges returns all edges in a deterministic order.
func (g *AssetGraph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	slices.SortFunc(out, g.compareEdges)
	return out
}

func (g *AssetGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.assets)
}

func (g *AssetGraph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// Validate checks closure: every edge points at an asset in the graph and
// every asset is reachable from Root.
func (g *AssetGraph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, e := range g.edges {
		if _, ok := g.assets[e.To]; !ok {
			return fmt.Errorf("dangling edge %q -> %d", e.Dep.Specifier, e.To)
		}
	}
	seen := make(map[ident.InternalID]bool, len(g.assets))
	stack := []ident.InternalID{RootID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, i := range g.out[id] {
			to := g.edges[i].To
			if !seen[to] {
				seen[to] = true
				stack = append(stack, to)
			}
		}
	}
	for id, a := range g.assets {
		if !seen[id] {
			return fmt.Errorf("asset %s is not reachable from root", a.FilePath)
		}
	}
	return nil
}
