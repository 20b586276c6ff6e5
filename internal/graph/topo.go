package graph

import (
	"cmp"
	"fmt"
	"slices"

	"fortio.org/safecast"

	"mach/internal/ident"
)

// Subgraph is a dense view over a subset of assets. Nodes are sorted by
// path, so index order is path order.
type Subgraph struct {
	Nodes []ident.InternalID
	Edges [][]int // Edges[from] = []to, deduplicated
	Indeg []int
	index map[ident.InternalID]int
}

// Subgraph builds a dense view over members keeping only edges accepted by
// keep (nil keeps all) whose endpoints are both members.
func (g *AssetGraph) Subgraph(members []ident.InternalID, keep func(Edge) bool) Subgraph {
	nodes := slices.Clone(members)
	slices.SortFunc(nodes, func(a, b ident.InternalID) int {
		return cmp.Or(cmp.Compare(g.Asset(a).FilePath, g.Asset(b).FilePath), cmp.Compare(a, b))
	})
	nodes = slices.Compact(nodes)
	sg := Subgraph{
		Nodes: nodes,
		Edges: make([][]int, len(nodes)),
		Indeg: make([]int, len(nodes)),
		index: make(map[ident.InternalID]int, len(nodes)),
	}
	for i, id := range nodes {
		sg.index[id] = i
	}
	for from, id := range nodes {
		seen := make(map[int]bool)
		for _, e := range g.Outgoing(id) {
			to, ok := sg.index[e.To]
			if !ok || seen[to] || (keep != nil && !keep(e)) {
				continue
			}
			seen[to] = true
			sg.Edges[from] = append(sg.Edges[from], to)
			sg.Indeg[to]++
		}
		slices.Sort(sg.Edges[from])
	}
	return sg
}

// Index returns the dense index of id.
func (sg Subgraph) Index(id ident.InternalID) (int, bool) {
	i, ok := sg.index[id]
	return i, ok
}

type Topo struct {
	Order   []ident.InternalID
	Batches [][]ident.InternalID
	Cyclic  bool
	// Cycles lists the nodes that were released by breaking a cycle.
	Cycles []ident.InternalID
}

// ToposortKahn orders the subgraph so that every node comes after the nodes
// it depends on (reverse edge direction: importers after imports). Ties go
// to the lower index. When only cycles remain, the lowest remaining index
// is released, which keeps the order a pure function of the inputs.
func ToposortKahn(sg Subgraph) *Topo {
	n := len(sg.Nodes)
	// Dependencies first: count outgoing edges (imports) still pending.
	pending := make([]int, n)
	importers := make([][]int, n)
	for from, tos := range sg.Edges {
		for _, to := range tos {
			if to == from {
				continue
			}
			pending[from]++
			importers[to] = append(importers[to], from)
		}
	}

	topo := &Topo{Order: make([]ident.InternalID, 0, n)}
	done := make([]bool, n)
	current := make([]int, 0, n)
	for i := range n {
		if pending[i] == 0 {
			current = append(current, i)
		}
	}

	visited := 0
	for visited < n {
		if len(current) == 0 {
			// cycle: release the lowest remaining node
			for i := range n {
				if !done[i] {
					current = append(current, i)
					topo.Cyclic = true
					topo.Cycles = append(topo.Cycles, sg.Nodes[i])
					break
				}
			}
		}
		slices.Sort(current)
		batch := make([]ident.InternalID, 0, len(current))
		var next []int
		for _, i := range current {
			if done[i] {
				continue
			}
			done[i] = true
			visited++
			batch = append(batch, sg.Nodes[i])
			for _, imp := range importers[i] {
				pending[imp]--
				if pending[imp] == 0 && !done[imp] {
					next = append(next, imp)
				}
			}
		}
		if len(batch) > 0 {
			topo.Batches = append(topo.Batches, batch)
			topo.Order = append(topo.Order, batch...)
		}
		current = next
	}
	return topo
}

// StronglyConnected returns the non-trivial strongly connected components
// of sg (size > 1, or a single node with a self edge). Components and
// their members are sorted by index.
func StronglyConnected(sg Subgraph) [][]ident.InternalID {
	n := len(sg.Nodes)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}
	var (
		stack []int
		next  int
		comps [][]int
	)
	var visit func(v int)
	visit = func(v int) {
		index[v], low[v] = next, next
		next++
		stack = append(stack, v)
		onStack[v] = true
		for _, w := range sg.Edges[v] {
			if index[w] < 0 {
				visit(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}
		if low[v] != index[v] {
			return
		}
		var comp []int
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			comp = append(comp, w)
			if w == v {
				break
			}
		}
		if len(comp) > 1 || slices.Contains(sg.Edges[v], v) {
			slices.Sort(comp)
			comps = append(comps, comp)
		}
	}
	for v := range n {
		if index[v] < 0 {
			visit(v)
		}
	}
	slices.SortFunc(comps, func(a, b []int) int { return cmp.Compare(a[0], b[0]) })

	out := make([][]ident.InternalID, 0, len(comps))
	for _, comp := range comps {
		ids := make([]ident.InternalID, 0, len(comp))
		for _, i := range comp {
			ids = append(ids, sg.Nodes[i])
		}
		out = append(out, ids)
	}
	return out
}

// Reachable returns the ids reachable from start through edges accepted by
// keep, start included, in breadth-first order with deterministic edge
// order.
func (g *AssetGraph) Reachable(start ident.InternalID, keep func(Edge) bool) []ident.InternalID {
	seen := map[ident.InternalID]bool{start: true}
	order := []ident.InternalID{start}
	for i := 0; i < len(order); i++ {
		for _, e := range g.Outgoing(order[i]) {
			if seen[e.To] || (keep != nil && !keep(e)) {
				continue
			}
			seen[e.To] = true
			order = append(order, e.To)
		}
	}
	return order
}

// Stats summarises the graph for progress output.
type Stats struct {
	Assets uint32
	Edges  uint32
}

func (g *AssetGraph) Stats() (Stats, error) {
	assets, err := safecast.Conv[uint32](g.Len())
	if err != nil {
		return Stats{}, fmt.Errorf("asset count overflow: %w", err)
	}
	edges, err := safecast.Conv[uint32](g.EdgeCount())
	if err != nil {
		return Stats{}, fmt.Errorf("edge count overflow: %w", err)
	}
	return Stats{Assets: assets, Edges: edges}, nil
}
