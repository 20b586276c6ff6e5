package bundler

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/RoaringBitmap/roaring"

	"mach/internal/asset"
	"mach/internal/digest"
	"mach/internal/failure"
	"mach/internal/graph"
	"mach/internal/ident"
)

// HashLength is the number of hex characters of the content hash in a
// bundle name.
const HashLength = 15

// Options control partitioning.
type Options struct {
	Splitting bool
	// MinUsers is how many bundles must share an asset before splitting
	// moves it into a shared bundle.
	MinUsers int
}

type bundleKey struct {
	seed ident.InternalID
	kind string
}

type bundler struct {
	g       *graph.AssetGraph
	opts    Options
	bundles []*Bundle
	byKey   map[bundleKey]*Bundle
	pending []*Bundle
}

// Partition splits g into bundles. The result is sorted by bundle name.
func Partition(g *graph.AssetGraph, opts Options) ([]*Bundle, error) {
	if opts.MinUsers < 2 {
		opts.MinUsers = 2
	}
	b := &bundler{g: g, opts: opts, byKey: make(map[bundleKey]*Bundle)}
	for _, e := range g.Entries() {
		root := b.seed(e.To)
		root.Boot = true
	}
	for len(b.pending) > 0 {
		next := b.pending[0]
		b.pending = b.pending[1:]
		b.walk(next)
	}
	if err := b.checkIsolated(); err != nil {
		return nil, err
	}
	if opts.Splitting {
		b.split()
	}
	b.name()
	out := slices.Clone(b.bundles)
	slices.SortFunc(out, func(x, y *Bundle) int { return cmp.Compare(x.Name, y.Name) })
	return out, nil
}

// seed returns the bundle started by id, creating and queueing it once.
func (b *bundler) seed(id ident.InternalID) *Bundle {
	a := b.g.Asset(id)
	key := bundleKey{seed: id, kind: a.Kind}
	if existing, ok := b.byKey[key]; ok {
		return existing
	}
	nb := newBundle(len(b.bundles), a.Kind, id)
	nb.add(id)
	b.bundles = append(b.bundles, nb)
	b.byKey[key] = nb
	b.pending = append(b.pending, nb)
	return nb
}

func behaviorOf(e graph.Edge, to *asset.Asset) asset.BundleBehavior {
	if e.Dep.BundleBehavior != asset.BehaviorDefault {
		return e.Dep.BundleBehavior
	}
	return to.BundleBehavior
}

// loadable kinds are fetched by the runtime before a bundle boots.
func loadable(kind string) bool {
	return kind == "js" || kind == "css"
}

// walk grows bundle from its entry breadth-first. Inline assets are
// walked too.
func (b *bundler) walk(bundle *Bundle) {
	queue := []ident.InternalID{bundle.Entry}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, e := range b.g.Outgoing(u) {
			v := b.g.Asset(e.To)
			switch {
			case behaviorOf(e, v) == asset.BehaviorIsolated:
				child := b.seed(e.To)
				bundle.Refs[e.To] = child
				if e.Dep.Priority == asset.PrioritySync && loadable(child.Kind) {
					bundle.needs(child)
				}
			case behaviorOf(e, v) == asset.BehaviorInline:
				// the inlined body still imports things, so its edges are
				// walked like a member's
				if !bundle.IsInline(e.To) {
					bundle.Inline = append(bundle.Inline, e.To)
					queue = append(queue, e.To)
				}
			case e.Dep.Priority == asset.PriorityLazy:
				bundle.Refs[e.To] = b.seed(e.To)
			case v.Kind == bundle.Kind:
				if bundle.add(e.To) {
					queue = append(queue, e.To)
				}
			default:
				sibling := b.seed(e.To)
				sibling.Boot = true
				bundle.Refs[e.To] = sibling
				if loadable(sibling.Kind) && bundle.Kind != "html" {
					bundle.needs(sibling)
				}
			}
		}
	}
}

// checkIsolated rejects partitions where an isolated asset ended up next
// to an importer.
func (b *bundler) checkIsolated() error {
	for _, bundle := range b.bundles {
		for _, id := range bundle.Assets {
			for _, e := range b.g.Outgoing(id) {
				if behaviorOf(e, b.g.Asset(e.To)) != asset.BehaviorIsolated || !bundle.Has(e.To) || e.To == bundle.Entry {
					continue
				}
				return &failure.BundlerError{Reason: fmt.Sprintf("isolated asset %s shares a bundle with its importer %s",
					b.g.Asset(e.To).FilePath, b.g.Asset(id).FilePath)}
			}
		}
	}
	return nil
}

// split moves JS assets used by at least MinUsers bundles into shared
// bundles, one per distinct set of users.
func (b *bundler) split() {
	seeds := make(map[ident.InternalID]bool)
	for _, bundle := range b.bundles {
		seeds[bundle.Entry] = true
	}
	users := make(map[ident.InternalID]*roaring.Bitmap)
	var order []ident.InternalID
	for _, bundle := range b.bundles {
		if bundle.Kind != "js" {
			continue
		}
		for _, id := range bundle.Assets {
			if seeds[id] {
				continue
			}
			bm, ok := users[id]
			if !ok {
				bm = roaring.New()
				users[id] = bm
				order = append(order, id)
			}
			bm.Add(uint32(bundle.index))
		}
	}

	groups := make(map[string]*Bundle)
	var shared []*Bundle
	drop := make(map[int]map[ident.InternalID]bool)
	for _, id := range order {
		bm := users[id]
		if bm.GetCardinality() < uint64(b.opts.MinUsers) {
			continue
		}
		key := bm.String()
		sb, ok := groups[key]
		if !ok {
			sb = newBundle(len(b.bundles)+len(shared), "js", 0)
			sb.Shared = true
			groups[key] = sb
			shared = append(shared, sb)
			for _, idx := range bm.ToArray() {
				b.bundles[idx].needs(sb)
			}
		}
		sb.add(id)
		for _, idx := range bm.ToArray() {
			if drop[int(idx)] == nil {
				drop[int(idx)] = make(map[ident.InternalID]bool)
			}
			drop[int(idx)][id] = true
		}
	}
	for idx, ids := range drop {
		b.bundles[idx].remove(ids)
	}
	for _, sb := range shared {
		slices.SortFunc(sb.Assets, func(x, y ident.InternalID) int {
			return cmp.Compare(b.g.Asset(x).FilePath, b.g.Asset(y).FilePath)
		})
	}
	b.bundles = append(b.bundles, shared...)
}

// name assigns <stem>.<hash>.<kind>. Clashing names get a numeric suffix
// on the stem, in creation order.
func (b *bundler) name() {
	taken := make(map[string]bool)
	for _, bundle := range b.bundles {
		stem := "shared"
		if !bundle.Shared {
			stem = Stem(b.g.Asset(bundle.Entry).Stem())
		}
		hash := b.hash(bundle)
		name := fmt.Sprintf("%s.%s.%s", stem, hash, bundle.Kind)
		for n := 2; taken[name]; n++ {
			name = fmt.Sprintf("%s-%d.%s.%s", stem, n, hash, bundle.Kind)
		}
		taken[name] = true
		bundle.Name = name
	}
}

func (b *bundler) hash(bundle *Bundle) string {
	parts := make([]string, 0, len(bundle.Assets)+len(bundle.Inline))
	for _, id := range bundle.Assets {
		parts = append(parts, b.g.Asset(id).ContentHash().Hex())
	}
	for _, id := range bundle.Inline {
		parts = append(parts, b.g.Asset(id).ContentHash().Hex())
	}
	return digest.Truncate(digest.CombineHex(parts...).Hex(), HashLength)
}
