package diag

import (
	"cmp"
	"slices"
	"sync"
)

// DefaultBagSize bounds how many diagnostics a build keeps.
const DefaultBagSize = 1024

// Bag collects diagnostics from concurrent workers, up to a limit.
type Bag struct {
	mu    sync.Mutex
	items []Diagnostic
	limit int
}

func NewBag(limit int) *Bag {
	if limit <= 0 {
		limit = DefaultBagSize
	}
	return &Bag{limit: limit}
}

// Add keeps d unless the bag is full and reports whether it did.
func (b *Bag) Add(d Diagnostic) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == b.limit {
		return false
	}
	b.items = append(b.items, d)
	return true
}

func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// HasWarnings reports whether anything above SevInfo was collected.
func (b *Bag) HasWarnings() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.ContainsFunc(b.items, func(d Diagnostic) bool { return d.Severity >= SevWarning })
}

// Items returns a copy of the collected diagnostics.
func (b *Bag) Items() []Diagnostic {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.items)
}

// Sort orders by file, then offset, then code, then message. Warnings come
// before infos at the same spot.
func (b *Bag) Sort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	slices.SortStableFunc(b.items, func(x, y Diagnostic) int {
		return cmp.Or(
			cmp.Compare(x.Primary.File, y.Primary.File),
			cmp.Compare(x.Primary.Start, y.Primary.Start),
			cmp.Compare(x.Primary.End, y.Primary.End),
			cmp.Compare(y.Severity, x.Severity),
			cmp.Compare(x.Code, y.Code),
			cmp.Compare(x.Message, y.Message),
		)
	})
}

// Dedup drops repeats of an earlier diagnostic. The graph builder can
// report the same warning for an asset reached twice.
func (b *Bag) Dedup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := make(map[Diagnostic]bool, len(b.items))
	b.items = slices.DeleteFunc(b.items, func(d Diagnostic) bool {
		if seen[d] {
			return true
		}
		seen[d] = true
		return false
	})
}
