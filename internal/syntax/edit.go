package syntax

import (
	"cmp"
	"fmt"
	"slices"
)

// Edit replaces the bytes of Range with Text.
type Edit struct {
	Range
	Text string
}

// Apply splices edits into src. Edits may come in any order but must not
// overlap; an empty edit list returns src unchanged.
func Apply(src []byte, edits []Edit) ([]byte, error) {
	if len(edits) == 0 {
		return src, nil
	}
	sorted := slices.Clone(edits)
	slices.SortStableFunc(sorted, func(a, b Edit) int {
		return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(a.End, b.End))
	})
	size := len(src)
	var prev uint32
	for i, e := range sorted {
		if e.Start > e.End || int(e.End) > len(src) {
			return nil, fmt.Errorf("invalid byte range [%d:%d] for source of length %d", e.Start, e.End, len(src))
		}
		if i > 0 && e.Start < prev {
			return nil, fmt.Errorf("overlapping edits at byte %d", e.Start)
		}
		prev = e.End
		size += len(e.Text) - int(e.End-e.Start)
	}
	out := make([]byte, 0, size)
	var at uint32
	for _, e := range sorted {
		out = append(out, src[at:e.Start]...)
		out = append(out, e.Text...)
		at = e.End
	}
	return append(out, src[at:]...), nil
}
