package syntax

import (
	"bytes"
	"cmp"
	"context"
	"slices"
	"strings"

	"fortio.org/safecast"
	sitter "github.com/smacker/go-tree-sitter"
)

// CSSRef is a reference from a stylesheet to another file.
type CSSRef struct {
	URL string
	// Import is true for @import rules.
	Import bool
	// Value covers the string or url(...) that names the target.
	Value Range
	// Rule covers the whole @import statement; zero for url() references.
	Rule Range
}

// AnalyzeCSS returns every @import and url() reference in document order.
func AnalyzeCSS(ctx context.Context, src []byte) ([]CSSRef, error) {
	tree, err := Parse(ctx, CSS, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var refs []CSSRef
	walk(tree.Root(), nil, "", func(n, _ *sitter.Node, _ string) bool {
		switch n.Type() {
		case "import_statement":
			for i := range int(n.NamedChildCount()) {
				c := n.NamedChild(i)
				url, ok := cssValue(tree, c)
				if !ok {
					continue
				}
				refs = append(refs, CSSRef{URL: url, Import: true, Value: rangeOf(c), Rule: rangeOf(n)})
				break
			}
			return false
		case "call_expression":
			if url, ok := cssURLCall(tree, n); ok {
				refs = append(refs, CSSRef{URL: url, Value: rangeOf(n)})
				return false
			}
		}
		return true
	})
	refs = append(refs, scanURLs(src, refs)...)
	slices.SortFunc(refs, func(a, b CSSRef) int { return cmp.Compare(a.Value.Start, b.Value.Start) })
	return refs, nil
}

// scanURLs finds url(...) tokens the grammar did not surface as calls;
// unquoted URLs such as url(./a.png) are not always parsed as one.
func scanURLs(src []byte, known []CSSRef) []CSSRef {
	covered := func(at uint32) bool {
		for _, r := range known {
			if at >= r.Value.Start && at < r.Value.End {
				return true
			}
		}
		return false
	}
	var out []CSSRef
	for i := 0; i < len(src); i++ {
		switch {
		case src[i] == '/' && i+1 < len(src) && src[i+1] == '*':
			end := bytes.Index(src[i+2:], []byte("*/"))
			if end < 0 {
				return out
			}
			i += end + 3
		case src[i] == '"' || src[i] == '\'':
			i = skipQuoted(src, i)
		case (src[i] == 'u' || src[i] == 'U') && hasFoldPrefix(src[i:], "url(") && (i == 0 || !isIdentByte(src[i-1])):
			start := i
			j := i + 4
			for j < len(src) && src[j] != ')' {
				if src[j] == '"' || src[j] == '\'' {
					j = skipQuoted(src, j)
				}
				j++
			}
			if j >= len(src) {
				return out
			}
			at, _ := safecast.Conv[uint32](start)
			end, _ := safecast.Conv[uint32](j + 1)
			if !covered(at) {
				url := trimQuotes(strings.TrimSpace(string(src[start+4 : j])))
				out = append(out, CSSRef{URL: url, Value: Range{Start: at, End: end}})
			}
			i = j
		}
	}
	return out
}

func skipQuoted(src []byte, i int) int {
	q := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case q:
			return j
		}
	}
	return len(src)
}

func hasFoldPrefix(b []byte, prefix string) bool {
	return len(b) >= len(prefix) && strings.EqualFold(string(b[:len(prefix)]), prefix)
}

func isIdentByte(c byte) bool {
	return c == '-' || c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func cssValue(t *Tree, n *sitter.Node) (string, bool) {
	switch n.Type() {
	case "string_value":
		return trimQuotes(t.text(n)), true
	case "call_expression":
		return cssURLCall(t, n)
	}
	return "", false
}

// cssURLCall reads url(x), url('x') and url("x").
func cssURLCall(t *Tree, n *sitter.Node) (string, bool) {
	var name, args *sitter.Node
	for i := range int(n.NamedChildCount()) {
		switch c := n.NamedChild(i); c.Type() {
		case "function_name":
			name = c
		case "arguments":
			args = c
		}
	}
	if name == nil || args == nil || !strings.EqualFold(t.text(name), "url") {
		return "", false
	}
	inner := strings.TrimSpace(t.text(args))
	inner = strings.TrimPrefix(inner, "(")
	inner = strings.TrimSuffix(inner, ")")
	return trimQuotes(strings.TrimSpace(inner)), true
}

func trimQuotes(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// IsExternalURL reports references the bundler leaves alone: absolute and
// protocol-relative URLs, data: URIs and fragment-only references.
func IsExternalURL(ref string) bool {
	switch {
	case ref == "", strings.HasPrefix(ref, "#"), strings.HasPrefix(ref, "//"):
		return true
	}
	if i := strings.IndexByte(ref, ':'); i > 1 {
		scheme := ref[:i]
		for _, r := range scheme {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.') {
				return false
			}
		}
		return true
	}
	return false
}
