// Package syntax parses JavaScript, CSS and HTML with tree-sitter and
// extracts what the build needs from them: dependency sites, exported
// symbols, environment lookups and byte ranges to rewrite.
package syntax

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/css"
	"github.com/smacker/go-tree-sitter/html"
	"github.com/smacker/go-tree-sitter/javascript"
)

type Language uint8

const (
	JavaScript Language = iota
	CSS
	HTML
)

func (l Language) String() string {
	switch l {
	case JavaScript:
		return "javascript"
	case CSS:
		return "css"
	case HTML:
		return "html"
	}
	return "unknown"
}

func (l Language) grammar() *sitter.Language {
	switch l {
	case CSS:
		return css.GetLanguage()
	case HTML:
		return html.GetLanguage()
	default:
		return javascript.GetLanguage()
	}
}

// Range is a half-open byte range [Start, End).
type Range struct {
	Start uint32
	End   uint32
}

func rangeOf(n *sitter.Node) Range {
	return Range{Start: n.StartByte(), End: n.EndByte()}
}

// Tree is a parsed source. Close releases the native tree.
type Tree struct {
	tree *sitter.Tree
	src  []byte
	lang Language
}

// Parse parses src. A tree with syntax errors is still returned; use
// FirstError to inspect them.
func Parse(ctx context.Context, lang Language, src []byte) (*Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang.grammar())
	t, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("%s parse failed: %w", lang, err)
	}
	if t.RootNode() == nil {
		t.Close()
		return nil, fmt.Errorf("%s parse returned no root", lang)
	}
	return &Tree{tree: t, src: src, lang: lang}, nil
}

func (t *Tree) Root() *sitter.Node { return t.tree.RootNode() }
func (t *Tree) Source() []byte     { return t.src }

func (t *Tree) Close() {
	if t != nil && t.tree != nil {
		t.tree.Close()
	}
}

func (t *Tree) text(n *sitter.Node) string {
	return n.Content(t.src)
}

// ParseError locates the first syntax error of a tree.
type ParseError struct {
	Line    uint32 // 0-indexed
	Column  uint32 // 0-indexed
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line+1, e.Column+1, e.Message)
}

// FirstError returns nil when the tree is free of errors.
func (t *Tree) FirstError() *ParseError {
	root := t.Root()
	if !root.HasError() {
		return nil
	}
	n := findError(root)
	if n == nil {
		return &ParseError{Message: "syntax error"}
	}
	p := n.StartPoint()
	msg := "syntax error"
	if n.IsMissing() {
		msg = "missing " + n.Type()
	} else if snippet := t.text(n); snippet != "" {
		if len(snippet) > 40 {
			snippet = snippet[:40] + "..."
		}
		msg = fmt.Sprintf("unexpected %q", snippet)
	}
	return &ParseError{Line: p.Row, Column: p.Column, Message: msg}
}

func findError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := range int(n.ChildCount()) {
		c := n.Child(i)
		if c != nil && (c.HasError() || c.IsMissing()) {
			if found := findError(c); found != nil {
				return found
			}
		}
	}
	return nil
}

// visitor is called for every node in document order. Returning false
// skips the node's children.
type visitor func(n, parent *sitter.Node, field string) bool

func walk(n, parent *sitter.Node, field string, fn visitor) {
	if n == nil || !fn(n, parent, field) {
		return
	}
	for i := range int(n.ChildCount()) {
		walk(n.Child(i), n, n.FieldNameForChild(i), fn)
	}
}
