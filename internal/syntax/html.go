package syntax

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// HTMLRef is a src/href attribute of a <script> or <link> element.
type HTMLRef struct {
	Tag   string
	Attr  string
	URL   string
	Attrs map[string]string
	// Value covers the attribute value without quotes.
	Value Range
	// Element covers the whole element, end tag included.
	Element Range
}

// Rel returns the lower-cased rel attribute.
func (r HTMLRef) Rel() string {
	return strings.ToLower(strings.TrimSpace(r.Attrs["rel"]))
}

// AnalyzeHTML returns <script src> and <link href> references in document
// order.
func AnalyzeHTML(ctx context.Context, src []byte) ([]HTMLRef, error) {
	tree, err := Parse(ctx, HTML, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var refs []HTMLRef
	walk(tree.Root(), nil, "", func(n, _ *sitter.Node, _ string) bool {
		switch n.Type() {
		case "element", "script_element":
		default:
			return true
		}
		tag := firstOf(n, "start_tag", "self_closing_tag")
		if tag == nil {
			return true
		}
		name := firstOf(tag, "tag_name")
		if name == nil {
			return true
		}
		tagName := strings.ToLower(tree.text(name))
		var want string
		switch tagName {
		case "script":
			want = "src"
		case "link":
			want = "href"
		default:
			return true
		}
		attrs := make(map[string]string)
		var valueNode *sitter.Node
		for i := range int(tag.NamedChildCount()) {
			attr := tag.NamedChild(i)
			if attr.Type() != "attribute" {
				continue
			}
			key := firstOf(attr, "attribute_name")
			if key == nil {
				continue
			}
			k := strings.ToLower(tree.text(key))
			v := attributeValue(attr)
			if v != nil {
				attrs[k] = tree.text(v)
			} else {
				attrs[k] = ""
			}
			if k == want {
				valueNode = v
			}
		}
		if valueNode == nil {
			return false
		}
		refs = append(refs, HTMLRef{
			Tag:     tagName,
			Attr:    want,
			URL:     strings.TrimSpace(tree.text(valueNode)),
			Attrs:   attrs,
			Value:   rangeOf(valueNode),
			Element: rangeOf(n),
		})
		return false
	})
	return refs, nil
}

func attributeValue(attr *sitter.Node) *sitter.Node {
	for i := range int(attr.NamedChildCount()) {
		c := attr.NamedChild(i)
		switch c.Type() {
		case "attribute_value":
			return c
		case "quoted_attribute_value":
			return firstOf(c, "attribute_value")
		}
	}
	return nil
}

func firstOf(n *sitter.Node, types ...string) *sitter.Node {
	for i := range int(n.NamedChildCount()) {
		c := n.NamedChild(i)
		for _, t := range types {
			if c.Type() == t {
				return c
			}
		}
	}
	return nil
}
