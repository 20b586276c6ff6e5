package packager

import (
	"context"
	"html"

	"mach/internal/bundler"
	"mach/internal/syntax"
)

// renderHTML points script and link references at the bundles built for
// their targets. Inline targets replace the element with its content.
func (p *packager) renderHTML(ctx context.Context, b *bundler.Bundle) ([]byte, error) {
	var out []byte
	for _, id := range b.Assets {
		a := p.g.Asset(id)
		refs, err := syntax.AnalyzeHTML(ctx, a.Content)
		if err != nil {
			return nil, errorf(a, "%v", err)
		}
		targets := p.targets(id)
		var edits []syntax.Edit
		for _, r := range refs {
			to, ok := p.lookup(targets, r.URL)
			if !ok {
				continue
			}
			if b.IsInline(to) {
				target := p.g.Asset(to)
				if el, ok := inlineElement(r, target.Kind, string(target.Content)); ok {
					edits = append(edits, syntax.Edit{Range: r.Element, Text: el})
				} else {
					edits = append(edits, syntax.Edit{Range: r.Value, Text: dataURI(target.FilePath, target.Content)})
				}
				continue
			}
			if ref, ok := b.Refs[to]; ok {
				edits = append(edits, syntax.Edit{Range: r.Value, Text: html.EscapeString(ref.Name)})
			}
		}
		doc, err := syntax.Apply(a.Content, edits)
		if err != nil {
			return nil, errorf(a, "%v", err)
		}
		out = append(out, doc...)
	}
	return out, nil
}

// inlineElement renders a <style> or <script> carrying content. Other
// references keep their element and embed a data URI instead.
func inlineElement(r syntax.HTMLRef, kind, content string) (string, bool) {
	switch {
	case r.Tag == "link" && kind == "css":
		return "<style>\n" + content + "</style>", true
	case r.Tag == "script" && kind == "js":
		return "<script type=\"module\">\n" + content + "</script>", true
	}
	return "", false
}
