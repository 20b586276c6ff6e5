package packager

import (
	"bytes"
	"context"
	"encoding/base64"
	"mime"
	"path"

	"github.com/evanw/esbuild/pkg/api"

	"mach/internal/bundler"
	"mach/internal/syntax"
)

// renderCSS concatenates members in walk order. Imports of members are
// dropped, imports of other bundles are hoisted to the top and url()
// references point at the bundle holding the target.
func (p *packager) renderCSS(ctx context.Context, b *bundler.Bundle) ([]byte, error) {
	var head, body bytes.Buffer
	hoisted := make(map[string]bool)
	for _, id := range b.Assets {
		a := p.g.Asset(id)
		refs, err := syntax.AnalyzeCSS(ctx, a.Content)
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
			switch {
			case r.Import && b.Has(to):
				edits = append(edits, syntax.Edit{Range: r.Rule})
			case r.Import:
				if ref, ok := b.Refs[to]; ok && !hoisted[ref.Name] {
					hoisted[ref.Name] = true
					head.WriteString("@import " + quote("./"+ref.Name) + ";\n")
				}
				edits = append(edits, syntax.Edit{Range: r.Rule})
			case b.IsInline(to):
				target := p.g.Asset(to)
				edits = append(edits, syntax.Edit{Range: r.Value, Text: "url(" + quote(dataURI(target.FilePath, target.Content)) + ")"})
			default:
				if ref, ok := b.Refs[to]; ok {
					edits = append(edits, syntax.Edit{Range: r.Value, Text: "url(" + quote("./"+ref.Name) + ")"})
				}
			}
		}
		out, err := syntax.Apply(a.Content, edits)
		if err != nil {
			return nil, errorf(a, "%v", err)
		}
		body.Write(bytes.TrimLeft(out, "\n"))
		if len(out) > 0 && out[len(out)-1] != '\n' {
			body.WriteByte('\n')
		}
	}
	head.Write(body.Bytes())
	if !p.opts.Optimize {
		return head.Bytes(), nil
	}
	return minify(head.Bytes(), api.LoaderCSS)
}

// dataURI embeds content under the media type guessed from the file
// extension.
func dataURI(file string, content []byte) string {
	typ := mime.TypeByExtension(path.Ext(file))
	if typ == "" {
		typ = "application/octet-stream"
	}
	return "data:" + typ + ";base64," + base64.StdEncoding.EncodeToString(content)
}
