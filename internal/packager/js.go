package packager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"mach/internal/asset"
	"mach/internal/bundler"
	"mach/internal/diag"
	"mach/internal/graph"
	"mach/internal/ident"
	"mach/internal/syntax"
)

// renderJS writes the runtime stub, one mach_register call per module and,
// for bundles that run on load, the boot call.
func (p *packager) renderJS(ctx context.Context, b *bundler.Bundle) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(runtimeStub)

	sg := p.g.Subgraph(b.Assets, func(e graph.Edge) bool { return e.Dep.Priority == asset.PrioritySync })
	topo := graph.ToposortKahn(sg)
	empty := make(map[ident.InternalID]bool)
	for _, id := range topo.Order {
		a := p.g.Asset(id)
		body, err := p.moduleBody(ctx, b, a)
		if err != nil {
			return nil, err
		}
		writeModule(&buf, a.Key(), body)
		p.markEmpty(b, id, empty)
	}

	inline := slices.Clone(b.Inline)
	slices.SortFunc(inline, func(x, y ident.InternalID) int {
		return strings.Compare(p.g.Asset(x).FilePath, p.g.Asset(y).FilePath)
	})
	for _, id := range inline {
		a := p.g.Asset(id)
		if a.Kind != "js" {
			writeModule(&buf, a.Key(), "module.exports = "+quote(string(a.Content))+";")
			continue
		}
		body, err := p.moduleBody(ctx, b, a)
		if err != nil {
			return nil, err
		}
		writeModule(&buf, a.Key(), body)
		p.markEmpty(b, id, empty)
	}

	for _, id := range sortedIDs(p.g, empty) {
		writeModule(&buf, p.g.Asset(id).Key(), "")
	}

	fmt.Fprintf(&buf, "__mach.bundles[%s] = Promise.resolve();\n", quote(b.Name))
	if b.Boot && b.Entry != 0 {
		var names []string
		for _, dep := range b.LoadOrder() {
			if dep != b {
				names = append(names, dep.Name)
			}
		}
		fmt.Fprintf(&buf, "mach_boot(%s, %s);\n", quoteList(names), quote(p.g.Asset(b.Entry).Key()))
	}
	buf.WriteString("})();\n")

	if !p.opts.Optimize {
		return buf.Bytes(), nil
	}
	return minify(buf.Bytes(), api.LoaderJS)
}

// markEmpty records the non-JS assets id imports synchronously from other
// bundles; they are registered as empty modules.
func (p *packager) markEmpty(b *bundler.Bundle, id ident.InternalID, empty map[ident.InternalID]bool) {
	for _, e := range p.g.Outgoing(id) {
		if ref, ok := b.Refs[e.To]; ok && ref.Kind != "js" && e.Dep.Priority == asset.PrioritySync {
			empty[e.To] = true
		}
	}
}

func writeModule(buf *bytes.Buffer, key, body string) {
	fmt.Fprintf(buf, "mach_register(%s, function(module, exports) {\n", quote(key))
	if body != "" {
		buf.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			buf.WriteByte('\n')
		}
	}
	buf.WriteString("});\n")
}

// moduleBody lowers one asset to CommonJS and points its require and
// import() calls at registry keys.
func (p *packager) moduleBody(ctx context.Context, b *bundler.Bundle, a *asset.Asset) (string, error) {
	p.reportUnused(ctx, a)

	marked, err := markDynamic(ctx, a.Content)
	if err != nil {
		return "", errorf(a, "%v", err)
	}
	res := api.Transform(string(marked), api.TransformOptions{
		Loader:     api.LoaderJS,
		Format:     api.FormatCommonJS,
		Target:     api.ESNext,
		Charset:    api.CharsetUTF8,
		Sourcefile: a.FilePath,
		LogLevel:   api.LogLevelSilent,
	})
	if len(res.Errors) > 0 {
		msg := res.Errors[0].Text
		if loc := res.Errors[0].Location; loc != nil {
			msg = fmt.Sprintf("%d:%d: %s", loc.Line, loc.Column, msg)
		}
		return "", errorf(a, "%s", msg)
	}
	lowered := res.Code

	calls, err := syntax.FindCalls(ctx, lowered, "require", dynamicMarker)
	if err != nil {
		return "", errorf(a, "%v", err)
	}
	targets := p.targets(a.ID.MustGet())
	var edits []syntax.Edit
	for _, c := range calls {
		to, ok := p.lookup(targets, c.Specifier)
		if c.Callee == dynamicMarker {
			text := "import(" + quote(c.Specifier) + ")"
			if ok {
				text = p.lazyImport(b, to)
			}
			edits = append(edits, syntax.Edit{Range: c.Node, Text: text})
			continue
		}
		if ok {
			edits = append(edits, syntax.Edit{Range: c.Node, Text: "mach_require(" + quote(p.g.Asset(to).Key()) + ")"})
		}
	}
	out, err := syntax.Apply(lowered, edits)
	if err != nil {
		return "", errorf(a, "%v", err)
	}
	return string(out), nil
}

// lazyImport loads the bundles holding to and resolves with its exports.
// Non-JS targets resolve once their file is loaded.
func (p *packager) lazyImport(b *bundler.Bundle, to ident.InternalID) string {
	key := "null"
	if target := p.g.Asset(to); target.Kind == "js" {
		key = quote(target.Key())
	}
	var names []string
	if ref, ok := b.Refs[to]; ok {
		for _, dep := range ref.LoadOrder() {
			names = append(names, dep.Name)
		}
	}
	return "mach_import(" + quoteList(names) + ", " + key + ")"
}

// markDynamic renames import("x") to the marker call so it survives
// lowering to CommonJS.
func markDynamic(ctx context.Context, src []byte) ([]byte, error) {
	calls, err := syntax.FindCalls(ctx, src, "import")
	if err != nil {
		return nil, err
	}
	edits := make([]syntax.Edit, 0, len(calls))
	for _, c := range calls {
		edits = append(edits, syntax.Edit{Range: c.Node, Text: dynamicMarker + "(" + quote(c.Specifier) + ")"})
	}
	return syntax.Apply(src, edits)
}

func (p *packager) reportUnused(ctx context.Context, a *asset.Asset) {
	mod, err := syntax.AnalyzeJS(ctx, a.Content)
	if err != nil {
		return
	}
	for _, name := range mod.Unused {
		diag.Warn(p.opts.Reporter, diag.WarnUnusedImport, a.FilePath, name+" is imported but never used")
	}
}

func minify(src []byte, loader api.Loader) ([]byte, error) {
	res := api.Transform(string(src), api.TransformOptions{
		Loader:            loader,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		Charset:           api.CharsetUTF8,
		LogLevel:          api.LogLevelSilent,
	})
	if len(res.Errors) > 0 {
		return nil, errors.New("minify: " + res.Errors[0].Text)
	}
	return res.Code, nil
}

func sortedIDs(g *graph.AssetGraph, set map[ident.InternalID]bool) []ident.InternalID {
	out := make([]ident.InternalID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.SortFunc(out, func(x, y ident.InternalID) int {
		return strings.Compare(g.Asset(x).FilePath, g.Asset(y).FilePath)
	})
	return out
}
