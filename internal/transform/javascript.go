package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"mach/internal/asset"
	"mach/internal/config"
	"mach/internal/syntax"
)

func loaderFor(kind string) api.Loader {
	switch kind {
	case "ts", "mts", "cts":
		return api.LoaderTS
	case "tsx":
		return api.LoaderTSX
	case "jsx":
		return api.LoaderJSX
	default:
		return api.LoaderJS
	}
}

// JavaScript compiles TS/JSX down to plain ES modules, substitutes
// process.env.NAME accesses and records imports and exports.
func JavaScript(ctx context.Context, m *asset.MutableAsset, cfg *config.MachConfig) error {
	res := api.Transform(m.Code(), api.TransformOptions{
		Loader:     loaderFor(m.Kind()),
		Target:     api.ESNext,
		JSX:        api.JSXTransform,
		Charset:    api.CharsetUTF8,
		Sourcefile: m.FilePath(),
		LogLevel:   api.LogLevelSilent,
	})
	if len(res.Errors) > 0 {
		return esbuildError(res.Errors)
	}

	mod, err := syntax.AnalyzeJS(ctx, res.Code)
	if err != nil {
		return err
	}
	code := res.Code
	if len(mod.Env) > 0 {
		edits := make([]syntax.Edit, 0, len(mod.Env))
		for _, site := range mod.Env {
			lit := "null"
			if cfg != nil {
				if v, ok := cfg.LookupEnv(site.Name); ok {
					lit = jsString(v)
				}
			}
			edits = append(edits, syntax.Edit{Range: site.Range, Text: lit})
		}
		if code, err = syntax.Apply(code, edits); err != nil {
			return err
		}
	}

	for _, site := range mod.Imports {
		if syntax.IsExternalURL(site.Specifier) {
			continue
		}
		spec, behavior := asset.SplitBehaviorSuffix(site.Specifier)
		opts := asset.DependencyOptions{
			Specifier:      spec,
			LinkingSymbols: site.Symbols,
			BundleBehavior: behavior,
		}
		switch site.Kind {
		case syntax.ImportRequire:
			opts.SpecifierType = asset.SpecifierCommonJS
		case syntax.ImportDynamic:
			opts.Priority = asset.PriorityLazy
		}
		m.AddDependency(opts)
	}
	for _, sym := range mod.Exports {
		m.AddLinkingSymbol(sym)
	}
	m.SetBytes(code)
	m.SetKind("js")
	return nil
}

func esbuildError(msgs []api.Message) error {
	parts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if loc := msg.Location; loc != nil {
			parts = append(parts, fmt.Sprintf("%d:%d: %s", loc.Line, loc.Column+1, msg.Text))
			continue
		}
		parts = append(parts, msg.Text)
	}
	return errors.New(strings.Join(parts, "; "))
}

// jsString renders s as a double-quoted string literal.
func jsString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}
