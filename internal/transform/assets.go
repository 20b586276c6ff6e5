package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"mach/internal/asset"
	"mach/internal/config"
	"mach/internal/syntax"
)

// JSON turns a JSON document into a module whose default export is the
// document.
func JSON(_ context.Context, m *asset.MutableAsset, _ *config.MachConfig) error {
	var buf bytes.Buffer
	if err := json.Compact(&buf, m.Bytes()); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	m.SetCode("export default " + buf.String() + ";")
	m.SetKind("js")
	return nil
}

// CSS records @import and url() references as dependencies.
func CSS(ctx context.Context, m *asset.MutableAsset, _ *config.MachConfig) error {
	refs, err := syntax.AnalyzeCSS(ctx, m.Bytes())
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if syntax.IsExternalURL(ref.URL) {
			continue
		}
		spec, behavior := asset.SplitBehaviorSuffix(ref.URL)
		m.AddDependency(asset.DependencyOptions{Specifier: spec, BundleBehavior: behavior})
	}
	return nil
}

var htmlLinkRels = map[string]bool{
	"stylesheet":    true,
	"modulepreload": true,
	"icon":          true,
}

// HTML records <script src> and <link href> references as dependencies.
func HTML(ctx context.Context, m *asset.MutableAsset, _ *config.MachConfig) error {
	refs, err := syntax.AnalyzeHTML(ctx, m.Bytes())
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if ref.Tag == "link" && !htmlLinkRels[ref.Rel()] {
			continue
		}
		if syntax.IsExternalURL(ref.URL) {
			continue
		}
		spec, behavior := asset.SplitBehaviorSuffix(ref.URL)
		m.AddDependency(asset.DependencyOptions{Specifier: spec, BundleBehavior: behavior})
	}
	return nil
}

// Drop empties the asset. The kind is kept so the bundler can still
// place it.
func Drop(_ context.Context, m *asset.MutableAsset, _ *config.MachConfig) error {
	m.SetBytes(nil)
	return nil
}
