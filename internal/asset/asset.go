// Package asset models the entities the build moves around: assets, the
// dependencies between them and the mutable view transformers work on.
package asset

import (
	"path/filepath"
	"strings"

	"mach/internal/digest"
	"mach/internal/ident"
)

// Asset is a transformed source file as it sits in the graph.
type Asset struct {
	ID               ident.Identifier[Asset]
	FilePathAbsolute string
	// FilePath is project-relative, slash separated.
	FilePath       string
	Kind           string
	Content        []byte
	BundleBehavior BundleBehavior
	LinkingSymbols []LinkingSymbol
}

// New builds an asset whose kind is the lower-cased extension of abs.
func New(abs, rel string, content []byte) *Asset {
	if content == nil {
		content = []byte{}
	}
	return &Asset{
		FilePathAbsolute: abs,
		FilePath:         rel,
		Kind:             KindOf(abs),
		Content:          content,
	}
}

// KindOf returns the lower-case extension of path without the dot.
func KindOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// ContentHash hashes the asset bytes.
func (a *Asset) ContentHash() digest.Digest {
	return digest.OfBytes(a.Content)
}

// Key is a stable identifier for the asset in emitted code: a prefix of the
// hash of its project-relative path.
func (a *Asset) Key() string {
	return digest.OfPath(a.FilePath).Hex()[:12]
}

// Stem is the file name without directory and extension.
func (a *Asset) Stem() string {
	base := filepath.Base(a.FilePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// AddLinkingSymbol records an exported symbol once.
func (a *Asset) AddLinkingSymbol(s LinkingSymbol) {
	for _, have := range a.LinkingSymbols {
		if have == s {
			return
		}
	}
	a.LinkingSymbols = append(a.LinkingSymbols, s)
}

func (a *Asset) String() string {
	return a.FilePath + " (" + a.Kind + ")"
}
