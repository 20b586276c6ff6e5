package asset

import (
	"strings"
	"unicode/utf8"
)

// MutableAsset is the view a transformer gets. It exposes the asset bytes
// and kind, and collects new dependencies.
type MutableAsset struct {
	asset *Asset
	deps  []DependencyOptions
	index map[depKey]int
}

type depKey struct {
	specifier string
	typ       SpecifierType
	priority  Priority
	behavior  BundleBehavior
}

func NewMutable(a *Asset) *MutableAsset {
	return &MutableAsset{asset: a, index: make(map[depKey]int)}
}

func (m *MutableAsset) FilePath() string         { return m.asset.FilePath }
func (m *MutableAsset) FilePathAbsolute() string { return m.asset.FilePathAbsolute }
func (m *MutableAsset) Kind() string             { return m.asset.Kind }
func (m *MutableAsset) SetKind(kind string)      { m.asset.Kind = kind }
func (m *MutableAsset) Bytes() []byte            { return m.asset.Content }

func (m *MutableAsset) SetBytes(b []byte) {
	if b == nil {
		b = []byte{}
	}
	m.asset.Content = b
}

// Code returns the content as text. Invalid UTF-8 is replaced.
func (m *MutableAsset) Code() string {
	if utf8.Valid(m.asset.Content) {
		return string(m.asset.Content)
	}
	return strings.ToValidUTF8(string(m.asset.Content), "\uFFFD")
}

func (m *MutableAsset) SetCode(code string) {
	m.asset.Content = []byte(code)
}

// AddDependency records opts. Repeats of the same specifier with the same
// type, priority and behavior merge their linking symbols.
func (m *MutableAsset) AddDependency(opts DependencyOptions) {
	k := depKey{opts.Specifier, opts.SpecifierType, opts.Priority, opts.BundleBehavior}
	if i, ok := m.index[k]; ok {
		for _, s := range opts.LinkingSymbols {
			m.deps[i].LinkingSymbols = appendUnique(m.deps[i].LinkingSymbols, s)
		}
		return
	}
	var syms []LinkingSymbol
	for _, s := range opts.LinkingSymbols {
		syms = appendUnique(syms, s)
	}
	opts.LinkingSymbols = syms
	m.index[k] = len(m.deps)
	m.deps = append(m.deps, opts)
}

func (m *MutableAsset) AddLinkingSymbol(s LinkingSymbol) {
	m.asset.AddLinkingSymbol(s)
}

func (m *MutableAsset) LinkingSymbols() []LinkingSymbol {
	return m.asset.LinkingSymbols
}

// Dependencies returns everything added so far, in insertion order.
func (m *MutableAsset) Dependencies() []DependencyOptions {
	return m.deps
}

func appendUnique(list []LinkingSymbol, s LinkingSymbol) []LinkingSymbol {
	for _, have := range list {
		if have == s {
			return list
		}
	}
	return append(list, s)
}
