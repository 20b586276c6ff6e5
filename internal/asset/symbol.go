package asset

import "fmt"

type SymbolKind uint8

const (
	SymUnnamed SymbolKind = iota
	SymNamed
	SymRenamed
	SymDefault
	SymNamespace
	SymDynamic
	SymCommonJS
)

func (k SymbolKind) String() string {
	switch k {
	case SymUnnamed:
		return "unnamed"
	case SymNamed:
		return "named"
	case SymRenamed:
		return "renamed"
	case SymDefault:
		return "default"
	case SymNamespace:
		return "namespace"
	case SymDynamic:
		return "dynamic"
	case SymCommonJS:
		return "commonjs"
	}
	return fmt.Sprintf("SymbolKind(%d)", uint8(k))
}

// LinkingSymbol is how one asset refers to another. On a dependency it is
// what the importer pulled in; on an asset it is something the asset exports.
//
//	Named{Sym}          import { a } / export { a }
//	Renamed{Sym, SymAs} import { a as b } / export { a as b }
//	Default{SymAs}      import b / export default
//	Namespace{SymAs}    import * as ns / export * as ns
type LinkingSymbol struct {
	Kind  SymbolKind `msgpack:"kind" json:"kind"`
	Sym   string     `msgpack:"sym,omitempty" json:"sym,omitempty"`
	SymAs string     `msgpack:"sym_as,omitempty" json:"sym_as,omitempty"`
}

func Unnamed() LinkingSymbol               { return LinkingSymbol{Kind: SymUnnamed} }
func Named(sym string) LinkingSymbol       { return LinkingSymbol{Kind: SymNamed, Sym: sym} }
func Renamed(sym, as string) LinkingSymbol { return LinkingSymbol{Kind: SymRenamed, Sym: sym, SymAs: as} }
func Default(as string) LinkingSymbol      { return LinkingSymbol{Kind: SymDefault, SymAs: as} }
func Namespace(as string) LinkingSymbol    { return LinkingSymbol{Kind: SymNamespace, SymAs: as} }
func Dynamic() LinkingSymbol               { return LinkingSymbol{Kind: SymDynamic} }
func CommonJS() LinkingSymbol              { return LinkingSymbol{Kind: SymCommonJS} }

// Local returns the binding name the symbol introduces in the importer,
// or "" when it introduces none.
func (s LinkingSymbol) Local() string {
	switch s.Kind {
	case SymNamed:
		return s.Sym
	case SymRenamed, SymDefault, SymNamespace:
		return s.SymAs
	}
	return ""
}

func (s LinkingSymbol) String() string {
	switch s.Kind {
	case SymNamed:
		return fmt.Sprintf("named{%s}", s.Sym)
	case SymRenamed:
		return fmt.Sprintf("renamed{%s as %s}", s.Sym, s.SymAs)
	case SymDefault:
		return fmt.Sprintf("default{%s}", s.SymAs)
	case SymNamespace:
		return fmt.Sprintf("namespace{%s}", s.SymAs)
	}
	return s.Kind.String()
}
