package syntax

import (
	"context"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"mach/internal/asset"
)

type ImportKind uint8

const (
	ImportStatic ImportKind = iota
	ImportReExport
	ImportRequire
	ImportDynamic
)

func (k ImportKind) String() string {
	switch k {
	case ImportStatic:
		return "import"
	case ImportReExport:
		return "re-export"
	case ImportRequire:
		return "require"
	case ImportDynamic:
		return "import()"
	}
	return "unknown"
}

// ImportSite is one place a module names another.
type ImportSite struct {
	Kind      ImportKind
	Specifier string
	Symbols   []asset.LinkingSymbol
	// Source covers the specifier literal including its quotes.
	Source Range
	// Node covers the whole statement or call.
	Node Range
}

// EnvSite is a `process.env.NAME` member access.
type EnvSite struct {
	Name  string
	Range Range
}

// JSModule is what AnalyzeJS finds in a module.
type JSModule struct {
	Imports []ImportSite
	Exports []asset.LinkingSymbol
	Env     []EnvSite
	// Unused lists imported bindings that are never referenced, in
	// declaration order.
	Unused []string
	// StarExports are the specifiers of bare `export * from` statements.
	StarExports []string
}

// AnalyzeJS walks an ES module. Syntax errors do not fail the analysis;
// callers are expected to hand in code a real compiler already accepted.
func AnalyzeJS(ctx context.Context, src []byte) (*JSModule, error) {
	tree, err := Parse(ctx, JavaScript, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	a := &jsAnalyzer{tree: tree, mod: &JSModule{}, refs: make(map[string]int)}
	walk(tree.Root(), nil, "", a.visit)

	for _, name := range a.bindings {
		if a.refs[name] == 0 {
			a.mod.Unused = append(a.mod.Unused, name)
		}
	}
	return a.mod, nil
}

type jsAnalyzer struct {
	tree     *Tree
	mod      *JSModule
	bindings []string
	refs     map[string]int
}

func (a *jsAnalyzer) visit(n, parent *sitter.Node, field string) bool {
	switch n.Type() {
	case "import_statement":
		a.importStatement(n)
		return false
	case "export_statement":
		return a.exportStatement(n)
	case "call_expression":
		a.callExpression(n)
		return true
	case "member_expression":
		if name, ok := a.envAccess(n, parent, field); ok {
			a.mod.Env = append(a.mod.Env, EnvSite{Name: name, Range: rangeOf(n)})
			return false
		}
		return true
	case "identifier", "shorthand_property_identifier":
		a.refs[a.tree.text(n)]++
		return false
	}
	return true
}

func (a *jsAnalyzer) importStatement(n *sitter.Node) {
	src := n.ChildByFieldName("source")
	spec, ok := a.stringValue(src)
	if !ok {
		return
	}
	var syms []asset.LinkingSymbol
	for i := range int(n.NamedChildCount()) {
		c := n.NamedChild(i)
		if c.Type() == "import_clause" {
			syms = a.importClause(c)
		}
	}
	if len(syms) == 0 {
		syms = []asset.LinkingSymbol{asset.Unnamed()}
	}
	a.mod.Imports = append(a.mod.Imports, ImportSite{
		Kind:      ImportStatic,
		Specifier: spec,
		Symbols:   syms,
		Source:    rangeOf(src),
		Node:      rangeOf(n),
	})
}

func (a *jsAnalyzer) importClause(n *sitter.Node) []asset.LinkingSymbol {
	var syms []asset.LinkingSymbol
	for i := range int(n.NamedChildCount()) {
		c := n.NamedChild(i)
		switch c.Type() {
		case "identifier":
			local := a.tree.text(c)
			syms = append(syms, asset.Default(local))
			a.bindings = append(a.bindings, local)
		case "namespace_import":
			if id := lastNamed(c, "identifier"); id != nil {
				local := a.tree.text(id)
				syms = append(syms, asset.Namespace(local))
				a.bindings = append(a.bindings, local)
			}
		case "named_imports":
			for j := range int(c.NamedChildCount()) {
				spec := c.NamedChild(j)
				if spec.Type() != "import_specifier" {
					continue
				}
				name := a.moduleExportName(spec.ChildByFieldName("name"))
				if alias := spec.ChildByFieldName("alias"); alias != nil {
					local := a.tree.text(alias)
					syms = append(syms, asset.Renamed(name, local))
					a.bindings = append(a.bindings, local)
				} else {
					syms = append(syms, asset.Named(name))
					a.bindings = append(a.bindings, name)
				}
			}
		}
	}
	return syms
}

// exportStatement records exports and re-exports. It returns whether the
// walk should descend into the statement.
func (a *jsAnalyzer) exportStatement(n *sitter.Node) bool {
	if src := n.ChildByFieldName("source"); src != nil {
		spec, ok := a.stringValue(src)
		if !ok {
			return false
		}
		var deps []asset.LinkingSymbol
		star := false
		for i := range int(n.ChildCount()) {
			c := n.Child(i)
			switch c.Type() {
			case "*":
				star = true
			case "namespace_export":
				if name := lastNamedAny(c); name != nil {
					as := a.moduleExportName(name)
					deps = append(deps, asset.Namespace(as))
					a.mod.Exports = append(a.mod.Exports, asset.Named(as))
				}
			case "export_clause":
				for _, s := range a.exportSpecifiers(c) {
					if s.Kind == asset.SymRenamed {
						a.mod.Exports = append(a.mod.Exports, asset.Named(s.SymAs))
					} else {
						a.mod.Exports = append(a.mod.Exports, asset.Named(s.Sym))
					}
					deps = append(deps, s)
				}
			}
		}
		if star && len(deps) == 0 {
			deps = append(deps, asset.Namespace("*"))
			a.mod.Exports = append(a.mod.Exports, asset.Namespace("*"))
			a.mod.StarExports = append(a.mod.StarExports, spec)
		}
		a.mod.Imports = append(a.mod.Imports, ImportSite{
			Kind:      ImportReExport,
			Specifier: spec,
			Symbols:   deps,
			Source:    rangeOf(src),
			Node:      rangeOf(n),
		})
		return false
	}

	isDefault := false
	for i := range int(n.ChildCount()) {
		if n.Child(i).Type() == "default" {
			isDefault = true
		}
	}
	if isDefault {
		a.mod.Exports = append(a.mod.Exports, asset.Default("default"))
		return true
	}
	if decl := n.ChildByFieldName("declaration"); decl != nil {
		for _, name := range declaredNames(a.tree, decl) {
			a.mod.Exports = append(a.mod.Exports, asset.Named(name))
		}
		return true
	}
	for i := range int(n.NamedChildCount()) {
		if c := n.NamedChild(i); c.Type() == "export_clause" {
			for _, s := range a.exportSpecifiers(c) {
				if s.Kind == asset.SymRenamed {
					a.mod.Exports = append(a.mod.Exports, asset.Renamed(s.Sym, s.SymAs))
				} else {
					a.mod.Exports = append(a.mod.Exports, s)
				}
				a.refs[s.Sym]++
			}
		}
	}
	return false
}

func (a *jsAnalyzer) exportSpecifiers(clause *sitter.Node) []asset.LinkingSymbol {
	var out []asset.LinkingSymbol
	for i := range int(clause.NamedChildCount()) {
		spec := clause.NamedChild(i)
		if spec.Type() != "export_specifier" {
			continue
		}
		name := a.moduleExportName(spec.ChildByFieldName("name"))
		if alias := spec.ChildByFieldName("alias"); alias != nil {
			out = append(out, asset.Renamed(name, a.moduleExportName(alias)))
		} else {
			out = append(out, asset.Named(name))
		}
	}
	return out
}

func (a *jsAnalyzer) callExpression(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")
	if fn == nil || args == nil {
		return
	}
	var kind ImportKind
	switch {
	case fn.Type() == "import":
		kind = ImportDynamic
	case fn.Type() == "identifier" && a.tree.text(fn) == "require":
		kind = ImportRequire
	default:
		return
	}
	lit := singleArgument(args)
	if lit == nil {
		return
	}
	spec, ok := a.stringValue(lit)
	if !ok {
		return
	}
	sym := asset.CommonJS()
	if kind == ImportDynamic {
		sym = asset.Dynamic()
	}
	a.mod.Imports = append(a.mod.Imports, ImportSite{
		Kind:      kind,
		Specifier: spec,
		Symbols:   []asset.LinkingSymbol{sym},
		Source:    rangeOf(lit),
		Node:      rangeOf(n),
	})
}

// envAccess matches `process.env.NAME` used as a value.
func (a *jsAnalyzer) envAccess(n, parent *sitter.Node, field string) (string, bool) {
	obj := n.ChildByFieldName("object")
	prop := n.ChildByFieldName("property")
	if obj == nil || prop == nil || prop.Type() != "property_identifier" || obj.Type() != "member_expression" {
		return "", false
	}
	if hasChild(n, "optional_chain") || hasChild(n, "?.") {
		return "", false
	}
	base := obj.ChildByFieldName("object")
	envProp := obj.ChildByFieldName("property")
	if base == nil || envProp == nil || base.Type() != "identifier" || a.tree.text(base) != "process" || a.tree.text(envProp) != "env" {
		return "", false
	}
	if parent != nil {
		switch parent.Type() {
		case "assignment_expression", "augmented_assignment_expression":
			if field == "left" {
				return "", false
			}
		case "update_expression":
			return "", false
		case "unary_expression":
			if op := parent.ChildByFieldName("operator"); op != nil && a.tree.text(op) == "delete" {
				return "", false
			}
		}
	}
	return a.tree.text(prop), true
}

func (a *jsAnalyzer) moduleExportName(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	if n.Type() == "string" {
		s, _ := a.stringValue(n)
		return s
	}
	return a.tree.text(n)
}

// stringValue decodes a string literal or a template literal without
// substitutions.
func (a *jsAnalyzer) stringValue(n *sitter.Node) (string, bool) {
	return stringLiteral(a.tree, n)
}

func stringLiteral(t *Tree, n *sitter.Node) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Type() {
	case "string", "template_string":
	default:
		return "", false
	}
	raw := t.text(n)
	if len(raw) < 2 {
		return "", false
	}
	var sb strings.Builder
	for i := range int(n.NamedChildCount()) {
		c := n.NamedChild(i)
		switch c.Type() {
		case "string_fragment":
			sb.WriteString(t.text(c))
		case "escape_sequence":
			sb.WriteString(unescape(t.text(c)))
		case "template_substitution":
			return "", false
		}
	}
	if n.NamedChildCount() == 0 {
		return raw[1 : len(raw)-1], true
	}
	return sb.String(), true
}

func unescape(seq string) string {
	if s, err := strconv.Unquote(`"` + seq + `"`); err == nil {
		return s
	}
	return strings.TrimPrefix(seq, `\`)
}

func singleArgument(args *sitter.Node) *sitter.Node {
	if args.NamedChildCount() != 1 {
		return nil
	}
	return args.NamedChild(0)
}

func declaredNames(t *Tree, decl *sitter.Node) []string {
	switch decl.Type() {
	case "function_declaration", "generator_function_declaration", "class_declaration":
		if name := decl.ChildByFieldName("name"); name != nil {
			return []string{t.text(name)}
		}
		return nil
	case "lexical_declaration", "variable_declaration":
		var names []string
		for i := range int(decl.NamedChildCount()) {
			d := decl.NamedChild(i)
			if d.Type() != "variable_declarator" {
				continue
			}
			names = append(names, patternNames(t, d.ChildByFieldName("name"))...)
		}
		return names
	}
	return nil
}

// patternNames collects the identifiers a binding pattern introduces.
func patternNames(t *Tree, n *sitter.Node) []string {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		return []string{t.text(n)}
	case "pair_pattern":
		return patternNames(t, n.ChildByFieldName("value"))
	case "assignment_pattern":
		return patternNames(t, n.ChildByFieldName("left"))
	}
	var names []string
	for i := range int(n.NamedChildCount()) {
		names = append(names, patternNames(t, n.NamedChild(i))...)
	}
	return names
}

func lastNamed(n *sitter.Node, typ string) *sitter.Node {
	for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
		if c := n.NamedChild(i); c.Type() == typ {
			return c
		}
	}
	return nil
}

func lastNamedAny(n *sitter.Node) *sitter.Node {
	if cnt := int(n.NamedChildCount()); cnt > 0 {
		return n.NamedChild(cnt - 1)
	}
	return nil
}

func hasChild(n *sitter.Node, typ string) bool {
	for i := range int(n.ChildCount()) {
		if n.Child(i).Type() == typ {
			return true
		}
	}
	return false
}

// CallSite is a call `callee("literal")`.
type CallSite struct {
	Callee    string
	Specifier string
	Source    Range
	Node      Range
}

// FindCalls returns calls to any of the named functions whose single
// argument is a string literal, in source order.
func FindCalls(ctx context.Context, src []byte, callees ...string) ([]CallSite, error) {
	tree, err := Parse(ctx, JavaScript, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	want := make(map[string]bool, len(callees))
	for _, c := range callees {
		want[c] = true
	}
	var out []CallSite
	walk(tree.Root(), nil, "", func(n, _ *sitter.Node, _ string) bool {
		if n.Type() != "call_expression" {
			return true
		}
		fn := n.ChildByFieldName("function")
		args := n.ChildByFieldName("arguments")
		if fn == nil || args == nil {
			return true
		}
		name := fn.Type()
		if name == "identifier" {
			name = tree.text(fn)
		}
		if !want[name] {
			return true
		}
		lit := singleArgument(args)
		if spec, ok := stringLiteral(tree, lit); ok {
			out = append(out, CallSite{Callee: name, Specifier: spec, Source: rangeOf(lit), Node: rangeOf(n)})
		}
		return true
	})
	return out, nil
}
