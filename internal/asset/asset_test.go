package asset

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewAsset(t *testing.T) {
	a := New("/p/src/Logo.PNG", "src/Logo.PNG", nil)
	if a.Kind != "png" {
		t.Fatalf("Kind = %q, want png", a.Kind)
	}
	if a.Content == nil || len(a.Content) != 0 {
		t.Fatalf("Content = %v, want empty non-nil", a.Content)
	}
	if a.Stem() != "Logo" {
		t.Fatalf("Stem = %q, want Logo", a.Stem())
	}
	if len(a.Key()) != 12 || a.Key() != New("/q/src/Logo.PNG", "src/Logo.PNG", nil).Key() {
		t.Fatalf("Key must depend on the relative path only: %q", a.Key())
	}
}

func TestSplitBehaviorSuffix(t *testing.T) {
	cases := []struct {
		in       string
		spec     string
		behavior BundleBehavior
	}{
		{"./a.css?inline", "./a.css", BehaviorInline},
		{"./w.js?isolated", "./w.js", BehaviorIsolated},
		{"./x.js?raw", "./x.js?raw", BehaviorDefault},
		{"react", "react", BehaviorDefault},
	}
	for _, tc := range cases {
		spec, b := SplitBehaviorSuffix(tc.in)
		if spec != tc.spec || b != tc.behavior {
			t.Fatalf("SplitBehaviorSuffix(%q) = %q, %v; want %q, %v", tc.in, spec, b, tc.spec, tc.behavior)
		}
	}
}

func TestMutableAssetMergesDependencies(t *testing.T) {
	a := New("/p/a.js", "a.js", []byte("x"))
	m := NewMutable(a)
	m.AddDependency(DependencyOptions{Specifier: "./b", LinkingSymbols: []LinkingSymbol{Named("x")}})
	m.AddDependency(DependencyOptions{Specifier: "./c"})
	m.AddDependency(DependencyOptions{Specifier: "./b", LinkingSymbols: []LinkingSymbol{Named("x"), Default("d")}})
	m.AddDependency(DependencyOptions{Specifier: "./b", Priority: PriorityLazy, LinkingSymbols: []LinkingSymbol{Dynamic()}})

	want := []DependencyOptions{
		{Specifier: "./b", LinkingSymbols: []LinkingSymbol{Named("x"), Default("d")}},
		{Specifier: "./c"},
		{Specifier: "./b", Priority: PriorityLazy, LinkingSymbols: []LinkingSymbol{Dynamic()}},
	}
	if diff := cmp.Diff(want, m.Dependencies()); diff != "" {
		t.Fatalf("dependencies (-want +got):\n%s", diff)
	}

	m.SetKind("js")
	m.SetCode("y")
	m.SetBytes(nil)
	if a.Kind != "js" || a.Content == nil {
		t.Fatalf("mutations must reach the asset: kind=%q content=%v", a.Kind, a.Content)
	}
	m.AddLinkingSymbol(Named("x"))
	m.AddLinkingSymbol(Named("x"))
	if len(a.LinkingSymbols) != 1 {
		t.Fatalf("linking symbols = %v", a.LinkingSymbols)
	}
}

func TestMutableAssetCodeInvalidUTF8(t *testing.T) {
	m := NewMutable(New("/p/a.txt", "a.txt", []byte{'a', 0xff, 'b'}))
	if got := m.Code(); got != "a�b" {
		t.Fatalf("Code = %q", got)
	}
}

func TestFromOptions(t *testing.T) {
	deps := FromOptions(DependencyOptions{Specifier: "./b", LinkingSymbols: []LinkingSymbol{Named("x"), Named("y")}}, 4, "/p/a.js")
	if len(deps) != 2 || deps[0].LinkingSymbol != Named("x") || deps[1].Source != 4 || deps[1].ResolveFrom != "/p/a.js" {
		t.Fatalf("FromOptions = %+v", deps)
	}
	if deps[0].Key(9) == deps[1].Key(9) {
		t.Fatalf("edges with different symbols must have distinct keys")
	}
	if got := FromOptions(DependencyOptions{Specifier: "./c"}, 1, ""); got[0].LinkingSymbol != Unnamed() {
		t.Fatalf("missing symbols must default to unnamed")
	}
}

func TestLinkingSymbolLocal(t *testing.T) {
	cases := map[LinkingSymbol]string{
		Named("a"):        "a",
		Renamed("a", "b"): "b",
		Default("d"):      "d",
		Namespace("ns"):   "ns",
		Unnamed():         "",
		Dynamic():         "",
	}
	for s, want := range cases {
		if got := s.Local(); got != want {
			t.Fatalf("%v.Local() = %q, want %q", s, got, want)
		}
	}
}
