package resolve

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mach/internal/asset"
	"mach/internal/config"
	"mach/internal/failure"
	"mach/internal/plugin"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func resolveOK(t *testing.T, r *NodeResolver, from, spec string, typ asset.SpecifierType) string {
	t.Helper()
	res, err := r.Resolve(context.Background(), &asset.Dependency{Specifier: spec, ResolveFrom: from, SpecifierType: typ})
	if err != nil {
		t.Fatalf("Resolve(%q): %v", spec, err)
	}
	if res == nil {
		t.Fatalf("Resolve(%q) yielded", spec)
	}
	return res.FilePath
}

func TestRelativeProbing(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/a.js":             "",
		"src/b.ts":             "",
		"src/b.js":             "",
		"src/c.json":           "{}",
		"src/lib/index.tsx":    "",
		"src/pkg/package.json": `{"main": "./main.js", "module": "./esm.js"}`,
		"src/pkg/esm.js":       "",
		"src/pkg/main.js":      "",
		"src/exact.js.txt":     "",
	})
	r, err := NewNodeResolver(root, nil)
	if err != nil {
		t.Fatalf("NewNodeResolver: %v", err)
	}
	from := filepath.Join(root, "src", "a.js")
	cases := map[string]string{
		"./b":            "src/b.ts",
		"./b.js":         "src/b.js",
		"./c":            "src/c.json",
		"./lib":          "src/lib/index.tsx",
		"./pkg":          "src/pkg/esm.js",
		"../src/a":       "src/a.js",
		"./exact.js.txt": "src/exact.js.txt",
	}
	for spec, want := range cases {
		got := resolveOK(t, r, from, spec, asset.SpecifierESM)
		if got != filepath.Join(root, filepath.FromSlash(want)) {
			t.Fatalf("Resolve(%q) = %s, want %s", spec, got, want)
		}
	}
	if got := resolveOK(t, r, root, "./src/a", asset.SpecifierESM); got != from {
		t.Fatalf("root-relative = %s, want %s", got, from)
	}
	res, err := r.Resolve(context.Background(), &asset.Dependency{Specifier: "./missing", ResolveFrom: from})
	if err != nil || res != nil {
		t.Fatalf("missing file = %+v, %v; want yield", res, err)
	}
}

func TestInvalidAndURLSpecifiers(t *testing.T) {
	r, _ := NewNodeResolver(t.TempDir(), nil)
	for _, spec := range []string{"", "."} {
		if _, err := r.Resolve(context.Background(), &asset.Dependency{Specifier: spec}); !errors.Is(err, errInvalidSpecifier) {
			t.Fatalf("Resolve(%q): err = %v", spec, err)
		}
	}
	for _, spec := range []string{"https://cdn/x.js", "data:text/plain,hi", "node:fs", "//cdn/x.js"} {
		res, err := r.Resolve(context.Background(), &asset.Dependency{Specifier: spec})
		if err != nil || res != nil {
			t.Fatalf("Resolve(%q) = %+v, %v; want yield", spec, res, err)
		}
	}
}

func TestBarePackages(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"package.json":                           `{"name":"app","workspaces":["packages/*"]}`,
		"packages/ui/package.json":               `{"name":"@app/ui","main":"dist/index.js"}`,
		"packages/ui/dist/index.js":              "",
		"node_modules/plain/package.json":        `{"name":"plain","main":"lib/main"}`,
		"node_modules/plain/lib/main.js":         "",
		"node_modules/plain/extra.js":            "",
		"node_modules/@scope/cond/package.json":  `{"name":"@scope/cond","exports":{".":{"import":"./esm/index.mjs","require":"./cjs/index.cjs"},"./feature/*":"./features/*.js","./private":null}}`,
		"node_modules/@scope/cond/esm/index.mjs": "",
		"node_modules/@scope/cond/cjs/index.cjs": "",
		"node_modules/@scope/cond/features/x.js": "",
		"src/deep/a.js":                          "",
	})
	rootPkg, err := config.ReadPackageJSON(filepath.Join(root, "package.json"))
	if err != nil {
		t.Fatalf("ReadPackageJSON: %v", err)
	}
	r, err := NewNodeResolver(root, rootPkg)
	if err != nil {
		t.Fatalf("NewNodeResolver: %v", err)
	}
	from := filepath.Join(root, "src", "deep", "a.js")
	cases := []struct {
		spec string
		typ  asset.SpecifierType
		want string
	}{
		{"@app/ui", asset.SpecifierESM, "packages/ui/dist/index.js"},
		{"plain", asset.SpecifierESM, "node_modules/plain/lib/main.js"},
		{"plain/extra", asset.SpecifierESM, "node_modules/plain/extra.js"},
		{"@scope/cond", asset.SpecifierESM, "node_modules/@scope/cond/esm/index.mjs"},
		{"@scope/cond", asset.SpecifierCommonJS, "node_modules/@scope/cond/cjs/index.cjs"},
		{"@scope/cond/feature/x", asset.SpecifierESM, "node_modules/@scope/cond/features/x.js"},
	}
	for _, tc := range cases {
		got := resolveOK(t, r, from, tc.spec, tc.typ)
		if got != filepath.Join(root, filepath.FromSlash(tc.want)) {
			t.Fatalf("Resolve(%q, %s) = %s, want %s", tc.spec, tc.typ, got, tc.want)
		}
	}
	if _, err := r.Resolve(context.Background(), &asset.Dependency{Specifier: "@scope/cond/private", ResolveFrom: from}); err == nil {
		t.Fatalf("unexported subpath resolved")
	}
	res, err := r.Resolve(context.Background(), &asset.Dependency{Specifier: "nope", ResolveFrom: from})
	if err != nil || res != nil {
		t.Fatalf("unknown package = %+v, %v; want yield", res, err)
	}
}

func TestResolveExportsSugar(t *testing.T) {
	target, ok, err := resolveExports([]byte(`"./index.js"`), ".", conditionsFor(asset.SpecifierESM))
	if err != nil || !ok || target != "./index.js" {
		t.Fatalf("string exports = %q %v %v", target, ok, err)
	}
	target, ok, err = resolveExports([]byte(`{"browser":"./b.js","default":"./d.js"}`), ".", conditionsFor(asset.SpecifierCommonJS))
	if err != nil || !ok || target != "./b.js" {
		t.Fatalf("condition exports = %q %v %v", target, ok, err)
	}
	if _, ok, _ := resolveExports([]byte(`"./index.js"`), "./sub", nil); ok {
		t.Fatalf("sugar exports must not expose subpaths")
	}
	if _, _, err := resolveExports([]byte(`{".":"index.js"}`), ".", nil); err == nil {
		t.Fatalf("target without ./ accepted")
	}
}

func TestDriverOrderAndErrors(t *testing.T) {
	yield := plugin.ResolverFunc(func(context.Context, *asset.Dependency) (*plugin.ResolveResult, error) { return nil, nil })
	claim := plugin.ResolverFunc(func(context.Context, *asset.Dependency) (*plugin.ResolveResult, error) {
		return &plugin.ResolveResult{FilePath: "/claimed/x.js"}, nil
	})
	fail := plugin.ResolverFunc(func(context.Context, *asset.Dependency) (*plugin.ResolveResult, error) {
		return nil, errors.New("boom")
	})
	rc := config.Machrc{Resolvers: []string{"mach:yield", "mach:claim"}}
	builtins := plugin.Builtins{Resolvers: map[string]plugin.Resolver{"mach:yield": yield, "mach:claim": claim, "mach:fail": fail}}
	reg, err := plugin.NewRegistry(rc, builtins, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	dep := &asset.Dependency{Specifier: "x", ResolveFrom: "/p/a.js"}
	got, err := NewDriver(reg.Resolvers()).Resolve(context.Background(), dep)
	if err != nil || got != "/claimed/x.js" {
		t.Fatalf("Resolve = %q, %v", got, err)
	}

	rc.Resolvers = []string{"mach:yield"}
	reg, _ = plugin.NewRegistry(rc, builtins, nil)
	_, err = NewDriver(reg.Resolvers()).Resolve(context.Background(), dep)
	var unresolved *failure.UnresolvedSpecifier
	if !errors.As(err, &unresolved) || unresolved.Specifier != "x" || unresolved.From != "/p/a.js" {
		t.Fatalf("err = %v, want UnresolvedSpecifier", err)
	}

	rc.Resolvers = []string{"mach:fail", "mach:claim"}
	reg, _ = plugin.NewRegistry(rc, builtins, nil)
	_, err = NewDriver(reg.Resolvers()).Resolve(context.Background(), dep)
	var re *failure.ResolverError
	if !errors.As(err, &re) || re.Plugin != "mach:fail" || re.Message != "boom" {
		t.Fatalf("err = %v, want ResolverError", err)
	}
	if failure.ExitCode(err) != failure.ExitPlugin {
		t.Fatalf("exit code = %d", failure.ExitCode(err))
	}
}
