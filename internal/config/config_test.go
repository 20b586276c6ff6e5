package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mach/internal/failure"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefaultMachrc(t *testing.T) {
	rc := DefaultMachrc()
	if diff := cmp.Diff([]string{BuiltinResolver}, rc.Resolvers); diff != "" {
		t.Fatalf("resolvers (-want +got):\n%s", diff)
	}
	if len(rc.Transformers) != 5 || rc.Transformers[0].Pattern != "*.{js,mjs,jsm,jsx,es6,cjs,ts,tsx}" {
		t.Fatalf("transformers = %+v", rc.Transformers)
	}
	if err := rc.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestParseMachrcTOMLKeepsOrder(t *testing.T) {
	src := `
resolvers = ["node:alias", "mach:resolver"]
engines = ["node"]
shared_bundle_min_users = 3

[transformers]
"*.svg" = ["node:svgr"]
"*.{js,ts}" = ["mach:transformer/javascript"]
"*.css" = ["mach:transformer/css"]

[engine_commands]
node = ["node", "host.mjs"]
`
	rc, err := ParseMachrc(".machrc", []byte(src))
	if err != nil {
		t.Fatalf("ParseMachrc: %v", err)
	}
	want := []TransformerRule{
		{Pattern: "*.svg", Plugins: []string{"node:svgr"}},
		{Pattern: "*.{js,ts}", Plugins: []string{TransformerJS}},
		{Pattern: "*.css", Plugins: []string{TransformerCSS}},
	}
	if diff := cmp.Diff(want, rc.Transformers); diff != "" {
		t.Fatalf("transformers (-want +got):\n%s", diff)
	}
	if rc.SharedBundleMinUsers != 3 {
		t.Fatalf("SharedBundleMinUsers = %d, want 3", rc.SharedBundleMinUsers)
	}
	if diff := cmp.Diff([]string{"node", "host.mjs"}, rc.EngineCommand("node")); diff != "" {
		t.Fatalf("EngineCommand (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"mach-deno-host"}, rc.EngineCommand("deno")); diff != "" {
		t.Fatalf("default EngineCommand (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"node"}, rc.RemoteEngines()); diff != "" {
		t.Fatalf("RemoteEngines (-want +got):\n%s", diff)
	}
}

func TestParseMachrcJSONKeepsOrder(t *testing.T) {
	src := `{
  "transformers": {
    "*.b": ["mach:transformer/drop"],
    "*.a": ["mach:transformer/drop"]
  }
}`
	rc, err := ParseMachrc(".machrc", []byte(src))
	if err != nil {
		t.Fatalf("ParseMachrc: %v", err)
	}
	if len(rc.Transformers) != 2 || rc.Transformers[0].Pattern != "*.b" || rc.Transformers[1].Pattern != "*.a" {
		t.Fatalf("transformers = %+v", rc.Transformers)
	}
	if diff := cmp.Diff([]string{BuiltinResolver}, rc.Resolvers); diff != "" {
		t.Fatalf("missing resolvers must default (-want +got):\n%s", diff)
	}
}

func TestParseMachrcRejects(t *testing.T) {
	cases := map[string]string{
		"unknown toml key":  `resolver = ["mach:resolver"]`,
		"unknown json key":  `{"resolver": []}`,
		"bad identifier":    `resolvers = ["resolver"]`,
		"undeclared engine": `resolvers = ["node:r"]`,
		"empty resolvers":   `resolvers = []`,
		"bad glob":          "[transformers]\n\"*.{js\" = [\"mach:transformer/javascript\"]",
		"bad toml":          `resolvers = [`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseMachrc(".machrc", []byte(src)); err == nil {
				t.Fatalf("ParseMachrc(%q) succeeded", src)
			}
		})
	}
}

func TestLoadPrecedence(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "package.json"), `{
  "name": "app",
  "targets": {"source": ["src/a.js", "src/b.js"], "dist_dir": "out"}
}`)
	writeFile(t, filepath.Join(root, ".machrc"), "shared_bundle_min_users = 4\n")
	writeFile(t, filepath.Join(root, ".env"), "MODE=dev\nMACH_THREADS=3\n")
	writeFile(t, filepath.Join(root, ".env.local"), "MODE=local\n")
	sub := filepath.Join(root, "src")
	writeFile(t, filepath.Join(sub, "a.js"), "")

	cfg, err := Load(Options{WorkDir: sub, Environ: []string{"MODE=proc", "HOME=/h"}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Root != root {
		t.Fatalf("Root = %s, want %s", cfg.Root, root)
	}
	wantEntries := []string{filepath.Join(root, "src", "a.js"), filepath.Join(root, "src", "b.js")}
	if diff := cmp.Diff(wantEntries, cfg.Entries); diff != "" {
		t.Fatalf("entries (-want +got):\n%s", diff)
	}
	if cfg.DistDir != filepath.Join(root, "out") {
		t.Fatalf("DistDir = %s", cfg.DistDir)
	}
	if cfg.Env["MODE"] != "local" || cfg.Env["HOME"] != "/h" {
		t.Fatalf("env overlay wrong: MODE=%q HOME=%q", cfg.Env["MODE"], cfg.Env["HOME"])
	}
	if cfg.Threads != 3 || cfg.Workers() != 3 {
		t.Fatalf("Threads = %d Workers = %d, want 3/3", cfg.Threads, cfg.Workers())
	}
	if cfg.SharedBundleMinUsers != 4 || !cfg.Optimize || cfg.PluginTimeout != 60*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	cfg, err = Load(Options{
		WorkDir:     root,
		Entries:     []string{"src/a.js"},
		DistDir:     "build",
		Threads:     7,
		NodeWorkers: 2,
		NoOptimize:  true,
		Environ:     []string{"MACH_THREADS=5"},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Threads != 7 || cfg.Workers() != 2 || cfg.Optimize {
		t.Fatalf("flags must win: threads=%d workers=%d optimize=%v", cfg.Threads, cfg.Workers(), cfg.Optimize)
	}
	if cfg.DistDir != filepath.Join(root, "build") {
		t.Fatalf("DistDir = %s", cfg.DistDir)
	}
	if got := cfg.Rel(filepath.Join(root, "src", "a.js")); got != "src/a.js" {
		t.Fatalf("Rel = %q", got)
	}
}

func TestLoadErrors(t *testing.T) {
	root := t.TempDir()
	_, err := Load(Options{WorkDir: root, Environ: []string{}})
	var ce *failure.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("no entries: err = %v, want ConfigError", err)
	}

	_, err = Load(Options{WorkDir: root, Entries: []string{"a.js"}, Environ: []string{"MACH_THREADS=lots"}})
	if !errors.As(err, &ce) {
		t.Fatalf("bad MACH_THREADS: err = %v, want ConfigError", err)
	}

	writeFile(t, filepath.Join(root, "package.json"), `{"targets": 5}`)
	_, err = Load(Options{WorkDir: root, Entries: []string{"a.js"}, Environ: []string{}})
	if !errors.As(err, &ce) {
		t.Fatalf("bad package.json: err = %v, want ConfigError", err)
	}
}

func TestPackageJSONShapes(t *testing.T) {
	pkg, err := ParsePackageJSON("/p/package.json", []byte(`{
  "name": "lib",
  "workspaces": {"packages": ["packages/*"]},
  "targets": {"source": "src/index.html"},
  "exports": {".": {"import": "./esm.js"}}
}`))
	if err != nil {
		t.Fatalf("ParsePackageJSON: %v", err)
	}
	if diff := cmp.Diff(Workspaces{"packages/*"}, pkg.Workspaces); diff != "" {
		t.Fatalf("workspaces (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(StringList{"src/index.html"}, pkg.Targets.Source); diff != "" {
		t.Fatalf("source (-want +got):\n%s", diff)
	}
	if !pkg.HasExports() || pkg.Dir() != "/p" {
		t.Fatalf("HasExports/Dir = %v/%s", pkg.HasExports(), pkg.Dir())
	}
}
