package buildpipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mach/internal/config"
	"mach/internal/diag"
	"mach/internal/failure"
)

func project(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

func configFor(root string, entries ...string) *config.MachConfig {
	cfg := &config.MachConfig{
		Root:                 root,
		DistDir:              filepath.Join(root, "dist"),
		SharedBundleMinUsers: config.DefaultSharedBundleMinUsers,
		Threads:              4,
		PluginTimeout:        time.Second,
		Env:                  map[string]string{},
		Machrc:               config.DefaultMachrc(),
	}
	for _, e := range entries {
		cfg.Entries = append(cfg.Entries, filepath.Join(root, e))
	}
	return cfg
}

func build(t *testing.T, cfg *config.MachConfig) *Compilation {
	t.Helper()
	c, err := Build(context.Background(), &BuildRequest{Config: cfg})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return c
}

func outputNamed(t *testing.T, c *Compilation, prefix string) string {
	t.Helper()
	for _, o := range c.Outputs {
		if strings.HasPrefix(o.FilePath, prefix) {
			return string(o.Content)
		}
	}
	t.Fatalf("no output named %s*", prefix)
	return ""
}

func keyOf(t *testing.T, c *Compilation, rel string) string {
	t.Helper()
	id, ok := c.Graph.Lookup(filepath.Join(c.Config.Root, filepath.FromSlash(rel)))
	if !ok {
		t.Fatalf("%s not in graph", rel)
	}
	return `"` + c.Graph.Asset(id).Key() + `"`
}

var bundleName = regexp.MustCompile(`^a\.[0-9a-f]{15}\.js$`)

func TestSingleFile(t *testing.T) {
	root := project(t, map[string]string{"a.js": "export const x = 1;\n"})
	c := build(t, configFor(root, "a.js"))

	if len(c.Outputs) != 1 || !bundleName.MatchString(c.Outputs[0].FilePath) {
		t.Fatalf("outputs = %+v", c.Outputs)
	}
	js := string(c.Outputs[0].Content)
	if strings.Count(js, `mach_register("`) != 1 || !strings.Contains(js, "const x = 1") {
		t.Fatalf("bundle:\n%s", js)
	}
	want := []State{StateEmpty, StateResolving, StateTransforming, StateBundling, StatePackaging, StateDone}
	if diff := cmp.Diff(want, c.History()); diff != "" {
		t.Fatalf("history (-want +got):\n%s", diff)
	}
}

func TestStaticImport(t *testing.T) {
	root := project(t, map[string]string{
		"a.js": "import { x } from './b';\nconsole.log(x);\n",
		"b.js": "export const x = 42;\n",
	})
	c := build(t, configFor(root, "a.js"))

	if len(c.Outputs) != 1 {
		t.Fatalf("outputs = %d, want 1", len(c.Outputs))
	}
	js := string(c.Outputs[0].Content)
	if !strings.Contains(js, "mach_require("+keyOf(t, c, "b.js")+")") || !strings.Contains(js, "const x = 42") {
		t.Fatalf("bundle:\n%s", js)
	}
}

func TestDynamicImport(t *testing.T) {
	root := project(t, map[string]string{
		"a.js": "import('./b').then((m) => console.log(m.x));\n",
		"b.js": "export const x = 7;\n",
	})
	c := build(t, configFor(root, "a.js"))

	if len(c.Outputs) != 2 {
		t.Fatalf("outputs = %d, want 2", len(c.Outputs))
	}
	js := outputNamed(t, c, "a.")
	if !strings.Contains(js, "mach_import([\"b.") || !strings.Contains(js, keyOf(t, c, "b.js")) {
		t.Fatalf("no loader for b:\n%s", js)
	}
	if !strings.Contains(outputNamed(t, c, "b."), "const x = 7") {
		t.Fatalf("b bundle lacks its module")
	}
}

func TestEnvSubstitution(t *testing.T) {
	root := project(t, map[string]string{"a.js": "console.log(process.env.MODE);\n"})
	cfg := configFor(root, "a.js")
	cfg.Env["MODE"] = "prod"
	c := build(t, cfg)

	js := string(c.Outputs[0].Content)
	if !strings.Contains(js, `console.log("prod")`) || strings.Contains(js, "process.env") {
		t.Fatalf("bundle:\n%s", js)
	}
}

func TestDroppedAsset(t *testing.T) {
	root := project(t, map[string]string{
		"a.js":     "import './logo.png';\n",
		"logo.png": "\x89PNG",
	})
	c := build(t, configFor(root, "a.js"))

	id, ok := c.Graph.Lookup(filepath.Join(root, "logo.png"))
	if !ok {
		t.Fatalf("logo.png not in graph")
	}
	if a := c.Graph.Asset(id); a.Kind != "png" || len(a.Content) != 0 {
		t.Fatalf("logo = %+v", a)
	}
	js := outputNamed(t, c, "a.")
	empty := "mach_register(" + keyOf(t, c, "logo.png") + ", function(module, exports) {\n});"
	if !strings.Contains(js, empty) {
		t.Fatalf("missing empty module:\n%s", js)
	}
}

func TestCycle(t *testing.T) {
	root := project(t, map[string]string{
		"a.js": "import './b';\nexport const a = 1;\n",
		"b.js": "import './a';\nexport const b = 2;\n",
	})
	c := build(t, configFor(root, "a.js"))

	if len(c.Outputs) != 1 {
		t.Fatalf("outputs = %d, want 1", len(c.Outputs))
	}
	js := string(c.Outputs[0].Content)
	for _, rel := range []string{"a.js", "b.js"} {
		if !strings.Contains(js, "mach_register("+keyOf(t, c, rel)) {
			t.Fatalf("%s not registered:\n%s", rel, js)
		}
	}
}

func TestSameOutputsForAnyThreadCount(t *testing.T) {
	root := project(t, map[string]string{
		"a.js": "import { x } from './b';\nimport('./c').then(console.log);\nconsole.log(x);\n",
		"b.js": "export const x = 1;\n",
		"c.js": "import { x } from './b';\nexport const y = x + 1;\n",
		"d.js": "import { x } from './b';\nconsole.log(x);\n",
	})
	var runs [][]string
	for _, threads := range []int{1, 8} {
		cfg := configFor(root, "a.js", "d.js")
		cfg.Threads = threads
		cfg.BundleSplitting = true
		c := build(t, cfg)
		var got []string
		for _, o := range c.Outputs {
			got = append(got, o.FilePath+"\n"+string(o.Content))
		}
		runs = append(runs, got)
	}
	if diff := cmp.Diff(runs[0], runs[1]); diff != "" {
		t.Fatalf("outputs differ (-1 thread +8 threads):\n%s", diff)
	}
}

func TestFailureMovesToFailed(t *testing.T) {
	root := project(t, map[string]string{"a.js": "import './missing';\n"})
	c, err := Build(context.Background(), &BuildRequest{Config: configFor(root, "a.js")})

	var unresolved *failure.UnresolvedSpecifier
	if !errors.As(err, &unresolved) {
		t.Fatalf("err = %v, want UnresolvedSpecifier", err)
	}
	if c.State() != StateFailed || c.Err != err {
		t.Fatalf("state = %s, err = %v", c.State(), c.Err)
	}
	if failure.ExitCode(err) != failure.ExitUser {
		t.Fatalf("exit code = %d, want %d", failure.ExitCode(err), failure.ExitUser)
	}
}

func TestUnmatchedGlobWarning(t *testing.T) {
	root := project(t, map[string]string{"a.js": "export const x = 1;\n"})
	cfg := configFor(root, "a.js")
	cfg.Machrc.Path = filepath.Join(root, ".machrc")
	cfg.Machrc.Transformers = append(cfg.Machrc.Transformers, config.TransformerRule{
		Pattern: "*.vue",
		Plugins: []string{config.TransformerDrop},
	})
	c := build(t, cfg)

	var found bool
	for _, d := range c.Diagnostics.Items() {
		if d.Code == diag.WarnUnmatchedGlob && strings.Contains(d.Message, "*.vue") {
			found = true
		}
	}
	if !found {
		t.Fatalf("no unmatched glob warning in %v", c.Diagnostics.Items())
	}
}

func TestProgressEvents(t *testing.T) {
	root := project(t, map[string]string{"a.js": "export const x = 1;\n"})
	sink := &RecordingSink{}
	if _, err := Build(context.Background(), &BuildRequest{Config: configFor(root, "a.js"), Progress: sink}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	done := make(map[Stage]bool)
	var files []string
	for _, ev := range sink.Events() {
		if ev.File == "" && ev.Status == StatusDone {
			done[ev.Stage] = true
		}
		if ev.File != "" && ev.Stage == StageTransform {
			files = append(files, ev.File)
		}
	}
	for _, s := range []Stage{StageResolve, StageTransform, StageBundle, StagePackage} {
		if !done[s] {
			t.Fatalf("stage %s never finished", s)
		}
	}
	if done[StageEmit] {
		t.Fatalf("Build reported an emit stage")
	}
	if diff := cmp.Diff([]string{"a.js"}, files); diff != "" {
		t.Fatalf("asset events (-want +got):\n%s", diff)
	}
}

func TestBuildEmit(t *testing.T) {
	root := project(t, map[string]string{
		"a.js":           "export const x = 1;\n",
		"dist/stale.txt": "old",
	})
	cfg := configFor(root, "a.js")
	cfg.CleanDistDir = true
	c, err := BuildEmit(context.Background(), &BuildRequest{Config: cfg})
	if err != nil {
		t.Fatalf("BuildEmit: %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfg.DistDir, "stale.txt")); !os.IsNotExist(err) {
		t.Fatalf("stale file survived: %v", err)
	}
	info, err := os.Stat(filepath.Join(cfg.DistDir, c.Outputs[0].FilePath))
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Fatalf("mode = %v, want 0644", info.Mode().Perm())
	}
	var cleaned bool
	for _, d := range c.Diagnostics.Items() {
		cleaned = cleaned || d.Code == diag.InfoDistCleaned
	}
	if !cleaned || !c.Timings.Has(StageEmit) {
		t.Fatalf("cleaned = %v, emit timed = %v", cleaned, c.Timings.Has(StageEmit))
	}
}

func TestCleanRefusesProjectRoot(t *testing.T) {
	root := project(t, map[string]string{"a.js": "export const x = 1;\n"})
	cfg := configFor(root, "a.js")
	cfg.DistDir = root
	cfg.CleanDistDir = true
	_, err := BuildEmit(context.Background(), &BuildRequest{Config: cfg})

	var emitErr *failure.EmitError
	if !errors.As(err, &emitErr) {
		t.Fatalf("err = %v, want EmitError", err)
	}
	if _, statErr := os.Stat(filepath.Join(root, "a.js")); statErr != nil {
		t.Fatalf("project file removed: %v", statErr)
	}
}

func TestDistPath(t *testing.T) {
	dist := filepath.Join(t.TempDir(), "dist")
	if got, err := distPath(dist, "a.123.js"); err != nil || got != filepath.Join(dist, "a.123.js") {
		t.Fatalf("distPath = %q, %v", got, err)
	}
	for _, name := range []string{"", "../x.js", "a/../../x.js", "/etc/passwd", "."} {
		if _, err := distPath(dist, name); !errors.Is(err, errOutsideDist) {
			t.Fatalf("distPath(%q) err = %v, want errOutsideDist", name, err)
		}
	}
}

func TestIllegalTransition(t *testing.T) {
	c := NewCompilation(configFor(t.TempDir()))
	if err := c.advance(StateBundling); err == nil {
		t.Fatalf("empty -> bundling accepted")
	}
	if err := c.advance(StateResolving); err != nil {
		t.Fatalf("empty -> resolving: %v", err)
	}
	_ = c.fail(errors.New("boom"))
	if err := c.advance(StateTransforming); err == nil {
		t.Fatalf("transition out of failed accepted")
	}
	want := []State{StateEmpty, StateResolving, StateFailed}
	if diff := cmp.Diff(want, c.History()); diff != "" {
		t.Fatalf("history (-want +got):\n%s", diff)
	}
}
