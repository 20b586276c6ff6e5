package graphbuild

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mach/internal/asset"
	"mach/internal/diag"
	"mach/internal/failure"
	"mach/internal/graph"
)

// lineResolver resolves specifiers relative to the importer and fails for
// missing files.
type lineResolver struct{}

func (lineResolver) Resolve(_ context.Context, dep *asset.Dependency) (string, error) {
	base := dep.ResolveFrom
	if info, err := os.Stat(base); err != nil || !info.IsDir() {
		base = filepath.Dir(base)
	}
	path := filepath.Join(base, filepath.FromSlash(dep.Specifier))
	if _, err := os.Stat(path); err != nil {
		return "", &failure.UnresolvedSpecifier{Specifier: dep.Specifier, From: dep.ResolveFrom}
	}
	return path, nil
}

// lineTransformer treats every non-empty line as a specifier. Lines
// starting with "lazy " become lazy dependencies.
type lineTransformer struct{}

func (lineTransformer) Run(_ context.Context, a *asset.Asset) ([]asset.DependencyOptions, error) {
	var out []asset.DependencyOptions
	for _, line := range strings.Split(string(a.Content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		opts := asset.DependencyOptions{Specifier: line}
		if rest, ok := strings.CutPrefix(line, "lazy "); ok {
			opts = asset.DependencyOptions{Specifier: rest, Priority: asset.PriorityLazy}
		}
		out = append(out, opts)
	}
	return out, nil
}

func writeTree(t *testing.T, files map[string]string) string {
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

func build(t *testing.T, root string, threads int, entries ...string) (*graph.AssetGraph, []string, *diag.Bag, error) {
	t.Helper()
	g := graph.New(nil, nil)
	bag := diag.NewBag(diag.DefaultBagSize)
	var mu sync.Mutex
	var seen []string
	b := New(g, lineResolver{}, lineTransformer{}, Options{
		Root:    root,
		Threads: threads,
		OnAsset: func(rel string) {
			mu.Lock()
			seen = append(seen, rel)
			mu.Unlock()
		},
		Reporter: diag.BagReporter{Bag: bag},
	})
	abs := make([]string, len(entries))
	for i, e := range entries {
		abs[i] = filepath.Join(root, e)
	}
	err := b.Build(context.Background(), abs)
	sort.Strings(seen)
	return g, seen, bag, err
}

func edgeList(g *graph.AssetGraph) []string {
	var out []string
	for _, e := range g.Edges() {
		from := "<root>"
		if e.From != graph.RootID {
			from = g.Asset(e.From).FilePath
		}
		out = append(out, from+" -> "+g.Asset(e.To).FilePath)
	}
	sort.Strings(out)
	return out
}

func TestDiamondIsDeduplicated(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt": "./b.txt\n./c.txt\n",
		"b.txt": "./d.txt\n",
		"c.txt": "./d.txt\n",
		"d.txt": "",
	})
	g, seen, _, err := build(t, root, 4, "a.txt")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if diff := cmp.Diff([]string{"a.txt", "b.txt", "c.txt", "d.txt"}, seen); diff != "" {
		t.Fatalf("OnAsset (-want +got):\n%s", diff)
	}
	want := []string{
		"<root> -> a.txt",
		"a.txt -> b.txt",
		"a.txt -> c.txt",
		"b.txt -> d.txt",
		"c.txt -> d.txt",
	}
	if diff := cmp.Diff(want, edgeList(g)); diff != "" {
		t.Fatalf("edges (-want +got):\n%s", diff)
	}
}

func TestCycleTerminates(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt": "./b.txt\n",
		"b.txt": "./a.txt\nlazy ./a.txt\n",
	})
	g, _, _, err := build(t, root, 3, "a.txt")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.Len() != 2 || g.EdgeCount() != 4 {
		t.Fatalf("assets=%d edges=%d, want 2 and 4", g.Len(), g.EdgeCount())
	}
}

func TestSameGraphForAnyThreadCount(t *testing.T) {
	files := map[string]string{"main.txt": ""}
	for i := 0; i < 20; i++ {
		name := string(rune('a'+i)) + ".txt"
		files["main.txt"] += "./" + name + "\n"
		files[name] = "./shared.txt\n./main.txt\n"
	}
	files["shared.txt"] = "lazy ./main.txt\n"
	root := writeTree(t, files)
	g1, _, _, err := build(t, root, 1, "main.txt")
	if err != nil {
		t.Fatalf("Build(1): %v", err)
	}
	g8, _, _, err := build(t, root, 8, "main.txt")
	if err != nil {
		t.Fatalf("Build(8): %v", err)
	}
	if diff := cmp.Diff(edgeList(g1), edgeList(g8)); diff != "" {
		t.Fatalf("graphs differ (-1 +8):\n%s", diff)
	}
}

func TestFirstErrorStopsBuild(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt": "./b.txt\n./missing.txt\n",
		"b.txt": "",
	})
	_, _, _, err := build(t, root, 2, "a.txt")
	var unresolved *failure.UnresolvedSpecifier
	if !errors.As(err, &unresolved) || unresolved.Specifier != "./missing.txt" {
		t.Fatalf("err = %v, want UnresolvedSpecifier", err)
	}
}

func TestMultipleEntriesShareAssets(t *testing.T) {
	root := writeTree(t, map[string]string{
		"one.txt":    "./common.txt\n",
		"two.txt":    "./common.txt\n",
		"common.txt": "",
	})
	g, _, _, err := build(t, root, 2, "one.txt", "two.txt")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.Len() != 3 || len(g.Entries()) != 2 {
		t.Fatalf("assets=%d entries=%d", g.Len(), len(g.Entries()))
	}
}

func TestDuplicateContentWarns(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt":      "./x/lib.txt\n./y/lib.txt\n",
		"x/lib.txt":  "./leaf.txt\n",
		"y/lib.txt":  "./leaf.txt\n",
		"x/leaf.txt": "",
		"y/leaf.txt": "",
	})
	_, _, bag, err := build(t, root, 2, "a.txt")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	items := bag.Items()
	if len(items) != 1 || items[0].Code != diag.WarnDuplicateAsset || items[0].Primary.File != "y/lib.txt" {
		t.Fatalf("warnings = %v", items)
	}
}

func TestCanceledContext(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": ""})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := New(graph.New(nil, nil), lineResolver{}, lineTransformer{}, Options{Root: root, Threads: 2})
	if err := b.Build(ctx, []string{filepath.Join(root, "a.txt")}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
