package resolve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"mach/internal/asset"
	"mach/internal/config"
	"mach/internal/plugin"
)

// Extensions are tried in this order for extensionless specifiers and
// index files.
var Extensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".json"}

var errInvalidSpecifier = errors.New("invalid specifier")

// NodeResolver implements node-style resolution: relative and absolute
// paths with extension probing, directory manifests and index files, and
// bare package names through workspaces and node_modules.
type NodeResolver struct {
	root       string
	workspaces map[string]string

	mu   sync.Mutex
	pkgs map[string]*config.PackageJSON
}

var _ plugin.Resolver = (*NodeResolver)(nil)

// NewNodeResolver indexes the workspace packages declared by rootPkg.
// rootPkg may be nil.
func NewNodeResolver(root string, rootPkg *config.PackageJSON) (*NodeResolver, error) {
	r := &NodeResolver{
		root:       root,
		workspaces: make(map[string]string),
		pkgs:       make(map[string]*config.PackageJSON),
	}
	if rootPkg == nil {
		return r, nil
	}
	fsys := os.DirFS(root)
	for _, pattern := range rootPkg.Workspaces {
		pattern = strings.TrimSuffix(strings.TrimPrefix(filepath.ToSlash(pattern), "./"), "/")
		matches, err := doublestar.Glob(fsys, pattern+"/package.json")
		if err != nil {
			return nil, fmt.Errorf("workspaces: %w", err)
		}
		for _, m := range matches {
			pkg, err := config.ReadPackageJSON(filepath.Join(root, filepath.FromSlash(m)))
			if err != nil {
				return nil, err
			}
			if pkg.Name == "" {
				continue
			}
			if _, dup := r.workspaces[pkg.Name]; !dup {
				r.workspaces[pkg.Name] = pkg.Dir()
			}
		}
	}
	return r, nil
}

// Workspaces returns the package name to directory index.
func (r *NodeResolver) Workspaces() map[string]string {
	return r.workspaces
}

func (r *NodeResolver) Resolve(_ context.Context, dep *asset.Dependency) (*plugin.ResolveResult, error) {
	spec := dep.Specifier
	if spec == "" || spec == "." {
		return nil, fmt.Errorf("%w %q", errInvalidSpecifier, spec)
	}
	if IsURL(spec) {
		return nil, nil
	}
	base := baseDir(dep.ResolveFrom)
	var (
		found string
		err   error
	)
	switch {
	case isRelative(spec):
		found, err = r.loadFileOrDir(filepath.Join(base, filepath.FromSlash(spec)))
	case strings.HasPrefix(spec, "/"):
		found, err = r.loadFileOrDir(filepath.FromSlash(spec))
		if err == nil && found == "" {
			found, err = r.loadFileOrDir(filepath.Join(r.root, filepath.FromSlash(spec)))
		}
	default:
		found, err = r.loadBare(base, spec, dep.SpecifierType)
	}
	if err != nil || found == "" {
		return nil, err
	}
	return &plugin.ResolveResult{FilePath: found}, nil
}

// IsURL reports specifiers that name something outside the file system.
func IsURL(spec string) bool {
	for _, prefix := range []string{"http:", "https:", "data:", "node:", "//"} {
		if strings.HasPrefix(spec, prefix) {
			return true
		}
	}
	return false
}

func isRelative(spec string) bool {
	return spec == ".." || strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}

// baseDir is the directory specifiers are relative to. Root dependencies
// carry the project directory, all others the importer's file.
func baseDir(from string) string {
	if from == "" {
		return "."
	}
	if info, err := os.Stat(from); err == nil && info.IsDir() {
		return from
	}
	return filepath.Dir(from)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (r *NodeResolver) loadFileOrDir(path string) (string, error) {
	if found := loadFile(path); found != "" {
		return found, nil
	}
	if isDir(path) {
		return r.loadDir(path)
	}
	return "", nil
}

func loadFile(path string) string {
	if isFile(path) {
		return path
	}
	for _, ext := range Extensions {
		if isFile(path + ext) {
			return path + ext
		}
	}
	return ""
}

func loadIndex(dir string) string {
	for _, ext := range Extensions {
		if p := filepath.Join(dir, "index"+ext); isFile(p) {
			return p
		}
	}
	return ""
}

// loadDir follows module, then main, then falls back to index files.
func (r *NodeResolver) loadDir(dir string) (string, error) {
	pkg, err := r.packageAt(dir)
	if err != nil {
		return "", err
	}
	if pkg != nil {
		for _, field := range []string{pkg.Module, pkg.Main} {
			if field == "" {
				continue
			}
			target := filepath.Join(dir, filepath.FromSlash(field))
			if found := loadFile(target); found != "" {
				return found, nil
			}
			if found := loadIndex(target); found != "" {
				return found, nil
			}
		}
	}
	return loadIndex(dir), nil
}

// packageAt returns the manifest in dir, or nil when there is none.
func (r *NodeResolver) packageAt(dir string) (*config.PackageJSON, error) {
	r.mu.Lock()
	pkg, ok := r.pkgs[dir]
	r.mu.Unlock()
	if ok {
		return pkg, nil
	}
	path := filepath.Join(dir, "package.json")
	if isFile(path) {
		var err error
		if pkg, err = config.ReadPackageJSON(path); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	r.pkgs[dir] = pkg
	r.mu.Unlock()
	return pkg, nil
}

// splitBare separates "@scope/name/sub/path" into the package name and
// "./sub/path" (or "." for the package itself).
func splitBare(spec string) (name, subpath string) {
	parts := strings.SplitN(spec, "/", 3)
	n := 1
	if strings.HasPrefix(spec, "@") && len(parts) > 1 {
		n = 2
	}
	name = strings.Join(parts[:min(n, len(parts))], "/")
	rest := strings.TrimPrefix(spec[len(name):], "/")
	if rest == "" {
		return name, "."
	}
	return name, "./" + rest
}

func (r *NodeResolver) loadBare(base, spec string, typ asset.SpecifierType) (string, error) {
	name, subpath := splitBare(spec)
	if dir, ok := r.workspaces[name]; ok {
		return r.loadPackage(dir, subpath, typ)
	}
	for dir := base; ; {
		candidate := filepath.Join(dir, "node_modules", filepath.FromSlash(name))
		if isDir(candidate) {
			return r.loadPackage(candidate, subpath, typ)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (r *NodeResolver) loadPackage(dir, subpath string, typ asset.SpecifierType) (string, error) {
	pkg, err := r.packageAt(dir)
	if err != nil {
		return "", err
	}
	if pkg != nil && pkg.HasExports() {
		target, ok, err := resolveExports(pkg.Exports, subpath, conditionsFor(typ))
		if err != nil {
			return "", fmt.Errorf("%s: exports: %w", pkg.Path, err)
		}
		if !ok {
			return "", fmt.Errorf("package %s does not export %q", pkg.Name, subpath)
		}
		path := filepath.Join(dir, filepath.FromSlash(target))
		if !isFile(path) {
			return "", fmt.Errorf("package %s exports missing file %s", pkg.Name, target)
		}
		return path, nil
	}
	if subpath == "." {
		return r.loadDir(dir)
	}
	return r.loadFileOrDir(filepath.Join(dir, filepath.FromSlash(subpath)))
}

func conditionsFor(typ asset.SpecifierType) []string {
	if typ == asset.SpecifierCommonJS {
		return []string{"require", "browser", "default"}
	}
	return []string{"import", "browser", "default"}
}
