// Package config assembles the MachConfig a build runs with from CLI
// options, the environment, package.json and .machrc.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"mach/internal/failure"
)

const (
	DefaultSharedBundleMinUsers = 2
	DefaultPluginTimeout        = 60 * time.Second
	DefaultDistDir              = "dist"
)

// MachConfig is everything a build needs. Paths are absolute.
type MachConfig struct {
	Root                 string
	Entries              []string
	DistDir              string
	CleanDistDir         bool
	Optimize             bool
	BundleSplitting      bool
	SharedBundleMinUsers int
	Threads              int
	NodeWorkers          int
	PluginTimeout        time.Duration
	Env                  map[string]string
	Machrc               Machrc
	Package              *PackageJSON
}

// Rel returns path relative to Root in slash form. Paths outside the root
// keep their absolute slash form.
func (c *MachConfig) Rel(path string) string {
	rel, err := filepath.Rel(c.Root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return filepath.ToSlash(path)
	}
	return rel
}

// Workers returns the RPC slot count per engine.
func (c *MachConfig) Workers() int {
	if c.NodeWorkers > 0 {
		return c.NodeWorkers
	}
	return max(c.Threads, 1)
}

// LookupEnv returns the substitution value for name.
func (c *MachConfig) LookupEnv(name string) (string, bool) {
	v, ok := c.Env[name]
	return v, ok
}

// Options are the CLI-level inputs. Zero values mean "not given".
type Options struct {
	WorkDir         string
	Entries         []string
	DistDir         string
	Clean           bool
	NoOptimize      bool
	BundleSplitting bool
	Threads         int
	NodeWorkers     int
	PluginTimeout   time.Duration
	// Environ defaults to os.Environ().
	Environ []string
	// NoEntries skips entry discovery for commands that never build.
	NoEntries bool
}

// Load builds a MachConfig. Precedence: options, environment, package.json
// targets, .machrc, defaults.
func Load(opts Options) (*MachConfig, error) {
	workDir := opts.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		workDir = wd
	}
	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}

	root, err := FindRoot(workDir)
	if err != nil {
		return nil, err
	}

	cfg := &MachConfig{
		Root:                 root,
		Optimize:             !opts.NoOptimize,
		CleanDistDir:         opts.Clean,
		BundleSplitting:      opts.BundleSplitting,
		SharedBundleMinUsers: DefaultSharedBundleMinUsers,
		Threads:              runtime.GOMAXPROCS(0),
		PluginTimeout:        DefaultPluginTimeout,
		Machrc:               DefaultMachrc(),
	}

	if rcPath, ok, err := FindMachrc(workDir); err != nil {
		return nil, err
	} else if ok {
		rc, err := LoadMachrc(rcPath)
		if err != nil {
			return nil, err
		}
		cfg.Machrc = rc
		if rc.SharedBundleMinUsers > 0 {
			cfg.SharedBundleMinUsers = rc.SharedBundleMinUsers
		}
	}

	pkgPath := filepath.Join(root, "package.json")
	if _, err := os.Stat(pkgPath); err == nil {
		pkg, err := ReadPackageJSON(pkgPath)
		if err != nil {
			return nil, err
		}
		cfg.Package = pkg
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	if cfg.Env, err = LoadEnv(root, environ); err != nil {
		return nil, err
	}

	if n, ok, err := envInt(cfg.Env, EnvThreads); err != nil {
		return nil, err
	} else if ok && n > 0 {
		cfg.Threads = n
	}
	if n, ok, err := envInt(cfg.Env, EnvNodeWorkers); err != nil {
		return nil, err
	} else if ok {
		cfg.NodeWorkers = n
	}
	if opts.Threads > 0 {
		cfg.Threads = opts.Threads
	}
	if opts.NodeWorkers > 0 {
		cfg.NodeWorkers = opts.NodeWorkers
	}
	if opts.PluginTimeout > 0 {
		cfg.PluginTimeout = opts.PluginTimeout
	}

	switch {
	case opts.DistDir != "":
		cfg.DistDir = absFrom(workDir, opts.DistDir)
	case cfg.Package != nil && cfg.Package.Targets.DistDir != "":
		cfg.DistDir = absFrom(root, cfg.Package.Targets.DistDir)
	default:
		cfg.DistDir = filepath.Join(root, DefaultDistDir)
	}

	switch {
	case len(opts.Entries) > 0:
		for _, e := range opts.Entries {
			cfg.Entries = append(cfg.Entries, absFrom(workDir, e))
		}
	case cfg.Package != nil && len(cfg.Package.Targets.Source) > 0:
		for _, e := range cfg.Package.Targets.Source {
			cfg.Entries = append(cfg.Entries, absFrom(root, e))
		}
	}
	if len(cfg.Entries) == 0 && !opts.NoEntries {
		return nil, &failure.ConfigError{Err: errors.New("no entries given and package.json has no targets.source")}
	}
	return cfg, nil
}

// FindRoot returns the nearest directory at or above startDir holding a
// .machrc or package.json; startDir itself when there is none.
func FindRoot(startDir string) (string, error) {
	names := append([]string{"package.json"}, machrcNames...)
	path, ok, err := walkUp(startDir, names...)
	if err != nil {
		return "", err
	}
	if !ok {
		return filepath.Abs(startDir)
	}
	return filepath.Dir(path), nil
}

func absFrom(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
