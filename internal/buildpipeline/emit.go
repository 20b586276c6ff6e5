package buildpipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mach/internal/config"
	"mach/internal/diag"
	"mach/internal/failure"
	"mach/internal/packager"
)

var errOutsideDist = errors.New("path escapes the dist directory")

// emit writes outputs under cfg.DistDir, cleaning it first when asked.
// Every name is checked before anything on disk changes.
func emit(cfg *config.MachConfig, outputs []packager.Output, r diag.Reporter) error {
	dist := filepath.Clean(cfg.DistDir)
	targets := make([]string, len(outputs))
	for i, o := range outputs {
		target, err := distPath(dist, o.FilePath)
		if err != nil {
			return &failure.EmitError{Path: o.FilePath, Err: err}
		}
		targets[i] = target
	}

	if cfg.CleanDistDir {
		if within(dist, cfg.Root) {
			return &failure.EmitError{Path: dist, Err: fmt.Errorf("refusing to clean %s: it contains the project root", dist)}
		}
		if _, err := os.Stat(dist); err == nil {
			if err := os.RemoveAll(dist); err != nil {
				return &failure.EmitError{Path: dist, Err: err}
			}
			r.Report(diag.New(diag.SevInfo, diag.InfoDistCleaned, diag.Location{File: dist}, "removed previous output"))
		}
	}
	if err := os.MkdirAll(dist, 0o755); err != nil {
		return &failure.EmitError{Path: dist, Err: err}
	}
	for i, o := range outputs {
		if err := os.MkdirAll(filepath.Dir(targets[i]), 0o755); err != nil {
			return &failure.EmitError{Path: o.FilePath, Err: err}
		}
		// #nosec G306 -- bundles are served to browsers and read by other tools
		if err := os.WriteFile(targets[i], o.Content, 0o644); err != nil {
			return &failure.EmitError{Path: o.FilePath, Err: err}
		}
	}
	return nil
}

// distPath joins name onto dist and rejects results outside it.
func distPath(dist, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) {
		return "", errOutsideDist
	}
	target := filepath.Join(dist, filepath.FromSlash(name))
	if target == dist || !within(dist, target) {
		return "", errOutsideDist
	}
	return target, nil
}

// within reports whether path is dir or below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
