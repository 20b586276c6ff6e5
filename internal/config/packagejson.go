package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"mach/internal/failure"
)

// StringList accepts either a JSON string or an array of strings.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("expected a string or an array of strings: %w", err)
	}
	*l = list
	return nil
}

// Workspaces accepts both `["pkgs/*"]` and `{"packages": ["pkgs/*"]}`.
type Workspaces []string

func (w *Workspaces) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			Packages []string `json:"packages"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*w = obj.Packages
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*w = list
	return nil
}

type Targets struct {
	Source  StringList `json:"source"`
	DistDir string     `json:"dist_dir"`
}

// PackageJSON holds the package.json fields the build consults.
type PackageJSON struct {
	Path       string          `json:"-"`
	Name       string          `json:"name"`
	Main       string          `json:"main"`
	Module     string          `json:"module"`
	Types      string          `json:"types"`
	Browser    json.RawMessage `json:"browser"`
	Exports    json.RawMessage `json:"exports"`
	Workspaces Workspaces      `json:"workspaces"`
	Targets    Targets         `json:"targets"`
}

// Dir returns the directory that holds the manifest.
func (p *PackageJSON) Dir() string {
	return filepath.Dir(p.Path)
}

// HasExports reports whether an "exports" field is present and not null.
func (p *PackageJSON) HasExports() bool {
	t := bytes.TrimSpace(p.Exports)
	return len(t) > 0 && !bytes.Equal(t, []byte("null"))
}

// ReadPackageJSON parses the manifest at path.
func ReadPackageJSON(path string) (*PackageJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &failure.ConfigError{Path: path, Err: err}
	}
	pkg, err := ParsePackageJSON(path, data)
	if err != nil {
		return nil, &failure.ConfigError{Path: path, Err: err}
	}
	return pkg, nil
}

func ParsePackageJSON(path string, data []byte) (*PackageJSON, error) {
	var pkg PackageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	pkg.Path = path
	return &pkg, nil
}

// FindPackageJSON walks up from startDir to the nearest package.json.
func FindPackageJSON(startDir string) (string, bool, error) {
	return walkUp(startDir, "package.json")
}
