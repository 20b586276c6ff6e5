package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"

	"mach/internal/failure"
)

// Built-in plugin identifiers.
const (
	BuiltinResolver     = "mach:resolver"
	TransformerJS       = "mach:transformer/javascript"
	TransformerJSON     = "mach:transformer/json"
	TransformerCSS      = "mach:transformer/css"
	TransformerHTML     = "mach:transformer/html"
	TransformerDrop     = "mach:transformer/drop"
	BuiltinEnginePrefix = "mach"
)

// machrcNames are tried in this order inside each directory.
var machrcNames = []string{".machrc", ".machrc.toml", ".machrc.json"}

// TransformerRule routes assets whose path matches Pattern to Plugins.
type TransformerRule struct {
	Pattern string
	Plugins []string
}

// Machrc describes resolver order and transformer routing.
type Machrc struct {
	// Path is empty when the defaults are in use.
	Path                 string
	Resolvers            []string
	Transformers         []TransformerRule
	Engines              []string
	EngineCommands       map[string][]string
	SharedBundleMinUsers int
}

// DefaultMachrc returns the built-in routing table.
func DefaultMachrc() Machrc {
	return Machrc{
		Resolvers: []string{BuiltinResolver},
		Transformers: []TransformerRule{
			{Pattern: "*.{js,mjs,jsm,jsx,es6,cjs,ts,tsx}", Plugins: []string{TransformerJS}},
			{Pattern: "*.json", Plugins: []string{TransformerJSON}},
			{Pattern: "*.css", Plugins: []string{TransformerCSS}},
			{Pattern: "*.html", Plugins: []string{TransformerHTML}},
			{Pattern: "*.{svg,png,json,gif,woff2,woff,txt}", Plugins: []string{TransformerDrop}},
		},
	}
}

type machrcFile struct {
	Resolvers            []string            `toml:"resolvers" json:"resolvers"`
	Transformers         map[string][]string `toml:"transformers" json:"-"`
	Engines              []string            `toml:"engines" json:"engines"`
	EngineCommands       map[string][]string `toml:"engine_commands" json:"engine_commands"`
	SharedBundleMinUsers int                 `toml:"shared_bundle_min_users" json:"shared_bundle_min_users"`
}

// FindMachrc walks up from startDir looking for a .machrc file.
func FindMachrc(startDir string) (string, bool, error) {
	return walkUp(startDir, machrcNames...)
}

// LoadMachrc reads path and fills missing tables from DefaultMachrc.
func LoadMachrc(path string) (Machrc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Machrc{}, &failure.ConfigError{Path: path, Err: err}
	}
	rc, err := ParseMachrc(path, data)
	if err != nil {
		return Machrc{}, &failure.ConfigError{Path: path, Err: err}
	}
	return rc, nil
}

// ParseMachrc decodes a .machrc body. JSON is used for ".json" names and for
// bodies starting with '{'; everything else is TOML.
func ParseMachrc(path string, data []byte) (Machrc, error) {
	var (
		raw   machrcFile
		order []string
		err   error
	)
	if strings.HasSuffix(path, ".json") || bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		raw, order, err = decodeMachrcJSON(data)
	} else {
		raw, order, err = decodeMachrcTOML(data)
	}
	if err != nil {
		return Machrc{}, err
	}

	rc := DefaultMachrc()
	rc.Path = path
	if raw.Resolvers != nil {
		rc.Resolvers = raw.Resolvers
	}
	if raw.Transformers != nil {
		rc.Transformers = make([]TransformerRule, 0, len(order))
		for _, pattern := range order {
			rc.Transformers = append(rc.Transformers, TransformerRule{Pattern: pattern, Plugins: raw.Transformers[pattern]})
		}
	}
	rc.Engines = raw.Engines
	rc.EngineCommands = raw.EngineCommands
	rc.SharedBundleMinUsers = raw.SharedBundleMinUsers
	if err := rc.Validate(); err != nil {
		return Machrc{}, err
	}
	return rc, nil
}

func decodeMachrcTOML(data []byte) (machrcFile, []string, error) {
	var raw machrcFile
	meta, err := toml.Decode(string(data), &raw)
	if err != nil {
		return machrcFile{}, nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return machrcFile{}, nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	if meta.IsDefined("resolvers") && raw.Resolvers == nil {
		raw.Resolvers = []string{}
	}
	var order []string
	if meta.IsDefined("transformers") {
		// meta.Keys preserves document order, the map does not.
		for _, k := range meta.Keys() {
			if len(k) == 2 && k[0] == "transformers" {
				order = append(order, k[1])
			}
		}
	}
	return raw, order, nil
}

func decodeMachrcJSON(data []byte) (machrcFile, []string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return machrcFile{}, nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	known := map[string]bool{"resolvers": true, "transformers": true, "engines": true, "engine_commands": true, "shared_bundle_min_users": true}
	var unknown []string
	for k := range fields {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return machrcFile{}, nil, fmt.Errorf("unknown keys: %s", strings.Join(unknown, ", "))
	}

	var raw machrcFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return machrcFile{}, nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if _, ok := fields["resolvers"]; ok && raw.Resolvers == nil {
		raw.Resolvers = []string{}
	}
	var order []string
	if t, ok := fields["transformers"]; ok {
		var err error
		raw.Transformers, order, err = decodeOrderedLists(t)
		if err != nil {
			return machrcFile{}, nil, fmt.Errorf("transformers: %w", err)
		}
	}
	return raw, order, nil
}

// decodeOrderedLists decodes {"k": ["a", ...], ...} keeping key order.
func decodeOrderedLists(data json.RawMessage) (map[string][]string, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, errors.New("expected an object")
	}
	out := make(map[string][]string)
	var order []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, errors.New("expected a string key")
		}
		var plugins []string
		if err := dec.Decode(&plugins); err != nil {
			return nil, nil, fmt.Errorf("%q: %w", key, err)
		}
		if _, dup := out[key]; !dup {
			order = append(order, key)
		}
		out[key] = plugins
	}
	return out, order, nil
}

// Validate checks plugin identifiers, glob syntax and engine declarations.
func (rc Machrc) Validate() error {
	if len(rc.Resolvers) == 0 {
		return errors.New("resolvers: at least one resolver is required")
	}
	engines := make(map[string]bool, len(rc.Engines))
	for _, e := range rc.Engines {
		engines[e] = true
	}
	check := func(where, id string) error {
		engine, name, ok := strings.Cut(id, ":")
		if !ok || engine == "" || name == "" {
			return fmt.Errorf("%s: invalid plugin identifier %q (expected engine:name)", where, id)
		}
		if engine != BuiltinEnginePrefix && !engines[engine] {
			return fmt.Errorf("%s: plugin %q uses engine %q which is not listed in engines", where, id, engine)
		}
		return nil
	}
	for _, id := range rc.Resolvers {
		if err := check("resolvers", id); err != nil {
			return err
		}
	}
	for _, rule := range rc.Transformers {
		if !doublestar.ValidatePattern(rule.Pattern) {
			return fmt.Errorf("transformers: invalid glob %q", rule.Pattern)
		}
		for _, id := range rule.Plugins {
			if err := check("transformers."+rule.Pattern, id); err != nil {
				return err
			}
		}
	}
	if rc.SharedBundleMinUsers < 0 {
		return errors.New("shared_bundle_min_users must not be negative")
	}
	return nil
}

// EngineCommand returns argv used to start engine.
func (rc Machrc) EngineCommand(engine string) []string {
	if argv := rc.EngineCommands[engine]; len(argv) > 0 {
		return argv
	}
	return []string{"mach-" + engine + "-host"}
}

// RemoteEngines lists the non-builtin engines referenced by any plugin, in
// first-use order.
func (rc Machrc) RemoteEngines() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(id string) {
		engine, _, _ := strings.Cut(id, ":")
		if engine == BuiltinEnginePrefix || seen[engine] {
			return
		}
		seen[engine] = true
		out = append(out, engine)
	}
	for _, id := range rc.Resolvers {
		add(id)
	}
	for _, rule := range rc.Transformers {
		for _, id := range rule.Plugins {
			add(id)
		}
	}
	return out
}

func walkUp(startDir string, names ...string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			info, err := os.Stat(candidate)
			if err == nil && !info.IsDir() {
				return candidate, true, nil
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}
