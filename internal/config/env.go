package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"mach/internal/failure"
)

const (
	EnvThreads     = "MACH_THREADS"
	EnvNodeWorkers = "MACH_NODE_WORKERS"
)

// dotenvFiles are overlaid in order; later files win.
var dotenvFiles = []string{".env", ".env.local"}

// LoadEnv returns the process environment overlaid with the project's
// dotenv files.
func LoadEnv(root string, environ []string) (map[string]string, error) {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	for _, name := range dotenvFiles {
		path := filepath.Join(root, name)
		vars, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, &failure.ConfigError{Path: path, Err: err}
		}
		for k, v := range vars {
			env[k] = v
		}
	}
	return env, nil
}

// envInt parses a non-negative integer variable. ok is false when unset.
func envInt(env map[string]string, key string) (n int, ok bool, err error) {
	raw, present := env[key]
	raw = strings.TrimSpace(raw)
	if !present || raw == "" {
		return 0, false, nil
	}
	n, err = strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false, &failure.ConfigError{Err: fmt.Errorf("%s=%q: expected a non-negative integer", key, raw)}
	}
	return n, true, nil
}
