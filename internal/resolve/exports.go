package resolve

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// resolveExports maps subpath ("." or "./x") through a package.json
// "exports" value. ok is false when the subpath is not exported.
func resolveExports(raw json.RawMessage, subpath string, conditions []string) (string, bool, error) {
	var exports any
	if err := json.Unmarshal(raw, &exports); err != nil {
		return "", false, err
	}
	m, isMap := exports.(map[string]any)
	if !isMap || !isSubpathMap(m) {
		if subpath != "." {
			return "", false, nil
		}
		return exportTarget(exports, "", conditions)
	}
	if v, ok := m[subpath]; ok {
		return exportTarget(v, "", conditions)
	}

	// Longest prefix wins among "*" patterns.
	keys := make([]string, 0, len(m))
	for k := range m {
		if strings.Count(k, "*") == 1 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := strings.Index(keys[i], "*"), strings.Index(keys[j], "*")
		if pi != pj {
			return pi > pj
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		prefix, suffix, _ := strings.Cut(k, "*")
		if len(subpath) < len(prefix)+len(suffix) || !strings.HasPrefix(subpath, prefix) || !strings.HasSuffix(subpath, suffix) {
			continue
		}
		star := subpath[len(prefix) : len(subpath)-len(suffix)]
		return exportTarget(m[k], star, conditions)
	}
	return "", false, nil
}

// isSubpathMap distinguishes {"./a": ...} from a condition map. Mixing the
// two is an error in node; here the first key decides.
func isSubpathMap(m map[string]any) bool {
	for k := range m {
		return strings.HasPrefix(k, ".")
	}
	return false
}

func exportTarget(v any, star string, conditions []string) (string, bool, error) {
	switch t := v.(type) {
	case nil:
		return "", false, nil
	case string:
		if !strings.HasPrefix(t, "./") {
			return "", false, fmt.Errorf("target %q must start with ./", t)
		}
		return strings.ReplaceAll(t, "*", star), true, nil
	case []any:
		for _, alt := range t {
			if target, ok, err := exportTarget(alt, star, conditions); err == nil && ok {
				return target, true, nil
			}
		}
		return "", false, nil
	case map[string]any:
		for _, cond := range conditions {
			if next, ok := t[cond]; ok {
				if target, ok, err := exportTarget(next, star, conditions); err != nil || ok {
					return target, ok, err
				}
			}
		}
		return "", false, nil
	default:
		return "", false, fmt.Errorf("unexpected target %v", v)
	}
}
