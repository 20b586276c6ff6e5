package failure

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", &ConfigError{Path: ".machrc", Err: errors.New("bad")}, ExitUser},
		{"unresolved", &UnresolvedSpecifier{Specifier: "./x", From: "a.js"}, ExitUser},
		{"resolver", &ResolverError{Plugin: "node:r", Message: "boom"}, ExitPlugin},
		{"transformer", &TransformerError{Plugin: "p", File: "a.js", Message: "x"}, ExitPlugin},
		{"timeout", &PluginTimeout{Plugin: "node:t", Op: "transform"}, ExitPlugin},
		{"wrapped plugin", fmt.Errorf("stage: %w", &PluginError{Plugin: "node", Op: "start", Err: fs.ErrNotExist}), ExitPlugin},
		{"loop", &TransformerLoop{File: "a.x"}, ExitUser},
		{"emit", &EmitError{Path: "dist/a.js", Err: fs.ErrPermission}, ExitUser},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExitCode(tc.err); got != tc.want {
				t.Fatalf("ExitCode(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := fmt.Errorf("build: %w", &ReadError{Path: "a.js", Err: fs.ErrNotExist})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("errors.Is through ReadError failed")
	}
	var re *ReadError
	if !errors.As(err, &re) || re.Path != "a.js" {
		t.Fatalf("errors.As ReadError = %v", re)
	}
}

func TestMessages(t *testing.T) {
	got := (&UnresolvedSpecifier{Specifier: "react", From: "/p/a.js"}).Error()
	if want := `cannot resolve "react" from /p/a.js`; got != want {
		t.Fatalf("Error = %q, want %q", got, want)
	}
}
