package version

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func withVersion(t *testing.T, v, commit, date string) {
	t.Helper()
	oldV, oldC, oldD := Version, GitCommit, BuildDate
	Version, GitCommit, BuildDate = v, commit, date
	t.Cleanup(func() { Version, GitCommit, BuildDate = oldV, oldC, oldD })
}

func withoutColor(t *testing.T) {
	t.Helper()
	old := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = old })
}

func TestString(t *testing.T) {
	withoutColor(t)
	tests := []struct {
		version, commit, date string
		want                  string
	}{
		{"1.2.3", "", "", "mach 1.2.3"},
		{"1.2.3-rc1", "abc123", "", "mach 1.2.3-rc1 (abc123)"},
		{"0.1.0", "abc123", "2026-01-15T10:30:00Z", "mach 0.1.0 (abc123) built 2026-01-15T10:30:00Z"},
		{"nightly", "", "", "mach nightly"},
	}
	for _, tt := range tests {
		withVersion(t, tt.version, tt.commit, tt.date)
		if got := String(); got != tt.want {
			t.Fatalf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestColoredKeepsDigits(t *testing.T) {
	withVersion(t, "3.4.5-dev", "", "")
	old := color.NoColor
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = old })
	got := Colored()
	if got == "3.4.5-dev" {
		t.Fatalf("Colored() did not add color")
	}
	for _, part := range []string{"3", "4", "5", "-dev"} {
		if !strings.Contains(got, part) {
			t.Fatalf("Colored() = %q lacks %q", got, part)
		}
	}
}
