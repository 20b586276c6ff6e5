package digest

import "testing"

func TestOfStringKnownVector(t *testing.T) {
	got := OfString("abc").Hex()
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Fatalf("OfString(abc) = %s, want %s", got, want)
	}
	if OfBytes([]byte("abc")) != OfString("abc") {
		t.Fatalf("OfBytes and OfString disagree")
	}
}

func TestOfPathIsSlashNormalised(t *testing.T) {
	if OfPath("src/a.js") != OfString("src/a.js") {
		t.Fatalf("OfPath must hash slash form")
	}
}

func TestCombineOrderMatters(t *testing.T) {
	a, b := OfString("a"), OfString("b")
	if Combine(a, b) == Combine(b, a) {
		t.Fatalf("Combine must depend on order")
	}
	if Combine(a, b) != Combine(a, b) {
		t.Fatalf("Combine must be deterministic")
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"abcdef", 3, "abc"},
		{"abc", 10, "abc"},
		{"héllo", 2, "hé"},
		{"日本語テキスト", 3, "日本語"},
		{"abc", 0, ""},
		{"", 4, ""},
	}
	for _, tc := range cases {
		if got := Truncate(tc.in, tc.n); got != tc.want {
			t.Fatalf("Truncate(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}
