package overlay

import (
	"strings"
	"testing"
)

func TestNextChar(t *testing.T) {
	testCases := []struct {
		in, want byte
	}{
		{'0', '1'},
		{'8', '9'},
		{'9', '0'},
		{'a', 'b'},
		{'y', 'z'},
		{'z', 'a'},
		{'A', 'B'},
		{'Y', 'Z'},
		{'Z', 'A'},
		{'_', 'A'},
		{'#', 'A'},
		{0xC3, 'A'},
	}

	for _, tc := range testCases {
		if got := nextChar(tc.in); got != tc.want {
			t.Errorf("nextChar(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNamerName(t *testing.T) {
	testCases := []struct {
		name     string
		namer    Namer
		existing []string
		want     string
	}{
		{"no names", Namer{}, nil, "myImage"},
		{"custom default", Namer{Default: "Logo"}, nil, "Logo"},
		{"single", Namer{}, []string{"Im0"}, "J"},
		{"myImage and a", Namer{}, []string{"myImage", "a"}, "n0"},
		{"short names use fallback", Namer{}, []string{"X", "Y", "Z"}, "Y00"},
		{"wrap", Namer{}, []string{"z", "aZ", "889"}, "aA0"},
		{"non alphanumeric", Namer{}, []string{"_x"}, "A"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.namer.Name(tc.existing); got != tc.want {
				t.Errorf("Name(%q) = %q, want %q", tc.existing, got, tc.want)
			}
		})
	}
}

func TestNamerNeverCollides(t *testing.T) {
	sets := [][]string{
		{"myImage"},
		{"myImage", "a"},
		{"a", "ab", "abc", "abcd"},
		{"Im1", "Im2", "Im3", "Im4", "Im5", "Im6"},
		{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"},
		{"A", "b", "myImage", "n0", "Fm0"},
	}

	var namer Namer
	for _, existing := range sets {
		got := namer.Name(existing)
		for i, s := range existing {
			if got == s {
				t.Errorf("Name(%q) = %q collides with an existing name", existing, got)
			}
			if len(s) > i && got[i] == s[i] {
				t.Errorf("Name(%q) = %q matches %q at position %d", existing, got, s, i)
			}
		}
		if len(got) != len(existing) {
			t.Errorf("Name(%q) has length %d, want %d", existing, len(got), len(existing))
		}
	}

	// A name built from the previous candidates still avoids all of them.
	existing := []string{"myImage"}
	for range 20 {
		next := namer.Name(existing)
		for _, s := range existing {
			if next == s {
				t.Fatalf("Name(%s) collides", strings.Join(existing, ","))
			}
		}
		existing = append(existing, next)
	}
}
