package analyzer

import "testing"

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"same", "same", 0},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"héllo", "hello", 1},
	}
	for _, tc := range cases {
		if got := levenshtein(tc.a, tc.b); got != tc.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestClosestMatch(t *testing.T) {
	if got := closestMatch("Digital Security", []string{"code", "security", "math"}); got != "security" {
		t.Fatalf("closestMatch = %q, want security", got)
	}
	// Case differences do not count against a match.
	if got := closestMatch("MATH", []string{"math", "code"}); got != "math" {
		t.Fatalf("closestMatch = %q, want math", got)
	}
	// Ties keep the earliest option.
	if got := closestMatch("ab", []string{"ax", "xb"}); got != "ax" {
		t.Fatalf("closestMatch tie = %q, want ax", got)
	}
}
