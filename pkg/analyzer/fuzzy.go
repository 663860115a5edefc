package analyzer

import "strings"

// closestMatch returns the option with the smallest edit distance to
// query, comparing case-insensitively. Ties keep the earliest option.
func closestMatch(query string, options []string) string {
	q := strings.ToLower(query)
	best, bestDist := options[0], levenshtein(q, strings.ToLower(options[0]))
	for _, opt := range options[1:] {
		if d := levenshtein(q, strings.ToLower(opt)); d < bestDist {
			best, bestDist = opt, d
		}
	}
	return best
}

// levenshtein returns the edit distance between a and b, counted in
// runes.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
