package transcript

// levenshtein calculates the minimum number of single-character edits
// (insertions, deletions, or substitutions) required to change one string
// into another. Rune-based for proper Unicode handling; keeps only two rows
// of the distance matrix.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len([]rune(b))
	}
	if len(b) == 0 {
		return len([]rune(a))
	}

	runesA := []rune(a)
	runesB := []rune(b)
	lenA := len(runesA)
	lenB := len(runesB)

	prev := make([]int, lenB+1)
	curr := make([]int, lenB+1)
	for j := 0; j <= lenB; j++ {
		prev[j] = j
	}

	for i := 1; i <= lenA; i++ {
		curr[0] = i
		for j := 1; j <= lenB; j++ {
			cost := 0
			if runesA[i-1] != runesB[j-1] {
				cost = 1
			}
			curr[j] = minOf(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[lenB]
}

func minOf(a, b, c int) int {
	if a <= b && a <= c {
		return a
	}
	if b <= c {
		return b
	}
	return c
}

// Ratio returns a similarity score between 0 and 100 derived from the
// Levenshtein distance over the combined string lengths. Identical strings
// score 100.
func Ratio(a, b string) int {
	la := len([]rune(a))
	lb := len([]rune(b))
	if la+lb == 0 {
		return 100
	}
	d := levenshtein(a, b)
	r := (la + lb - 2*d) * 100 / (la + lb)
	if r < 0 {
		return 0
	}
	return r
}
