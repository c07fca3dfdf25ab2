package cleaner

// CollapseRepetition finds the shortest leading segment that is immediately
// repeated and returns the text from the last place that segment starts.
//
// The scan works on runes. For "ABCABCDEF" the segment is "ABC" and the
// result is "ABCDEF". Texts with fewer than two runes, or without a repeated
// leading segment, yield false.
func CollapseRepetition(text string) (string, bool) {
	chars := []rune(text)
	n := len(chars)

	// A segment of length idx can only repeat if 2*idx runes are available.
	for idx := 1; 2*idx <= n; idx++ {
		pred := chars[:idx]
		if !hasPrefix(chars[idx:], pred) {
			continue
		}

		for rIdx := n - 1; rIdx >= 1; rIdx-- {
			if hasPrefix(chars[rIdx:], pred) {
				return string(chars[rIdx:]), true
			}
		}
	}

	return "", false
}

func hasPrefix(s, prefix []rune) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i, r := range prefix {
		if s[i] != r {
			return false
		}
	}
	return true
}
