package cleaner

import "regexp"

// ExtractDialogue returns capture group 1 of the leftmost match of pattern.
// No match, or a group that did not participate, yields false.
func ExtractDialogue(pattern *regexp.Regexp, text string) (string, bool) {
	if pattern == nil {
		return "", false
	}

	match := pattern.FindStringSubmatchIndex(text)
	if len(match) < 4 || match[2] < 0 {
		return "", false
	}

	return text[match[2]:match[3]], true
}
