package cleaner

import (
	"regexp"

	"github.com/raaihank/vn-text-trim/internal/rules"
)

// Substitute applies rules in order, each one to the output of the previous.
// It reports false when the final text equals the input.
func Substitute(subs []rules.SubstitutionRule, text string) (string, bool) {
	out := text
	for _, rule := range subs {
		out = replaceN(rule.Pattern, out, rule.Replacement, rule.Limit)
	}

	if out == text {
		return "", false
	}
	return out, true
}

// replaceN replaces the first limit matches of re in src, or all of them when
// limit is 0. The template is expanded like Regexp.ReplaceAllString does.
func replaceN(re *regexp.Regexp, src, template string, limit int) string {
	n := -1
	if limit > 0 {
		n = limit
	}

	matches := re.FindAllStringSubmatchIndex(src, n)
	if len(matches) == 0 {
		return src
	}

	buf := make([]byte, 0, len(src))
	last := 0
	for _, match := range matches {
		buf = append(buf, src[last:match[0]]...)
		buf = re.ExpandString(buf, template, src, match)
		last = match[1]
	}
	buf = append(buf, src[last:]...)

	return string(buf)
}
