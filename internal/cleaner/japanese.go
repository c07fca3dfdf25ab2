package cleaner

// IsJapanese reports whether text contains at least one Japanese character
func IsJapanese(text string) bool {
	for _, r := range text {
		switch {
		case r >= '\u3000' && r <= '\u303f': // punctuation
			return true
		case r >= '\u3040' && r <= '\u309f': // hiragana
			return true
		case r >= '\u30a0' && r <= '\u30ff': // katakana
			return true
		case r >= '\uff00' && r <= '\uffef': // fullwidth roman and halfwidth kana
			return true
		case r >= '\u4e00' && r <= '\u9faf': // common kanji
			return true
		case r >= '\u3400' && r <= '\u4dbf': // rare kanji
			return true
		}
	}
	return false
}
