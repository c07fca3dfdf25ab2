// Package textassist adapts the engine to the string hook of Translation
// Aggregator style plugins: hosts hand over NUL-terminated UTF-16LE strings
// and expect either a replacement string or nothing.
package textassist

import (
	"errors"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// PluginVersion is the string hook interface version, reported by /info
const PluginVersion uint32 = 0x0002

var (
	// ErrOddLength indicates a wide string with a dangling byte
	ErrOddLength = errors.New("textassist: odd number of bytes in UTF-16 string")

	// ErrInvalidUTF16 indicates an unpaired surrogate
	ErrInvalidUTF16 = errors.New("textassist: invalid UTF-16")
)

// Cleaner is the part of the engine the string hook needs
type Cleaner interface {
	Clean(text string) (string, bool)
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Decode converts a UTF-16LE string up to its NUL terminator. A missing
// terminator means the whole slice is the string.
func Decode(wide []byte) (string, error) {
	if end := terminator(wide); end >= 0 {
		wide = wide[:end]
	}
	if len(wide)%2 != 0 {
		return "", ErrOddLength
	}
	if !validSurrogates(wide) {
		return "", ErrInvalidUTF16
	}

	decoded, err := utf16le.NewDecoder().Bytes(wide)
	if err != nil {
		return "", fmt.Errorf("textassist: %w", err)
	}
	return string(decoded), nil
}

// Encode converts text to UTF-16LE with a NUL terminator
func Encode(text string) ([]byte, error) {
	encoded, err := utf16le.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("textassist: %w", err)
	}
	return append(encoded, 0, 0), nil
}

// Modify cleans a wide string. It returns false when the host should keep
// its string, including when the input is not valid UTF-16.
func Modify(engine Cleaner, wide []byte) ([]byte, bool, error) {
	text, err := Decode(wide)
	if err != nil {
		return nil, false, err
	}

	cleaned, ok := engine.Clean(text)
	if !ok {
		return nil, false, nil
	}

	out, err := Encode(cleaned)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// terminator returns the byte offset of the first NUL code unit, or -1
func terminator(wide []byte) int {
	for i := 0; i+1 < len(wide); i += 2 {
		if wide[i] == 0 && wide[i+1] == 0 {
			return i
		}
	}
	return -1
}

func validSurrogates(wide []byte) bool {
	units := len(wide) / 2
	for i := 0; i < units; i++ {
		u := uint16(wide[2*i]) | uint16(wide[2*i+1])<<8
		switch {
		case u >= 0xD800 && u < 0xDC00:
			if i+1 >= units {
				return false
			}
			next := uint16(wide[2*i+2]) | uint16(wide[2*i+3])<<8
			if next < 0xDC00 || next >= 0xE000 {
				return false
			}
			i++
		case u >= 0xDC00 && u < 0xE000:
			return false
		}
	}
	return true
}
