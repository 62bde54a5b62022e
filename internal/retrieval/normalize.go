package retrieval

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalize lower-cases text, replaces every rune outside ASCII letters,
// digits, Hangul syllables and whitespace with a space, collapses whitespace
// runs and trims the result.
func Normalize(text string) string {
	lowered := strings.ToLower(text)
	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if isKept(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokenize normalizes text and splits it into tokens longer than one rune.
// Words are split on whitespace and where Hangul meets Latin letters or
// digits, so "rag가" yields "rag". Order is preserved and duplicates are kept.
func Tokenize(text string) []string {
	fields := strings.Split(Normalize(text), " ")
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		for _, part := range splitScripts(f) {
			if utf8.RuneCountInString(part) > 1 {
				tokens = append(tokens, part)
			}
		}
	}
	return tokens
}

// splitScripts cuts a normalized word at every Hangul/non-Hangul boundary.
func splitScripts(word string) []string {
	var parts []string
	start := 0
	prev := -1
	for i, r := range word {
		cur := 0
		if isHangul(r) {
			cur = 1
		}
		if prev != -1 && cur != prev {
			parts = append(parts, word[start:i])
			start = i
		}
		prev = cur
	}
	if start < len(word) {
		parts = append(parts, word[start:])
	}
	return parts
}

func isHangul(r rune) bool {
	return r >= '가' && r <= '힣'
}

func isKept(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case isHangul(r):
		return true
	default:
		return unicode.IsSpace(r)
	}
}
