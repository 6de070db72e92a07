package sandbox

import (
	"strings"
	"unicode/utf8"
)

// TruncationMarker is appended to capped output. It does not count toward the limit.
const TruncationMarker = "\n...[output truncated]"

// Cap truncates text to at most limit bytes of UTF-8, dropping any partial
// multi-byte sequence at the cut, and appends TruncationMarker. Text that
// already fits is returned unchanged, including text that was capped before.
// A limit <= 0 disables capping.
func Cap(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	if body, ok := strings.CutSuffix(text, TruncationMarker); ok && len(body) <= limit {
		return text
	}
	return trimPartialRune(text[:limit]) + TruncationMarker
}

// trimPartialRune drops an incomplete UTF-8 sequence from the end of s.
func trimPartialRune(s string) string {
	for i := len(s) - 1; i >= 0 && i >= len(s)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(s[i]) {
			continue
		}
		if !utf8.FullRuneInString(s[i:]) {
			return s[:i]
		}
		break
	}
	return s
}
