package channel

import (
	"strings"
	"unicode/utf8"
)

// splitMessage splits a message into chunks of at most maxLen characters,
// trying to split on newlines when possible. Multi-byte characters are never
// cut in half.
func splitMessage(msg string, maxLen int) []string {
	if utf8.RuneCountInString(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for msg != "" {
		if utf8.RuneCountInString(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		// Byte offset of the first character past the limit.
		limit := runeOffset(msg, maxLen)

		// Try to split on a newline.
		cut := limit
		if idx := strings.LastIndex(msg[:limit], "\n"); idx > limit/2 {
			cut = idx + 1
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}

// truncateRunes shortens s to at most n characters.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return s[:runeOffset(s, n)]
}

func runeOffset(s string, n int) int {
	i := 0
	for off := range s {
		if i == n {
			return off
		}
		i++
	}
	return len(s)
}
