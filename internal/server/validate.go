// Package server validates inbound chat text before it reaches the rate
// limiter or any room, so malformed input never consumes quota.
package server

import (
	"strings"
	"unicode/utf8"
)

// validateMessage applies the stateless content gate: trim, non-empty,
// length cap, denylist substring check. It returns the trimmed text and
// whether the message may proceed.
func validateMessage(text string, maxLen int, denylist []string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}
	if maxLen > 0 && utf8.RuneCountInString(trimmed) > maxLen {
		return "", false
	}
	lowered := strings.ToLower(trimmed)
	for _, banned := range denylist {
		if banned == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(banned)) {
			return "", false
		}
	}
	return trimmed, true
}

// truncateMessage caps text at maxLen runes. Validation already rejects
// over-long input; this guards the broadcast path independently.
func truncateMessage(text string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxLen])
}
