// Package textutil holds small string helpers shared by the platform layer.
package textutil

import (
	"strings"
	"unicode/utf8"
)

// Truncate cuts s to at most maxBytes bytes without splitting a UTF-8
// sequence. Columns storing the result are Postgres text, which rejects
// invalid UTF-8, so any invalid bytes already in s are dropped too.
func Truncate(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) > maxBytes {
		cut := maxBytes
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return s
}
