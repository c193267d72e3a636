// Package util provides common string helpers for client supplied text.
package util

import (
	"strings"
	"unicode"
)

// Limits applied to client supplied text.
const (
	MaxNameLength = 24
	MaxChatLength = 200
)

// DefaultName replaces a player name that is empty after cleaning.
const DefaultName = "player"

// StripControl removes control and format characters, turning tabs and
// newlines into spaces.
func StripControl(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return ' '
		case unicode.IsControl(r) || unicode.Is(unicode.Cf, r):
			return -1
		default:
			return r
		}
	}, s)
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// SanitizeName cleans a player name. Runs of spaces collapse to one.
func SanitizeName(name string) string {
	name = strings.Join(strings.Fields(StripControl(name)), " ")
	name = strings.TrimSpace(Truncate(name, MaxNameLength))
	if name == "" {
		return DefaultName
	}
	return name
}

// SanitizeChat cleans a chat line. The result may be empty.
func SanitizeChat(text string) string {
	return strings.TrimSpace(Truncate(StripControl(text), MaxChatLength))
}
