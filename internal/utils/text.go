package utils

import (
	"strings"
	"unicode/utf8"
)

// TruncateText collapses newlines and cuts text to at most maxLen runes,
// ending with "..." when shortened.
func TruncateText(text string, maxLen int) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	return truncateRunes(text, maxLen)
}

// EscapeForLogging shortens text to maxLen runes and escapes control
// whitespace so message bodies stay on one log line.
func EscapeForLogging(text string, maxLen int) string {
	text = truncateRunes(text, maxLen)
	r := strings.NewReplacer("\n", `\n`, "\r", `\r`, "\t", `\t`)
	return r.Replace(text)
}

func truncateRunes(text string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return strings.Repeat(".", maxLen)
	}
	runes := []rune(text)
	return string(runes[:maxLen-3]) + "..."
}
