package service

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxNameLength    = 100
	maxEmailLength   = 254
	minMessageLength = 10
	maxMessageLength = 5000
	maxReplyLength   = 10000
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Sanitize strips HTML tags, collapses runs of whitespace to a single space,
// trims the result and truncates it to max runes. Invalid UTF-8 is dropped.
func Sanitize(s string, max int) string {
	s = strings.ToValidUTF8(s, "")
	s = tagPattern.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	return Truncate(s, max)
}

// Truncate cuts s to at most max runes without splitting a multi-byte rune.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max]))
}
