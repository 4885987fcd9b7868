package engine

import (
	"strings"

	"github.com/anatolykoptev/go-kit/strutil"
)

// UserAgent is sent with every upstream API request.
const UserAgent = "go_tube/1.0"

// NormRegion normalises a region code: empty → "US", otherwise upper-case.
func NormRegion(region string) string {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		return "US"
	}
	return region
}

// TruncateRunes caps s at limit runes, appending suffix if truncated.
// Pass suffix="" for no suffix. Safe for UTF-8 (Cyrillic, CJK, emoji).
func TruncateRunes(s string, limit int, suffix string) string {
	return strutil.TruncateWith(s, limit, suffix)
}

// Snippet shortens a description to a word boundary for list output.
func Snippet(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	return strutil.TruncateAtWord(s, maxLen)
}
