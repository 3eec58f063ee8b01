package linker

import (
	"strings"
)

// Pair is one keyword and the reference it links to.
type Pair struct {
	Keyword string `json:"keyword"`
	URL     string `json:"url"`
}

// Span is a half-open byte range [Start, End) within a text.
type Span struct {
	Start int
	End   int
}

// Len returns the span length in bytes.
func (s Span) Len() int {
	return s.End - s.Start
}

func (s Span) fits(text string) bool {
	return s.Start >= 0 && s.Start < s.End && s.End <= len(text)
}

// ValidKeyword reports whether keyword can be searched for. Keywords may not
// be blank and may not contain runes reserved for placeholders.
func ValidKeyword(keyword string) bool {
	if strings.TrimSpace(keyword) == "" {
		return false
	}
	for _, m := range markerSets {
		if strings.ContainsFunc(keyword, m.owns) {
			return false
		}
	}
	return true
}

// FindFirst returns the leftmost literal occurrence of keyword in text that
// does not sit inside a markup tag. Shielded regions never match because
// their placeholders consist of reserved runes only.
func FindFirst(text, keyword string) (Span, bool) {
	if !ValidKeyword(keyword) {
		return Span{}, false
	}
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], keyword)
		if i < 0 {
			break
		}
		i += from
		if !insideTag(text, i) {
			return Span{Start: i, End: i + len(keyword)}, true
		}
		from = i + 1
	}
	return Span{}, false
}

// insideTag reports whether byte offset i falls between a '<' and its
// closing '>', e.g. in an img alt attribute.
func insideTag(text string, i int) bool {
	return strings.LastIndexByte(text[:i], '<') > strings.LastIndexByte(text[:i], '>')
}

// SameReference compares two references ignoring surrounding blanks and a
// trailing slash.
func SameReference(a, b string) bool {
	norm := func(s string) string {
		return strings.TrimSuffix(strings.TrimSpace(s), "/")
	}
	na, nb := norm(a), norm(b)
	return na != "" && na == nb
}
