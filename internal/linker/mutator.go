package linker

import (
	"errors"
	"html"
	"regexp"
	"strings"
)

var (
	// ErrAlreadyLinked is returned when a span already starts with an anchor.
	ErrAlreadyLinked = errors.New("linker: span is already linked")
	// ErrInvalidSpan is returned when a span does not fit the text.
	ErrInvalidSpan = errors.New("linker: invalid span")
)

var (
	openTagRe = regexp.MustCompile(`(?is)^<a\b[^>]*>`)
	hrefRe    = regexp.MustCompile(`(?is)\shref\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>]+))`)
)

// Anchor renders the anchor that activation inserts.
func Anchor(reference, label string) string {
	return `<a href="` + strings.ReplaceAll(reference, `"`, "&quot;") + `">` + label + `</a>`
}

// Activate wraps the span of text in an anchor to reference.
func Activate(text string, span Span, reference string) (string, error) {
	if !span.fits(text) {
		return text, ErrInvalidSpan
	}
	s := text[span.Start:span.End]
	if openTagRe.MatchString(s) {
		return text, ErrAlreadyLinked
	}
	return text[:span.Start] + Anchor(reference, s) + text[span.End:], nil
}

// Deactivate replaces every anchor whose href equals reference with its
// inner content. Text without such anchors is returned unchanged.
func Deactivate(text, reference string) (string, int) {
	n := 0
	out := anchorRe.ReplaceAllStringFunc(text, func(m string) string {
		if !HrefEquals(m, reference) {
			return m
		}
		n++
		return innerContent(m)
	})
	return out, n
}

// HrefEquals reports whether the opening tag of anchor carries an href
// equal to reference. Quoting style and attribute order do not matter and
// entity-escaped values are compared unescaped as well.
func HrefEquals(anchor, reference string) bool {
	open := openTagRe.FindString(anchor)
	if open == "" {
		return false
	}
	m := hrefRe.FindStringSubmatch(open)
	if m == nil {
		return false
	}
	v := m[1] + m[2] + m[3]
	return v == reference || html.UnescapeString(v) == reference
}

// CountLinks returns how many anchors in text point at reference.
func CountLinks(text, reference string) int {
	n := 0
	for _, m := range anchorRe.FindAllString(text, -1) {
		if HrefEquals(m, reference) {
			n++
		}
	}
	return n
}
