// Package linker inserts and removes keyword anchors inside article markup.
//
// Opaque regions (existing <a> elements and [shortcode] tokens) are shielded
// behind placeholders before any keyword search runs and restored byte for
// byte afterwards.
package linker

import (
	"regexp"
	"strings"
)

var (
	anchorRe  = regexp.MustCompile(`(?is)<a\b[^>]*>.*?</a\s*>`)
	bracketRe = regexp.MustCompile(`\[.*?\]`)
	innerRe   = regexp.MustCompile(`(?is)^<a\b[^>]*>(.*?)</a\s*>$`)
)

// Kind classifies a shielded token.
type Kind int

const (
	KindAnchor Kind = iota
	KindBracket
	KindInserted
)

type token struct {
	kind Kind
	text string
	dead bool
}

// markerSet is a group of private-use runes that delimit a placeholder and
// encode its index. A set is only usable when none of its runes occur in
// the text being shielded.
type markerSet struct {
	open, close, digit0 rune
}

var markerSets = [...]markerSet{
	{0xE000, 0xE001, 0xE010},
	{0xF0000, 0xF0001, 0xF0010},
	{0x100000, 0x100001, 0x100010},
}

func (m markerSet) usable(text string) bool {
	return !strings.ContainsFunc(text, m.owns)
}

func (m markerSet) owns(r rune) bool {
	return r == m.open || r == m.close || (r >= m.digit0 && r <= m.digit0+9)
}

// Table is the restore table produced by shielding. Placeholders handed out
// by a Table are only meaningful to that Table.
type Table struct {
	markers  markerSet
	disabled bool
	entries  []token
	phRe     *regexp.Regexp
}

// NewTable returns a table whose placeholders cannot collide with text.
// When every marker set already occurs in text the table is disabled and
// masking becomes a no-op.
func NewTable(text string) *Table {
	for _, m := range markerSets {
		if m.usable(text) {
			return &Table{
				markers: m,
				phRe: regexp.MustCompile(regexp.QuoteMeta(string(m.open)) +
					"([" + string(m.digit0) + "-" + string(m.digit0+9) + "]+)" +
					regexp.QuoteMeta(string(m.close))),
			}
		}
	}
	return &Table{disabled: true}
}

// Shield masks anchors first and then bracket tokens, so a bracket token
// that encloses an anchor holds the anchor's placeholder rather than its
// markup.
func Shield(text string) (string, *Table) {
	t := NewTable(text)
	return t.ShieldBrackets(t.ShieldAnchors(text)), t
}

// Restore is shorthand for t.Restore(text).
func Restore(text string, t *Table) string {
	return t.Restore(text)
}

// ShieldAnchors replaces every <a ...>...</a> element with a placeholder.
func (t *Table) ShieldAnchors(text string) string {
	return anchorRe.ReplaceAllStringFunc(text, func(m string) string {
		return t.Mask(KindAnchor, m)
	})
}

// ShieldBrackets replaces every [...] token with a placeholder.
func (t *Table) ShieldBrackets(text string) string {
	return bracketRe.ReplaceAllStringFunc(text, func(m string) string {
		return t.Mask(KindBracket, m)
	})
}

// Mask records s and returns its placeholder.
func (t *Table) Mask(kind Kind, s string) string {
	if t.disabled {
		return s
	}
	t.entries = append(t.entries, token{kind: kind, text: s})
	return t.placeholder(len(t.entries) - 1)
}

// Len reports how many tokens have been masked.
func (t *Table) Len() int {
	return len(t.entries)
}

func (t *Table) placeholder(i int) string {
	var b strings.Builder
	b.WriteRune(t.markers.open)
	if i == 0 {
		b.WriteRune(t.markers.digit0)
	}
	var digits []rune
	for n := i; n > 0; n /= 10 {
		digits = append(digits, t.markers.digit0+rune(n%10))
	}
	for j := len(digits) - 1; j >= 0; j-- {
		b.WriteRune(digits[j])
	}
	b.WriteRune(t.markers.close)
	return b.String()
}

func (t *Table) index(digits string) int {
	n := 0
	for _, r := range digits {
		n = n*10 + int(r-t.markers.digit0)
	}
	return n
}

// Restore replaces every placeholder in text with its recorded token.
// Tokens may themselves contain placeholders (a shortcode wrapping an
// anchor), so replacement repeats until nothing is left to expand.
func (t *Table) Restore(text string) string {
	if t.disabled || len(t.entries) == 0 {
		return text
	}
	for range len(t.entries) + 1 {
		changed := false
		text = t.phRe.ReplaceAllStringFunc(text, func(ph string) string {
			i := t.index(t.phRe.FindStringSubmatch(ph)[1])
			if i < 0 || i >= len(t.entries) {
				return ph
			}
			changed = true
			return t.entries[i].text
		})
		if !changed {
			break
		}
	}
	return text
}

// HasLink reports whether a live anchor to ref is held by the table.
func (t *Table) HasLink(ref string) bool {
	for _, tok := range t.entries {
		if tok.dead || tok.kind == KindBracket {
			continue
		}
		if HrefEquals(tok.text, ref) {
			return true
		}
	}
	return false
}

// Unlink replaces every shielded anchor pointing at ref with its inner
// content. The freed content is re-shielded for bracket tokens so it stays
// searchable without exposing shortcodes. Anchors nested inside a bracket
// token are left alone.
func (t *Table) Unlink(text, ref string) (string, int) {
	n := 0
	for i, end := 0, len(t.entries); i < end; i++ {
		tok := t.entries[i]
		if tok.dead || tok.kind == KindBracket || !HrefEquals(tok.text, ref) {
			continue
		}
		ph := t.placeholder(i)
		if !strings.Contains(text, ph) {
			continue
		}
		text = strings.Replace(text, ph, t.ShieldBrackets(innerContent(tok.text)), 1)
		t.entries[i].dead = true
		n++
	}
	return text, n
}

func innerContent(anchor string) string {
	m := innerRe.FindStringSubmatch(anchor)
	if m == nil {
		return anchor
	}
	return m[1]
}
