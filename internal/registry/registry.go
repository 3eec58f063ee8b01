// Package registry holds the keyword → URL mapping, grouped by category.
//
// Insertion order is significant: it decides which keyword wins when a
// document's link budget runs out, so the registry is backed by ordered maps
// and serialised in the same order it was read.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/interlink/internal/apperr"
	"github.com/starford/interlink/internal/linker"
)

// DefaultCategory receives keywords read from a flat mapping file.
const DefaultCategory = "default"

type keywordMap = orderedmap.OrderedMap[string, string]

// Entry is one keyword with its category and target.
type Entry struct {
	Category string `json:"category"`
	Keyword  string `json:"keyword"`
	URL      string `json:"url"`
}

// Change describes an edit to an existing keyword. Empty fields are left as
// they are.
type Change struct {
	Keyword  string `json:"keyword,omitempty"`
	URL      string `json:"url,omitempty"`
	Category string `json:"category,omitempty"`
}

// Registry maps category → keyword → URL.
type Registry struct {
	categories *orderedmap.OrderedMap[string, *keywordMap]
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{categories: orderedmap.New[string, *keywordMap]()}
}

// Parse decodes the nested form {"category": {"keyword": "url"}}.
func Parse(data []byte) (*Registry, error) {
	r := New()
	if err := json.Unmarshal(data, r); err != nil {
		return nil, err
	}
	return r, nil
}

// ParseFlat decodes the legacy flat form {"keyword": "url"} into
// DefaultCategory.
func ParseFlat(data []byte) (*Registry, error) {
	flat := orderedmap.New[string, string]()
	if err := json.Unmarshal(data, flat); err != nil {
		return nil, fmt.Errorf("registry: decode flat mapping: %w", err)
	}
	r := New()
	if flat.Len() > 0 {
		r.categories.Set(DefaultCategory, flat)
	}
	return r, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Registry) UnmarshalJSON(data []byte) error {
	cats := orderedmap.New[string, *keywordMap]()
	if err := json.Unmarshal(data, cats); err != nil {
		return fmt.Errorf("registry: decode nested mapping (expected {\"category\": {\"keyword\": \"url\"}}): %w", err)
	}
	for p := cats.Oldest(); p != nil; p = p.Next() {
		if p.Value == nil {
			p.Value = orderedmap.New[string, string]()
		}
	}
	r.categories = cats
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.categories)
}

// Categories returns category names in order.
func (r *Registry) Categories() []string {
	out := make([]string, 0, r.categories.Len())
	for p := r.categories.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Key)
	}
	return out
}

// Entries returns every keyword in registry order, duplicates included.
func (r *Registry) Entries() []Entry {
	var out []Entry
	for c := r.categories.Oldest(); c != nil; c = c.Next() {
		for k := c.Value.Oldest(); k != nil; k = k.Next() {
			out = append(out, Entry{Category: c.Key, Keyword: k.Key, URL: k.Value})
		}
	}
	return out
}

// Pairs flattens the registry into ordered keyword pairs. When a keyword
// occurs in more than one category the first occurrence wins; see
// Duplicates.
func (r *Registry) Pairs() []linker.Pair {
	seen := make(map[string]struct{})
	var out []linker.Pair
	for _, e := range r.Entries() {
		if _, dup := seen[e.Keyword]; dup {
			continue
		}
		seen[e.Keyword] = struct{}{}
		out = append(out, linker.Pair{Keyword: e.Keyword, URL: e.URL})
	}
	return out
}

// Duplicates lists keywords that occur in more than one category.
func (r *Registry) Duplicates() []string {
	count := make(map[string]int)
	var out []string
	for _, e := range r.Entries() {
		count[e.Keyword]++
		if count[e.Keyword] == 2 {
			out = append(out, e.Keyword)
		}
	}
	return out
}

// Len returns the number of distinct keywords.
func (r *Registry) Len() int {
	return len(r.Pairs())
}

// Lookup returns the first entry for keyword.
func (r *Registry) Lookup(keyword string) (Entry, bool) {
	for c := r.categories.Oldest(); c != nil; c = c.Next() {
		if url, ok := c.Value.Get(keyword); ok {
			return Entry{Category: c.Key, Keyword: keyword, URL: url}, true
		}
	}
	return Entry{}, false
}

// Add appends keyword to category, creating the category if needed.
func (r *Registry) Add(category, keyword, url string) error {
	if err := validateEntry(category, keyword, url); err != nil {
		return err
	}
	if e, ok := r.Lookup(keyword); ok {
		return fmt.Errorf("%w: %q already in category %q", apperr.ErrDuplicateKeyword, keyword, e.Category)
	}
	r.category(category).Set(keyword, url)
	return nil
}

// Update renames, retargets or moves an existing keyword. A rename keeps
// the keyword's position within its category.
func (r *Registry) Update(keyword string, ch Change) (Entry, error) {
	cur, ok := r.Lookup(keyword)
	if !ok {
		return Entry{}, fmt.Errorf("registry: keyword %q: %w", keyword, apperr.ErrNotFound)
	}
	next := cur
	if ch.Keyword != "" {
		next.Keyword = ch.Keyword
	}
	if ch.URL != "" {
		next.URL = ch.URL
	}
	if ch.Category != "" {
		next.Category = ch.Category
	}
	if err := validateEntry(next.Category, next.Keyword, next.URL); err != nil {
		return Entry{}, err
	}
	if next.Keyword != cur.Keyword {
		if e, taken := r.Lookup(next.Keyword); taken {
			return Entry{}, fmt.Errorf("%w: %q already in category %q", apperr.ErrDuplicateKeyword, next.Keyword, e.Category)
		}
	}

	if next.Category != cur.Category {
		r.category(cur.Category).Delete(cur.Keyword)
		r.category(next.Category).Set(next.Keyword, next.URL)
		return next, nil
	}

	old := r.category(cur.Category)
	renamed := orderedmap.New[string, string]()
	for p := old.Oldest(); p != nil; p = p.Next() {
		if p.Key == cur.Keyword {
			renamed.Set(next.Keyword, next.URL)
			continue
		}
		renamed.Set(p.Key, p.Value)
	}
	r.categories.Set(cur.Category, renamed)
	return next, nil
}

// Remove deletes keyword from every category holding it. Categories left
// empty are kept so their names survive.
func (r *Registry) Remove(keyword string) (Entry, error) {
	cur, ok := r.Lookup(keyword)
	if !ok {
		return Entry{}, fmt.Errorf("registry: keyword %q: %w", keyword, apperr.ErrNotFound)
	}
	for c := r.categories.Oldest(); c != nil; c = c.Next() {
		c.Value.Delete(keyword)
	}
	return cur, nil
}

// Validate rejects registries where a keyword appears in two categories or
// an entry is malformed.
func (r *Registry) Validate() error {
	if dups := r.Duplicates(); len(dups) > 0 {
		return fmt.Errorf("%w: %v", apperr.ErrDuplicateKeyword, dups)
	}
	for _, e := range r.Entries() {
		if err := validateEntry(e.Category, e.Keyword, e.URL); err != nil {
			return fmt.Errorf("registry: keyword %q: %w", e.Keyword, err)
		}
	}
	return nil
}

func (r *Registry) category(name string) *keywordMap {
	if m, ok := r.categories.Get(name); ok && m != nil {
		return m
	}
	m := orderedmap.New[string, string]()
	r.categories.Set(name, m)
	return m
}

func validateEntry(category, keyword, url string) error {
	err := validation.Errors{
		"category": validation.Validate(category, validation.Required),
		"keyword":  validation.Validate(keyword, validation.Required, validation.By(linkableKeyword)),
		"url":      validation.Validate(url, validation.Required, is.URL),
	}.Filter()
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	return nil
}

func linkableKeyword(value any) error {
	s, _ := value.(string)
	if !linker.ValidKeyword(s) {
		return errors.New("contains reserved characters")
	}
	return nil
}
