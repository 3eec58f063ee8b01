// Package ledger tracks which keywords are linked in which documents.
//
// The ledger is authoritative: a document id listed under a keyword means the
// keyword must be linked there, and a known document missing from the list
// means any link to the keyword's target must be removed.
package ledger

import (
	"encoding/json"
	"fmt"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/interlink/internal/linker"
)

// Entry is the usage record for one keyword.
type Entry struct {
	URL      string         `json:"url"`
	Articles map[string]int `json:"articles_used_in"`
}

// Ledger maps keyword → Entry, preserving insertion order.
type Ledger struct {
	entries *orderedmap.OrderedMap[string, *Entry]
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{entries: orderedmap.New[string, *Entry]()}
}

// Parse decodes {"keyword": {"url": "...", "articles_used_in": {"id": n}}}.
func Parse(data []byte) (*Ledger, error) {
	l := New()
	if err := json.Unmarshal(data, l); err != nil {
		return nil, err
	}
	return l, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	entries := orderedmap.New[string, *Entry]()
	if err := json.Unmarshal(data, entries); err != nil {
		return fmt.Errorf("ledger: decode: %w", err)
	}
	for p := entries.Oldest(); p != nil; p = p.Next() {
		if p.Value == nil {
			p.Value = &Entry{}
		}
		if p.Value.Articles == nil {
			p.Value.Articles = map[string]int{}
		}
	}
	l.entries = entries
	return nil
}

// MarshalJSON implements json.Marshaler.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.entries)
}

// Get returns the entry for keyword.
func (l *Ledger) Get(keyword string) (*Entry, bool) {
	return l.entries.Get(keyword)
}

// Keywords returns every keyword in ledger order.
func (l *Ledger) Keywords() []string {
	out := make([]string, 0, l.entries.Len())
	for p := l.entries.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Key)
	}
	return out
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	return l.entries.Len()
}

// Linked reports whether keyword is marked as linked in docID.
func (l *Ledger) Linked(keyword, docID string) bool {
	e, ok := l.entries.Get(keyword)
	if !ok {
		return false
	}
	_, ok = e.Articles[docID]
	return ok
}

// Toggle marks keyword as linked (on) or unlinked (off) in docID. A fresh
// activation records a count of 1; an existing count is kept.
func (l *Ledger) Toggle(keyword, url, docID string, on bool) {
	e := l.entry(keyword, url)
	if !on {
		delete(e.Articles, docID)
		return
	}
	if _, ok := e.Articles[docID]; !ok {
		e.Articles[docID] = 1
	}
}

// Record stores an observed link count. A count below one removes the
// document from the entry.
func (l *Ledger) Record(keyword, url, docID string, count int) {
	e := l.entry(keyword, url)
	if count < 1 {
		delete(e.Articles, docID)
		return
	}
	e.Articles[docID] = count
}

// Ensure creates an empty entry for keyword if there is none.
func (l *Ledger) Ensure(keyword, url string) {
	l.entry(keyword, url)
}

// Retarget aligns every entry's URL with the registry pairs. Entries for
// keywords outside pairs are left as they are.
func (l *Ledger) Retarget(pairs []linker.Pair) {
	for _, p := range pairs {
		if e, ok := l.entries.Get(p.Keyword); ok {
			e.URL = p.URL
		}
	}
}

// Rename moves an entry to a new keyword, keeping its documents.
func (l *Ledger) Rename(from, to string) {
	e, ok := l.entries.Get(from)
	if !ok || from == to {
		return
	}
	l.entries.Delete(from)
	l.entries.Set(to, e)
}

// Delete drops the entry for keyword.
func (l *Ledger) Delete(keyword string) {
	l.entries.Delete(keyword)
}

// DocumentIDs returns every document id mentioned in the ledger, sorted.
func (l *Ledger) DocumentIDs() []string {
	seen := make(map[string]struct{})
	for p := l.entries.Oldest(); p != nil; p = p.Next() {
		for id := range p.Value.Articles {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// KeywordsFor returns the keywords linked in docID, in ledger order.
func (l *Ledger) KeywordsFor(docID string) []string {
	var out []string
	for p := l.entries.Oldest(); p != nil; p = p.Next() {
		if _, ok := p.Value.Articles[docID]; ok {
			out = append(out, p.Key)
		}
	}
	return out
}

// Prune removes entries whose keyword is no longer in pairs. Orphaned
// entries keep signalling removal until a pass over every document has
// succeeded, which is when callers should prune.
func (l *Ledger) Prune(pairs []linker.Pair) int {
	known := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		known[p.Keyword] = struct{}{}
	}
	var drop []string
	for p := l.entries.Oldest(); p != nil; p = p.Next() {
		if _, ok := known[p.Key]; !ok {
			drop = append(drop, p.Key)
		}
	}
	for _, k := range drop {
		l.entries.Delete(k)
	}
	return len(drop)
}

func (l *Ledger) entry(keyword, url string) *Entry {
	e, ok := l.entries.Get(keyword)
	if !ok {
		e = &Entry{Articles: map[string]int{}}
		l.entries.Set(keyword, e)
	}
	if e.URL == "" {
		e.URL = url
	}
	return e
}
