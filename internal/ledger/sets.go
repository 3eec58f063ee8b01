package ledger

import "github.com/starford/interlink/internal/linker"

// OffFor returns the pairs that must not be linked in docID:
//   - registry keywords whose entry does not list docID
//   - the previous target of a keyword that has been retargeted
//   - keywords that are in the ledger but no longer in the registry
//
// Pairs come out in registry order followed by orphaned ledger entries.
func (l *Ledger) OffFor(docID string, pairs []linker.Pair) []linker.Pair {
	var out []linker.Pair
	known := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		known[p.Keyword] = struct{}{}
		if !l.Linked(p.Keyword, docID) {
			out = append(out, p)
		}
		if e, ok := l.entries.Get(p.Keyword); ok && e.URL != "" && e.URL != p.URL {
			out = append(out, linker.Pair{Keyword: p.Keyword, URL: e.URL})
		}
	}
	for e := l.entries.Oldest(); e != nil; e = e.Next() {
		if _, ok := known[e.Key]; ok || e.Value.URL == "" {
			continue
		}
		out = append(out, linker.Pair{Keyword: e.Key, URL: e.Value.URL})
	}
	return out
}

// OnFor returns the registry pairs that must be linked in docID, in
// registry order.
func (l *Ledger) OnFor(docID string, pairs []linker.Pair) []linker.Pair {
	var out []linker.Pair
	for _, p := range pairs {
		if l.Linked(p.Keyword, docID) {
			out = append(out, p)
		}
	}
	return out
}

// OffSet computes OffFor for every document id. A keyword absent from the
// ledger behaves like one with an empty document list.
func OffSet(l *Ledger, pairs []linker.Pair, docIDs []string) map[string][]linker.Pair {
	out := make(map[string][]linker.Pair, len(docIDs))
	for _, id := range docIDs {
		if off := l.OffFor(id, pairs); len(off) > 0 {
			out[id] = off
		}
	}
	return out
}

// OnSet computes OnFor for every document id that has something to link.
func OnSet(l *Ledger, pairs []linker.Pair, docIDs []string) map[string][]linker.Pair {
	out := make(map[string][]linker.Pair)
	for _, id := range docIDs {
		if on := l.OnFor(id, pairs); len(on) > 0 {
			out[id] = on
		}
	}
	return out
}
