// Package reconcile drives link reconciliation over a batch of documents.
//
// Each document is fetched, masked, stripped of links the ledger no longer
// wants, given the links it does want, restored and pushed back only when
// its text changed. Documents are processed one at a time; a failure is
// recorded against the document and the batch moves on.
package reconcile

import (
	"context"

	"github.com/starford/interlink/internal/ledger"
	"github.com/starford/interlink/internal/linker"
	"github.com/starford/interlink/internal/models"
)

// ContentStore reads and writes document bodies.
type ContentStore interface {
	// FetchBody returns the current body, or "" when the document has none.
	FetchBody(ctx context.Context, id string) (string, error)
	// PushBody replaces the body and returns the store's status code.
	PushBody(ctx context.Context, id, text string) (int, error)
}

// PageFetcher loads a document's public page.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (string, error)
}

// Plan computes the rewrite of body for doc without side effects. The off
// and on sets come from the ledger; pairs is the flattened registry.
func Plan(doc models.Article, body string, l *ledger.Ledger, pairs []linker.Pair, budget int) linker.Result {
	return linker.Rewrite(body, l.OffFor(doc.ID, pairs), l.OnFor(doc.ID, pairs), linker.Options{
		Budget:  budget,
		SelfURL: doc.URL,
	})
}

// ReconcileDocument returns body with the ledger's decisions for doc
// applied, and whether anything changed.
func ReconcileDocument(doc models.Article, body string, l *ledger.Ledger, pairs []linker.Pair, budget int) (string, bool) {
	res := Plan(doc, body, l, pairs, budget)
	return res.Text, res.Changed
}
