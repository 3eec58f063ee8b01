package linker

// Options tunes one rewrite pass.
type Options struct {
	// Budget caps the on anchors in a document, existing ones included.
	// Zero or less means no cap.
	Budget int
	// SelfURL is the hosting document's own reference. Pairs targeting it
	// are never activated.
	SelfURL string
}

// Result describes the outcome of a rewrite pass.
type Result struct {
	Text    string `json:"text"`
	Changed bool   `json:"changed"`

	Unlinked    []Pair `json:"unlinked,omitempty"`     // deactivated, with at least one anchor removed
	Linked      []Pair `json:"linked,omitempty"`       // newly wrapped
	Present     []Pair `json:"present,omitempty"`      // an anchor to the reference already existed
	Missing     []Pair `json:"missing,omitempty"`      // keyword not found in linkable text
	OverBudget  []Pair `json:"over_budget,omitempty"`  // skipped because the budget was spent
	SelfSkipped []Pair `json:"self_skipped,omitempty"`
}

// Rewrite runs a full pass over body: shield, deactivate every off pair,
// activate on pairs in order within the budget, restore. The budget caps
// the on anchors a document holds, counting those already present.
//
// A reference that is also wanted by an on pair is not deactivated, so two
// keywords sharing a target cannot undo each other.
func Rewrite(body string, off, on []Pair, opts Options) Result {
	res := Result{Text: body}
	masked, tbl := Shield(body)

	wanted := make(map[string]struct{}, len(on))
	for _, p := range on {
		if !SameReference(p.URL, opts.SelfURL) {
			wanted[p.URL] = struct{}{}
		}
	}

	done := make(map[string]struct{}, len(off))
	for _, p := range off {
		if _, ok := wanted[p.URL]; ok {
			continue
		}
		if _, ok := done[p.URL]; ok {
			continue
		}
		done[p.URL] = struct{}{}
		var n int
		masked, n = tbl.Unlink(masked, p.URL)
		if n > 0 {
			res.Unlinked = append(res.Unlinked, p)
		}
	}

	// Live anchors for on pairs use up budget first, so a document at its
	// cap stays there on the next pass.
	added := 0
	live := make(map[string]struct{}, len(on))
	for _, p := range on {
		if _, ok := live[p.URL]; ok || SameReference(p.URL, opts.SelfURL) {
			continue
		}
		if tbl.HasLink(p.URL) {
			live[p.URL] = struct{}{}
			added++
		}
	}

	for _, p := range on {
		switch {
		case SameReference(p.URL, opts.SelfURL):
			res.SelfSkipped = append(res.SelfSkipped, p)
			continue
		case tbl.HasLink(p.URL):
			res.Present = append(res.Present, p)
			continue
		case opts.Budget > 0 && added >= opts.Budget:
			res.OverBudget = append(res.OverBudget, p)
			continue
		}
		span, ok := FindFirst(masked, p.Keyword)
		if !ok {
			res.Missing = append(res.Missing, p)
			continue
		}
		label := masked[span.Start:span.End]
		if openTagRe.MatchString(label) {
			res.Missing = append(res.Missing, p)
			continue
		}
		masked = masked[:span.Start] + tbl.Mask(KindInserted, Anchor(p.URL, label)) + masked[span.End:]
		res.Linked = append(res.Linked, p)
		added++
	}

	res.Text = tbl.Restore(masked)
	res.Changed = res.Text != body
	return res
}

// LinkKeywords links the first occurrence of each pair in order until
// budget anchors have been added.
func LinkKeywords(text string, pairs []Pair, budget int) (string, int) {
	res := Rewrite(text, nil, pairs, Options{Budget: budget})
	return res.Text, len(res.Linked)
}
