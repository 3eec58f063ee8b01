package mcpserver

// MappingFormatContract describes the registry and ledger snapshots that
// LLM consumers read and edit through the tools.
const MappingFormatContract = `# Interlink Mapping Format Contract

Interlink keeps two JSON snapshots in its data directory. Both are edited
through the tools; never hand the tools a whole file.

## Keyword registry (linkMapping.json)

` + "```" + `json
{
  "drinks": {
    "カフェ": "https://example.com/media/column/cafe/",
    "tea":   "https://example.com/media/column/tea/"
  },
  "food": {
    "bread": "https://example.com/media/column/bread/"
  }
}
` + "```" + `

1. **Nested by category.** Top-level keys are category names, each holding
   keyword -> URL pairs.
2. **Order matters.** Categories and keywords keep their order. When an
   article's link budget runs out, keywords earlier in the registry win.
3. **One category per keyword.** Adding a keyword that already exists in any
   category is rejected.
4. **Keywords** are matched literally and case-sensitively. They may not be
   blank and may not contain private-use characters (U+E000-U+E019 and the
   matching plane 15/16 runes).
5. **URLs** are absolute. The URL is also the reference used to find and
   remove a keyword's existing links.
6. An article is never linked to its own URL.

## Usage ledger (linkUsage.json)

` + "```" + `json
{
  "カフェ": {
    "url": "https://example.com/media/column/cafe/",
    "articles_used_in": {"123": 1, "456": 2}
  }
}
` + "```" + `

- The ledger is authoritative. An article id listed under a keyword means the
  keyword must be linked there; an article missing from the list means any
  link to the keyword's URL is removed on the next reconciliation.
- Counts are the number of anchors last observed.
- Use ` + "`" + `toggle_link` + "`" + ` to change an entry and ` + "`" + `preview_links` + "`" + ` to check the
  effect on a body before anything is pushed.

## Linking rules

- Only the first plain-text occurrence of a keyword is linked.
- Text inside existing anchors and inside [shortcodes] is never touched.
- Linking twice changes nothing: a keyword whose link is already present is
  left alone.
- The budget counts links already present, so an article at its cap gets no
  new links until one is switched off.
`
