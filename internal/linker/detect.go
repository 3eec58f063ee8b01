package linker

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DetectUsage counts literal href="reference" occurrences in body for every
// pair. Keywords with no occurrence are left out of the result.
func DetectUsage(body string, pairs []Pair) map[string]int {
	out := make(map[string]int)
	for _, p := range pairs {
		if p.URL == "" {
			continue
		}
		if n := strings.Count(body, `href="`+p.URL+`"`); n > 0 {
			out[p.Keyword] = n
		}
	}
	return out
}

// DetectUsageHTML parses body as HTML and counts anchors whose href equals
// each pair's reference. Unlike DetectUsage it is insensitive to quoting
// and attribute order.
func DetectUsageHTML(body string, pairs []Pair) (map[string]int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("linker: parse html: %w", err)
	}
	hrefs := make(map[string]int)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs[strings.TrimSpace(href)]++
		}
	})
	out := make(map[string]int)
	for _, p := range pairs {
		if n := hrefs[p.URL]; n > 0 {
			out[p.Keyword] = n
		}
	}
	return out, nil
}
