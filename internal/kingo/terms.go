package kingo

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseTerms extracts the term code → term name map from the class query
// page's term selector.
func ParseTerms(text string) map[string]string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil
	}

	terms := make(map[string]string)
	doc.Find("select[name=Sel_XNXQ] option").Each(func(_ int, sel *goquery.Selection) {
		code, ok := sel.Attr("value")
		if !ok || code == "" {
			return
		}
		terms[code] = strings.TrimSpace(sel.Text())
	})
	return terms
}
