package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// VisibleText returns the whitespace-normalized text of an HTML fragment, without scripts and styles.
func VisibleText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}
