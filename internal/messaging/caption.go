package messaging

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SanitizeCaption strips any markup an item's title happens to carry
// (source titles are free text, not trusted HTML) and wraps the result in
// italics for display as a photo caption.
func SanitizeCaption(title string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(title))
	if err != nil {
		return fmt.Sprintf("<i>%s</i>", escapeHTML(title))
	}
	return fmt.Sprintf("<i>%s</i>", escapeHTML(doc.Text()))
}

func escapeHTML(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	return r.Replace(s)
}
