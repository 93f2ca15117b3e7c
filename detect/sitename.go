package detect

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// titleSeparators split page titles of the "Page Title | Site Name" form; the
// site name is usually the trailing segment.
var titleSeparators = []string{" | ", " - ", " – ", " — ", " :: ", " » "}

// siteNameFromDoc infers a display name for the site: og:site_name, then
// application-name, then the title's trailing separator segment, then a short
// whole title, then the domain.
func siteNameFromDoc(doc *goquery.Document, pageURL *url.URL) string {
	if name := firstAttr(doc, `meta[property="og:site_name"]`, "content"); name != "" {
		return name
	}
	if name := firstAttr(doc, `meta[name="application-name"]`, "content"); name != "" {
		return name
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title != "" {
		for _, sep := range titleSeparators {
			if !strings.Contains(title, sep) {
				continue
			}
			parts := strings.Split(title, sep)
			last := strings.TrimSpace(parts[len(parts)-1])
			if n := len([]rune(last)); n >= 2 && n <= 40 {
				return last
			}
		}
		if len([]rune(title)) <= 40 {
			return title
		}
	}

	return nameFromDomain(pageURL)
}

// nameFromDomain derives a readable name from the host, stripping www and the
// TLD ("news.example.com" becomes "news.example").
func nameFromDomain(pageURL *url.URL) string {
	host := strings.TrimPrefix(pageURL.Hostname(), "www.")
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return strings.Join(parts[:len(parts)-1], ".")
	}
	return host
}
