package parser

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// maxContentRunes bounds the plain-text body returned by content extraction.
const maxContentRunes = 10000

// boilerplateSelector matches regions stripped before any content
// extraction: navigation, chrome, scripts, and cookie banners.
const boilerplateSelector = "nav, footer, header, script, style, .sidebar, .cookie-banner, .breadcrumb"

// extractText strips boilerplate, then walks the candidate content-region
// selectors in order and returns the first non-empty match, falling back to
// the whole body text. The result has collapsed whitespace and is capped.
func extractText(doc *goquery.Document, selectors []string, removeSelectors []string) string {
	doc.Find(boilerplateSelector).Remove()
	for _, rm := range removeSelectors {
		doc.Find(rm).Remove()
	}

	for _, sel := range selectors {
		if text := collapseSpace(doc.Find(sel).First().Text()); text != "" {
			return capRunes(text, maxContentRunes)
		}
	}
	return capRunes(collapseSpace(doc.Find("body").Text()), maxContentRunes)
}

// collapseSpace trims and collapses all whitespace runs to single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func capRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// dateLayouts are tried in order by parseDate after separator
// normalization. Listing pages mix ISO dates, slashed dates, and RFC-style
// feed timestamps.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-1-2",
	"2006/01/02",
	"2006/1/2",
	"02-01-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	time.RFC1123Z,
	time.RFC1123,
	"2006年01月02日",
	"2006年1月2日",
}

// parseDate parses a scraped date string permissively. Dot separators are
// normalized to dashes first ("2024.01.15" style is common on Japanese news
// lists). Returns nil when nothing matches.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	normalized := strings.ReplaceAll(s, ".", "-")
	for _, candidate := range []string{normalized, s} {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, candidate); err == nil {
				return &t
			}
		}
	}
	return nil
}

// Snippet image encoding: list extraction can discover an image cheaply
// and smuggle it forward inside the snippet so content extraction does not
// force a second fetch unless it finds something better.
const snippetImagePrefix = "__IMG__"

// EncodeSnippetImage builds the __IMG__<url>__<description> snippet form.
// With no image it returns the description alone; with no description it
// returns the bare image URL.
func EncodeSnippetImage(imageURL, description string) string {
	switch {
	case imageURL != "" && description != "":
		return snippetImagePrefix + imageURL + "__" + description
	case imageURL != "":
		return imageURL
	default:
		return description
	}
}

// DecodeSnippetImage splits a snippet back into image URL and description.
// Snippets without the marker come back unchanged as the description.
func DecodeSnippetImage(snippet string) (imageURL, description string) {
	if !strings.HasPrefix(snippet, snippetImagePrefix) {
		return "", snippet
	}
	rest := strings.TrimPrefix(snippet, snippetImagePrefix)
	imageURL, description, _ = strings.Cut(rest, "__")
	return imageURL, description
}
