package parser

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLListParser scrapes article listings from static HTML pages using a
// configured selector triple (item/link/title), with optional pagination.
type HTMLListParser struct{}

// NewHTMLListParser creates the selector-driven list adapter.
func NewHTMLListParser() *HTMLListParser {
	return &HTMLListParser{}
}

// FetchItemList walks the configured page sequence and extracts items from
// each page. Pagination stops at the first page that yields zero matching
// items: that is end-of-list, not an error. A non-2xx response is fatal only
// on the first page; on later pages it also just ends pagination.
func (p *HTMLListParser) FetchItemList(ctx context.Context, sourceURL string, cfg *Config) ([]Item, error) {
	if cfg == nil || cfg.HTMLList == nil {
		return nil, fmt.Errorf("%w: html-list config missing", ErrConfig)
	}
	hc := cfg.HTMLList

	base := hc.BaseURL
	if base == "" {
		base = originOf(sourceURL)
	}

	var items []Item
	seen := make(map[string]bool)

	for i, pageURL := range buildPageURLs(sourceURL, hc.Pagination) {
		resp, err := fetchWithRedirects(ctx, pageURL, hc.Headers)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			break
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if i == 0 {
				return nil, fmt.Errorf("%w: list page returned HTTP %d", ErrFetch, resp.StatusCode)
			}
			break
		}

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		resp.Body.Close()
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("%w: parse list page: %v", ErrExtraction, err)
			}
			break
		}

		found := 0
		doc.Find(hc.List.ItemSelector).Each(func(_ int, node *goquery.Selection) {
			item, ok := extractListItem(node, &hc.List, base, seen)
			if !ok {
				return
			}
			items = append(items, item)
			found++
		})

		if found == 0 {
			break
		}
	}

	return items, nil
}

// FetchItemContent re-fetches the detail page and extracts the body text,
// trying the broad content-region guesses shared by most news layouts.
func (p *HTMLListParser) FetchItemContent(ctx context.Context, itemURL string) (*Content, error) {
	doc, err := fetchDocument(ctx, itemURL, nil)
	if err != nil {
		return nil, err
	}

	base := originOf(itemURL)
	imageURL := bestImage(doc, base, "article", ".content", ".detail", ".news-detail", "main")

	text := extractText(doc, []string{
		"article", ".content", ".detail", ".news-detail",
		".entry-content", ".post-content", "main",
	}, nil)

	return &Content{Text: text, ImageURL: imageURL}, nil
}

// extractListItem pulls one candidate item out of a matched list node.
// Returns false when the node has no usable link or title, fails the link
// filters, or duplicates a URL already seen on this run.
func extractListItem(node *goquery.Selection, rules *ListRules, base string, seen map[string]bool) (Item, bool) {
	link := node
	if rules.LinkSelector != "" && rules.LinkSelector != "self" {
		link = node.Find(rules.LinkSelector).First()
	}
	href, ok := link.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return Item{}, false
	}
	href = strings.TrimSpace(href)

	if rules.LinkFilterPattern != "" && !strings.Contains(href, rules.LinkFilterPattern) {
		return Item{}, false
	}
	for _, skip := range rules.SkipPatterns {
		if strings.Contains(href, skip) {
			return Item{}, false
		}
	}

	fullURL := normalizeURL(href, base)
	if seen[fullURL] {
		return Item{}, false
	}
	seen[fullURL] = true

	// Titles are mandatory; everything else is best-effort.
	var title string
	if rules.TitleSelector != "" {
		title = collapseSpace(node.Find(rules.TitleSelector).First().Text())
	} else {
		title = collapseSpace(link.Text())
	}
	if title == "" {
		return Item{}, false
	}

	item := Item{ExternalURL: fullURL, Title: title}

	if rules.DateSelector != "" {
		item.PublishedAt = parseDate(node.Find(rules.DateSelector).First().Text())
	}

	var imageURL string
	if rules.ImageSelector != "" {
		img := node.Find(rules.ImageSelector).First()
		if src := firstAttr(img, "src", "data-src"); src != "" {
			imageURL = normalizeURL(src, base)
		} else if style, ok := img.Attr("style"); ok {
			if m := backgroundImageRe.FindStringSubmatch(style); m != nil {
				imageURL = normalizeURL(m[1], base)
			}
		}
	}

	var description string
	if rules.DescriptionSelector != "" {
		description = collapseSpace(node.Find(rules.DescriptionSelector).First().Text())
	}
	item.Snippet = EncodeSnippetImage(imageURL, description)

	return item, true
}

// buildPageURLs derives the ordered page sequence from the pagination
// strategy. The first page is always the raw source URL: origins commonly
// reject an explicit page=1 or page=0.
func buildPageURLs(sourceURL string, pg *Pagination) []string {
	if pg == nil {
		return []string{sourceURL}
	}

	start := pg.Start
	if start == 0 {
		start = 1
	}
	step := pg.Step
	if step == 0 {
		step = 1
	}

	var pages []string
	for i := 0; i < pg.MaxPages; i++ {
		value := start + i*step

		switch pg.Type {
		case "query":
			if i == 0 && start <= 1 {
				pages = append(pages, sourceURL)
				continue
			}
			u, err := url.Parse(sourceURL)
			if err != nil {
				continue
			}
			param := pg.Param
			if param == "" {
				param = "page"
			}
			q := u.Query()
			q.Set(param, strconv.Itoa(value))
			u.RawQuery = q.Encode()
			pages = append(pages, u.String())
		case "path":
			if i == 0 {
				pages = append(pages, sourceURL)
				continue
			}
			if pg.PathPattern != "" {
				pages = append(pages, strings.ReplaceAll(pg.PathPattern, "{n}", strconv.Itoa(value)))
			}
		}
	}

	if len(pages) == 0 {
		return []string{sourceURL}
	}
	return pages
}
