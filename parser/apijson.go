package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// APIJSONParser maps a JSON listing endpoint to candidate items via
// configurable dot-paths. Two response shapes are supported: a JSON document
// with a results array ("json"), and a JSON array of raw HTML fragments
// ("json_html_array") parsed per fragment with selectors.
type APIJSONParser struct{}

// NewAPIJSONParser creates the structured-API adapter.
func NewAPIJSONParser() *APIJSONParser {
	return &APIJSONParser{}
}

// FetchItemList calls the configured endpoint and maps the response.
func (p *APIJSONParser) FetchItemList(ctx context.Context, sourceURL string, cfg *Config) ([]Item, error) {
	if cfg == nil || cfg.APIJSON == nil {
		return nil, fmt.Errorf("%w: api-json config missing", ErrConfig)
	}
	ac := cfg.APIJSON

	base := ac.BaseURL
	if base == "" {
		base = originOf(sourceURL)
	}

	apiURL := ac.API.URL
	if !strings.HasPrefix(apiURL, "http") {
		apiURL = joinPath(base, apiURL)
	}
	if len(ac.API.QueryParams) > 0 {
		u, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("%w: bad api url %q", ErrConfig, apiURL)
		}
		q := u.Query()
		for k, v := range ac.API.QueryParams {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		apiURL = u.String()
	}

	method := ac.API.Method
	if method == "" {
		method = http.MethodGet
	}
	var body *bytes.Reader
	if method == http.MethodPost && len(ac.API.Body) > 0 {
		body = bytes.NewReader(ac.API.Body)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	for k, v := range ac.Headers {
		req.Header.Set(k, v)
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: api returned HTTP %d", ErrFetch, resp.StatusCode)
	}

	if ac.API.ResponseType == "json_html_array" {
		var fragments []string
		if err := json.NewDecoder(resp.Body).Decode(&fragments); err != nil {
			return nil, fmt.Errorf("%w: decode html array: %v", ErrExtraction, err)
		}
		return parseHTMLFragments(fragments, ac, base)
	}

	var data any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrExtraction, err)
	}
	return mapJSONResults(data, ac, base), nil
}

// FetchItemContent is page-based, not API-based: product-style detail pages
// assemble name, description, and spec-table rows when those regions exist,
// which summarizes far better than raw body text.
func (p *APIJSONParser) FetchItemContent(ctx context.Context, itemURL string) (*Content, error) {
	doc, err := fetchDocument(ctx, itemURL, nil)
	if err != nil {
		return nil, err
	}

	base := originOf(itemURL)
	imageURL := firstAttrOf(doc, `meta[property="og:image"]`, "content")
	if imageURL == "" {
		imageURL = firstAttrOf(doc, `meta[name="twitter:image"]`, "content")
	}
	if imageURL != "" && strings.HasPrefix(imageURL, "/") {
		imageURL = base + imageURL
	}

	doc.Find(boilerplateSelector).Remove()

	name := collapseSpace(doc.Find("h1").First().Text())
	if name == "" {
		name = firstAttrOf(doc, `meta[property="og:title"]`, "content")
	}

	description := collapseSpace(doc.Find(`.product-description, .product-overview, [class*='description']`).First().Text())
	if description == "" {
		description = firstAttrOf(doc, `meta[property="og:description"]`, "content")
	}
	if description == "" {
		description = firstAttrOf(doc, `meta[name="description"]`, "content")
	}

	var specs []string
	doc.Find(`table tr, .spec-row, [class*='spec'] tr`).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		label := collapseSpace(cells.Eq(0).Text())
		value := collapseSpace(cells.Eq(1).Text())
		if label != "" && value != "" {
			specs = append(specs, label+": "+value)
		}
	})

	var parts []string
	if name != "" {
		parts = append(parts, "製品名: "+name)
	}
	if description != "" {
		parts = append(parts, "説明: "+description)
	}
	if len(specs) > 0 {
		parts = append(parts, "仕様:\n"+strings.Join(specs, "\n"))
	}

	if len(parts) <= 1 {
		main := collapseSpace(doc.Find("main, .content-area, article, .product-detail").First().Text())
		if main == "" {
			main = collapseSpace(doc.Find("body").Text())
		}
		parts = append(parts, main)
	}

	text := capRunes(collapseSpace(strings.Join(parts, "\n\n")), maxContentRunes)
	return &Content{Text: text, ImageURL: FilterImageURL(imageURL)}, nil
}

// mapJSONResults locates the results array and maps each entry's fields via
// the configured dot-paths.
func mapJSONResults(data any, ac *APIJSONConfig, base string) []Item {
	var results []any
	switch {
	case ac.Mapping.ResultsPath != "":
		located, _ := valueAtPath(data, ac.Mapping.ResultsPath).([]any)
		results = located
	default:
		if arr, ok := data.([]any); ok {
			results = arr
		} else if obj, ok := data.(map[string]any); ok {
			results, _ = obj["results"].([]any)
		}
	}

	var items []Item
	for _, r := range results {
		rawURL := stringAtPath(r, ac.Mapping.URL)
		if rawURL == "" {
			continue
		}
		itemURL := rawURL
		if !strings.HasPrefix(itemURL, "http") {
			itemURL = joinPath(base, itemURL)
		}

		title := strings.TrimSpace(stringAtPath(r, ac.Mapping.Title))
		if title == "" || excludedTitle(title, ac.ExcludePatterns) {
			continue
		}

		item := Item{ExternalURL: itemURL, Title: title}

		if ac.Mapping.PublishedAt != "" {
			item.PublishedAt = parseDate(stringAtPath(r, ac.Mapping.PublishedAt))
		}

		var description string
		if ac.Mapping.Description != "" {
			description = strings.TrimSpace(stringAtPath(r, ac.Mapping.Description))
		}

		var imageURL string
		if ac.Mapping.Image != "" {
			imageURL = resolveThumbnailField(stringAtPath(r, ac.Mapping.Image), base)
		}

		item.Snippet = EncodeSnippetImage(imageURL, description)
		items = append(items, item)
	}
	return items
}

// resolveThumbnailField handles image fields that are either a plain URL or
// a JSON-encoded array of thumbnail descriptors. For descriptor arrays the
// jp/us market entry is preferred, falling back to the first entry.
func resolveThumbnailField(raw, base string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var thumbs []struct {
		URL          string   `json:"url"`
		TargetMarket []string `json:"target_market"`
	}
	if err := json.Unmarshal([]byte(raw), &thumbs); err == nil && len(thumbs) > 0 {
		for _, t := range thumbs {
			for _, market := range t.TargetMarket {
				if market == "jp" || market == "us" {
					return t.URL
				}
			}
		}
		return thumbs[0].URL
	}

	if strings.HasPrefix(raw, "http") {
		return raw
	}
	return joinPath(base, raw)
}

// parseHTMLFragments parses each fragment of a json_html_array response
// independently with the configured selectors.
func parseHTMLFragments(fragments []string, ac *APIJSONConfig, base string) ([]Item, error) {
	hp := ac.HTMLParsing
	if hp == nil {
		return nil, fmt.Errorf("%w: json_html_array requires htmlParsing rules", ErrConfig)
	}

	var urlRe *regexp.Regexp
	if hp.URLPattern != "" {
		var err error
		urlRe, err = regexp.Compile(hp.URLPattern)
		if err != nil {
			return nil, fmt.Errorf("%w: bad urlPattern: %v", ErrConfig, err)
		}
	}

	var items []Item
	for _, fragment := range fragments {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
		if err != nil {
			continue
		}

		link := doc.Find(hp.LinkSelector).First()
		if link.Length() == 0 {
			continue
		}

		attr := hp.URLExtractAttr
		if attr == "" {
			attr = "href"
		}
		attrVal, _ := link.Attr(attr)

		var itemURL string
		if urlRe != nil {
			if m := urlRe.FindStringSubmatch(attrVal); m != nil && len(m) > 1 && m[1] != "" {
				itemURL = base + m[1]
			}
		} else if attrVal != "" {
			itemURL = attrVal
			if !strings.HasPrefix(itemURL, "http") {
				itemURL = joinPath(base, itemURL)
			}
		}
		if itemURL == "" {
			continue
		}

		title := collapseSpace(doc.Find(hp.TitleSelector).First().Text())
		if title == "" || excludedTitle(title, ac.ExcludePatterns) {
			continue
		}

		var imageURL string
		if hp.ImageSelector != "" {
			if src, ok := doc.Find(hp.ImageSelector).First().Attr("src"); ok && src != "" {
				imageURL = src
				if !strings.HasPrefix(imageURL, "http") {
					imageURL = joinPath(base, imageURL)
				}
			}
		}

		items = append(items, Item{
			ExternalURL: itemURL,
			Title:       title,
			Snippet:     EncodeSnippetImage(imageURL, ""),
		})
	}
	return items, nil
}

// excludedTitle applies the case-insensitive title-substring exclusion list
// used to drop promotional and navigational entries.
func excludedTitle(title string, patterns []string) bool {
	lower := strings.ToLower(title)
	for _, p := range patterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// valueAtPath resolves a dot-path like "data.items" against decoded JSON.
func valueAtPath(v any, path string) any {
	for _, key := range strings.Split(path, ".") {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v, ok = obj[key]
		if !ok {
			return nil
		}
	}
	return v
}

// stringAtPath resolves a dot-path and renders the value as a string.
// Numbers are formatted without an exponent so numeric ids remain usable in
// URLs.
func stringAtPath(v any, path string) string {
	switch val := valueAtPath(v, path).(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return fmt.Sprintf("%t", val)
	case nil:
		return ""
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// joinPath appends a possibly-relative path to a base origin.
func joinPath(base, p string) string {
	if strings.HasPrefix(p, "/") {
		return base + p
	}
	return base + "/" + p
}
