package parser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const (
	defaultWaitTimeout = 15 * time.Second
	defaultNavTimeout  = 30 * time.Second
	defaultExtraWait   = 5 * time.Second
)

// RenderFunc produces the rendered HTML of a page. The production
// implementation drives a headless browser; tests inject static HTML.
type RenderFunc func(ctx context.Context, url string, cfg *RenderedConfig) (string, error)

// RenderedParser scrapes sites that only populate their listings from
// JavaScript. It renders the page in a headless browser and then reuses the
// same selector-driven item extraction as the html-list adapter.
type RenderedParser struct {
	render RenderFunc
}

// NewRenderedParser creates the rendered-page adapter. A nil render function
// selects the rod-backed browser renderer.
func NewRenderedParser(render RenderFunc) *RenderedParser {
	if render == nil {
		render = renderWithBrowser
	}
	return &RenderedParser{render: render}
}

// FetchItemList renders the page and extracts items. When the configured
// item selector matches nothing, every anchor on the page matching the link
// filter pattern is scanned as a fallback.
func (p *RenderedParser) FetchItemList(ctx context.Context, sourceURL string, cfg *Config) ([]Item, error) {
	if cfg == nil || cfg.Rendered == nil {
		return nil, fmt.Errorf("%w: rendered-list config missing", ErrConfig)
	}
	rc := cfg.Rendered

	base := rc.BaseURL
	if base == "" {
		base = originOf(sourceURL)
	}

	html, err := p.render(ctx, sourceURL, rc)
	if err != nil {
		return nil, fmt.Errorf("%w: render: %v", ErrFetch, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: parse rendered page: %v", ErrExtraction, err)
	}

	var items []Item
	seen := map[string]bool{sourceURL: true}

	doc.Find(rc.List.ItemSelector).Each(func(_ int, node *goquery.Selection) {
		rules := rc.List
		if rules.LinkSelector == "" {
			if node.Is("a") {
				rules.LinkSelector = "self"
			} else {
				rules.LinkSelector = "a"
			}
		}
		item, ok := extractListItem(node, &rules, base, seen)
		if !ok {
			return
		}
		// Rendered listings have no reliable title selector most of the
		// time; reject node-text titles that are clearly not headlines.
		if rc.List.TitleSelector == "" && (len([]rune(item.Title)) < 10 || len([]rune(item.Title)) > 300) {
			return
		}
		items = append(items, item)
	})

	if len(items) == 0 && rc.List.LinkFilterPattern != "" {
		doc.Find(fmt.Sprintf(`a[href*=%q]`, rc.List.LinkFilterPattern)).Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			fullURL := normalizeURL(strings.TrimSpace(href), base)
			if fullURL == "" || seen[fullURL] {
				return
			}
			seen[fullURL] = true

			title := collapseSpace(a.Text())
			if n := len([]rune(title)); n < 15 || n > 300 {
				return
			}
			items = append(items, Item{ExternalURL: fullURL, Title: title})
		})
	}

	return items, nil
}

// FetchItemContent renders the detail page and extracts its body text.
func (p *RenderedParser) FetchItemContent(ctx context.Context, itemURL string) (*Content, error) {
	html, err := p.render(ctx, itemURL, &RenderedConfig{})
	if err != nil {
		return nil, fmt.Errorf("%w: render: %v", ErrFetch, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: parse rendered page: %v", ErrExtraction, err)
	}

	imageURL := firstAttrOf(doc, `meta[property="og:image"]`, "content")
	if imageURL == "" {
		imageURL = firstAttrOf(doc, `meta[name="twitter:image"]`, "content")
	}

	text := extractText(doc, []string{
		"article", `[class*="pressRelease"]`, ".content-area", "main",
	}, nil)

	return &Content{Text: text, ImageURL: FilterImageURL(imageURL)}, nil
}

// renderWithBrowser launches (or reuses) a headless browser, navigates,
// waits for the configured selector plus a settle delay, and returns the
// page's outer HTML. A wait-selector timeout is non-fatal: the page may
// still have rendered enough to extract.
func renderWithBrowser(ctx context.Context, url string, cfg *RenderedConfig) (string, error) {
	wsURL, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return "", fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(wsURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("connect browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	defer page.Close()

	if err := (proto.NetworkSetUserAgentOverride{UserAgent: browserUserAgent}).Call(page); err != nil {
		return "", fmt.Errorf("set user agent: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, defaultNavTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(url); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load %s: %w", url, err)
	}

	if cfg.WaitSelector != "" {
		timeout := defaultWaitTimeout
		if cfg.WaitTimeout > 0 {
			timeout = time.Duration(cfg.WaitTimeout) * time.Millisecond
		}
		waitCtx, cancelWait := context.WithTimeout(ctx, timeout)
		// Absent selector is tolerated: extraction falls back to whatever
		// did render.
		_, _ = page.Context(waitCtx).Element(cfg.WaitSelector)
		cancelWait()
	}

	settle := defaultExtraWait
	if cfg.ExtraWait > 0 {
		settle = time.Duration(cfg.ExtraWait) * time.Millisecond
	}
	select {
	case <-time.After(settle):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}
