// Package detect proposes a parser type and configuration for a bare URL.
// Classification runs strictly ordered short-circuiting checks; the result is
// advisory input for a human reviewing source onboarding, so the detector
// always returns something usable rather than failing on ambiguous pages.
package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ymurata/sitewatch/parser"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

// Confidence is the detector's self-assessed reliability tier.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Result is a proposed source configuration. ParserConfig is the wire-format
// document for the proposed parser type, ready to validate with
// parser.DecodeConfig and store on a source.
type Result struct {
	ParserType   string          `json:"parserType"`
	ParserConfig json.RawMessage `json:"parserConfig"`
	Confidence   Confidence      `json:"confidence"`
	Description  string          `json:"description"`
	SiteName     string          `json:"siteName,omitempty"`
}

var (
	feedExtensionRe = regexp.MustCompile(`(?i)\.(xml|rss|atom)(\?|$)`)
	feedPathRe      = regexp.MustCompile(`(?i)/feed/?$`)
)

// Detector classifies URLs. It performs live fetches but never writes
// durable state.
type Detector struct {
	client *http.Client
}

// New creates a detector with a bounded-timeout HTTP client.
func New() *Detector {
	return &Detector{client: &http.Client{Timeout: 20 * time.Second}}
}

// Detect classifies the URL. An error is returned only when the URL is
// unparseable or the page fetch itself fails; an unrecognizable page yields a
// low-confidence generic configuration instead.
func (d *Detector) Detect(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid url %q", parser.ErrConfig, rawURL)
	}
	origin := u.Scheme + "://" + u.Host

	// 1. Channel-video platform by host.
	host := strings.TrimPrefix(u.Hostname(), "www.")
	if host == "youtube.com" || host == "youtu.be" || strings.HasSuffix(host, ".youtube.com") {
		return &Result{
			ParserType:   parser.TypeYouTube,
			ParserConfig: mustJSON(parser.ChannelConfig{}),
			Confidence:   ConfidenceHigh,
			Description:  "YouTube チャンネル（RSS フィード経由）",
			SiteName:     nameFromDomain(u),
		}, nil
	}

	// 2. Feed by URL shape, no fetch needed.
	if feedExtensionRe.MatchString(rawURL) || feedPathRe.MatchString(u.Path) {
		return &Result{
			ParserType:   parser.TypeRSS,
			ParserConfig: mustJSON(parser.FeedConfig{}),
			Confidence:   ConfidenceHigh,
			Description:  "RSS/Atom フィード",
			SiteName:     nameFromDomain(u),
		}, nil
	}

	// 3. Fetch the page.
	body, contentType, err := d.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	// 3a. JSON endpoint: propose a generic mapping to be refined by hand.
	if strings.Contains(contentType, "application/json") {
		cfg := parser.APIJSONConfig{
			BaseURL: origin,
			API:     parser.APIRules{URL: rawURL, Method: http.MethodGet, ResponseType: "json"},
			Mapping: parser.FieldMap{URL: "url", Title: "title"},
			Content: parser.ContentRules{Selectors: []string{"article", "main", ".content"}},
		}
		return &Result{
			ParserType:   parser.TypeAPIJSON,
			ParserConfig: mustJSON(cfg),
			Confidence:   ConfidenceMedium,
			Description:  "JSON API レスポンス検出",
			SiteName:     nameFromDomain(u),
		}, nil
	}

	// 3b. Feed by response body.
	trimmed := strings.TrimSpace(body)
	if strings.Contains(contentType, "xml") || strings.HasPrefix(trimmed, "<?xml") ||
		strings.Contains(body, "<rss") || strings.Contains(body, "<feed") {
		return &Result{
			ParserType:   parser.TypeRSS,
			ParserConfig: mustJSON(parser.FeedConfig{}),
			Confidence:   ConfidenceHigh,
			Description:  "RSS/Atom フィード",
			SiteName:     nameFromDomain(u),
		}, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse page: %v", parser.ErrExtraction, err)
	}
	siteName := siteNameFromDoc(doc, u)

	// 4. WordPress fingerprint with REST probes.
	if r := d.detectWordPress(ctx, doc, origin); r != nil {
		r.SiteName = siteName
		return r, nil
	}

	// 5. Feed advertised via <link rel="alternate">.
	if rssLink := firstAttr(doc, `link[type="application/rss+xml"], link[type="application/atom+xml"]`, "href"); rssLink != "" {
		rssURL := rssLink
		if !strings.HasPrefix(rssURL, "http") {
			rssURL = resolveRef(origin, rssLink)
		}
		return &Result{
			ParserType:   parser.TypeRSS,
			ParserConfig: mustJSON(parser.FeedConfig{RSSURL: rssURL}),
			Confidence:   ConfidenceHigh,
			Description:  "RSS フィード検出: " + rssURL,
			SiteName:     siteName,
		}, nil
	}

	// 6. Selector inference over the listing markup.
	r := inferListConfig(doc, origin)
	r.SiteName = siteName
	return r, nil
}

// fetch downloads the page following redirects and returns body text and
// content type.
func (d *Detector) fetch(ctx context.Context, rawURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", parser.ErrFetch, err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", parser.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", fmt.Errorf("%w: HTTP %d for %s", parser.ErrFetch, resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", parser.ErrFetch, err)
	}
	return string(body), resp.Header.Get("Content-Type"), nil
}

// wpPostTypes are the REST collections probed in order; the first returning a
// non-empty array wins.
var wpPostTypes = []string{"posts", "blog", "news", "articles"}

// detectWordPress fingerprints a WordPress install (generator meta or
// characteristic asset paths) and probes its REST collections. Returns nil
// when the page is not WordPress or no collection answers.
func (d *Detector) detectWordPress(ctx context.Context, doc *goquery.Document, origin string) *Result {
	generator, _ := doc.Find(`meta[name="generator"]`).Attr("content")
	isWP := strings.Contains(strings.ToLower(generator), "wordpress") ||
		doc.Find(`link[href*="wp-content"]`).Length() > 0 ||
		doc.Find(`script[src*="wp-includes"]`).Length() > 0

	if !isWP {
		return nil
	}

	apiBase, _ := doc.Find(`link[rel="https://api.w.org/"]`).Attr("href")
	if apiBase == "" {
		apiBase = origin + "/wp-json/wp/v2"
	}
	apiBase = strings.TrimSuffix(apiBase, "/")

	for _, postType := range wpPostTypes {
		if !d.probeCollection(ctx, apiBase+"/"+postType+"?per_page=1") {
			continue
		}
		cfg := parser.WordPressConfig{
			APIURL:  apiBase + "/" + postType,
			PerPage: 100,
			Content: parser.ContentRules{
				Selectors: []string{".entry-content", ".post-content", "article", "main"},
			},
		}
		return &Result{
			ParserType:   parser.TypeWordPress,
			ParserConfig: mustJSON(cfg),
			Confidence:   ConfidenceHigh,
			Description:  fmt.Sprintf("WordPress REST API 検出 (%s)", postType),
		}
	}
	return nil
}

// probeCollection reports whether the endpoint returns a non-empty JSON array.
func (d *Detector) probeCollection(ctx context.Context, probeURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}

	var arr []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&arr); err != nil {
		return false
	}
	return len(arr) > 0
}

func firstAttr(doc *goquery.Document, selector, attr string) string {
	v, _ := doc.Find(selector).First().Attr(attr)
	return strings.TrimSpace(v)
}

func resolveRef(origin, ref string) string {
	base, err := url.Parse(origin)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}

// mustJSON marshals a config struct built in-process; these shapes cannot
// fail to encode.
func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
