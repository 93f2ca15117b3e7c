package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// User agents. Listing pages of consumer sites often vary markup by UA, so
// the scraping adapters present a desktop browser; feed endpoints get the
// honest compact identifier.
const (
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"
	feedUserAgent    = "Mozilla/5.0 (compatible; sitewatch/1.0)"
)

const (
	requestTimeout = 20 * time.Second
	maxRedirects   = 10
)

// noRedirectClient never follows redirects itself; fetchWithRedirects owns
// the hop loop so cookies set on intermediate responses can be carried
// forward.
var noRedirectClient = &http.Client{
	Timeout: requestTimeout,
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

// httpClient is the plain client for endpoints that behave (feeds, APIs).
var httpClient = &http.Client{Timeout: requestTimeout}

// cookieJar accumulates Cookie-header pairs across redirect hops. Some
// origins set a consent or session cookie on the first hop and reject
// subsequent requests without it, which Go's automatic redirect handling
// does not propagate for us on a bare client.
type cookieJar struct {
	pairs []string
}

func (j *cookieJar) absorb(resp *http.Response) {
	for _, sc := range resp.Header.Values("Set-Cookie") {
		if pair, _, _ := strings.Cut(sc, ";"); pair != "" {
			j.pairs = append(j.pairs, pair)
		}
	}
}

func (j *cookieJar) header() string {
	return strings.Join(j.pairs, "; ")
}

// fetchWithRedirects performs a GET with manual redirect following, carrying
// accumulated cookies into each hop. The returned response body is open;
// the caller must close it. Non-2xx terminal responses are returned as-is so
// callers can decide whether that is fatal (first page) or end-of-list.
func fetchWithRedirects(ctx context.Context, rawURL string, headers map[string]string) (*http.Response, error) {
	current := rawURL
	jar := &cookieJar{}

	for hop := 0; hop < maxRedirects; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}
		req.Header.Set("User-Agent", browserUserAgent)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if c := jar.header(); c != "" {
			req.Header.Set("Cookie", c)
		}

		resp, err := noRedirectClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}

		jar.absorb(resp)

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			location := resp.Header.Get("Location")
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if location == "" {
				return nil, fmt.Errorf("%w: redirect without location header", ErrFetch)
			}
			next, err := url.Parse(location)
			if err != nil {
				return nil, fmt.Errorf("%w: bad redirect location %q", ErrFetch, location)
			}
			base, err := url.Parse(current)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrFetch, err)
			}
			current = base.ResolveReference(next).String()
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("%w: too many redirects for %s", ErrFetch, rawURL)
}

// fetchDocument fetches a URL through the redirect loop and parses the body
// as HTML. Non-2xx is ErrFetch.
func fetchDocument(ctx context.Context, rawURL string, headers map[string]string) (*goquery.Document, error) {
	resp, err := fetchWithRedirects(ctx, rawURL, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP %d for %s", ErrFetch, resp.StatusCode, rawURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse HTML: %v", ErrExtraction, err)
	}
	return doc, nil
}

// normalizeURL resolves href against base when it is not already absolute.
func normalizeURL(href, base string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

// originOf returns the scheme://host origin of a URL, or the input on parse
// failure.
func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}
