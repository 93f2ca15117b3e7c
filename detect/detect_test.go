package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ymurata/sitewatch/parser"
)

// TestDetect_YouTubeHost verifies the channel platform check wins without any fetch
func TestDetect_YouTubeHost(t *testing.T) {
	d := New()

	for _, u := range []string{
		"https://www.youtube.com/@somechannel",
		"https://youtube.com/channel/UCabc",
		"https://youtu.be/dQw4w9WgXcQ",
	} {
		r, err := d.Detect(context.Background(), u)
		require.NoError(t, err, u)
		assert.Equal(t, parser.TypeYouTube, r.ParserType, u)
		assert.Equal(t, ConfidenceHigh, r.Confidence, u)
	}
}

// TestDetect_FeedURLShape verifies feed-looking URLs resolve without a fetch
func TestDetect_FeedURLShape(t *testing.T) {
	d := New()

	for _, u := range []string{
		"https://example.com/index.xml",
		"https://example.com/feed.rss?lang=ja",
		"https://example.com/updates.atom",
		"https://example.com/blog/feed/",
		"https://example.com/feed",
	} {
		r, err := d.Detect(context.Background(), u)
		require.NoError(t, err, u)
		assert.Equal(t, parser.TypeRSS, r.ParserType, u)
		assert.Equal(t, ConfidenceHigh, r.Confidence, u)
	}
}

// TestDetect_JSONContentType verifies a JSON endpoint yields api-json at
// medium confidence with a generic mapping
func TestDetect_JSONContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		fmt.Fprint(w, `{"results": []}`)
	}))
	defer srv.Close()

	r, err := New().Detect(context.Background(), srv.URL+"/api/list")

	require.NoError(t, err)
	assert.Equal(t, parser.TypeAPIJSON, r.ParserType)
	assert.Equal(t, ConfidenceMedium, r.Confidence)

	cfg, err := parser.DecodeConfig(r.ParserType, r.ParserConfig)
	require.NoError(t, err, "proposed config must validate")
	assert.Equal(t, srv.URL+"/api/list", cfg.APIJSON.API.URL)
	assert.Equal(t, "url", cfg.APIJSON.Mapping.URL)
	assert.Equal(t, "title", cfg.APIJSON.Mapping.Title)
}

// TestDetect_XMLBody verifies feed markup in the response body is recognized
func TestDetect_XMLBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, `<?xml version="1.0"?><rss version="2.0"><channel></channel></rss>`)
	}))
	defer srv.Close()

	r, err := New().Detect(context.Background(), srv.URL+"/some-endpoint")

	require.NoError(t, err)
	assert.Equal(t, parser.TypeRSS, r.ParserType)
	assert.Equal(t, ConfidenceHigh, r.Confidence)
}

// TestDetect_WordPressProbe verifies the fingerprint plus a successful posts
// probe yields wordpress at high confidence with the resolved API URL
func TestDetect_WordPressProbe(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprintf(w, `<html><head>
				<meta name="generator" content="WordPress 6.4">
				<link rel="https://api.w.org/" href="%s/wp-json/wp/v2">
				<title>Some Blog</title>
			</head><body></body></html>`, srv.URL)
		case "/wp-json/wp/v2/posts":
			assert.Equal(t, "1", r.URL.Query().Get("per_page"))
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `[{"id": 1}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	r, err := New().Detect(context.Background(), srv.URL+"/")

	require.NoError(t, err)
	assert.Equal(t, parser.TypeWordPress, r.ParserType)
	assert.Equal(t, ConfidenceHigh, r.Confidence)

	cfg, err := parser.DecodeConfig(r.ParserType, r.ParserConfig)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/wp-json/wp/v2/posts", cfg.WordPress.APIURL)
	assert.Equal(t, 100, cfg.WordPress.PerPage)
}

// TestDetect_WordPressProbeFallthrough verifies a fingerprinted page whose
// probes all fail falls through to selector inference
func TestDetect_WordPressProbeFallthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			fmt.Fprint(w, `<html><head>
				<link rel="stylesheet" href="/wp-content/themes/x/style.css">
			</head><body></body></html>`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r, err := New().Detect(context.Background(), srv.URL+"/")

	require.NoError(t, err)
	assert.Equal(t, parser.TypeHTMLList, r.ParserType, "no REST collection answered, so WordPress must not be proposed")
	assert.Equal(t, ConfidenceLow, r.Confidence)
}

// TestDetect_AlternateFeedLink verifies <link rel=alternate> discovery carries
// the resolved feed URL in the config
func TestDetect_AlternateFeedLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head>
			<link rel="alternate" type="application/rss+xml" href="/news/rss.xml">
			<title>Example Site</title>
		</head><body></body></html>`)
	}))
	defer srv.Close()

	r, err := New().Detect(context.Background(), srv.URL+"/news/")

	require.NoError(t, err)
	assert.Equal(t, parser.TypeRSS, r.ParserType)
	assert.Equal(t, ConfidenceHigh, r.Confidence)

	cfg, err := parser.DecodeConfig(r.ParserType, r.ParserConfig)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/news/rss.xml", cfg.Feed.RSSURL)
}

// TestDetect_SelectorInference verifies a well-structured list page yields a
// high-confidence html-list config
func TestDetect_SelectorInference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>News 一覧 | Example Corp</title></head><body>
			<ul class="news-list">
				<li>
					<a href="/news/1"><h3>First announcement headline</h3></a>
					<span class="date">2024.01.15</span>
					<p>A summary of the first announcement for readers.</p>
				</li>
				<li>
					<a href="/news/2"><h3>Second announcement headline</h3></a>
					<span class="date">2024.01.10</span>
					<p>A summary of the second announcement for readers.</p>
				</li>
				<li>
					<a href="/news/3"><h3>Third announcement headline</h3></a>
					<span class="date">2024.01.05</span>
					<p>A summary of the third announcement for readers.</p>
				</li>
				<li>
					<a href="/news/4"><h3>Fourth announcement headline</h3></a>
					<span class="date">2024.01.01</span>
					<p>A summary of the fourth announcement for readers.</p>
				</li>
			</ul>
		</body></html>`)
	}))
	defer srv.Close()

	r, err := New().Detect(context.Background(), srv.URL+"/news/")

	require.NoError(t, err)
	assert.Equal(t, parser.TypeHTMLList, r.ParserType)
	assert.Equal(t, ConfidenceHigh, r.Confidence)
	assert.Equal(t, "Example Corp", r.SiteName)

	cfg, err := parser.DecodeConfig(r.ParserType, r.ParserConfig)
	require.NoError(t, err)
	assert.Equal(t, "ul.news-list > li", cfg.HTMLList.List.ItemSelector)
	assert.NotEmpty(t, cfg.HTMLList.List.TitleSelector)
	assert.NotEmpty(t, cfg.HTMLList.List.DateSelector)
}

// TestDetect_GenericFallback verifies an unrecognizable page still yields a
// usable low-confidence config
func TestDetect_GenericFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Plain page</title></head><body><p>Nothing list-like.</p></body></html>`)
	}))
	defer srv.Close()

	r, err := New().Detect(context.Background(), srv.URL+"/")

	require.NoError(t, err)
	assert.Equal(t, parser.TypeHTMLList, r.ParserType)
	assert.Equal(t, ConfidenceLow, r.Confidence)

	_, err = parser.DecodeConfig(r.ParserType, r.ParserConfig)
	assert.NoError(t, err, "even the fallback config must validate")
}

// TestDetect_InvalidURL verifies unparseable input is rejected
func TestDetect_InvalidURL(t *testing.T) {
	_, err := New().Detect(context.Background(), "not-a-url")

	assert.Error(t, err)
}

// TestDetect_FetchFailure verifies an unreachable page is a fetch error, not a
// silent fallback
func TestDetect_FetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New().Detect(context.Background(), srv.URL+"/")

	require.Error(t, err)
	assert.ErrorIs(t, err, parser.ErrFetch)
}

// TestDetect_ResultJSONShape verifies the wire shape of a detection result
func TestDetect_ResultJSONShape(t *testing.T) {
	r := &Result{
		ParserType:   parser.TypeRSS,
		ParserConfig: json.RawMessage(`{}`),
		Confidence:   ConfidenceHigh,
		Description:  "RSS/Atom フィード",
		SiteName:     "example",
	}

	b, err := json.Marshal(r)

	require.NoError(t, err)
	assert.JSONEq(t, `{
		"parserType": "rss",
		"parserConfig": {},
		"confidence": "high",
		"description": "RSS/Atom フィード",
		"siteName": "example"
	}`, string(b))
}
