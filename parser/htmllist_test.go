package parser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func htmlListConfig(t *testing.T, raw string) *Config {
	t.Helper()
	cfg, err := DecodeConfig(TypeHTMLList, []byte(raw))
	require.NoError(t, err)
	return cfg
}

// TestHTMLList_BasicListing verifies selector-driven item extraction
func TestHTMLList_BasicListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><ul class="news">
			<li><a href="/news/1"><span class="ttl">First release</span></a><span class="date">2024.01.15</span></li>
			<li><a href="/news/2"><span class="ttl">Second release</span></a><span class="date">2024.01.10</span></li>
			<li><a href="/news/3"><span class="ttl">Third release</span></a><span class="date">2024.01.05</span></li>
		</ul></body></html>`)
	}))
	defer srv.Close()

	cfg := htmlListConfig(t, fmt.Sprintf(`{
		"baseUrl": %q,
		"list": {
			"itemSelector": "ul.news > li",
			"linkSelector": "a",
			"titleSelector": ".ttl",
			"dateSelector": ".date"
		}
	}`, srv.URL))

	items, err := NewHTMLListParser().FetchItemList(context.Background(), srv.URL+"/news/", cfg)

	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, srv.URL+"/news/1", items[0].ExternalURL)
	assert.Equal(t, "First release", items[0].Title)
	require.NotNil(t, items[0].PublishedAt)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), *items[0].PublishedAt)
}

// TestHTMLList_SelfLinkSelector verifies "self" treats the item node as the anchor
func TestHTMLList_SelfLinkSelector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div class="list">
			<a class="row" href="/press/10">Quarterly results announced</a>
			<a class="row" href="/press/11">New office opening</a>
		</div></body></html>`)
	}))
	defer srv.Close()

	cfg := htmlListConfig(t, fmt.Sprintf(`{
		"baseUrl": %q,
		"list": {"itemSelector": "a.row", "linkSelector": "self"}
	}`, srv.URL))

	items, err := NewHTMLListParser().FetchItemList(context.Background(), srv.URL, cfg)

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Quarterly results announced", items[0].Title)
	assert.Equal(t, srv.URL+"/press/10", items[0].ExternalURL)
}

// TestHTMLList_SkipPatternsAndFilter verifies URL filtering rules
func TestHTMLList_SkipPatternsAndFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><ul>
			<li><a href="/news/1">Kept item</a></li>
			<li><a href="/category/all">Category link</a></li>
			<li><a href="/news/archive/2023">Archived item</a></li>
			<li><a href="/about">About page</a></li>
		</ul></body></html>`)
	}))
	defer srv.Close()

	cfg := htmlListConfig(t, fmt.Sprintf(`{
		"baseUrl": %q,
		"list": {
			"itemSelector": "ul > li",
			"linkSelector": "a",
			"linkFilterPattern": "/news/",
			"skipPatterns": ["/archive/"]
		}
	}`, srv.URL))

	items, err := NewHTMLListParser().FetchItemList(context.Background(), srv.URL, cfg)

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Kept item", items[0].Title)
}

// TestHTMLList_DeduplicatesURLs verifies repeated hrefs yield one item
func TestHTMLList_DeduplicatesURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><ul>
			<li><a href="/news/1">Headline</a></li>
			<li><a href="/news/1">Headline repeated</a></li>
		</ul></body></html>`)
	}))
	defer srv.Close()

	cfg := htmlListConfig(t, fmt.Sprintf(`{
		"baseUrl": %q,
		"list": {"itemSelector": "li", "linkSelector": "a"}
	}`, srv.URL))

	items, err := NewHTMLListParser().FetchItemList(context.Background(), srv.URL, cfg)

	require.NoError(t, err)
	assert.Len(t, items, 1)
}

// TestHTMLList_QueryPagination verifies page 1 is the raw URL and later pages
// carry the page parameter
func TestHTMLList_QueryPagination(t *testing.T) {
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.String())
		page := r.URL.Query().Get("p")
		if page == "3" {
			fmt.Fprint(w, `<html><body><ul></ul></body></html>`)
			return
		}
		fmt.Fprintf(w, `<html><body><ul><li><a href="/news/%s-1">Item on page %s</a></li></ul></body></html>`, page, page)
	}))
	defer srv.Close()

	cfg := htmlListConfig(t, fmt.Sprintf(`{
		"baseUrl": %q,
		"list": {"itemSelector": "li", "linkSelector": "a"},
		"pagination": {"type": "query", "param": "p", "maxPages": 5}
	}`, srv.URL))

	items, err := NewHTMLListParser().FetchItemList(context.Background(), srv.URL+"/news", cfg)

	require.NoError(t, err)
	assert.Len(t, items, 2, "pages 1 and 2 have items, page 3 ends the walk")
	require.GreaterOrEqual(t, len(requested), 3)
	assert.Equal(t, "/news", requested[0], "first page must be the raw source URL")
	assert.Contains(t, requested[1], "p=2")
	assert.Contains(t, requested[2], "p=3")
}

// TestHTMLList_PaginationHonorsMaxPages verifies the page walk is bounded even
// when every page has items
func TestHTMLList_PaginationHonorsMaxPages(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprintf(w, `<html><body><ul><li><a href="/news/%d">Item %d</a></li></ul></body></html>`, hits, hits)
	}))
	defer srv.Close()

	cfg := htmlListConfig(t, fmt.Sprintf(`{
		"baseUrl": %q,
		"list": {"itemSelector": "li", "linkSelector": "a"},
		"pagination": {"type": "query", "param": "page", "maxPages": 3}
	}`, srv.URL))

	items, err := NewHTMLListParser().FetchItemList(context.Background(), srv.URL, cfg)

	require.NoError(t, err)
	assert.Equal(t, 3, hits, "must stop at maxPages")
	assert.Len(t, items, 3)
}

// TestHTMLList_PathPagination verifies {n} substitution for path-style paging
func TestHTMLList_PathPagination(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/news/":
			fmt.Fprint(w, `<html><body><ul><li><a href="/news/a">Alpha item</a></li></ul></body></html>`)
		case "/news/page/2":
			fmt.Fprint(w, `<html><body><ul><li><a href="/news/b">Beta item</a></li></ul></body></html>`)
		default:
			fmt.Fprint(w, `<html><body><ul></ul></body></html>`)
		}
	}))
	defer srv.Close()

	cfg := htmlListConfig(t, fmt.Sprintf(`{
		"baseUrl": %q,
		"list": {"itemSelector": "li", "linkSelector": "a"},
		"pagination": {"type": "path", "pathPattern": %q, "maxPages": 4}
	}`, srv.URL, srv.URL+"/news/page/{n}"))

	items, err := NewHTMLListParser().FetchItemList(context.Background(), srv.URL+"/news/", cfg)

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Alpha item", items[0].Title)
	assert.Equal(t, "Beta item", items[1].Title)
}

// TestHTMLList_FirstPageErrorIsFatal verifies a failing first page aborts the run
func TestHTMLList_FirstPageErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := htmlListConfig(t, fmt.Sprintf(`{
		"baseUrl": %q,
		"list": {"itemSelector": "li", "linkSelector": "a"}
	}`, srv.URL))

	_, err := NewHTMLListParser().FetchItemList(context.Background(), srv.URL, cfg)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetch))
}

// TestHTMLList_LaterPageErrorEndsWalk verifies a failing later page keeps
// earlier results
func TestHTMLList_LaterPageErrorEndsWalk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if page, _ := strconv.Atoi(r.URL.Query().Get("page")); page >= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `<html><body><ul><li><a href="/news/1">Only item</a></li></ul></body></html>`)
	}))
	defer srv.Close()

	cfg := htmlListConfig(t, fmt.Sprintf(`{
		"baseUrl": %q,
		"list": {"itemSelector": "li", "linkSelector": "a"},
		"pagination": {"type": "query", "param": "page", "maxPages": 5}
	}`, srv.URL))

	items, err := NewHTMLListParser().FetchItemList(context.Background(), srv.URL, cfg)

	require.NoError(t, err)
	assert.Len(t, items, 1)
}

// TestHTMLList_ImageAndDescriptionSnippet verifies the snippet carries the
// listing thumbnail and description
func TestHTMLList_ImageAndDescriptionSnippet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><ul>
			<li>
				<a href="/news/1">Item with thumb</a>
				<img class="thumb" src="/uploads/t1.jpg">
				<p class="desc">Short description</p>
			</li>
		</ul></body></html>`)
	}))
	defer srv.Close()

	cfg := htmlListConfig(t, fmt.Sprintf(`{
		"baseUrl": %q,
		"list": {
			"itemSelector": "li",
			"linkSelector": "a",
			"imageSelector": "img.thumb",
			"descriptionSelector": ".desc"
		}
	}`, srv.URL))

	items, err := NewHTMLListParser().FetchItemList(context.Background(), srv.URL, cfg)

	require.NoError(t, err)
	require.Len(t, items, 1)
	imageURL, description := DecodeSnippetImage(items[0].Snippet)
	assert.Equal(t, srv.URL+"/uploads/t1.jpg", imageURL)
	assert.Equal(t, "Short description", description)
}

// TestHTMLList_ItemsWithoutLinksSkipped verifies link-less nodes are dropped
func TestHTMLList_ItemsWithoutLinksSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><ul>
			<li>No link here</li>
			<li><a href="/news/1">Real item</a></li>
			<li><a href="">Empty href</a></li>
		</ul></body></html>`)
	}))
	defer srv.Close()

	cfg := htmlListConfig(t, fmt.Sprintf(`{
		"baseUrl": %q,
		"list": {"itemSelector": "li", "linkSelector": "a"}
	}`, srv.URL))

	items, err := NewHTMLListParser().FetchItemList(context.Background(), srv.URL, cfg)

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Real item", items[0].Title)
}

// TestHTMLList_FetchItemContent verifies detail-page text and image extraction
func TestHTMLList_FetchItemContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head>
			<meta property="og:image" content="/uploads/detail.jpg">
		</head><body>
			<nav>Menu</nav>
			<article>The full announcement body.</article>
		</body></html>`)
	}))
	defer srv.Close()

	content, err := NewHTMLListParser().FetchItemContent(context.Background(), srv.URL+"/news/1")

	require.NoError(t, err)
	assert.Equal(t, "The full announcement body.", content.Text)
	assert.Equal(t, srv.URL+"/uploads/detail.jpg", content.ImageURL)
}
