package parser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWordPress_FetchItemList verifies REST post listing with HTML-stripped fields
func TestWordPress_FetchItemList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "25", r.URL.Query().Get("per_page"))
		fmt.Fprint(w, `[
			{
				"link": "https://blog.example.com/post-1",
				"date": "2024-01-15T10:30:00",
				"title": {"rendered": "Release &#8211; version <em>2.0</em>"},
				"excerpt": {"rendered": "<p>The excerpt text.</p>\n"}
			},
			{
				"link": "",
				"date": "2024-01-10T09:00:00",
				"title": {"rendered": "Linkless post"}
			}
		]`)
	}))
	defer srv.Close()

	cfg, err := DecodeConfig(TypeWordPress, []byte(fmt.Sprintf(
		`{"apiUrl": %q, "perPage": 25}`, srv.URL+"/wp-json/wp/v2/posts")))
	require.NoError(t, err)

	items, err := NewWordPressParser().FetchItemList(context.Background(), srv.URL, cfg)

	require.NoError(t, err)
	require.Len(t, items, 1, "posts without a link are dropped")
	assert.Equal(t, "Release – version 2.0", items[0].Title)
	assert.Equal(t, "The excerpt text.", items[0].Snippet)
	require.NotNil(t, items[0].PublishedAt)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), *items[0].PublishedAt)
}

// TestWordPress_DefaultPerPage verifies the page-size default applies
func TestWordPress_DefaultPerPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	cfg, err := DecodeConfig(TypeWordPress, []byte(fmt.Sprintf(`{"apiUrl": %q}`, srv.URL+"/wp-json/wp/v2/posts")))
	require.NoError(t, err)

	items, err := NewWordPressParser().FetchItemList(context.Background(), srv.URL, cfg)

	require.NoError(t, err)
	assert.Empty(t, items)
}

// TestWordPress_ErrorClassification verifies fetch and decode failures map to
// the sentinel errors
func TestWordPress_ErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/down":
			w.WriteHeader(http.StatusBadGateway)
		case "/html":
			fmt.Fprint(w, `<html>not json</html>`)
		}
	}))
	defer srv.Close()

	p := NewWordPressParser()

	cfg, err := DecodeConfig(TypeWordPress, []byte(fmt.Sprintf(`{"apiUrl": %q}`, srv.URL+"/down")))
	require.NoError(t, err)
	_, err = p.FetchItemList(context.Background(), srv.URL, cfg)
	assert.True(t, errors.Is(err, ErrFetch))

	cfg, err = DecodeConfig(TypeWordPress, []byte(fmt.Sprintf(`{"apiUrl": %q}`, srv.URL+"/html")))
	require.NoError(t, err)
	_, err = p.FetchItemList(context.Background(), srv.URL, cfg)
	assert.True(t, errors.Is(err, ErrExtraction))
}

// TestWordPress_FetchItemContent verifies the post page is used for content,
// not the REST content field
func TestWordPress_FetchItemContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<header>Blog chrome</header>
			<div class="entry-content">Full post body here.</div>
		</body></html>`)
	}))
	defer srv.Close()

	content, err := NewWordPressParser().FetchItemContent(context.Background(), srv.URL+"/post-1")

	require.NoError(t, err)
	assert.Equal(t, "Full post body here.", content.Text)
}

// TestWordPress_StripHTML verifies entity decoding and tag removal
func TestWordPress_StripHTML(t *testing.T) {
	p := NewWordPressParser()

	assert.Equal(t, "A & B", p.stripHTML("A &amp; B"))
	assert.Equal(t, "text", p.stripHTML("<script>alert(1)</script><b>text</b>"))
	assert.Equal(t, "", p.stripHTML("   "))
}
