package detect

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

// TestSiteName_InferenceOrder covers the og:site_name → application-name →
// title → domain fallback chain
func TestSiteName_InferenceOrder(t *testing.T) {
	pageURL := mustURL(t, "https://www.example.co.jp/news/")

	testCases := []struct {
		name string
		html string
		want string
	}{
		{
			name: "og site name wins",
			html: `<head><meta property="og:site_name" content="Example Corp"><title>News | Other</title></head>`,
			want: "Example Corp",
		},
		{
			name: "application name second",
			html: `<head><meta name="application-name" content="ExampleApp"><title>News | Other</title></head>`,
			want: "ExampleApp",
		},
		{
			name: "title pipe separator trailing segment",
			html: `<head><title>お知らせ一覧 | 株式会社サンプル</title></head>`,
			want: "株式会社サンプル",
		},
		{
			name: "title dash separator",
			html: `<head><title>News - Example Inc</title></head>`,
			want: "Example Inc",
		},
		{
			name: "short whole title",
			html: `<head><title>Example News</title></head>`,
			want: "Example News",
		},
		{
			name: "domain fallback",
			html: `<head></head>`,
			want: "example.co",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			doc := docFrom(t, "<html>"+tc.html+"<body></body></html>")
			assert.Equal(t, tc.want, siteNameFromDoc(doc, pageURL))
		})
	}
}

// TestSiteName_OverlongSeparatorSegment verifies an unusable trailing segment
// falls through to the next rule
func TestSiteName_OverlongSeparatorSegment(t *testing.T) {
	long := "A very long site name segment that certainly exceeds the forty character limit"
	doc := docFrom(t, `<html><head><title>Page | `+long+`</title></head><body></body></html>`)

	got := siteNameFromDoc(doc, mustURL(t, "https://news.example.com/"))

	assert.Equal(t, "news.example", got, "overlong segment and overlong title fall back to the domain")
}

// TestNameFromDomain verifies www stripping and TLD removal
func TestNameFromDomain(t *testing.T) {
	assert.Equal(t, "example", nameFromDomain(mustURL(t, "https://www.example.com/x")))
	assert.Equal(t, "news.example", nameFromDomain(mustURL(t, "https://news.example.com/")))
	assert.Equal(t, "localhost", nameFromDomain(mustURL(t, "http://localhost:8080/")))
}
