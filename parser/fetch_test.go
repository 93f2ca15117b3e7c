package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFetchWithRedirects_FollowsChain verifies redirect hops are followed
func TestFetchWithRedirects_FollowsChain(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/start":
			http.Redirect(w, r, srv.URL+"/middle", http.StatusFound)
		case "/middle":
			http.Redirect(w, r, "/end", http.StatusMovedPermanently)
		case "/end":
			fmt.Fprint(w, "arrived")
		}
	}))
	defer srv.Close()

	resp, err := fetchWithRedirects(context.Background(), srv.URL+"/start", nil)

	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "arrived", string(body))
}

// TestFetchWithRedirects_CarriesCookies verifies cookies set on intermediate
// hops reach the final request
func TestFetchWithRedirects_CarriesCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gate":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc123"})
			http.Redirect(w, r, "/list", http.StatusFound)
		case "/list":
			c, err := r.Cookie("session")
			if err != nil || c.Value != "abc123" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			fmt.Fprint(w, "ok")
		}
	}))
	defer srv.Close()

	resp, err := fetchWithRedirects(context.Background(), srv.URL+"/gate", nil)

	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "cookie from the redirect hop should be forwarded")
}

// TestFetchWithRedirects_TooManyHops verifies redirect loops fail with ErrFetch
func TestFetchWithRedirects_TooManyHops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	}))
	defer srv.Close()

	_, err := fetchWithRedirects(context.Background(), srv.URL+"/loop", nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetch))
}

// TestFetchWithRedirects_CustomHeaders verifies configured headers are sent
func TestFetchWithRedirects_CustomHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Requested-With") != "XMLHttpRequest" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	resp, err := fetchWithRedirects(context.Background(), srv.URL, map[string]string{
		"X-Requested-With": "XMLHttpRequest",
	})

	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestFetchDocument_Non2xxIsFetchError verifies error classification for bad statuses
func TestFetchDocument_Non2xxIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := fetchDocument(context.Background(), srv.URL, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetch))
}

// TestFetchDocument_ParsesHTML verifies a successful fetch yields a queryable document
func TestFetchDocument_ParsesHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><h1>Hello</h1></body></html>`)
	}))
	defer srv.Close()

	doc, err := fetchDocument(context.Background(), srv.URL, nil)

	require.NoError(t, err)
	assert.Equal(t, "Hello", doc.Find("h1").Text())
}

// TestNormalizeURL verifies relative and protocol-relative resolution
func TestNormalizeURL(t *testing.T) {
	base := "https://example.com/news/"

	assert.Equal(t, "https://example.com/news/article1", normalizeURL("article1", base))
	assert.Equal(t, "https://example.com/press/1", normalizeURL("/press/1", base))
	assert.Equal(t, "https://other.com/x", normalizeURL("https://other.com/x", base))
	assert.Equal(t, "https://cdn.example.com/a", normalizeURL("//cdn.example.com/a", base))
}

// TestOriginOf verifies the scheme://host origin extraction
func TestOriginOf(t *testing.T) {
	assert.Equal(t, "https://example.com", originOf("https://example.com/news/list?page=2"))
	assert.Equal(t, "http://example.com:8080", originOf("http://example.com:8080/x"))
	assert.Equal(t, "not a url", originOf("not a url"))
}
