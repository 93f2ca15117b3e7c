// Package parser turns heterogeneous remote sources (feeds, listing pages,
// JSON APIs, WordPress installs, JS-rendered pages) into normalized candidate
// items and, on demand, full article content.
package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for the extraction taxonomy. Adapters wrap these with
// fmt.Errorf("%w: ...") so callers can classify failures with errors.Is.
var (
	// ErrFetch indicates a network failure or a non-2xx origin response.
	ErrFetch = errors.New("fetch failed")
	// ErrExtraction indicates the page was fetched but no structural match
	// was found.
	ErrExtraction = errors.New("extraction failed")
	// ErrConfig indicates an unknown parser type or a malformed configuration
	// document. Not retryable: it is a data-entry problem.
	ErrConfig = errors.New("invalid parser configuration")
)

// Item is one discovered entry during list extraction, before novelty
// filtering. ExternalURL is the global deduplication key.
type Item struct {
	ExternalURL string     `json:"external_url"`
	Title       string     `json:"title"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Snippet     string     `json:"snippet,omitempty"`
}

// Content is the result of content extraction for a single item.
type Content struct {
	Text     string `json:"text"`
	ImageURL string `json:"image_url,omitempty"`
}

// Parser is the contract every source adapter implements.
//
// FetchItemList fails with ErrFetch when the origin is unreachable or
// returns a non-2xx status; an empty slice is a legitimate result, not an
// error. FetchItemContent fails with ErrFetch or ErrExtraction; callers must
// treat those as recoverable per item.
type Parser interface {
	FetchItemList(ctx context.Context, url string, cfg *Config) ([]Item, error)
	FetchItemContent(ctx context.Context, url string) (*Content, error)
}

// Parser type tags. These are the wire values stored on a source and
// produced by detection.
const (
	TypeRSS       = "rss"
	TypeYouTube   = "youtube"
	TypeHTMLList  = "html-list"
	TypeAPIJSON   = "api-json"
	TypeWordPress = "wordpress"
	TypeRendered  = "rendered-list"
)

// Registry maps parser type tags to adapter instances. The table is explicit
// and compiled in; additional adapters may be registered at startup via
// Register. Lookup fails closed: an unknown type is an error, never a guess.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry builds a registry with the six built-in adapters.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	r.Register(TypeRSS, NewRSSParser())
	r.Register(TypeYouTube, NewYouTubeParser())
	r.Register(TypeHTMLList, NewHTMLListParser())
	r.Register(TypeAPIJSON, NewAPIJSONParser())
	r.Register(TypeWordPress, NewWordPressParser())
	r.Register(TypeRendered, NewRenderedParser(nil))
	return r
}

// Register adds or replaces an adapter under the given type tag.
func (r *Registry) Register(parserType string, p Parser) {
	r.parsers[parserType] = p
}

// Get resolves the adapter for a parser type. When the type is unknown it
// falls back to the lowercased site name, which lets site-specific adapters
// registered at startup be addressed by name. Unknown both ways is ErrConfig.
func (r *Registry) Get(parserType, siteName string) (Parser, error) {
	if p, ok := r.parsers[parserType]; ok {
		return p, nil
	}
	if p, ok := r.parsers[baseType(parserType)]; ok {
		return p, nil
	}
	if siteName != "" {
		if p, ok := r.parsers[strings.ToLower(siteName)]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown parser type %q", ErrConfig, parserType)
}
