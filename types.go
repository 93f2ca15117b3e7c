// Package sitewatch crawls configured news and product sites, extracts
// article listings and bodies through pluggable site parsers, and persists
// deduplicated articles with generated Japanese summaries.
package sitewatch

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Source is a registered crawl target. ParserType selects the adapter and
// ParserConfig carries the adapter-specific configuration as raw JSON, decoded
// on use via parser.DecodeConfig.
type Source struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	URL          string          `json:"url"`
	ParserType   string          `json:"parserType"`
	ParserConfig json.RawMessage `json:"parserConfig,omitempty"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Article is a persisted crawl result. ExternalURL is the dedup key: a URL is
// stored at most once across all crawl runs. Category is "news" or "product";
// IsNew marks articles not yet surfaced to a reader.
type Article struct {
	ID          uuid.UUID  `json:"id"`
	SourceID    uuid.UUID  `json:"sourceId"`
	Title       string     `json:"title"`
	ExternalURL string     `json:"externalUrl"`
	Content     string     `json:"content,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	ImageURL    string     `json:"imageUrl,omitempty"`
	Category    string     `json:"category"`
	IsNew       bool       `json:"isNew"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Article categories.
const (
	CategoryNews    = "news"
	CategoryProduct = "product"
)

// CrawlLog records the outcome of one crawl run over one source.
type CrawlLog struct {
	ID            uuid.UUID `json:"id"`
	SourceID      uuid.UUID `json:"sourceId"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
	DurationMS    int64     `json:"durationMs"`
	ArticlesFound int       `json:"articlesFound"`
	NewArticles   int       `json:"newArticles"`
	Status        string    `json:"status"` // "success", "partial" or "error"
	Errors        string    `json:"errors,omitempty"`
}

// CrawlResult is the in-memory summary of a single-source crawl, returned to
// callers and streamed to progress consumers.
type CrawlResult struct {
	ArticlesFound int      `json:"articlesFound"`
	NewArticles   int      `json:"newArticles"`
	Errors        []string `json:"errors,omitempty"`
	Status        string   `json:"status"`
}

// Crawl run statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"
)

// ProgressEvent is emitted on the optional progress channel during a crawl
// run. Type is one of start, progress, site_done, site_error or done.
type ProgressEvent struct {
	Type    string       `json:"type"`
	Site    string       `json:"site,omitempty"`
	Current int          `json:"current,omitempty"`
	Total   int          `json:"total,omitempty"`
	Message string       `json:"message,omitempty"`
	Result  *CrawlResult `json:"result,omitempty"`
}
