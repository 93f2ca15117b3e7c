package sitewatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ymurata/sitewatch/parser"
)

const (
	// defaultMaxNewPerRun bounds how many novel articles a single run will
	// process for one source, keeping first crawls of large archives cheap.
	defaultMaxNewPerRun = 20

	// defaultFetchDelay is the politeness pause between article fetches
	// against the same site.
	defaultFetchDelay = 2 * time.Second

	// summaryFallback is stored when summary generation fails. Crawling
	// never fails because the summarizer is down.
	summaryFallback = "要約の生成に失敗しました。"

	// maxStoredContentRunes caps article content at rest.
	maxStoredContentRunes = 50000
)

// Summarizer generates a short Japanese summary for an article or product.
// Satisfied by summarize.Client.
type Summarizer interface {
	Summarize(ctx context.Context, title, content string, product bool) (string, error)
}

// Crawler runs crawl cycles: it lists items through the source's parser,
// filters out already-stored URLs, fetches and summarizes the novel ones, and
// records a crawl log per source.
type Crawler struct {
	store      *Store
	registry   *parser.Registry
	summarizer Summarizer
	logger     *zap.Logger

	// MaxNewPerRun caps novel articles processed per source per run.
	MaxNewPerRun int
	// FetchDelay is slept between consecutive article fetches.
	FetchDelay time.Duration
}

// NewCrawler builds a crawler with default tunables. summarizer may be nil,
// in which case articles are stored with the fallback summary.
func NewCrawler(store *Store, registry *parser.Registry, summarizer Summarizer, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		store:        store,
		registry:     registry,
		summarizer:   summarizer,
		logger:       logger,
		MaxNewPerRun: defaultMaxNewPerRun,
		FetchDelay:   defaultFetchDelay,
	}
}

// CrawlSource crawls a single source and records a crawl log. The returned
// result mirrors the log. Per-item failures are collected and do not stop the
// run; only a failure to fetch the item list aborts it. events may be nil; a
// slow or departed consumer never blocks the crawl.
func (c *Crawler) CrawlSource(ctx context.Context, source *Source, events chan<- ProgressEvent) (*CrawlResult, error) {
	startedAt := time.Now()
	result := &CrawlResult{Status: StatusSuccess}

	err := c.crawlItems(ctx, source, events, result)
	if err != nil {
		result.Status = StatusError
		result.Errors = append(result.Errors, err.Error())
		c.logger.Warn("crawl failed",
			zap.String("source", source.Name),
			zap.Error(err))
	} else if len(result.Errors) > 0 {
		result.Status = StatusPartial
	}

	finishedAt := time.Now()
	log := &CrawlLog{
		SourceID:      source.ID,
		StartedAt:     startedAt,
		FinishedAt:    finishedAt,
		DurationMS:    finishedAt.Sub(startedAt).Milliseconds(),
		ArticlesFound: result.ArticlesFound,
		NewArticles:   result.NewArticles,
		Status:        result.Status,
		Errors:        strings.Join(result.Errors, "; "),
	}
	if logErr := c.store.AppendCrawlLog(log); logErr != nil {
		c.logger.Error("failed to record crawl log",
			zap.String("source", source.Name),
			zap.Error(logErr))
	}

	c.logger.Info("crawl finished",
		zap.String("source", source.Name),
		zap.String("status", result.Status),
		zap.Int("found", result.ArticlesFound),
		zap.Int("new", result.NewArticles),
		zap.Duration("took", log.FinishedAt.Sub(startedAt)))

	return result, err
}

// crawlItems does the actual listing, filtering and per-item processing,
// mutating result as it goes. A returned error means the run produced
// nothing.
func (c *Crawler) crawlItems(ctx context.Context, source *Source, events chan<- ProgressEvent, result *CrawlResult) error {
	cfg, err := parser.DecodeConfig(source.ParserType, source.ParserConfig)
	if err != nil {
		return fmt.Errorf("failed to decode parser config: %w", err)
	}

	p, err := c.registry.Get(source.ParserType, source.Name)
	if err != nil {
		return err
	}

	items, err := p.FetchItemList(ctx, source.URL, cfg)
	if err != nil {
		return fmt.Errorf("failed to fetch item list: %w", err)
	}
	result.ArticlesFound = len(items)

	urls := make([]string, len(items))
	for i, item := range items {
		urls[i] = item.ExternalURL
	}
	// One novelty snapshot for the whole run. Items appearing twice in the
	// same listing are still stored once via UpsertArticleIfAbsent.
	existing, err := c.store.ExistingURLs(urls)
	if err != nil {
		return fmt.Errorf("failed to query existing urls: %w", err)
	}

	var novel []parser.Item
	for _, item := range items {
		if !existing[item.ExternalURL] {
			novel = append(novel, item)
		}
	}
	if c.MaxNewPerRun > 0 && len(novel) > c.MaxNewPerRun {
		c.logger.Info("limiting new articles for this run",
			zap.String("source", source.Name),
			zap.Int("novel", len(novel)),
			zap.Int("limit", c.MaxNewPerRun))
		novel = novel[:c.MaxNewPerRun]
	}

	product := cfg.Product(source.ParserType)
	// Product listings rarely carry dates. Assign descending synthetic dates
	// so list position survives as recency ordering.
	if product {
		now := time.Now()
		for i := range novel {
			if novel[i].PublishedAt == nil {
				t := now.Add(-time.Duration(i) * 24 * time.Hour)
				novel[i].PublishedAt = &t
			}
		}
	}

	for i, item := range novel {
		if i > 0 && c.FetchDelay > 0 {
			select {
			case <-time.After(c.FetchDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		emit(events, ProgressEvent{
			Type:    "progress",
			Site:    source.Name,
			Current: i + 1,
			Total:   len(novel),
			Message: item.Title,
		})

		created, err := c.processItem(ctx, p, source, item, product)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.ExternalURL, err))
			c.logger.Warn("item processed with errors",
				zap.String("source", source.Name),
				zap.String("url", item.ExternalURL),
				zap.Error(err))
		}
		if created {
			result.NewArticles++
		}
	}

	return nil
}

// processItem fetches, summarizes and stores one listing item. Returns true
// when a new article row was created. A content fetch failure is reported as
// the error while the item is still stored from its listing snippet, so runs
// with unreadable article pages end up partial rather than lossy.
func (c *Crawler) processItem(ctx context.Context, p parser.Parser, source *Source, item parser.Item, product bool) (bool, error) {
	snippetImage, snippetText := parser.DecodeSnippetImage(item.Snippet)

	text := ""
	imageURL := ""
	var itemErr error
	content, err := p.FetchItemContent(ctx, item.ExternalURL)
	if err != nil {
		// Fall back to the listing snippet; an unreadable article page
		// should not lose the item.
		itemErr = fmt.Errorf("failed to fetch content: %w", err)
		text = snippetText
		if text == "" {
			text = item.Title
		}
	} else {
		text = content.Text
		imageURL = parser.FilterImageURL(content.ImageURL)
	}
	if imageURL == "" {
		imageURL = parser.FilterImageURL(snippetImage)
	}

	summary := summaryFallback
	if c.summarizer != nil {
		s, err := c.summarizer.Summarize(ctx, item.Title, text, product)
		if err != nil {
			c.logger.Warn("failed to generate summary",
				zap.String("url", item.ExternalURL),
				zap.Error(err))
		} else {
			summary = s
		}
	}

	category := CategoryNews
	if product {
		category = CategoryProduct
	}

	article := &Article{
		SourceID:    source.ID,
		Title:       item.Title,
		ExternalURL: item.ExternalURL,
		Content:     capRunes(text, maxStoredContentRunes),
		Summary:     summary,
		ImageURL:    imageURL,
		Category:    category,
		IsNew:       true,
		PublishedAt: item.PublishedAt,
	}

	created, err := c.store.UpsertArticleIfAbsent(article)
	if err != nil {
		return false, fmt.Errorf("failed to store article: %w", err)
	}

	return created, itemErr
}

// CrawlAll crawls every active source sequentially and returns per-source
// results keyed by source name. Individual source failures are reported in
// the map, not as an error.
func (c *Crawler) CrawlAll(ctx context.Context, events chan<- ProgressEvent) (map[string]*CrawlResult, error) {
	sources, err := c.store.ListActiveSources()
	if err != nil {
		return nil, fmt.Errorf("failed to list active sources: %w", err)
	}

	results := make(map[string]*CrawlResult, len(sources))
	for i := range sources {
		source := &sources[i]

		if err := ctx.Err(); err != nil {
			return results, err
		}

		emit(events, ProgressEvent{
			Type:    "start",
			Site:    source.Name,
			Current: i + 1,
			Total:   len(sources),
		})

		result, err := c.CrawlSource(ctx, source, events)
		results[source.Name] = result

		if err != nil {
			emit(events, ProgressEvent{
				Type:    "site_error",
				Site:    source.Name,
				Message: err.Error(),
				Result:  result,
			})
			continue
		}
		emit(events, ProgressEvent{
			Type:   "site_done",
			Site:   source.Name,
			Result: result,
		})
	}

	emit(events, ProgressEvent{Type: "done"})

	return results, nil
}

// capRunes truncates s to at most n runes.
func capRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// emit sends an event without blocking. Events are best-effort: a full or
// abandoned channel drops them rather than stalling the crawl.
func emit(events chan<- ProgressEvent, ev ProgressEvent) {
	if events == nil {
		return
	}
	select {
	case events <- ev:
	default:
	}
}
