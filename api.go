package sitewatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ymurata/sitewatch/detect"
	"github.com/ymurata/sitewatch/parser"
)

// DetailSummarizer produces the longer summary variant used when a reader
// asks for an article to be summarized again. Satisfied by summarize.Client.
type DetailSummarizer interface {
	SummarizeDetail(ctx context.Context, title, content string, product bool) (string, error)
}

// APIServer exposes source management, detection and crawl control over HTTP.
type APIServer struct {
	store      *Store
	crawler    *Crawler
	detector   *detect.Detector
	summarizer DetailSummarizer
}

// NewAPIServer creates a new API server. summarizer may be nil, which
// disables resummarization.
func NewAPIServer(store *Store, crawler *Crawler, detector *detect.Detector, summarizer DetailSummarizer) *APIServer {
	return &APIServer{
		store:      store,
		crawler:    crawler,
		detector:   detector,
		summarizer: summarizer,
	}
}

// SetupRouter configures the Gin router with all API routes.
func (s *APIServer) SetupRouter() *gin.Engine {
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	api := router.Group("/api")
	{
		api.POST("/crawl", s.HandleCrawl)
		api.GET("/crawl", s.HandleCrawlStatus)
		api.POST("/sites/detect", s.HandleDetect)
		api.GET("/sites", s.HandleListSites)
		api.POST("/sites", s.HandleCreateSite)
		api.PUT("/sites/:id", s.HandleUpdateSite)
		api.DELETE("/sites/:id", s.HandleDeleteSite)
		api.GET("/articles", s.HandleListArticles)
		api.POST("/articles/:id/resummarize", s.HandleResummarize)
	}

	return router
}

func errorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// CrawlRequest represents the request for POST /api/crawl. An empty SourceID
// crawls all active sources.
type CrawlRequest struct {
	SourceID string `json:"sourceId,omitempty"`
	Stream   bool   `json:"stream,omitempty"`
}

// HandleCrawl handles POST /api/crawl. With stream: true the response is an
// SSE event stream; the crawl itself always runs to completion server-side,
// whether or not the client stays connected.
func (s *APIServer) HandleCrawl(c *gin.Context) {
	var req CrawlRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorResponse(c, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
	}

	var source *Source
	if req.SourceID != "" {
		sourceID, err := uuid.Parse(req.SourceID)
		if err != nil {
			errorResponse(c, http.StatusBadRequest, "bad_request", "Invalid source ID")
			return
		}
		source, err = s.store.GetSource(sourceID)
		if err != nil {
			if err.Error() == "source not found" {
				errorResponse(c, http.StatusNotFound, "not_found", "Source with ID "+req.SourceID+" not found")
				return
			}
			errorResponse(c, http.StatusInternalServerError, "internal_error", "Failed to retrieve source")
			return
		}
	}

	if req.Stream {
		s.streamCrawl(c, source)
		return
	}

	// The crawl is deliberately detached from the request context so a
	// client timeout cannot abort a half-finished run.
	ctx := context.Background()

	if source != nil {
		result, _ := s.crawler.CrawlSource(ctx, source, nil)
		c.JSON(http.StatusOK, gin.H{"results": map[string]*CrawlResult{source.Name: result}})
		return
	}

	results, err := s.crawler.CrawlAll(ctx, nil)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "internal_error", "Failed to crawl sources")
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// streamCrawl runs the crawl in a background goroutine and relays its
// progress events to the client as SSE messages.
func (s *APIServer) streamCrawl(c *gin.Context, source *Source) {
	events := make(chan ProgressEvent, 256)

	go func() {
		defer close(events)
		ctx := context.Background()
		if source != nil {
			emit(events, ProgressEvent{Type: "start", Site: source.Name, Current: 1, Total: 1})
			result, err := s.crawler.CrawlSource(ctx, source, events)
			if err != nil {
				emit(events, ProgressEvent{Type: "site_error", Site: source.Name, Message: err.Error(), Result: result})
			} else {
				emit(events, ProgressEvent{Type: "site_done", Site: source.Name, Result: result})
			}
			emit(events, ProgressEvent{Type: "done"})
			return
		}
		s.crawler.CrawlAll(ctx, events)
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// Drain the channel even after the client disconnects so the crawl
	// goroutine is never blocked on a full buffer.
	clientGone := c.Request.Context().Done()
	gone := false
	for ev := range events {
		if !gone {
			select {
			case <-clientGone:
				gone = true
			default:
				c.SSEvent("message", ev)
				c.Writer.Flush()
			}
		}
	}
}

// CrawlStatusEntry pairs an active source with its most recent crawl log.
type CrawlStatusEntry struct {
	Source    Source    `json:"source"`
	LastCrawl *CrawlLog `json:"lastCrawl,omitempty"`
}

// HandleCrawlStatus handles GET /api/crawl.
func (s *APIServer) HandleCrawlStatus(c *gin.Context) {
	sources, err := s.store.ListActiveSources()
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "internal_error", "Failed to list sources")
		return
	}

	entries := make([]CrawlStatusEntry, 0, len(sources))
	for _, source := range sources {
		log, err := s.store.LatestLog(source.ID)
		if err != nil {
			errorResponse(c, http.StatusInternalServerError, "internal_error", "Failed to retrieve crawl logs")
			return
		}
		entries = append(entries, CrawlStatusEntry{Source: source, LastCrawl: log})
	}

	c.JSON(http.StatusOK, gin.H{"sources": entries})
}

// DetectRequest represents the request for POST /api/sites/detect.
type DetectRequest struct {
	URL string `json:"url" binding:"required"`
}

// HandleDetect handles POST /api/sites/detect. Detection is read-only: it
// probes the site and proposes a parser configuration without storing
// anything.
func (s *APIServer) HandleDetect(c *gin.Context) {
	var req DetectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := s.detector.Detect(c.Request.Context(), req.URL)
	if err != nil {
		if errors.Is(err, parser.ErrFetch) {
			errorResponse(c, http.StatusBadGateway, "fetch_failed", err.Error())
			return
		}
		errorResponse(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	c.JSON(http.StatusOK, result)
}

// CreateSiteRequest represents the request for POST /api/sites.
type CreateSiteRequest struct {
	Name         string          `json:"name" binding:"required"`
	URL          string          `json:"url" binding:"required"`
	ParserType   string          `json:"parserType" binding:"required"`
	ParserConfig json.RawMessage `json:"parserConfig,omitempty"`
	Active       *bool           `json:"active,omitempty"` // Default: true
}

// UpdateSiteRequest represents the request for PUT /api/sites/{id}.
type UpdateSiteRequest struct {
	Name         *string         `json:"name,omitempty"`
	URL          *string         `json:"url,omitempty"`
	ParserType   *string         `json:"parserType,omitempty"`
	ParserConfig json.RawMessage `json:"parserConfig,omitempty"`
	Active       *bool           `json:"active,omitempty"`
}

// HandleListSites handles GET /api/sites.
func (s *APIServer) HandleListSites(c *gin.Context) {
	sources, err := s.store.ListSources()
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "internal_error", "Failed to list sources")
		return
	}

	if sources == nil {
		sources = []Source{}
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources, "total": len(sources)})
}

// HandleCreateSite handles POST /api/sites. The parser configuration is
// decoded and validated before anything is stored, so a registered source is
// always crawlable.
func (s *APIServer) HandleCreateSite(c *gin.Context) {
	var req CreateSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	if _, err := parser.DecodeConfig(req.ParserType, req.ParserConfig); err != nil {
		errorResponse(c, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	source, err := s.store.CreateSource(req.Name, req.URL, req.ParserType, req.ParserConfig)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "unique constraint") {
			errorResponse(c, http.StatusConflict, "conflict", "Source with this URL already exists")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "internal_error", "Failed to create source")
		return
	}

	if req.Active != nil && !*req.Active {
		if err := s.store.UpdateSource(source.ID, map[string]any{"active": false}); err == nil {
			source.Active = false
		}
	}

	c.JSON(http.StatusCreated, source)
}

// HandleUpdateSite handles PUT /api/sites/{id}.
func (s *APIServer) HandleUpdateSite(c *gin.Context) {
	sourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "bad_request", "Invalid source ID")
		return
	}

	var req UpdateSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	updates := make(map[string]any)
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.URL != nil {
		updates["url"] = *req.URL
	}
	if req.ParserType != nil {
		updates["parser_type"] = *req.ParserType
	}
	if req.ParserConfig != nil {
		updates["parser_config"] = req.ParserConfig
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}

	// Re-validate the parser config when either half of the pairing changes.
	if req.ParserType != nil || req.ParserConfig != nil {
		current, err := s.store.GetSource(sourceID)
		if err != nil {
			if err.Error() == "source not found" {
				errorResponse(c, http.StatusNotFound, "not_found", "Source with ID "+sourceID.String()+" not found")
				return
			}
			errorResponse(c, http.StatusInternalServerError, "internal_error", "Failed to retrieve source")
			return
		}
		parserType := current.ParserType
		if req.ParserType != nil {
			parserType = *req.ParserType
		}
		parserConfig := current.ParserConfig
		if req.ParserConfig != nil {
			parserConfig = req.ParserConfig
		}
		if _, err := parser.DecodeConfig(parserType, parserConfig); err != nil {
			errorResponse(c, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
	}

	if err := s.store.UpdateSource(sourceID, updates); err != nil {
		if err.Error() == "source not found" {
			errorResponse(c, http.StatusNotFound, "not_found", "Source with ID "+sourceID.String()+" not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "internal_error", "Failed to update source")
		return
	}

	source, err := s.store.GetSource(sourceID)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "internal_error", "Failed to retrieve updated source")
		return
	}

	c.JSON(http.StatusOK, source)
}

// HandleDeleteSite handles DELETE /api/sites/{id}.
func (s *APIServer) HandleDeleteSite(c *gin.Context) {
	sourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "bad_request", "Invalid source ID")
		return
	}

	if err := s.store.DeleteSource(sourceID); err != nil {
		if err.Error() == "source not found" {
			errorResponse(c, http.StatusNotFound, "not_found", "Source with ID "+sourceID.String()+" not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "internal_error", "Failed to delete source")
		return
	}

	c.Status(http.StatusNoContent)
}

// HandleListArticles handles GET /api/articles.
func (s *APIServer) HandleListArticles(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			errorResponse(c, http.StatusBadRequest, "bad_request", "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	articles, err := s.store.ListArticles(limit)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "internal_error", "Failed to list articles")
		return
	}

	if articles == nil {
		articles = []Article{}
	}
	c.JSON(http.StatusOK, gin.H{"articles": articles, "total": len(articles)})
}

// HandleResummarize handles POST /api/articles/{id}/resummarize. It runs the
// detail summary over the stored content and persists the result.
func (s *APIServer) HandleResummarize(c *gin.Context) {
	if s.summarizer == nil {
		errorResponse(c, http.StatusServiceUnavailable, "unavailable", "Summarizer is not configured")
		return
	}

	articleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "bad_request", "Invalid article ID")
		return
	}

	article, err := s.store.GetArticle(articleID)
	if err != nil {
		if err.Error() == "article not found" {
			errorResponse(c, http.StatusNotFound, "not_found", "Article with ID "+articleID.String()+" not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "internal_error", "Failed to retrieve article")
		return
	}

	text := article.Content
	if text == "" {
		text = article.Title
	}
	summary, err := s.summarizer.SummarizeDetail(c.Request.Context(),
		article.Title, text, article.Category == CategoryProduct)
	if err != nil {
		errorResponse(c, http.StatusBadGateway, "summarize_failed", err.Error())
		return
	}

	if err := s.store.UpdateArticleSummary(articleID, summary); err != nil {
		errorResponse(c, http.StatusInternalServerError, "internal_error", "Failed to update article")
		return
	}

	article.Summary = summary
	c.JSON(http.StatusOK, article)
}
