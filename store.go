package sitewatch

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store persists sources, articles and crawl logs in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at dbPath and ensures the schema
// exists.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		url TEXT NOT NULL UNIQUE,
		parser_type TEXT NOT NULL,
		parser_config TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		title TEXT NOT NULL,
		external_url TEXT NOT NULL UNIQUE,
		content TEXT,
		summary TEXT,
		image_url TEXT,
		category TEXT NOT NULL DEFAULT 'news',
		is_new INTEGER NOT NULL DEFAULT 1,
		published_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS crawl_logs (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		articles_found INTEGER NOT NULL DEFAULT 0,
		new_articles INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		errors TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSource inserts a new source. parserConfig may be nil for adapters
// that need no configuration.
func (s *Store) CreateSource(name, url, parserType string, parserConfig json.RawMessage) (*Source, error) {
	now := time.Now()

	source := &Source{
		ID:           uuid.New(),
		Name:         name,
		URL:          url,
		ParserType:   parserType,
		ParserConfig: parserConfig,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var configJSON any
	if len(parserConfig) > 0 {
		configJSON = string(parserConfig)
	}

	query := `
		INSERT INTO sources (id, name, url, parser_type, parser_config, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		source.ID.String(),
		source.Name,
		source.URL,
		source.ParserType,
		configJSON,
		boolToInt(source.Active),
		formatTime(&source.CreatedAt),
		formatTime(&source.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert source: %w", err)
	}

	return source, nil
}

// GetSource retrieves a source by ID.
func (s *Store) GetSource(id uuid.UUID) (*Source, error) {
	query := `
		SELECT id, name, url, parser_type, parser_config, active, created_at, updated_at
		FROM sources
		WHERE id = ?
	`

	source, err := scanSource(s.db.QueryRow(query, id.String()))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("source not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query source: %w", err)
	}

	return source, nil
}

// ListSources lists all sources, newest first.
func (s *Store) ListSources() ([]Source, error) {
	return s.querySources(`
		SELECT id, name, url, parser_type, parser_config, active, created_at, updated_at
		FROM sources
		ORDER BY created_at DESC
	`)
}

// ListActiveSources lists sources eligible for crawling, in insertion order
// so crawl runs visit sites in a stable sequence.
func (s *Store) ListActiveSources() ([]Source, error) {
	return s.querySources(`
		SELECT id, name, url, parser_type, parser_config, active, created_at, updated_at
		FROM sources
		WHERE active = 1
		ORDER BY created_at ASC
	`)
}

func (s *Store) querySources(query string) ([]Source, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, *source)
	}

	return sources, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*Source, error) {
	var source Source
	var idStr, createdAtStr, updatedAtStr string
	var configJSON sql.NullString
	var active int

	err := row.Scan(&idStr, &source.Name, &source.URL, &source.ParserType,
		&configJSON, &active, &createdAtStr, &updatedAtStr)
	if err != nil {
		return nil, err
	}

	source.ID, _ = uuid.Parse(idStr)
	source.Active = active != 0
	source.CreatedAt = parseTime(createdAtStr)
	source.UpdatedAt = parseTime(updatedAtStr)
	if configJSON.Valid {
		source.ParserConfig = json.RawMessage(configJSON.String)
	}

	return &source, nil
}

// UpdateSource applies the given field updates to a source. Recognized keys:
// name, url, parser_type, parser_config, active.
func (s *Store) UpdateSource(id uuid.UUID, updates map[string]any) error {
	setClauses := []string{"updated_at = ?"}
	now := time.Now()
	args := []any{formatTime(&now)}

	if name, ok := updates["name"].(string); ok {
		setClauses = append(setClauses, "name = ?")
		args = append(args, name)
	}
	if url, ok := updates["url"].(string); ok {
		setClauses = append(setClauses, "url = ?")
		args = append(args, url)
	}
	if parserType, ok := updates["parser_type"].(string); ok {
		setClauses = append(setClauses, "parser_type = ?")
		args = append(args, parserType)
	}
	if parserConfig, ok := updates["parser_config"].(json.RawMessage); ok {
		setClauses = append(setClauses, "parser_config = ?")
		args = append(args, string(parserConfig))
	}
	if active, ok := updates["active"].(bool); ok {
		setClauses = append(setClauses, "active = ?")
		args = append(args, boolToInt(active))
	}

	args = append(args, id.String())

	query := fmt.Sprintf("UPDATE sources SET %s WHERE id = ?",
		strings.Join(setClauses, ", "))

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("source not found")
	}

	return nil
}

// DeleteSource deletes a source. Articles already crawled from it are kept.
func (s *Store) DeleteSource(id uuid.UUID) error {
	result, err := s.db.Exec("DELETE FROM sources WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("source not found")
	}

	return nil
}

// ExistingURLs reports which of the given external URLs are already stored.
// The result is a set: membership means the URL exists.
func (s *Store) ExistingURLs(urls []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(urls) == 0 {
		return existing, nil
	}

	placeholders := strings.Repeat("?,", len(urls))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(urls))
	for i, u := range urls {
		args[i] = u
	}

	query := fmt.Sprintf("SELECT external_url FROM articles WHERE external_url IN (%s)", placeholders)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing urls: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		existing[u] = true
	}

	return existing, rows.Err()
}

// UpsertArticleIfAbsent inserts the article unless its external URL is
// already stored. Returns true when a new row was created. Concurrent or
// repeated crawls of the same URL therefore produce exactly one article.
func (s *Store) UpsertArticleIfAbsent(article *Article) (bool, error) {
	if article.ID == uuid.Nil {
		article.ID = uuid.New()
	}
	if article.CreatedAt.IsZero() {
		article.CreatedAt = time.Now()
	}
	if article.Category == "" {
		article.Category = CategoryNews
	}

	query := `
		INSERT OR IGNORE INTO articles (id, source_id, title, external_url, content, summary, image_url, category, is_new, published_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		article.ID.String(),
		article.SourceID.String(),
		article.Title,
		article.ExternalURL,
		article.Content,
		article.Summary,
		article.ImageURL,
		article.Category,
		boolToInt(article.IsNew),
		formatTime(article.PublishedAt),
		formatTime(&article.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert article: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// ListArticles lists stored articles, newest publication first with unknown
// dates last. limit <= 0 means no limit.
func (s *Store) ListArticles(limit int) ([]Article, error) {
	query := `
		SELECT id, source_id, title, external_url, content, summary, image_url, category, is_new, published_at, created_at
		FROM articles
		ORDER BY published_at IS NULL, published_at DESC, created_at DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var article Article
		var idStr, sourceIDStr, createdAtStr string
		var content, summary, imageURL, publishedAtStr sql.NullString
		var isNew int

		err := rows.Scan(&idStr, &sourceIDStr, &article.Title, &article.ExternalURL,
			&content, &summary, &imageURL, &article.Category, &isNew,
			&publishedAtStr, &createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}

		article.ID, _ = uuid.Parse(idStr)
		article.SourceID, _ = uuid.Parse(sourceIDStr)
		article.IsNew = isNew != 0
		article.Content = content.String
		article.Summary = summary.String
		article.ImageURL = imageURL.String
		article.CreatedAt = parseTime(createdAtStr)
		if publishedAtStr.Valid && publishedAtStr.String != "" {
			t := parseTime(publishedAtStr.String)
			article.PublishedAt = &t
		}

		articles = append(articles, article)
	}

	return articles, rows.Err()
}

// GetArticle retrieves an article by ID.
func (s *Store) GetArticle(id uuid.UUID) (*Article, error) {
	query := `
		SELECT id, source_id, title, external_url, content, summary, image_url, category, is_new, published_at, created_at
		FROM articles
		WHERE id = ?
	`

	var article Article
	var idStr, sourceIDStr, createdAtStr string
	var content, summary, imageURL, publishedAtStr sql.NullString
	var isNew int

	err := s.db.QueryRow(query, id.String()).Scan(&idStr, &sourceIDStr,
		&article.Title, &article.ExternalURL, &content, &summary, &imageURL,
		&article.Category, &isNew, &publishedAtStr, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("article not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query article: %w", err)
	}

	article.ID, _ = uuid.Parse(idStr)
	article.SourceID, _ = uuid.Parse(sourceIDStr)
	article.IsNew = isNew != 0
	article.Content = content.String
	article.Summary = summary.String
	article.ImageURL = imageURL.String
	article.CreatedAt = parseTime(createdAtStr)
	if publishedAtStr.Valid && publishedAtStr.String != "" {
		t := parseTime(publishedAtStr.String)
		article.PublishedAt = &t
	}

	return &article, nil
}

// UpdateArticleSummary replaces an article's stored summary.
func (s *Store) UpdateArticleSummary(id uuid.UUID, summary string) error {
	result, err := s.db.Exec("UPDATE articles SET summary = ? WHERE id = ?", summary, id.String())
	if err != nil {
		return fmt.Errorf("failed to update article: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("article not found")
	}

	return nil
}

// AppendCrawlLog records the outcome of a crawl run.
func (s *Store) AppendCrawlLog(log *CrawlLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}

	query := `
		INSERT INTO crawl_logs (id, source_id, started_at, finished_at, duration_ms, articles_found, new_articles, status, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		log.ID.String(),
		log.SourceID.String(),
		formatTime(&log.StartedAt),
		formatTime(&log.FinishedAt),
		log.DurationMS,
		log.ArticlesFound,
		log.NewArticles,
		log.Status,
		log.Errors,
	)
	if err != nil {
		return fmt.Errorf("failed to insert crawl log: %w", err)
	}

	return nil
}

// LatestLog returns the most recent crawl log for a source, or nil when the
// source has never been crawled.
func (s *Store) LatestLog(sourceID uuid.UUID) (*CrawlLog, error) {
	query := `
		SELECT id, source_id, started_at, finished_at, duration_ms, articles_found, new_articles, status, errors
		FROM crawl_logs
		WHERE source_id = ?
		ORDER BY started_at DESC
		LIMIT 1
	`

	log, err := scanCrawlLog(s.db.QueryRow(query, sourceID.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query crawl log: %w", err)
	}

	return log, nil
}

// RecentLogs lists the most recent crawl logs across all sources.
func (s *Store) RecentLogs(limit int) ([]CrawlLog, error) {
	query := `
		SELECT id, source_id, started_at, finished_at, duration_ms, articles_found, new_articles, status, errors
		FROM crawl_logs
		ORDER BY started_at DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query crawl logs: %w", err)
	}
	defer rows.Close()

	var logs []CrawlLog
	for rows.Next() {
		log, err := scanCrawlLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crawl log: %w", err)
		}
		logs = append(logs, *log)
	}

	return logs, rows.Err()
}

func scanCrawlLog(row rowScanner) (*CrawlLog, error) {
	var log CrawlLog
	var idStr, sourceIDStr, startedAtStr, finishedAtStr string
	var errors sql.NullString

	err := row.Scan(&idStr, &sourceIDStr, &startedAtStr, &finishedAtStr,
		&log.DurationMS, &log.ArticlesFound, &log.NewArticles, &log.Status, &errors)
	if err != nil {
		return nil, err
	}

	log.ID, _ = uuid.Parse(idStr)
	log.SourceID, _ = uuid.Parse(sourceIDStr)
	log.StartedAt = parseTime(startedAtStr)
	log.FinishedAt = parseTime(finishedAtStr)
	log.Errors = errors.String

	return &log, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Helper functions for time formatting
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
