package parser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Config is the closed tagged union of per-adapter configuration documents.
// Exactly one variant is populated, matching the source's parser type. The
// union is validated once at source onboarding, not at every crawl.
type Config struct {
	Feed      *FeedConfig      `json:"-"`
	Channel   *ChannelConfig   `json:"-"`
	HTMLList  *HTMLListConfig  `json:"-"`
	APIJSON   *APIJSONConfig   `json:"-"`
	WordPress *WordPressConfig `json:"-"`
	Rendered  *RenderedConfig  `json:"-"`
}

// FeedConfig configures the rss adapter.
type FeedConfig struct {
	// RSSURL overrides the source URL when detection discovered the feed via
	// a <link rel="alternate"> on an HTML page.
	RSSURL   string `json:"rssUrl,omitempty"`
	Category string `json:"category,omitempty"`
}

// ChannelConfig configures the youtube adapter.
type ChannelConfig struct {
	Category string `json:"category,omitempty"`
}

// ListRules locates items within a listing page.
type ListRules struct {
	ItemSelector        string   `json:"itemSelector"`
	LinkSelector        string   `json:"linkSelector"` // "self" means the item node is the link
	TitleSelector       string   `json:"titleSelector"`
	DateSelector        string   `json:"dateSelector,omitempty"`
	ImageSelector       string   `json:"imageSelector,omitempty"`
	DescriptionSelector string   `json:"descriptionSelector,omitempty"`
	LinkFilterPattern   string   `json:"linkFilterPattern,omitempty"`
	SkipPatterns        []string `json:"skipPatterns,omitempty"`
}

// Pagination describes how to derive page URLs beyond the first. Page 1 is
// always the raw source URL because many origins reject an explicit page=1.
type Pagination struct {
	Type        string `json:"type"` // "query" or "path"
	Param       string `json:"param,omitempty"`
	PathPattern string `json:"pathPattern,omitempty"` // contains "{n}"
	Start       int    `json:"start,omitempty"`
	Step        int    `json:"step,omitempty"`
	MaxPages    int    `json:"maxPages"`
}

// ContentRules selects the content region on a detail page.
type ContentRules struct {
	Selectors       []string `json:"selectors"`
	RemoveSelectors []string `json:"removeSelectors,omitempty"`
	TitleSelector   string   `json:"titleSelector,omitempty"`
}

// HTMLListConfig configures the html-list adapter.
type HTMLListConfig struct {
	BaseURL    string            `json:"baseUrl,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	List       ListRules         `json:"list"`
	Pagination *Pagination       `json:"pagination,omitempty"`
	Content    ContentRules      `json:"content"`
	Category   string            `json:"category,omitempty"`
}

// APIRules describes the listing endpoint of a JSON API.
type APIRules struct {
	URL          string            `json:"url"`
	Method       string            `json:"method"` // GET or POST
	QueryParams  map[string]string `json:"queryParams,omitempty"`
	Body         json.RawMessage   `json:"body,omitempty"`
	ResponseType string            `json:"responseType"` // "json" or "json_html_array"
}

// FieldMap locates item fields via dot-paths within each JSON result.
type FieldMap struct {
	ResultsPath string `json:"resultsPath,omitempty"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	PublishedAt string `json:"publishedAt,omitempty"`
}

// HTMLRules extracts fields from HTML fragments in a json_html_array
// response.
type HTMLRules struct {
	LinkSelector   string `json:"linkSelector"`
	TitleSelector  string `json:"titleSelector"`
	ImageSelector  string `json:"imageSelector,omitempty"`
	URLExtractAttr string `json:"urlExtractAttr,omitempty"` // defaults to href
	URLPattern     string `json:"urlPattern,omitempty"`      // regex with one capture group
}

// APIJSONConfig configures the api-json adapter.
type APIJSONConfig struct {
	BaseURL         string            `json:"baseUrl,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	API             APIRules          `json:"api"`
	Mapping         FieldMap          `json:"mapping"`
	HTMLParsing     *HTMLRules        `json:"htmlParsing,omitempty"`
	ExcludePatterns []string          `json:"excludePatterns,omitempty"`
	Content         ContentRules      `json:"content"`
	Category        string            `json:"category,omitempty"`
}

// WordPressConfig configures the wordpress adapter.
type WordPressConfig struct {
	APIURL   string       `json:"apiUrl"`
	PerPage  int          `json:"perPage,omitempty"`
	PostType string       `json:"postType,omitempty"`
	Content  ContentRules `json:"content"`
	Category string       `json:"category,omitempty"`
}

// RenderedConfig configures the rendered-list adapter.
type RenderedConfig struct {
	BaseURL      string       `json:"baseUrl,omitempty"`
	WaitSelector string       `json:"waitSelector,omitempty"`
	WaitTimeout  int          `json:"waitTimeout,omitempty"` // milliseconds
	ExtraWait    int          `json:"extraWait,omitempty"`   // milliseconds
	List         ListRules    `json:"list"`
	Content      ContentRules `json:"content"`
	Category     string       `json:"category,omitempty"`
}

// DecodeConfig parses a raw parserConfig document into the variant matching
// the parser type and validates it. An empty document is allowed for the
// feed-based adapters, which need no configuration.
func DecodeConfig(parserType string, raw []byte) (*Config, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	cfg := &Config{}
	var err error

	switch baseType(parserType) {
	case TypeRSS:
		cfg.Feed = &FeedConfig{}
		err = json.Unmarshal(raw, cfg.Feed)
	case TypeYouTube:
		cfg.Channel = &ChannelConfig{}
		err = json.Unmarshal(raw, cfg.Channel)
	case TypeHTMLList:
		cfg.HTMLList = &HTMLListConfig{}
		err = json.Unmarshal(raw, cfg.HTMLList)
	case TypeAPIJSON:
		cfg.APIJSON = &APIJSONConfig{}
		err = json.Unmarshal(raw, cfg.APIJSON)
	case TypeWordPress:
		cfg.WordPress = &WordPressConfig{}
		err = json.Unmarshal(raw, cfg.WordPress)
	case TypeRendered:
		cfg.Rendered = &RenderedConfig{}
		err = json.Unmarshal(raw, cfg.Rendered)
	default:
		return nil, fmt.Errorf("%w: unknown parser type %q", ErrConfig, parserType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	if err := cfg.Validate(parserType); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the variant for the given parser type is present and well
// formed.
func (c *Config) Validate(parserType string) error {
	switch baseType(parserType) {
	case TypeRSS:
		if c.Feed == nil {
			return fmt.Errorf("%w: missing feed config", ErrConfig)
		}
	case TypeYouTube:
		if c.Channel == nil {
			return fmt.Errorf("%w: missing channel config", ErrConfig)
		}
	case TypeHTMLList:
		if c.HTMLList == nil {
			return fmt.Errorf("%w: missing html-list config", ErrConfig)
		}
		if c.HTMLList.List.ItemSelector == "" {
			return fmt.Errorf("%w: html-list requires list.itemSelector", ErrConfig)
		}
		if p := c.HTMLList.Pagination; p != nil {
			if p.Type != "query" && p.Type != "path" {
				return fmt.Errorf("%w: pagination.type must be query or path", ErrConfig)
			}
			if p.MaxPages < 1 {
				return fmt.Errorf("%w: pagination.maxPages must be >= 1", ErrConfig)
			}
		}
	case TypeAPIJSON:
		if c.APIJSON == nil {
			return fmt.Errorf("%w: missing api-json config", ErrConfig)
		}
		if c.APIJSON.API.URL == "" {
			return fmt.Errorf("%w: api-json requires api.url", ErrConfig)
		}
		switch c.APIJSON.API.ResponseType {
		case "json":
			if c.APIJSON.Mapping.URL == "" || c.APIJSON.Mapping.Title == "" {
				return fmt.Errorf("%w: api-json requires mapping.url and mapping.title", ErrConfig)
			}
		case "json_html_array":
			if c.APIJSON.HTMLParsing == nil {
				return fmt.Errorf("%w: json_html_array requires htmlParsing rules", ErrConfig)
			}
		default:
			return fmt.Errorf("%w: api.responseType must be json or json_html_array", ErrConfig)
		}
	case TypeWordPress:
		if c.WordPress == nil {
			return fmt.Errorf("%w: missing wordpress config", ErrConfig)
		}
		if c.WordPress.APIURL == "" {
			return fmt.Errorf("%w: wordpress requires apiUrl", ErrConfig)
		}
	case TypeRendered:
		if c.Rendered == nil {
			return fmt.Errorf("%w: missing rendered-list config", ErrConfig)
		}
		if c.Rendered.List.ItemSelector == "" && c.Rendered.List.LinkFilterPattern == "" {
			return fmt.Errorf("%w: rendered-list requires list.itemSelector or list.linkFilterPattern", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown parser type %q", ErrConfig, parserType)
	}
	return nil
}

// Product reports whether the source is a product listing. Product mode is an
// explicit opt-in: a "-product" type suffix or category: "product" in the
// config document.
func (c *Config) Product(parserType string) bool {
	if strings.HasSuffix(parserType, "-product") {
		return true
	}
	return c != nil && c.category() == "product"
}

func (c *Config) category() string {
	switch {
	case c.Feed != nil:
		return c.Feed.Category
	case c.Channel != nil:
		return c.Channel.Category
	case c.HTMLList != nil:
		return c.HTMLList.Category
	case c.APIJSON != nil:
		return c.APIJSON.Category
	case c.WordPress != nil:
		return c.WordPress.Category
	case c.Rendered != nil:
		return c.Rendered.Category
	}
	return ""
}

// baseType strips the "-product" suffix so product variants of a parser type
// resolve to the same adapter and config shape.
func baseType(parserType string) string {
	return strings.TrimSuffix(parserType, "-product")
}
