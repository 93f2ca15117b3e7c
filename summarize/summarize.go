// Package summarize generates Japanese article and product summaries through
// a local Ollama instance.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrExhausted indicates the model kept returning empty or malformed output
// after all retries. Callers treat it as non-fatal per item.
var ErrExhausted = errors.New("summarizer exhausted retries")

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "qwen3:8b"

	maxRetries       = 2
	promptInputCap   = 4000
	detailInputCap   = 6000
	defaultPredict   = 800
	detailPredict    = 2000
	defaultTimeout   = 120 * time.Second
	temperatureValue = 0.3
)

// thinkBlockRe strips <think>...</think> reasoning blocks some models emit.
var thinkBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

var (
	titleMarkerRe   = regexp.MustCompile(`タイトル[：:]`)
	summaryMarkerRe = regexp.MustCompile(`要約[：:]`)
)

// Client talks to Ollama's /api/generate endpoint.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the default model name.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithHTTPClient overrides the HTTP client, mostly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger attaches a logger for retry diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a summarizer client. An empty baseURL selects the local
// default.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   DefaultModel,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Summarize produces the standard title-plus-summary text for an article or,
// with product true, a product listing.
func (c *Client) Summarize(ctx context.Context, title, content string, product bool) (string, error) {
	prompt := articlePrompt(title, capRunes(content, promptInputCap))
	if product {
		prompt = productPrompt(title, capRunes(content, promptInputCap))
	}
	return c.generate(ctx, prompt, defaultPredict)
}

// SummarizeDetail produces the long-form variant used when a reader asks for
// a full breakdown of one article.
func (c *Client) SummarizeDetail(ctx context.Context, title, content string, product bool) (string, error) {
	prompt := detailArticlePrompt(title, capRunes(content, detailInputCap))
	if product {
		prompt = detailProductPrompt(title, capRunes(content, detailInputCap))
	}
	return c.generate(ctx, prompt, detailPredict)
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// generate calls the model, validating each response against the expected
// マーカー format and retrying on empty or malformed output.
func (c *Client) generate(ctx context.Context, prompt string, numPredict int) (string, error) {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		response, err := c.call(ctx, prompt, numPredict)
		if err != nil {
			return "", err
		}

		response = strings.TrimSpace(thinkBlockRe.ReplaceAllString(response, ""))

		hasTitle := titleMarkerRe.MatchString(response)
		hasSummary := summaryMarkerRe.MatchString(response)
		if len([]rune(response)) > 20 && hasTitle && hasSummary {
			return response, nil
		}
		// The title marker occasionally goes missing; a substantial summary
		// alone is still usable.
		if len([]rune(response)) > 50 && hasSummary {
			return response, nil
		}

		if attempt < maxRetries {
			c.logger.Warn("summarizer returned empty or malformed output, retrying",
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", maxRetries))
		}
	}
	return "", ErrExhausted
}

func (c *Client) call(ctx context.Context, prompt string, numPredict int) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: temperatureValue,
			NumPredict:  numPredict,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("ollama returned HTTP %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode ollama response: %w", err)
	}
	return out.Response, nil
}

func capRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
