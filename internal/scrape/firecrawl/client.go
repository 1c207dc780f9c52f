// Package firecrawl talks to a hosted Firecrawl-compatible content
// acquisition service. The service handles rendering, proxies and
// politeness; this client only issues map and scrape calls and shapes
// their results.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rivalscope/research/internal/research"
)

// Config carries the connection settings for the acquisition service.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds one HTTP round trip, map or scrape alike.
	Timeout time.Duration
	// WaitForMillis is passed on scrape calls so the service lets
	// client-rendered pages settle before capturing them.
	WaitForMillis int
}

// APIError is a non-2xx response from the acquisition service.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("firecrawl %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Client implements research.ContentClient against the v1 REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs a client with its own tuned transport.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.WaitForMillis <= 0 {
		cfg.WaitForMillis = 2000
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		logger: logger,
	}
}

type mapRequest struct {
	URL   string `json:"url"`
	Limit int    `json:"limit"`
}

type mapResponse struct {
	Success bool     `json:"success"`
	Links   []string `json:"links"`
	Error   string   `json:"error,omitempty"`
}

// MapSite asks the service for site links reachable from rootURL, capped
// at limit. A failed map is reported to the caller, who degrades to a
// homepage-only run rather than failing the job.
func (c *Client) MapSite(ctx context.Context, rootURL string, limit int) ([]string, error) {
	var resp mapResponse
	if err := c.post(ctx, "/v1/map", mapRequest{URL: rootURL, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("firecrawl map %s: %s", rootURL, orUnknown(resp.Error))
	}
	c.logger.Debug("site mapped", zap.String("url", rootURL), zap.Int("links", len(resp.Links)))
	return resp.Links, nil
}

type scrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
	WaitFor int      `json:"waitFor,omitempty"`
}

type scrapeResponse struct {
	Success bool       `json:"success"`
	Data    scrapeData `json:"data"`
	Error   string     `json:"error,omitempty"`
}

type scrapeData struct {
	Markdown string        `json:"markdown"`
	Branding *brandingData `json:"branding,omitempty"`
}

type brandingData struct {
	LogoURL        string   `json:"logoUrl"`
	FaviconURL     string   `json:"faviconUrl"`
	PrimaryColor   string   `json:"primaryColor"`
	SecondaryColor string   `json:"secondaryColor"`
	Fonts          []string `json:"fonts"`
}

// Scrape fetches one page as markdown, optionally with the service's
// branding detection for the homepage call.
func (c *Client) Scrape(ctx context.Context, url string, opts research.ScrapeOptions) (research.ScrapeResult, error) {
	req := scrapeRequest{
		URL:     url,
		Formats: []string{"markdown"},
		WaitFor: c.cfg.WaitForMillis,
	}
	if opts.IncludeBranding {
		req.Formats = append(req.Formats, "branding")
	}

	var resp scrapeResponse
	if err := c.post(ctx, "/v1/scrape", req, &resp); err != nil {
		return research.ScrapeResult{}, err
	}
	if !resp.Success {
		return research.ScrapeResult{}, fmt.Errorf("firecrawl scrape %s: %s", url, orUnknown(resp.Error))
	}

	result := research.ScrapeResult{Markdown: resp.Data.Markdown}
	if b := resp.Data.Branding; b != nil {
		result.Brand = &research.Brand{
			LogoURL:        b.LogoURL,
			FaviconURL:     b.FaviconURL,
			PrimaryColor:   b.PrimaryColor,
			SecondaryColor: b.SecondaryColor,
			Fonts:          b.Fonts,
		}
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("firecrawl %s: encode request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("firecrawl %s: build request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("firecrawl %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("firecrawl %s: read response: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: truncate(string(raw), 256)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("firecrawl %s: decode response: %w", endpoint, err)
	}
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown error"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
