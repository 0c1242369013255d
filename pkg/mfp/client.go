// Package mfp is the HTTP client for musicforprogramming.net: index and
// episode pages come back parsed, file URLs come back as raw streams.
package mfp

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	apperrors "mfpget/pkg/errors"
	"mfpget/pkg/logger"
)

// DefaultBaseURL is the production index page
const DefaultBaseURL = "https://musicforprogramming.net"

// Client wraps an http.Client with the site's base URL and default headers
type Client struct {
	httpClient *http.Client
	base       *url.URL
	headers    map[string]string
	logger     logger.Logger
}

// NewClient creates a site client rooted at baseURL
func NewClient(baseURL, userAgent string, log logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, apperrors.Newf(apperrors.ErrorTypeConfig, "invalid base URL %q", baseURL)
	}

	return &Client{
		httpClient: &http.Client{},
		base:       base,
		headers: map[string]string{
			"User-Agent": userAgent,
			"Accept":     "text/html,application/xhtml+xml,*/*;q=0.8",
		},
		logger: log,
	}, nil
}

// BaseURL returns the index page URL
func (c *Client) BaseURL() string {
	return c.base.String()
}

// ResolveURL turns a reference scraped off a page into an absolute URL
// relative to the site base
func (c *Client) ResolveURL(ref string) string {
	rel, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return c.base.ResolveReference(rel).String()
}

// FetchPage GETs a page and parses its markup. A non-success status is a
// fetch error carrying the response code.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := c.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeFetch, "failed to parse page markup", err)
	}
	return doc, nil
}

// Get performs a status-checked GET. The caller owns the response body; it
// is the entry point for file streams, where the body must stay open for the
// transfer.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeFetch, "failed to build request", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	c.logger.WithFields(map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	}).Debug("sending HTTP request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithFields(map[string]interface{}{
			"url":      rawURL,
			"error":    err.Error(),
			"duration": time.Since(start),
		}).Error("HTTP request failed")
		return nil, apperrors.Wrap(apperrors.ErrorTypeFetch, "request failed", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"url":      rawURL,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("HTTP request completed")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, apperrors.NewFetch("request failed for "+rawURL, resp.StatusCode)
	}

	return resp, nil
}
