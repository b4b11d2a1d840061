package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
)

// DefaultTimeout bounds a single page fetch, redirects included.
const DefaultTimeout = 10 * time.Second

// maxBodySize caps how much of a page is parsed.
const maxBodySize = 5 << 20

// HTTPScraper implements the Scraper interface with a plain HTTP client and goquery.
type HTTPScraper struct {
	client *http.Client
	log    logrus.FieldLogger
}

// NewHTTPScraper creates a scraper whose requests time out after timeout.
// A zero timeout means DefaultTimeout.
func NewHTTPScraper(timeout time.Duration, logger logrus.FieldLogger) *HTTPScraper {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPScraper{
		// The default CheckRedirect follows up to 10 redirects.
		client: &http.Client{Timeout: timeout},
		log:    logger.WithField("component", "scraper"),
	}
}

// ScrapeMetadata fetches url and extracts its Open Graph / HTML metadata.
func (s *HTTPScraper) ScrapeMetadata(ctx context.Context, url string) (Metadata, error) {
	log := s.log.WithField("url", url)
	log.Debug("Fetching page metadata")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Metadata{}, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return Metadata{}, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Metadata{}, &FetchError{URL: url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	// Pages are decoded to UTF-8 using the Content-Type header or the document's meta charset.
	body, err := charset.NewReader(io.LimitReader(resp.Body, maxBodySize), resp.Header.Get("Content-Type"))
	if err != nil {
		return Metadata{}, &FetchError{URL: url, Err: fmt.Errorf("decode body: %w", err)}
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return Metadata{}, &FetchError{URL: url, Err: fmt.Errorf("parse html: %w", err)}
	}

	meta := Extract(doc)
	log.WithFields(logrus.Fields{
		"title":       meta.Title,
		"has_image":   meta.Image != "",
		"description": meta.Description != "",
	}).Debug("Extracted metadata")
	return meta, nil
}
