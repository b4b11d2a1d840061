package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

// RodScraper implements the Scraper interface by rendering pages in a headless browser.
// It is slower than HTTPScraper but sees metadata injected by JavaScript.
type RodScraper struct {
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewRodScraper creates a new browser-backed scraper.
func NewRodScraper(timeout time.Duration, logger logrus.FieldLogger) *RodScraper {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RodScraper{
		timeout: timeout,
		log:     logger.WithField("component", "scraper"),
	}
}

// ScrapeMetadata launches a browser, loads url and extracts metadata from the rendered DOM.
func (s *RodScraper) ScrapeMetadata(ctx context.Context, url string) (meta Metadata, err error) {
	log := s.log.WithField("url", url)
	log.Debug("Rendering page metadata")

	path, exists := launcher.LookPath()
	if !exists {
		return Metadata{}, &FetchError{URL: url, Err: errors.New("rod browser dependency not found")}
	}
	l := launcher.New().Bin(path)
	controlURL, err := l.Launch()
	if err != nil {
		return Metadata{}, &FetchError{URL: url, Err: fmt.Errorf("launch browser: %w", err)}
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return Metadata{}, &FetchError{URL: url, Err: fmt.Errorf("connect to browser: %w", err)}
	}
	defer func() {
		if closeErr := browser.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Error closing rod browser instance")
		}
	}()

	pageCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	page, err := browser.Context(pageCtx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return Metadata{}, &FetchError{URL: url, Err: fmt.Errorf("create page: %w", err)}
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: UserAgent}); err != nil {
		return Metadata{}, &FetchError{URL: url, Err: fmt.Errorf("set user agent: %w", err)}
	}
	if err := page.Navigate(url); err != nil {
		return Metadata{}, &FetchError{URL: url, Err: fmt.Errorf("navigate: %w", err)}
	}
	if err := page.WaitLoad(); err != nil {
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
			return Metadata{}, &FetchError{URL: url, Err: pageCtx.Err()}
		}
		return Metadata{}, &FetchError{URL: url, Err: fmt.Errorf("wait for page load: %w", err)}
	}

	html, err := page.HTML()
	if err != nil {
		return Metadata{}, &FetchError{URL: url, Err: fmt.Errorf("read rendered html: %w", err)}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Metadata{}, &FetchError{URL: url, Err: fmt.Errorf("parse html: %w", err)}
	}

	meta = Extract(doc)
	log.WithField("title", meta.Title).Debug("Extracted metadata")
	return meta, nil
}

// New returns the scraper for backend ("http" or "rod").
func New(backend string, timeout time.Duration, logger logrus.FieldLogger) (Scraper, error) {
	switch backend {
	case "", "http":
		return NewHTTPScraper(timeout, logger), nil
	case "rod":
		return NewRodScraper(timeout, logger), nil
	default:
		return nil, fmt.Errorf("unknown scraper backend %q", backend)
	}
}
