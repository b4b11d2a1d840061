package scraper

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// UserAgent identifies the bot to the sites it previews.
const UserAgent = "Mozilla/5.0 (compatible; TelegramRSSBot/1.0)"

// Metadata is the link preview data found on a page. Every field is optional.
type Metadata struct {
	Title       string
	Description string
	Image       string
}

// Scraper defines the interface for fetching metadata from a URL.
type Scraper interface {
	// ScrapeMetadata fetches preview metadata for url.
	// A *FetchError is returned when the page could not be retrieved or parsed.
	ScrapeMetadata(ctx context.Context, url string) (Metadata, error)
}

// FetchError reports a failure to retrieve or parse a page.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// extractor looks up one candidate value in a parsed page.
type extractor func(doc *goquery.Document) (string, bool)

func metaProperty(property string) extractor {
	return metaAttr("property", property)
}

func metaName(name string) extractor {
	return metaAttr("name", name)
}

func metaAttr(attr, value string) extractor {
	selector := fmt.Sprintf(`meta[%s=%q]`, attr, value)
	return func(doc *goquery.Document) (string, bool) {
		content, ok := doc.Find(selector).First().Attr("content")
		content = strings.TrimSpace(content)
		return content, ok && content != ""
	}
}

func titleElement(doc *goquery.Document) (string, bool) {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	return title, title != ""
}

// firstOf runs extractors in order and returns the first hit.
func firstOf(doc *goquery.Document, chain ...extractor) string {
	for _, extract := range chain {
		if v, ok := extract(doc); ok {
			return v
		}
	}
	return ""
}

var (
	titleChain       = []extractor{metaProperty("og:title"), titleElement}
	descriptionChain = []extractor{metaProperty("og:description"), metaName("description")}
	imageChain       = []extractor{metaProperty("og:image")}
)

// Extract derives preview metadata from a parsed document.
func Extract(doc *goquery.Document) Metadata {
	return Metadata{
		Title:       firstOf(doc, titleChain...),
		Description: firstOf(doc, descriptionChain...),
		Image:       firstOf(doc, imageChain...),
	}
}
