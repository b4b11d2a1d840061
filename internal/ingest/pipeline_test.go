package ingest

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkfeed/internal/domain"
	"linkfeed/internal/scraper"
	"linkfeed/internal/storage"
)

type fakeScraper struct {
	pages map[string]scraper.Metadata
	calls []string
}

func (f *fakeScraper) ScrapeMetadata(ctx context.Context, url string) (scraper.Metadata, error) {
	f.calls = append(f.calls, url)
	meta, ok := f.pages[url]
	if !ok {
		return scraper.Metadata{}, &scraper.FetchError{URL: url, Err: errors.New("connection refused")}
	}
	return meta, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newStore(t *testing.T) *storage.BadgerRepository {
	t.Helper()
	repo, err := storage.NewBadgerRepository("", quietLogger(), storage.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestPipeline_DuplicateURLsScenario(t *testing.T) {
	store := newStore(t)
	s := &fakeScraper{}
	p := NewPipeline(store, s, quietLogger())
	ctx := context.Background()

	n, err := p.Handle(ctx, Message{
		ChatID:    "g1",
		MessageID: 1,
		Sender:    "Ann",
		Text:      "check this out http://a.example/x and http://a.example/x",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"http://a.example/x", "http://a.example/x"}, s.calls, "Each URL is fetched once, in order")

	links, err := store.RecentLinks(ctx, "g1", 50)
	require.NoError(t, err)
	require.Len(t, links, 2)
	for _, l := range links {
		assert.Equal(t, "http://a.example/x", l.URL)
		assert.Equal(t, "http://a.example/x", l.Title, "Fetch failure falls back to the URL")
		assert.Equal(t, "Shared by Ann", l.Description)
		assert.Equal(t, "g1", l.ChatID)
		assert.Equal(t, int64(1), l.MessageID)
	}
}

func TestPipeline_Metadata(t *testing.T) {
	store := newStore(t)
	s := &fakeScraper{pages: map[string]scraper.Metadata{
		"https://news.example/a": {Title: "Big news", Description: "All about it", Image: "https://news.example/a.jpg"},
		"https://news.example/b": {},
	}}
	p := NewPipeline(store, s, quietLogger())
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return fixed }
	ctx := context.Background()

	_, err := p.Handle(ctx, Message{ChatID: "g1", MessageID: 7, Caption: "photo https://news.example/a"})
	require.NoError(t, err)
	_, err = p.Handle(ctx, Message{ChatID: "g1", MessageID: 8, Sender: "Bob", Text: "https://news.example/b"})
	require.NoError(t, err)

	links, err := store.RecentLinks(ctx, "g1", 50)
	require.NoError(t, err)
	require.Len(t, links, 2)

	byURL := map[string]domain.Link{}
	for _, l := range links {
		byURL[l.URL] = l
	}
	a := byURL["https://news.example/a"]
	assert.Equal(t, "Big news", a.Title)
	assert.Equal(t, "Shared by Unknown - All about it", a.Description)
	assert.Equal(t, "https://news.example/a.jpg", a.Image)
	assert.True(t, fixed.Equal(a.Date))

	b := byURL["https://news.example/b"]
	assert.Equal(t, "https://news.example/b", b.Title)
	assert.Equal(t, "Shared by Bob", b.Description)
	assert.Empty(t, b.Image)
}

func TestPipeline_EditReplacesLinks(t *testing.T) {
	store := newStore(t)
	p := NewPipeline(store, &fakeScraper{}, quietLogger())
	ctx := context.Background()

	_, err := p.Handle(ctx, Message{ChatID: "g1", MessageID: 5, Text: "https://old.example/1 https://old.example/2"})
	require.NoError(t, err)
	_, err = p.Handle(ctx, Message{ChatID: "g1", MessageID: 6, Text: "https://other.example"})
	require.NoError(t, err)
	_, err = p.Handle(ctx, Message{ChatID: "g2", MessageID: 5, Text: "https://old.example/1"})
	require.NoError(t, err)

	_, err = p.Handle(ctx, Message{ChatID: "g1", MessageID: 5, Text: "fixed: https://new.example", Edited: true})
	require.NoError(t, err)

	links, err := store.RecentLinks(ctx, "g1", 50)
	require.NoError(t, err)
	var urls []string
	for _, l := range links {
		urls = append(urls, l.URL)
	}
	assert.ElementsMatch(t, []string{"https://new.example", "https://other.example"}, urls)

	other, err := store.RecentLinks(ctx, "g2", 50)
	require.NoError(t, err)
	assert.Len(t, other, 1, "Edits are scoped to their own group")
}

func TestPipeline_NoURLsIsNoop(t *testing.T) {
	store := newStore(t)
	s := &fakeScraper{}
	p := NewPipeline(store, s, quietLogger())

	n, err := p.Handle(context.Background(), Message{ChatID: "g1", MessageID: 1, Text: "hello there"})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, s.calls)

	n, err = p.Handle(context.Background(), Message{ChatID: "g1", MessageID: 2})
	require.NoError(t, err)
	assert.Zero(t, n)
}

type failingStore struct {
	appends  int
	failFrom int
}

func (f *failingStore) PurgeMessage(ctx context.Context, chatID string, messageID int64) (int, error) {
	return 0, nil
}

func (f *failingStore) AppendLink(ctx context.Context, chatID string, link domain.Link) (domain.Link, error) {
	f.appends++
	if f.appends >= f.failFrom {
		return domain.Link{}, errors.New("disk full")
	}
	return link, nil
}

func TestPipeline_StoreErrorAbortsMessage(t *testing.T) {
	store := &failingStore{failFrom: 2}
	s := &fakeScraper{}
	p := NewPipeline(store, s, quietLogger())

	n, err := p.Handle(context.Background(), Message{ChatID: "g1", MessageID: 1, Text: "https://a.example https://b.example https://c.example"})
	require.Error(t, err)
	assert.Equal(t, 1, n, "Links stored before the failure stay stored")
	assert.Len(t, s.calls, 2, "Remaining URLs are not fetched after a store error")
}

func TestPipeline_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL + "/gone"
	srv.Close()

	store := newStore(t)
	p := NewPipeline(store, scraper.NewHTTPScraper(time.Second, quietLogger()), quietLogger())
	ctx := context.Background()

	_, err := p.Handle(ctx, Message{ChatID: "g1", MessageID: 1, Sender: "Ann", Text: url})
	require.NoError(t, err)

	links, err := store.RecentLinks(ctx, "g1", 50)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, url, links[0].Title)
	assert.Equal(t, "Shared by Ann", links[0].Description)
}
