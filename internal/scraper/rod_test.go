package scraper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireBrowser skips tests that need a locally installed Chrome or Chromium.
func requireBrowser(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if _, ok := launcher.LookPath(); !ok {
		t.Skip("no local browser found")
	}
}

func TestRodScraper_ScrapeMetadata(t *testing.T) {
	requireBrowser(t)

	agents := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		select {
		case agents <- r.UserAgent():
		default:
		}
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><head>
			<title>Static title</title>
			<meta property="og:image" content="https://img.example/r.png">
			<script>
				var m = document.createElement("meta");
				m.setAttribute("property", "og:title");
				m.setAttribute("content", "Rendered title");
				document.head.appendChild(m);
			</script>
		</head><body></body></html>`)
	}))
	defer srv.Close()

	meta, err := NewRodScraper(30*time.Second, quietLogger()).ScrapeMetadata(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, "Rendered title", meta.Title, "Metadata added by scripts is visible")
	assert.Equal(t, "https://img.example/r.png", meta.Image)
	assert.Equal(t, UserAgent, <-agents)
}

func TestRodScraper_Timeout(t *testing.T) {
	requireBrowser(t)

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	meta, err := NewRodScraper(time.Second, quietLogger()).ScrapeMetadata(context.Background(), srv.URL)
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, srv.URL, fetchErr.URL)
	assert.Equal(t, Metadata{}, meta)
}
