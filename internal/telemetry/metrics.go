// Package telemetry holds the Prometheus metrics shared by the bot and the feed server.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	MessagesIngested prometheus.Counter
	LinksStored      prometheus.Counter
	FetchFailures    prometheus.Counter
	IngestFailures   prometheus.Counter
	FeedRequests     *prometheus.CounterVec
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesIngested = promauto.NewCounter(prometheus.CounterOpts{Name: "linkfeed_messages_ingested_total", Help: "Messages that contained at least one URL"})
		LinksStored = promauto.NewCounter(prometheus.CounterOpts{Name: "linkfeed_links_stored_total", Help: "Links appended to the store"})
		FetchFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "linkfeed_metadata_fetch_failures_total", Help: "Metadata fetches that fell back to the raw URL"})
		IngestFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "linkfeed_ingest_failures_total", Help: "Messages aborted by a store error"})
		FeedRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "linkfeed_feed_requests_total", Help: "Feed requests by response status"}, []string{"status"})
	})
}
