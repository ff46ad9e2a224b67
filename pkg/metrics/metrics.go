package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_cache_hits_total",
		Help: "Conversation windows served from the local cache.",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_cache_misses_total",
		Help: "Conversation windows that required a store fetch.",
	})
	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_cache_evictions_total",
		Help: "Cache entries removed by TTL expiry or invalidation.",
	})
	ListenerReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_listener_reconnects_total",
		Help: "Real-time listener reconnection attempts.",
	})
	ListenerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_listener_failures_total",
		Help: "Listeners that exhausted their reconnection budget.",
	})
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_sent_total",
		Help: "Messages confirmed by the store.",
	})
	SendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_send_failures_total",
		Help: "Message writes rejected by the store.",
	})
	QuarantinedDocs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_quarantined_documents_total",
		Help: "Store documents skipped because they failed decoding.",
	})
)

// Handler returns the Prometheus scrape handler for mounting on the router.
func Handler() http.Handler {
	return promhttp.Handler()
}
