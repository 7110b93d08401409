// Package metrics holds the Prometheus collectors of the reconciliation pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	FramesTotal         = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "depthbook_frames_total", Help: "Feed frames by kind"}, []string{"kind"})
	ParseErrorsTotal    = prometheus.NewCounter(prometheus.CounterOpts{Name: "depthbook_parse_errors_total", Help: "Frames that were not valid JSON messages"})
	DroppedChangesTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "depthbook_dropped_changes_total", Help: "Malformed levels or changes skipped during ingest"})
	IrrelevantTotal     = prometheus.NewCounter(prometheus.CounterOpts{Name: "depthbook_irrelevant_frames_total", Help: "Frames for a product other than the subscribed one"})
	StaleDeltasTotal    = prometheus.NewCounter(prometheus.CounterOpts{Name: "depthbook_stale_deltas_total", Help: "Deltas discarded while awaiting a snapshot"})
	FeedErrorsTotal     = prometheus.NewCounter(prometheus.CounterOpts{Name: "depthbook_feed_errors_total", Help: "Error messages sent by the feed"})
	FlushesTotal        = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "depthbook_flushes_total", Help: "Buffer flushes by trigger"}, []string{"trigger"})
	SnapshotsTotal      = prometheus.NewCounter(prometheus.CounterOpts{Name: "depthbook_snapshots_total", Help: "Snapshots applied"})
	ResetsTotal         = prometheus.NewCounter(prometheus.CounterOpts{Name: "depthbook_resets_total", Help: "Book resets on product change"})
	ConnectionEvents    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "depthbook_connection_events_total", Help: "Feed connection events"}, []string{"event"})
	WSReconnectsTotal   = prometheus.NewCounter(prometheus.CounterOpts{Name: "depthbook_ws_reconnects_total", Help: "Feed reconnect attempts"})
	DroppedFramesTotal  = prometheus.NewCounter(prometheus.CounterOpts{Name: "depthbook_dropped_frames_total", Help: "Frames dropped because the frame channel was full"})
	BookLevels          = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "depthbook_book_levels", Help: "Price levels held per side"}, []string{"side"})
	PendingChanges      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "depthbook_pending_changes", Help: "Changes buffered and not yet applied"})
	GatewayClients      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "depthbook_gateway_clients", Help: "Connected renderer clients"})
	ApplyLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "depthbook_apply_latency_seconds", Help: "Time to route one frame into the book", Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10)})
)

// Init registers every collector on a private registry
func Init(logger zerolog.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	toRegister := []prometheus.Collector{
		FramesTotal, ParseErrorsTotal, DroppedChangesTotal, IrrelevantTotal,
		StaleDeltasTotal, FeedErrorsTotal, FlushesTotal, SnapshotsTotal, ResetsTotal,
		ConnectionEvents, WSReconnectsTotal, DroppedFramesTotal,
		BookLevels, PendingChanges, GatewayClients, ApplyLatencySeconds,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range toRegister {
		if err := reg.Register(c); err != nil {
			logger.Warn().Err(err).Msg("metric registration failed")
		}
	}
	logger.Info().Msg("Prometheus metrics initialized")
	return reg
}

// Handler serves the registry in the Prometheus exposition format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
