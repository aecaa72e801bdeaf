// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics register with the default registry at import time, so they are
// never nil and callers never need an init step.
var (
	// Counters
	DiscoveryPasses     = promauto.NewCounter(prometheus.CounterOpts{Name: "herald_discovery_passes_total", Help: "Number of discovery passes run against the platform search API"})
	DiscoveryInserted   = promauto.NewCounter(prometheus.CounterOpts{Name: "herald_discovery_inserted_total", Help: "Number of newly discovered broadcasts inserted"})
	LifecycleTicks      = promauto.NewCounter(prometheus.CounterOpts{Name: "herald_lifecycle_ticks_total", Help: "Number of lifecycle updater ticks"})
	AnnouncesPublished  = promauto.NewCounter(prometheus.CounterOpts{Name: "herald_announces_published_total", Help: "Number of announcement messages published"})
	AnnounceEdits       = promauto.NewCounter(prometheus.CounterOpts{Name: "herald_announce_edits_total", Help: "Number of announcement message edits"})
	BroadcastsCompleted = promauto.NewCounter(prometheus.CounterOpts{Name: "herald_broadcasts_completed_total", Help: "Number of broadcasts transitioned to completed"})
	CompileBatches      = promauto.NewCounter(prometheus.CounterOpts{Name: "herald_compile_batches_total", Help: "Number of archival tag batches emitted"})
	TagsAccepted        = promauto.NewCounter(prometheus.CounterOpts{Name: "herald_tags_accepted_total", Help: "Number of tag submissions accepted"})
	TagsRejected        = promauto.NewCounter(prometheus.CounterOpts{Name: "herald_tags_rejected_total", Help: "Number of tag submissions rejected"})
	PlatformAPIErrors   = promauto.NewCounter(prometheus.CounterOpts{Name: "herald_platform_api_errors_total", Help: "Number of failed video platform API calls"})

	// Histograms (seconds)
	DiscoveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "herald_discovery_duration_seconds", Help: "Discovery pass duration seconds", Buckets: prometheus.DefBuckets})
	TickDuration      = promauto.NewHistogram(prometheus.HistogramOpts{Name: "herald_lifecycle_tick_duration_seconds", Help: "Lifecycle tick duration seconds", Buckets: prometheus.DefBuckets})

	// Gauges
	LiveBroadcastsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "herald_live_broadcasts", Help: "Current number of broadcasts in live status"})
)

// SetLiveBroadcasts records the current number of live broadcasts.
func SetLiveBroadcasts(n int) {
	LiveBroadcastsGauge.Set(float64(n))
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
