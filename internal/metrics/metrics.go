package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clubsite"

// Registry is the process-wide registry served on /metrics.
var Registry = prometheus.NewRegistry()

// AppInfo is always 1; build info lives in the labels.
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information",
	},
	[]string{"version", "commit", "build_date"},
)

// Cache metrics
var (
	CacheHits = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache lookups served from memory",
		},
		[]string{"resource"},
	)

	CacheMisses = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Cache lookups that required a load",
		},
		[]string{"resource"},
	)

	CacheInvalidations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidations_total",
			Help:      "Entries dropped by explicit invalidation",
		},
		[]string{"resource"},
	)
)

// CMS metrics
var (
	CMSRequests = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cms_requests_total",
			Help:      "Requests to the headless CMS",
		},
		[]string{"document", "result"}, // result: ok|error
	)

	CMSLatency = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cms_request_duration_seconds",
			Help:      "CMS query latency in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"document"},
	)
)

// Domain metrics
var (
	EventRegistrations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_registrations_total",
			Help:      "Event registration attempts by outcome",
		},
		[]string{"result"}, // ok|full|duplicate|closed|cancelled
	)

	EmailsSent = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_sent_total",
			Help:      "Outgoing emails by template and result",
		},
		[]string{"template", "provider", "result"},
	)

	UploadBytes = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_size_bytes",
			Help:      "Size of accepted uploads",
			Buckets:   prometheus.ExponentialBuckets(16<<10, 4, 7),
		},
		[]string{"backend"},
	)
)

var registerRuntime sync.Once

// Init registers runtime collectors and build information.
func Init(version, commit, buildDate string) {
	registerRuntime.Do(func() {
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
