package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfvalidator",
			Name:      "classifications_total",
			Help:      "Document classifications by strategy and result (valid, invalid, or error kind)",
		},
		[]string{"strategy", "result"},
	)

	classifyLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdfvalidator",
			Name:      "classification_duration_seconds",
			Help:      "Duration of document classifications by strategy",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"strategy"},
	)

	pagesClassified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfvalidator",
			Name:      "pages_classified_total",
			Help:      "Pages classified by page verdict (blank, content)",
		},
		[]string{"verdict"},
	)

	cacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfvalidator",
			Name:      "cache_events_total",
			Help:      "Verdict cache events (hit, miss, error, store)",
		},
		[]string{"event"},
	)

	inflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pdfvalidator",
			Name:      "inflight_classifications",
			Help:      "Classifications currently holding a limiter slot",
		},
	)

	gcRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pdfvalidator",
			Name:      "forced_gc_total",
			Help:      "Forced garbage collections during long documents",
		},
	)

	heapAlloc = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pdfvalidator",
			Name:      "heap_alloc_bytes",
			Help:      "Heap in use after the last forced collection",
		},
	)

	once sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(classifications, classifyLatency, pagesClassified, cacheEvents, inflight, gcRuns, heapAlloc)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

// ObserveClassification records one finished classification. result is
// "valid", "invalid" or an error kind.
func ObserveClassification(strategy, result string, dur time.Duration) {
	classifications.WithLabelValues(strategy, result).Inc()
	classifyLatency.WithLabelValues(strategy).Observe(dur.Seconds())
}

func IncPage(verdict string) { pagesClassified.WithLabelValues(verdict).Inc() }
func IncCache(event string)  { cacheEvents.WithLabelValues(event).Inc() }
func IncInflight()           { inflight.Inc() }
func DecInflight()           { inflight.Dec() }

// ObserveGC records a forced collection and the heap left after it.
func ObserveGC(heapBytes uint64) {
	gcRuns.Inc()
	heapAlloc.Set(float64(heapBytes))
}
