package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enhancer_outcomes_total",
			Help: "Per-article enhancement outcomes by status",
		},
		[]string{"status"},
	)

	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enhancer_provider_requests_total",
			Help: "Text generation attempts by provider and result",
		},
		[]string{"provider", "result"},
	)

	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enhancer_fetch_total",
			Help: "Source page fetches by result",
		},
		[]string{"result"},
	)

	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enhancer_search_requests_total",
			Help: "Web search requests by result",
		},
		[]string{"result"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enhancer_batch_duration_seconds",
			Help:    "Wall time of a full enhancement batch",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)

// Result labels shared by the counters above.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
