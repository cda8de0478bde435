package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// 全部指标注册在默认 Registry 上，由 /metrics 暴露。
var (
	VariantUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reverse_auction",
		Name:      "variant_updates_total",
		Help:      "Variant price writes by result (ok, failed).",
	}, []string{"result"})

	CatalogRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reverse_auction",
		Name:      "catalog_retries_total",
		Help:      "Retried catalog API calls by operation.",
	}, []string{"op"})

	StepsFired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reverse_auction",
		Name:      "steps_fired_total",
		Help:      "Discount steps applied by the scheduler.",
	})

	CurrentDiscount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reverse_auction",
		Name:      "current_discount_percent",
		Help:      "Live discount percentage.",
	})

	TickDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reverse_auction",
		Name:      "tick_duration_seconds",
		Help:      "Scheduler tick duration by outcome.",
		Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 120},
	}, []string{"outcome"})

	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reverse_auction",
		Name:      "events_published_total",
		Help:      "Auction lifecycle events by sink and result.",
	}, []string{"sink", "result"})
)

func init() {
	prometheus.MustRegister(VariantUpdates, CatalogRetries, StepsFired, CurrentDiscount, TickDuration, EventsPublished)
}
