package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Growth funnel counters scraped via /metrics.
var (
	LinksMinted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "growthloop_links_minted_total",
		Help: "Smart links minted, by loop.",
	}, []string{"loop"})

	QuotaRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "growthloop_quota_rejections_total",
		Help: "Link creations rejected by the daily quota.",
	})

	LinksResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "growthloop_links_resolved_total",
		Help: "Smart link resolutions, by outcome (ok, invalid).",
	}, []string{"outcome"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "growthloop_events_published_total",
		Help: "Tracking events accepted for publish, by name.",
	}, []string{"name"})
)
