package briefing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orbit_connector_fetch_failures_total",
		Help: "Connector fetches that failed and were omitted from a bundle.",
	}, []string{"provider"})

	generations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orbit_briefing_generations_total",
		Help: "Briefing generation attempts by outcome.",
	}, []string{"outcome"})
)
