package dedup

import "github.com/prometheus/client_golang/prometheus"

var (
	// checksTotal counts CheckAndMarkInFlight decisions by outcome
	// (fresh, in_flight, processed).
	checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_dedup_checks_total",
			Help: "Duplicate-cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	evictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quote_dedup_evictions_total",
			Help: "Entries removed from the duplicate cache by sweeps.",
		},
	)

	// entries is refreshed on every sweep rather than on each mutation.
	entries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quote_dedup_entries",
			Help: "Entries held by the duplicate cache after the last sweep.",
		},
		[]string{"map"},
	)
)

func init() {
	prometheus.MustRegister(checksTotal, evictionsTotal, entries)
}
