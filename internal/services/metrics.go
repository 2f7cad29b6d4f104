package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// submissionsTotal counts Submit outcomes
	// (accepted, duplicate, invalid, render_failed, store_failed, delivery_failed).
	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_submissions_total",
			Help: "Quote submissions by outcome.",
		},
		[]string{"outcome"},
	)

	// mailSendsTotal counts individual sends by recipient role and result.
	mailSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_mail_sends_total",
			Help: "Outbound quote emails by recipient role and status.",
		},
		[]string{"role", "status"},
	)

	mailSendSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quote_mail_send_duration_seconds",
			Help:    "Duration of a single outbound email send.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// downloadsTotal counts download attempts by outcome
	// (ok, missing_token, invalid_token, not_found, error).
	downloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_downloads_total",
			Help: "Artifact downloads by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(submissionsTotal, mailSendsTotal, mailSendSeconds, downloadsTotal)
}
