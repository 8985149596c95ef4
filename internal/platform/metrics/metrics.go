package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the registry.
type Metrics struct {
	IdentitiesRegistered prometheus.Counter
	CertificatesIssued   prometheus.Counter
	CertificatesRevoked  prometheus.Counter
	BadgesAwarded        prometheus.Counter
	DisputesCreated      prometheus.Counter
	DisputesResolved     *prometheus.CounterVec
	TrustAdjustments     prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		IdentitiesRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credence_identities_registered_total",
			Help: "Total number of identities registered",
		}),
		CertificatesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credence_certificates_issued_total",
			Help: "Total number of certificates issued",
		}),
		CertificatesRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credence_certificates_revoked_total",
			Help: "Total number of certificates revoked",
		}),
		BadgesAwarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credence_badges_awarded_total",
			Help: "Total number of badge awards",
		}),
		DisputesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credence_disputes_created_total",
			Help: "Total number of disputes opened",
		}),
		DisputesResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credence_disputes_resolved_total",
			Help: "Total number of disputes resolved, by outcome",
		}, []string{"outcome"}),
		TrustAdjustments: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "credence_trust_adjustment_delta",
			Help:    "Distribution of trust score deltas applied",
			Buckets: []float64{-20, -15, -10, -5, 0, 5, 10, 15, 20},
		}),
	}
}
