package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medsplit_registrations_total",
		Help: "Patient registrations by the linkage state they ended in.",
	}, []string{"state"})

	securityViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medsplit_security_violations_total",
		Help: "Personal fields caught on their way into or out of the clinical store.",
	}, []string{"source"})

	clinicalUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medsplit_clinical_updates_total",
		Help: "Clinical record updates by result.",
	}, []string{"result"})

	deletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medsplit_deletions_total",
		Help: "Per-store deletion outcomes.",
	}, []string{"store", "result"})

	verificationRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medsplit_verification_runs_total",
		Help: "Separation verification runs.",
	})

	verificationFindings = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "medsplit_verification_findings",
		Help: "Findings of the most recent separation verification, by category.",
	}, []string{"category"})
)

const (
	SourceGuard      = "guard"
	SourceReadFilter = "read_filter"
)

func ObserveRegistration(state string) {
	registrations.WithLabelValues(state).Inc()
}

func ObserveSecurityViolation(source string) {
	securityViolations.WithLabelValues(source).Inc()
}

func ObserveClinicalUpdate(result string) {
	clinicalUpdates.WithLabelValues(result).Inc()
}

func ObserveDeletion(store, result string) {
	deletions.WithLabelValues(store, result).Inc()
}

// ObserveVerification records one verifier run and replaces the finding gauges.
func ObserveVerification(findings map[string]int) {
	verificationRuns.Inc()
	for category, count := range findings {
		verificationFindings.WithLabelValues(category).Set(float64(count))
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
