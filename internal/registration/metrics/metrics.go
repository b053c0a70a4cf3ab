package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registration saga. All methods are
// safe on a nil receiver so services can run without metrics.
type Metrics struct {
	Registrations        *prometheus.CounterVec
	PhaseDuration        *prometheus.HistogramVec
	RollbackActions      *prometheus.CounterVec
	OrphanedIdentities   prometheus.Counter
	SoftFailures         prometheus.Counter
	WelcomeNotifications *prometheus.CounterVec
}

// New registers the saga metrics on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_registrations_total",
			Help: "Registration attempts by outcome and the phase they ended in",
		}, []string{"outcome", "phase"}),
		PhaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onboarding_registration_phase_duration_seconds",
			Help:    "Duration of each registration phase's collaborator call",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		}, []string{"phase"}),
		RollbackActions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_rollback_actions_total",
			Help: "Compensating actions replayed, by kind and outcome",
		}, []string{"kind", "outcome"}),
		OrphanedIdentities: factory.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_orphaned_identities_total",
			Help: "Identities left behind because identity compensation was unavailable or failed",
		}),
		SoftFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_metadata_soft_failures_total",
			Help: "Metadata phase failures that were logged and skipped",
		}),
		WelcomeNotifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_welcome_notifications_total",
			Help: "Welcome notification dispatches by outcome (sent, failed, skipped)",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncRegistration(outcome, phase string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(outcome, phase).Inc()
}

// ObservePhase records the duration of a phase. Call with time.Now() taken
// before the collaborator call.
func (m *Metrics) ObservePhase(phase string, start time.Time) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncRollbackAction(kind, outcome string) {
	if m == nil {
		return
	}
	m.RollbackActions.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) IncOrphanedIdentity() {
	if m == nil {
		return
	}
	m.OrphanedIdentities.Inc()
}

func (m *Metrics) IncSoftFailure() {
	if m == nil {
		return
	}
	m.SoftFailures.Inc()
}

func (m *Metrics) IncWelcomeNotification(outcome string) {
	if m == nil {
		return
	}
	m.WelcomeNotifications.WithLabelValues(outcome).Inc()
}
