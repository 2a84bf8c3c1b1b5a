// Package metrics holds the Prometheus collectors for authentication,
// lockout and rate limiting. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Authentication outcomes
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeLocked             = "locked"
	OutcomeRateLimited        = "rate_limited"
	OutcomeMalformed          = "malformed_credential"
	OutcomeError              = "error"
)

// Metrics is the set of collectors shared by the services
type Metrics struct {
	authAttempts  *prometheus.CounterVec
	lockouts      prometheus.Counter
	rateDecisions *prometheus.CounterVec
	registrations *prometheus.CounterVec
	hashDuration  *prometheus.HistogramVec
	storeConflict *prometheus.CounterVec
	swept         prometheus.Counter
}

// New creates the collectors and registers them with reg.
// Panics if registration fails (following prometheus convention).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		authAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_auth_attempts_total",
				Help: "Total number of authentication attempts by outcome",
			},
			[]string{"outcome"},
		),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_account_lockouts_total",
			Help: "Total number of accounts locked after repeated failures",
		}),
		rateDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_rate_limit_decisions_total",
				Help: "Rate limiter decisions by endpoint class",
			},
			[]string{"endpoint_class", "decision"},
		),
		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_registrations_total",
				Help: "Registration attempts by outcome",
			},
			[]string{"outcome"},
		),
		hashDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_password_hash_duration_seconds",
				Help:    "Time spent hashing or verifying passwords",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
		storeConflict: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_store_cas_conflicts_total",
				Help: "Compare-and-swap retries on the keyed state store",
			},
			[]string{"keyspace"},
		),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_store_swept_entries_total",
			Help: "Expired state entries reclaimed by the background sweeper",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.authAttempts,
			m.lockouts,
			m.rateDecisions,
			m.registrations,
			m.hashDuration,
			m.storeConflict,
			m.swept,
		)
	}

	return m
}

// AuthAttempt counts one authentication verdict
func (m *Metrics) AuthAttempt(outcome string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(outcome).Inc()
}

// Lockout counts an account transitioning to locked
func (m *Metrics) Lockout() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

// RateDecision counts an allow or reject for an endpoint class
func (m *Metrics) RateDecision(endpointClass string, allowed bool) {
	if m == nil {
		return
	}
	decision := "allowed"
	if !allowed {
		decision = "rejected"
	}
	m.rateDecisions.WithLabelValues(endpointClass, decision).Inc()
}

// Registration counts a registration outcome
func (m *Metrics) Registration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

// ObserveHash records how long a hash or verify took
func (m *Metrics) ObserveHash(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.hashDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// StoreConflict counts a lost compare-and-swap race
func (m *Metrics) StoreConflict(keyspace string) {
	if m == nil {
		return
	}
	m.storeConflict.WithLabelValues(keyspace).Inc()
}

// Swept counts reclaimed store entries
func (m *Metrics) Swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(float64(n))
}
