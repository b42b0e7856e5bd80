package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Login and refresh outcome labels.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeInvalidGrant       = "invalid_grant"
	OutcomeError              = "error"
)

type Metrics struct {
	LoginAttempts   *prometheus.CounterVec
	RefreshAttempts *prometheus.CounterVec
	TokensIssued    prometheus.Counter
	TokensRevoked   prometheus.Counter
	AccessRevoked   prometheus.Counter
	DeviceDrift     prometheus.Counter
}

// New registers the auth metrics on reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "teller_auth_login_attempts_total",
			Help: "Password logins by outcome",
		}, []string{"outcome"}),
		RefreshAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "teller_auth_refresh_attempts_total",
			Help: "Refresh token exchanges by outcome",
		}, []string{"outcome"}),
		TokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "teller_auth_tokens_issued_total",
			Help: "Token pairs issued",
		}),
		TokensRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "teller_auth_refresh_tokens_revoked_total",
			Help: "Refresh tokens revoked through logout or the revoke endpoint",
		}),
		AccessRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "teller_auth_access_tokens_revoked_total",
			Help: "Access tokens added to the revocation list",
		}),
		DeviceDrift: factory.NewCounter(prometheus.CounterOpts{
			Name: "teller_auth_device_drift_total",
			Help: "Refreshes presented from a different device fingerprint than the login",
		}),
	}
}

func (m *Metrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRefresh(outcome string) {
	if m == nil {
		return
	}
	m.RefreshAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementTokensIssued() {
	if m == nil {
		return
	}
	m.TokensIssued.Inc()
}

func (m *Metrics) IncrementTokensRevoked() {
	if m == nil {
		return
	}
	m.TokensRevoked.Inc()
}

func (m *Metrics) IncrementAccessTokensRevoked() {
	if m == nil {
		return
	}
	m.AccessRevoked.Inc()
}

func (m *Metrics) IncrementDeviceDrift() {
	if m == nil {
		return
	}
	m.DeviceDrift.Inc()
}
