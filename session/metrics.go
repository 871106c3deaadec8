package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts session operations. A nil *Metrics records nothing.
type Metrics struct {
	SignIns         *prometheus.CounterVec
	Refreshes       *prometheus.CounterVec
	SharedRefreshes prometheus.Counter
	SignOuts        *prometheus.CounterVec
}

// NewMetrics registers the session counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SignIns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "invoice",
				Subsystem: "session",
				Name:      "signin_total",
				Help:      "Sign-in attempts by result",
			},
			[]string{"result"},
		),
		Refreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "invoice",
				Subsystem: "session",
				Name:      "refresh_total",
				Help:      "Refresh requests sent to the identity provider by result",
			},
			[]string{"result"},
		),
		SharedRefreshes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "invoice",
				Subsystem: "session",
				Name:      "refresh_shared_total",
				Help:      "Token calls that shared a refresh with at least one other caller",
			},
		),
		SignOuts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "invoice",
				Subsystem: "session",
				Name:      "signout_total",
				Help:      "Sign-outs by outcome of the remote revocation",
			},
			[]string{"remote"},
		),
	}
}

func (m *Metrics) signIn(result string) {
	if m == nil {
		return
	}
	m.SignIns.WithLabelValues(result).Inc()
}

func (m *Metrics) refresh(result string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) sharedRefresh() {
	if m == nil {
		return
	}
	m.SharedRefreshes.Inc()
}

func (m *Metrics) signOut(remote string) {
	if m == nil {
		return
	}
	m.SignOuts.WithLabelValues(remote).Inc()
}
