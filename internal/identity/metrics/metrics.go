// Package metrics defines the Prometheus metrics exposed by the identity
// service. It is the single source of truth for metric names, labels, and
// help strings; register happens implicitly via promauto at package load.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "identity"

// LoginsTotal counts login attempts by outcome.
// Label:
//   - outcome: "ok", "second_factor_pending", or "rejected"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by outcome.",
	},
	[]string{"outcome"},
)

// SecondFactorVerificationsTotal counts second-factor challenge
// verifications.
// Labels:
//   - method: "totp" or "backup_code"
//   - outcome: "ok" or "rejected"
var SecondFactorVerificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "second_factor_verifications_total",
		Help:      "Total number of second-factor challenge verifications, by method and outcome.",
	},
	[]string{"method", "outcome"},
)

// TokensIssuedTotal counts issued tokens by kind.
var TokensIssuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_issued_total",
		Help:      "Total number of signed tokens issued, by kind.",
	},
	[]string{"kind"},
)
