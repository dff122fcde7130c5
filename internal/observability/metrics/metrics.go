// Package metrics exposes prometheus counters for the reconciliation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "entitlement",
		Name:      "webhook_events_total",
		Help:      "Webhook events by type and outcome (applied, ignored, dropped, invalid, error).",
	}, []string{"type", "outcome"})

	sweepExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "entitlement",
		Name:      "sweep_expired_subscriptions_total",
		Help:      "Subscriptions force-expired by the expiry sweep.",
	})

	sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "entitlement",
		Name:      "sweep_runs_total",
		Help:      "Expiry sweep runs by outcome.",
	}, []string{"outcome"})

	promoRedemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "entitlement",
		Name:      "promo_redemptions_total",
		Help:      "Promo code redemption attempts by outcome.",
	}, []string{"outcome"})
)

func IncWebhookEvent(eventType, outcome string) {
	webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func AddSweepExpired(n int) {
	sweepExpired.Add(float64(n))
}

func IncSweepRun(outcome string) {
	sweepRuns.WithLabelValues(outcome).Inc()
}

func IncPromoRedemption(outcome string) {
	promoRedemptions.WithLabelValues(outcome).Inc()
}
