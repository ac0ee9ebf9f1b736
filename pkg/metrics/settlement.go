package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the settlement counters.
const (
	OutcomeApplied  = "applied"
	OutcomeReplayed = "replayed"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// SettlementMetrics records money-moving and pricing activity.
type SettlementMetrics struct {
	walletMutations      *prometheus.CounterVec
	paymentVerifications *prometheus.CounterVec
	feeCalculations      *prometheus.CounterVec
	promotionRedemptions *prometheus.CounterVec
	providerLatency      *prometheus.HistogramVec
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
// A nil registerer yields a no-op collector.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	walletMutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_mutations_total",
		Help: "Wallet credit and debit attempts by type and outcome.",
	}, []string{"type", "outcome"})
	paymentVerifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_verifications_total",
		Help: "Gateway payment verifications by mode and resulting status.",
	}, []string{"mode", "status"})
	feeCalculations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_fee_calculations_total",
		Help: "Delivery fee calculations by outcome.",
	}, []string{"outcome"})
	promotionRedemptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promotion_redemptions_total",
		Help: "Promotion evaluations by outcome or rejection reason.",
	}, []string{"outcome"})
	providerLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provider_request_duration_seconds",
		Help:    "Latency of outbound provider calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})
	reg.MustRegister(walletMutations, paymentVerifications, feeCalculations, promotionRedemptions, providerLatency)
	return &SettlementMetrics{
		walletMutations:      walletMutations,
		paymentVerifications: paymentVerifications,
		feeCalculations:      feeCalculations,
		promotionRedemptions: promotionRedemptions,
		providerLatency:      providerLatency,
	}
}

// IncWalletMutation counts a ledger operation.
func (m *SettlementMetrics) IncWalletMutation(txType, outcome string) {
	if m == nil || m.walletMutations == nil {
		return
	}
	m.walletMutations.WithLabelValues(normalizeLabel(txType), normalizeLabel(outcome)).Inc()
}

// IncPaymentVerification counts a verify call.
func (m *SettlementMetrics) IncPaymentVerification(mode, status string) {
	if m == nil || m.paymentVerifications == nil {
		return
	}
	m.paymentVerifications.WithLabelValues(normalizeLabel(mode), normalizeLabel(status)).Inc()
}

// IncFeeCalculation counts a fee quote.
func (m *SettlementMetrics) IncFeeCalculation(outcome string) {
	if m == nil || m.feeCalculations == nil {
		return
	}
	m.feeCalculations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncPromotion counts a promotion evaluation.
func (m *SettlementMetrics) IncPromotion(outcome string) {
	if m == nil || m.promotionRedemptions == nil {
		return
	}
	m.promotionRedemptions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveProviderCall records the latency of an outbound call.
func (m *SettlementMetrics) ObserveProviderCall(provider, operation string, duration time.Duration) {
	if m == nil || m.providerLatency == nil {
		return
	}
	m.providerLatency.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
