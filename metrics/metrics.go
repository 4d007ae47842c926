// Package metrics exposes the pool daemon's Prometheus instrumentation,
// grounded on observability/metrics/potso.go's sync.Once registry shape.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PoolMetrics is the daemon-wide gauge/counter registry.
type PoolMetrics struct {
	reserveUtilization   *prometheus.GaugeVec
	reserveBRate         *prometheus.GaugeVec
	reserveDRate         *prometheus.GaugeVec
	submitTotal          *prometheus.CounterVec
	submitRejectedTotal  *prometheus.CounterVec
	activeAuctions       *prometheus.GaugeVec
	auctionFillTotal     *prometheus.CounterVec
	emissionAccrualRate  prometheus.Gauge
	backfilledEmissions  prometheus.Gauge
	rewardZoneSize       prometheus.Gauge
	gulpTotal            *prometheus.CounterVec
	backstopTokens       *prometheus.GaugeVec
}

var (
	once     sync.Once
	registry *PoolMetrics
)

// Pool returns the process-wide metrics registry, initializing and
// registering it with the default Prometheus registerer on first use.
func Pool() *PoolMetrics {
	once.Do(func() {
		registry = &PoolMetrics{
			reserveUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "poolcore_reserve_utilization",
				Help: "Current utilization (scalar 1e7) per reserve.",
			}, []string{"pool", "reserve"}),
			reserveBRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "poolcore_reserve_b_rate",
				Help: "Current b_rate (scalar 1e12) per reserve.",
			}, []string{"pool", "reserve"}),
			reserveDRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "poolcore_reserve_d_rate",
				Help: "Current d_rate (scalar 1e12) per reserve.",
			}, []string{"pool", "reserve"}),
			submitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "poolcore_submit_total",
				Help: "Count of submitted request batches by outcome.",
			}, []string{"pool", "outcome"}),
			submitRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "poolcore_submit_rejected_total",
				Help: "Count of rejected request batches by error code.",
			}, []string{"pool", "code"}),
			activeAuctions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "poolcore_active_auctions",
				Help: "Count of open auctions by kind.",
			}, []string{"pool", "kind"}),
			auctionFillTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "poolcore_auction_fill_total",
				Help: "Count of auction fills by kind.",
			}, []string{"pool", "kind"}),
			emissionAccrualRate: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "poolcore_emission_accrual_rate",
				Help: "Most recent per-call emissions accrual (scalar 1e7 tokens).",
			}),
			backfilledEmissions: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "poolcore_backfilled_emissions",
				Help: "Cumulative emissions minted by the backfill path (scalar 1e7 tokens).",
			}),
			rewardZoneSize: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "poolcore_reward_zone_size",
				Help: "Current reward zone membership count.",
			}),
			gulpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "poolcore_gulp_total",
				Help: "Count of gulp_emissions calls by pool.",
			}, []string{"pool"}),
			backstopTokens: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "poolcore_backstop_tokens",
				Help: "Backstop LP tokens backing a pool's allocation.",
			}, []string{"pool"}),
		}
		prometheus.MustRegister(
			registry.reserveUtilization,
			registry.reserveBRate,
			registry.reserveDRate,
			registry.submitTotal,
			registry.submitRejectedTotal,
			registry.activeAuctions,
			registry.auctionFillTotal,
			registry.emissionAccrualRate,
			registry.backfilledEmissions,
			registry.rewardZoneSize,
			registry.gulpTotal,
			registry.backstopTokens,
		)
	})
	return registry
}

// ObserveReserveRates records a reserve's current utilization and rate
// indices. The pool package does not call it; Accrue updates no metrics.
func (m *PoolMetrics) ObserveReserveRates(pool, reserve string, utilization, bRate, dRate float64) {
	m.reserveUtilization.WithLabelValues(pool, reserve).Set(utilization)
	m.reserveBRate.WithLabelValues(pool, reserve).Set(bRate)
	m.reserveDRate.WithLabelValues(pool, reserve).Set(dRate)
}

// ObserveSubmit records a completed Submit call's outcome.
func (m *PoolMetrics) ObserveSubmit(pool, outcome string) {
	m.submitTotal.WithLabelValues(pool, outcome).Inc()
}

// ObserveSubmitRejected records a failed Submit call's stable error code.
func (m *PoolMetrics) ObserveSubmitRejected(pool string, code int) {
	m.submitRejectedTotal.WithLabelValues(pool, strconv.Itoa(code)).Inc()
}

// SetActiveAuctions records the current open-auction count for one kind.
func (m *PoolMetrics) SetActiveAuctions(pool, kind string, count float64) {
	m.activeAuctions.WithLabelValues(pool, kind).Set(count)
}

// ObserveAuctionFill records a completed (possibly partial) auction fill.
func (m *PoolMetrics) ObserveAuctionFill(pool, kind string) {
	m.auctionFillTotal.WithLabelValues(pool, kind).Inc()
}

// ObserveEmissionsDistribute records a distribute() call's accrual and the
// running backfill total.
func (m *PoolMetrics) ObserveEmissionsDistribute(accrued, backfilled float64) {
	m.emissionAccrualRate.Set(accrued)
	m.backfilledEmissions.Set(backfilled)
}

// SetRewardZoneSize records the current reward-zone membership count.
func (m *PoolMetrics) SetRewardZoneSize(size float64) {
	m.rewardZoneSize.Set(size)
}

// ObserveGulp records a completed gulp_emissions call.
func (m *PoolMetrics) ObserveGulp(pool string) {
	m.gulpTotal.WithLabelValues(pool).Inc()
}

// SetBackstopTokens records a pool's current backstop token balance.
func (m *PoolMetrics) SetBackstopTokens(pool string, tokens float64) {
	m.backstopTokens.WithLabelValues(pool).Set(tokens)
}
