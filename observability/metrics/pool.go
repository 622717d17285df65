package metrics

import (
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PoolMetrics exposes Prometheus instrumentation for the pool's own
// accounting and risk state: reserve utilization, borrower health, auction
// activity, and the backstop's loss-absorption capacity.
type PoolMetrics struct {
	reserveUtilization *prometheus.GaugeVec
	reserveBRate       *prometheus.GaugeVec
	reserveDRate       *prometheus.GaugeVec
	healthFactor       *prometheus.GaugeVec
	auctionsCreated    *prometheus.CounterVec
	auctionFills       *prometheus.CounterVec
	badDebtWrittenOff  *prometheus.CounterVec
	backstopPot        *prometheus.GaugeVec
	backstopQ4wQueued  *prometheus.GaugeVec
	emissionsAccrued   *prometheus.CounterVec
}

var (
	poolOnce     sync.Once
	poolRegistry *PoolMetrics
)

// Pool returns the process-wide pool metrics registry, registering its
// collectors with the default Prometheus registerer on first use.
func Pool() *PoolMetrics {
	poolOnce.Do(func() {
		poolRegistry = &PoolMetrics{
			reserveUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "pool_reserve_utilization",
				Help: "Current utilization (borrowed / supplied) per reserve asset.",
			}, []string{"asset"}),
			reserveBRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "pool_reserve_b_rate",
				Help: "Current asset-per-b-token exchange rate per reserve asset.",
			}, []string{"asset"}),
			reserveDRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "pool_reserve_d_rate",
				Help: "Current asset-per-d-token exchange rate per reserve asset.",
			}, []string{"asset"}),
			healthFactor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "pool_user_health_factor",
				Help: "Most recently computed health factor for a user position.",
			}, []string{"user"}),
			auctionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "pool_auctions_created_total",
				Help: "Count of auctions created by kind.",
			}, []string{"kind"}),
			auctionFills: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "pool_auction_fills_total",
				Help: "Count of auction fills by kind.",
			}, []string{"kind"}),
			badDebtWrittenOff: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "pool_bad_debt_written_off_total",
				Help: "Cumulative bad debt burned off reserve b_rate by TransferBadDebt when the backstop is nearly empty, by asset.",
			}, []string{"asset"}),
			backstopPot: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "pool_backstop_pot_tokens",
				Help: "Current backstop pot token balance for a pool.",
			}, []string{"pool"}),
			backstopQ4wQueued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "pool_backstop_q4w_queued_shares",
				Help: "Shares currently queued for withdrawal from a pool's backstop.",
			}, []string{"pool"}),
			emissionsAccrued: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "pool_emissions_accrued_total",
				Help: "Emission tokens accrued to users, by reserve and side.",
			}, []string{"reserve", "side"}),
		}
		prometheus.MustRegister(
			poolRegistry.reserveUtilization,
			poolRegistry.reserveBRate,
			poolRegistry.reserveDRate,
			poolRegistry.healthFactor,
			poolRegistry.auctionsCreated,
			poolRegistry.auctionFills,
			poolRegistry.badDebtWrittenOff,
			poolRegistry.backstopPot,
			poolRegistry.backstopQ4wQueued,
			poolRegistry.emissionsAccrued,
		)
	})
	return poolRegistry
}

func (m *PoolMetrics) SetReserveUtilization(asset string, util float64) {
	if m == nil {
		return
	}
	m.reserveUtilization.WithLabelValues(normalise(asset)).Set(util)
}

func (m *PoolMetrics) SetReserveRates(asset string, bRate, dRate float64) {
	if m == nil {
		return
	}
	label := normalise(asset)
	m.reserveBRate.WithLabelValues(label).Set(bRate)
	m.reserveDRate.WithLabelValues(label).Set(dRate)
}

func (m *PoolMetrics) SetHealthFactor(user string, hf float64) {
	if m == nil {
		return
	}
	m.healthFactor.WithLabelValues(normalise(user)).Set(hf)
}

func (m *PoolMetrics) ObserveAuctionCreated(kind string) {
	if m == nil {
		return
	}
	m.auctionsCreated.WithLabelValues(normaliseKind(kind)).Inc()
}

func (m *PoolMetrics) ObserveAuctionFill(kind string) {
	if m == nil {
		return
	}
	m.auctionFills.WithLabelValues(normaliseKind(kind)).Inc()
}

func (m *PoolMetrics) AddBadDebtWrittenOff(asset string, amount float64) {
	if m == nil {
		return
	}
	m.badDebtWrittenOff.WithLabelValues(normalise(asset)).Add(amount)
}

func (m *PoolMetrics) SetBackstopPot(pool string, tokens float64) {
	if m == nil {
		return
	}
	m.backstopPot.WithLabelValues(normalise(pool)).Set(tokens)
}

func (m *PoolMetrics) SetBackstopQ4wQueued(pool string, shares float64) {
	if m == nil {
		return
	}
	m.backstopQ4wQueued.WithLabelValues(normalise(pool)).Set(shares)
}

func (m *PoolMetrics) AddEmissionsAccrued(reserveIndex uint32, side string, amount float64) {
	if m == nil {
		return
	}
	label := fmt.Sprintf("%d", reserveIndex)
	m.emissionsAccrued.WithLabelValues(label, normaliseKind(side)).Add(amount)
}

// ReserveUtilizationVec exposes the underlying collector for callers that
// need to wire it into a custom registry (e.g. a per-test registerer).
func (m *PoolMetrics) ReserveUtilizationVec() *prometheus.GaugeVec {
	if m == nil {
		return nil
	}
	return m.reserveUtilization
}

func normalise(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}

func normaliseKind(kind string) string {
	trimmed := strings.TrimSpace(kind)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
