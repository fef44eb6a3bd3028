// Package metrics exposes pool activity as Prometheus series.
package metrics

import (
	"context"
	"strconv"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alejandrodnm/oddspool/internal/application/pool"
	"github.com/alejandrodnm/oddspool/internal/domain"
)

const namespace = "oddspool"

// Collector is an event sink that counts events and tracks betting volume.
type Collector struct {
	events *prometheus.CounterVec
	staked prometheus.Counter
	paid   prometheus.Counter
	odds   prometheus.Histogram

	amountDecimals int
	oddsDecimals   int
}

// NewCollector registers the event series on reg.
func NewCollector(reg prometheus.Registerer, amountDecimals, oddsDecimals int) *Collector {
	f := promauto.With(reg)
	return &Collector{
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Committed state transitions by kind.",
		}, []string{"kind"}),
		staked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bets",
			Name:      "staked_total",
			Help:      "Total stake accepted, in asset units.",
		}),
		paid: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bets",
			Name:      "paid_total",
			Help:      "Total payouts withdrawn, in asset units.",
		}),
		odds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bets",
			Name:      "odds",
			Help:      "Decimal odds of accepted bets.",
			Buckets:   []float64{1.05, 1.25, 1.5, 1.75, 2, 2.5, 3, 5, 10, 20, 50},
		}),
		amountDecimals: amountDecimals,
		oddsDecimals:   oddsDecimals,
	}
}

func (c *Collector) Publish(_ context.Context, ev domain.Event) error {
	c.events.WithLabelValues(string(ev.Kind)).Inc()
	switch ev.Kind {
	case domain.EventBetPlaced:
		c.staked.Add(toFloat(&ev.Amount, c.amountDecimals))
		c.odds.Observe(toFloat(&ev.Odds, c.oddsDecimals))
	case domain.EventPayoutWithdrawn:
		c.paid.Add(toFloat(&ev.Amount, c.amountDecimals))
	}
	return nil
}

// RegisterPool exposes the balance sheet of p as gauges sampled at scrape
// time.
func RegisterPool(reg prometheus.Registerer, p *pool.Pool, amountDecimals int) {
	f := promauto.With(reg)
	gauge := func(name, help string, value func(pool.Snapshot) float64) {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return value(p.Snapshot()) })
	}
	amount := func(v uint256.Int) float64 { return toFloat(&v, amountDecimals) }

	gauge("liquidity", "Depositor-owned liquidity.", func(s pool.Snapshot) float64 { return amount(s.Liquidity) })
	gauge("locked", "Liquidity locked as reinforcement.", func(s pool.Snapshot) float64 { return amount(s.Locked) })
	gauge("free", "Liquidity available for new conditions and withdrawals.", func(s pool.Snapshot) float64 { return amount(s.Free) })
	gauge("escrow", "Stakes held for open conditions.", func(s pool.Snapshot) float64 { return amount(s.Escrow) })
	gauge("payout_reserve", "Owed to winners, not yet withdrawn.", func(s pool.Snapshot) float64 { return amount(s.PayoutReserve) })
	gauge("open_conditions", "Conditions not yet decided.", func(s pool.Snapshot) float64 { return float64(s.OpenConditions) })
	gauge("depositors", "Accounts holding shares.", func(s pool.Snapshot) float64 { return float64(s.Depositors) })

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "pending_transfers",
		Help:      "Transfers submitted but not yet confirmed.",
	}, func() float64 { return float64(len(p.PendingTransfers())) })
}

// toFloat is lossy; it is only meant for dashboards.
func toFloat(v *uint256.Int, decimals int) float64 {
	f, err := strconv.ParseFloat(domain.FormatFixed(v, decimals), 64)
	if err != nil {
		return 0
	}
	return f
}
