package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	registry = prometheus.NewRegistry()
	logger   *zap.Logger
)

func Initialize(log *zap.Logger) {
	logger = log
	prometheus.DefaultRegisterer = registry
}

// Serve exposes the registry on addr at /metrics. It blocks, so run it in
// its own goroutine.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil && logger != nil {
		logger.Error("Metrics server stopped", zap.Error(err))
	}
}

// CycleMetrics covers one block-triggered pass over all markets.
type CycleMetrics struct {
	Cycles          prometheus.Counter
	SkippedTriggers prometheus.Counter
	CycleDuration   prometheus.Histogram
	MarketsIndexed  prometheus.Gauge
	ReserveUpdates  prometheus.Counter
	ReserveErrors   prometheus.Counter
}

func NewCycleMetrics(namespace string) *CycleMetrics {
	return &CycleMetrics{
		Cycles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of evaluation cycles run",
		}),
		SkippedTriggers: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_triggers_total",
			Help:      "Block triggers dropped because a cycle was already running",
		}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one full evaluation cycle",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		MarketsIndexed: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "markets_indexed",
			Help:      "Markets passing the liquidity floor in the last cycle",
		}),
		ReserveUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reserve_updates_total",
			Help:      "Total number of successful reserve refreshes",
		}),
		ReserveErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reserve_errors_total",
			Help:      "Total number of failed reserve refreshes",
		}),
	}
}

// ArbitrageMetrics covers detection and volume optimization.
type ArbitrageMetrics struct {
	Opportunities prometheus.Counter
	BestProfitWei prometheus.Gauge
}

func NewArbitrageMetrics(namespace string) *ArbitrageMetrics {
	return &ArbitrageMetrics{
		Opportunities: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_total",
			Help:      "Total number of opportunities clearing the profit floor",
		}),
		BestProfitWei: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_profit_wei",
			Help:      "Predicted profit of the best opportunity in the last cycle",
		}),
	}
}

// SubmissionMetrics covers the estimate, simulate, and submit gates.
type SubmissionMetrics struct {
	EstimateRejects prometheus.Counter
	SimulateRejects prometheus.Counter
	Submitted       prometheus.Counter
	EmptyCycles     prometheus.Counter
	GasUsed         prometheus.Histogram
}

func NewSubmissionMetrics(namespace string) *SubmissionMetrics {
	return &SubmissionMetrics{
		EstimateRejects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimate_rejects_total",
			Help:      "Opportunities rejected by the gas estimation gate",
		}),
		SimulateRejects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulate_rejects_total",
			Help:      "Opportunities rejected by relay simulation",
		}),
		Submitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundles_submitted_total",
			Help:      "Bundles accepted by the relay",
		}),
		EmptyCycles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_cycles_total",
			Help:      "Cycles where no opportunity survived submission gates",
		}),
		GasUsed: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "simulated_gas_used",
			Help:      "Gas used by simulated bundles",
			Buckets:   prometheus.ExponentialBuckets(21000, 2, 10),
		}),
	}
}
