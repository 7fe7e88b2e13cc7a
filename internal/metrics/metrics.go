// Package metrics exposes pipeline counters and portfolio gauges on an
// optional Prometheus listener.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Metrics struct {
	TicksTotal      *prometheus.CounterVec
	DecisionsTotal  *prometheus.CounterVec
	RejectionsTotal *prometheus.CounterVec
	ExecutionsTotal *prometheus.CounterVec

	OpenPositions  prometheus.Gauge
	PortfolioValue prometheus.Gauge
	TotalExposure  prometheus.Gauge
	TickDuration   prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TicksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradefuse_ticks_total",
			Help: "Pipeline ticks by terminal status.",
		}, []string{"status"}),
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradefuse_decisions_total",
			Help: "Fused decisions by action and method.",
		}, []string{"action", "method"}),
		RejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradefuse_rejections_total",
			Help: "Proposals rejected, by rejecting stage.",
		}, []string{"stage"}),
		ExecutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradefuse_executions_total",
			Help: "Orders handed to the execution sink, by outcome.",
		}, []string{"outcome"}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tradefuse_open_positions",
			Help: "Currently open positions.",
		}),
		PortfolioValue: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tradefuse_portfolio_value",
			Help: "Portfolio value in the base currency.",
		}),
		TotalExposure: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tradefuse_total_exposure_pct",
			Help: "Open exposure as a percentage of portfolio value.",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradefuse_tick_duration_seconds",
			Help:    "Wall-clock duration of one pipeline tick.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Serve starts the metrics listener. It returns immediately; listener
// errors are logged, not fatal.
func Serve(listen string, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics listener stopped", zap.Error(err))
		}
	}()
}
