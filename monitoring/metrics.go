// Package monitoring exposes optimizer and backtest progress as
// Prometheus metrics.
package monitoring

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/i-zrhe2016/amazing-3.1/optimize"
	"github.com/i-zrhe2016/amazing-3.1/sim"
)

// Metrics holds one run's collectors on its own registry, so several
// runs (or tests) never collide on registration.
type Metrics struct {
	reg *prometheus.Registry

	evaluations  *prometheus.CounterVec
	evalDuration prometheus.Histogram
	trials       *prometheus.CounterVec
	bestScore    *prometheus.GaugeVec
	sigma        prometheus.Gauge
	boundWidth   *prometheus.GaugeVec
	progress     prometheus.Gauge

	backtests   *prometheus.CounterVec
	netProfit   prometheus.Gauge
	maxDrawdown prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amazing_evaluations_total",
			Help: "Parameter set evaluations by outcome",
		}, []string{"result"}),
		evalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "amazing_evaluation_seconds",
			Help:    "Wall time of one multi-window evaluation",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amazing_trials_total",
			Help: "Merged trials by phase and feasibility",
		}, []string{"phase", "feasible"}),
		bestScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "amazing_best_score",
			Help: "Best score so far",
		}, []string{"kind"}),
		sigma: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "amazing_search_sigma",
			Help: "Current mutation scale of the adaptive search",
		}),
		boundWidth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "amazing_bound_width",
			Help: "Width of the current sampling range per dimension",
		}, []string{"dim"}),
		progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "amazing_search_progress_ratio",
			Help: "Share of the trial budget spent",
		}),
		backtests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amazing_backtests_total",
			Help: "Completed backtests by outcome",
		}, []string{"outcome"}),
		netProfit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "amazing_backtest_net_profit",
			Help: "Net profit of the last backtest",
		}),
		maxDrawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "amazing_backtest_max_drawdown_pct",
			Help: "Max drawdown of the last backtest",
		}),
	}
	m.reg.MustRegister(m.evaluations, m.evalDuration, m.trials, m.bestScore, m.sigma,
		m.boundWidth, m.progress, m.backtests, m.netProfit, m.maxDrawdown)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveEvaluation fits optimize.WorkerPool.OnDone.
func (m *Metrics) ObserveEvaluation(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.evaluations.WithLabelValues(result).Inc()
	m.evalDuration.Observe(d.Seconds())
}

// ObserveTrial fits optimize.Config.OnTrial.
func (m *Metrics) ObserveTrial(t optimize.Trial) {
	feasible := "false"
	if t.Feasible {
		feasible = "true"
	}
	m.trials.WithLabelValues(t.Phase, feasible).Inc()
}

// ObserveBatch fits optimize.Config.OnBatch.
func (m *Metrics) ObserveBatch(st optimize.State) {
	if st.BestAny != nil {
		m.bestScore.WithLabelValues("any").Set(st.BestAny.Score)
	}
	if st.BestFeasible != nil {
		m.bestScore.WithLabelValues("feasible").Set(st.BestFeasible.Score)
	}
	m.sigma.Set(st.Sigma)
	for dim, r := range st.Bounds.Numeric {
		m.boundWidth.WithLabelValues(dim).Set(r.Width())
	}
	if st.Trials > 0 {
		m.progress.Set(float64(st.Used()) / float64(st.Trials))
	}
}

func (m *Metrics) ObserveBacktest(res sim.Result) {
	outcome := "ok"
	switch {
	case res.Blowup != nil:
		outcome = "blowup"
	case res.DrawdownLimitHit:
		outcome = "drawdown_stop"
	}
	m.backtests.WithLabelValues(outcome).Inc()
	m.netProfit.Set(res.Summary.NetProfit)
	m.maxDrawdown.Set(res.Summary.MaxDrawdownPct)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info().Str("addr", addr).Msg("serving metrics")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
