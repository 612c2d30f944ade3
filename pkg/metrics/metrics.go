package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uhyunpark/tradesim/pkg/costmodel"
	"github.com/uhyunpark/tradesim/pkg/orderbook"
)

// Metrics holds the simulator's collectors on a private registry so tests
// can create as many instances as they like.
type Metrics struct {
	Registry *prometheus.Registry

	SimulationsTotal   *prometheus.CounterVec
	StageLatencyMs     *prometheus.HistogramVec
	NetCost            prometheus.Histogram
	AggregationsTotal  prometheus.Counter
	BookSpreadBps      prometheus.Gauge
	BookSnapshotsTotal prometheus.Counter
	WSClients          prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		SimulationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulations_total", Help: "Simulation requests by outcome",
		}, []string{"outcome"}),
		StageLatencyMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "simulation_stage_latency_ms", Help: "Cost model stage latency",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
		NetCost: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "simulation_net_cost", Help: "Estimated net cost per simulation",
			Buckets: prometheus.ExponentialBuckets(0.0001, 10, 8),
		}),
		AggregationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderbook_aggregations_total", Help: "Order book aggregations performed",
		}),
		BookSpreadBps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderbook_spread_bps", Help: "Spread of the live book in basis points of best bid",
		}),
		BookSnapshotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderbook_snapshots_total", Help: "Snapshots applied to the live book",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_clients", Help: "Connected WebSocket clients",
		}),
	}

	m.Registry.MustRegister(
		m.SimulationsTotal, m.StageLatencyMs, m.NetCost,
		m.AggregationsTotal, m.BookSpreadBps, m.BookSnapshotsTotal, m.WSClients,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveEstimate records a successful simulation.
func (m *Metrics) ObserveEstimate(est costmodel.Estimate) {
	m.SimulationsTotal.WithLabelValues("ok").Inc()
	m.StageLatencyMs.WithLabelValues("processing").Observe(est.Timings.ProcessingMs)
	m.StageLatencyMs.WithLabelValues("model").Observe(est.Timings.ModelMs)
	m.StageLatencyMs.WithLabelValues("total").Observe(est.Timings.TotalMs)
	m.NetCost.Observe(est.NetCost)
}

// ObserveRejected records a simulation refused at validation.
func (m *Metrics) ObserveRejected() {
	m.SimulationsTotal.WithLabelValues("rejected").Inc()
}

// ObserveBook records an aggregation of the live book.
func (m *Metrics) ObserveBook(agg orderbook.AggregatedBook) {
	m.AggregationsTotal.Inc()
	if s := agg.Spread(); s.Available {
		m.BookSpreadBps.Set(s.Percent * 100)
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
