package metrics

import (
	"net/http"
	"time"

	portsout "depositwatch/internal/application/ports/out"
	valueobjects "depositwatch/internal/domain/value_objects"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScanMetrics is registered on its own registry so that several instances
// (one per test) never collide on metric names.
type ScanMetrics struct {
	registry *prometheus.Registry

	CursorHeight     *prometheus.GaugeVec
	DepositsRecorded *prometheus.CounterVec
	TickFailures     *prometheus.CounterVec
	TickDuration     *prometheus.HistogramVec
}

var _ portsout.ScanMetricsRecorder = (*ScanMetrics)(nil)

func NewScanMetrics() *ScanMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &ScanMetrics{
		registry: registry,
		CursorHeight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "depositwatch_scan_cursor_height",
			Help: "Last fully processed block height, slot or ledger index",
		}, []string{"chain"}),
		DepositsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "depositwatch_deposits_recorded_total",
			Help: "Deposits appended to the ledger",
		}, []string{"chain", "token"}),
		TickFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "depositwatch_scan_tick_failures_total",
			Help: "Scan ticks that ended with an error",
		}, []string{"chain", "code"}),
		TickDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "depositwatch_scan_tick_duration_seconds",
			Help:    "Wall time of one scan tick",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"chain"}),
	}
}

func (m *ScanMetrics) CursorAdvanced(chain valueobjects.Chain, position int64) {
	m.CursorHeight.WithLabelValues(chain.String()).Set(float64(position))
}

func (m *ScanMetrics) DepositRecorded(chain valueobjects.Chain, token string) {
	m.DepositsRecorded.WithLabelValues(chain.String(), token).Inc()
}

func (m *ScanMetrics) TickFailed(chain valueobjects.Chain, code string) {
	m.TickFailures.WithLabelValues(chain.String(), code).Inc()
}

func (m *ScanMetrics) ObserveTick(chain valueobjects.Chain, elapsed time.Duration) {
	m.TickDuration.WithLabelValues(chain.String()).Observe(elapsed.Seconds())
}

func (m *ScanMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
