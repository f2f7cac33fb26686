package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: полное время пайплайна, включая ожидание оператора
	CommandDuration *prometheus.HistogramVec

	// Traffic: команды по действию и исходу
	CommandsTotal *prometheus.CounterVec

	// Errors: отказы по причине (permission_denied, denied_content, timed_out...)
	RejectionsTotal *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - closed, 1 - half-open, 2 - open)
	CircuitBreakerState *prometheus.GaugeVec

	// Audit: заполненность буфера выгрузки (backpressure)
	AuditBufferFill prometheus.Gauge

	// Сколько привилегированных процессов сейчас запущено (0 или 1)
	ElevatedInflight prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		CommandDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rootgw_command_duration_seconds",
			Help:    "Histogram of command pipeline latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"action", "status"}),

		CommandsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "rootgw_commands_total",
			Help: "Total number of processed commands.",
		}, []string{"action", "status"}),

		RejectionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "rootgw_rejections_total",
			Help: "Total number of failed commands by reason.",
		}, []string{"reason"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "rootgw_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"backend"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "rootgw_audit_buffer_utilization",
			Help: "Fraction of the audit export buffer in use.",
		}),

		ElevatedInflight: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "rootgw_elevated_inflight",
			Help: "Number of elevated processes currently running.",
		}),
	}
}
