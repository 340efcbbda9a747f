package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsCollector struct {
	registry         *prometheus.Registry
	commandsTotal    *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	lcTransitions    *prometheus.CounterVec
	settlementsTotal prometheus.Counter
	settledAmount    prometheus.Counter
	eventDeliveries  *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
	rateLimitedTotal prometheus.Counter
	logger           *slog.Logger
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	collector := &MetricsCollector{
		registry: registry,
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_commands_total",
			Help: "Total number of state-changing commands by operation and outcome",
		}, []string{"op", "outcome"}),
		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "escrow_command_duration_seconds",
			Help:    "Time spent executing a command, including lock wait",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		lcTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_lc_transitions_total",
			Help: "Letter of credit status transitions",
		}, []string{"from", "to"}),
		settlementsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrow_settlements_total",
			Help: "Total number of payments released to sellers",
		}),
		settledAmount: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrow_settled_amount_total",
			Help: "Sum of released payment amounts in token units",
		}),
		eventDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_event_deliveries_total",
			Help: "Event deliveries by sink and outcome",
		}, []string{"sink", "outcome"}),
		deliveryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "escrow_event_delivery_duration_seconds",
			Help:    "Time taken to deliver an event to a sink",
			Buckets: prometheus.DefBuckets,
		}, []string{"sink"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "code"}),
		rateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrow_rate_limited_total",
			Help: "Requests rejected by the per-caller rate limiter",
		}),
		logger: logger,
	}

	return collector
}

func (m *MetricsCollector) RecordCommand(op, outcome string, duration time.Duration) {
	m.commandsTotal.WithLabelValues(op, outcome).Inc()
	m.commandDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *MetricsCollector) RecordTransition(from, to string) {
	m.lcTransitions.WithLabelValues(from, to).Inc()
}

func (m *MetricsCollector) RecordSettlement(amount float64) {
	m.settlementsTotal.Inc()
	m.settledAmount.Add(amount)
}

func (m *MetricsCollector) RecordDelivery(sink, outcome string, duration time.Duration) {
	m.eventDeliveries.WithLabelValues(sink, outcome).Inc()
	if outcome == "dropped" {
		return
	}
	m.deliveryDuration.WithLabelValues(sink).Observe(duration.Seconds())
}

func (m *MetricsCollector) RecordRequest(method, route string, status int) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func (m *MetricsCollector) RecordRateLimited() {
	m.rateLimitedTotal.Inc()
}

func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsCollector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.GetHandler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		m.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}

func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	m.logger.Info("Metrics collector shutdown complete")
	return nil
}
