package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics содержит бизнес-метрики площадки. Нулевой указатель допустим:
// все методы тогда ничего не делают.
type Metrics struct {
	// Сделки
	ordersPlaced     prometheus.Counter
	orderTransitions *prometheus.CounterVec
	offers           *prometheus.CounterVec
	disputes         *prometheus.CounterVec

	// Уведомления и события
	notifications  *prometheus.CounterVec
	eventsConsumed *prometheus.CounterVec

	// Outbox
	outboxDeliveries *prometheus.CounterVec
	outboxPending    prometheus.Gauge
	outboxOldestAge  prometheus.Gauge

	// Идемпотентность
	idempotencySweeps  *prometheus.CounterVec
	idempotencyDeleted prometheus.Counter

	// Единицы работы
	operationDuration *prometheus.HistogramVec
	versionConflicts  prometheus.Counter

	// HTTP
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
}

// New создаёт метрики в глобальном реестре.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer создаёт метрики в переданном реестре. Повторная регистрация
// возвращает уже существующие коллекторы.
func NewWithRegisterer(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		ordersPlaced: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_orders_placed_total",
			Help: "Total number of orders placed",
		}),
		orderTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_order_transitions_total",
			Help: "Total number of order status transitions grouped by target status",
		}, []string{"status"}),
		offers: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_offers_total",
			Help: "Total number of offer events grouped by result",
		}, []string{"result"}),
		disputes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_dispute_transitions_total",
			Help: "Total number of dispute status changes grouped by target status",
		}, []string{"status"}),
		notifications: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_notifications_total",
			Help: "Total number of notification materializations grouped by result",
		}, []string{"result"}),
		eventsConsumed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_events_consumed_total",
			Help: "Total number of domain events consumed from Kafka grouped by type",
		}, []string{"event_type"}),
		outboxDeliveries: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_outbox_deliveries_total",
			Help: "Total number of outbox delivery outcomes grouped by result",
		}, []string{"result"}),
		outboxPending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "marketplace_outbox_pending_records",
			Help: "Current number of pending records in the transactional outbox",
		}),
		outboxOldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "marketplace_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record",
		}),
		idempotencySweeps: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_idempotency_cleanup_runs_total",
			Help: "Idempotency cleanup runs grouped by result",
		}, []string{"result"}),
		idempotencyDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_idempotency_cleanup_deleted_total",
			Help: "Expired idempotency keys removed",
		}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "marketplace_operation_duration_seconds",
			Help:    "Duration of service operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation", "result"}),
		versionConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_version_conflicts_total",
			Help: "Total number of optimistic locking conflicts",
		}),
		httpRequests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_http_requests_total",
			Help: "Total number of HTTP requests grouped by route and status code",
		}, []string{"method", "route", "code"}),
		httpDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "marketplace_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "marketplace_http_requests_in_flight",
			Help: "Number of HTTP requests being served",
		}),
	}
}

func register[T prometheus.Collector](registerer prometheus.Registerer, name string, collector T) T {
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	return collector
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	return register(registerer, opts.Name, prometheus.NewCounter(opts))
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return register(registerer, opts.Name, prometheus.NewCounterVec(opts, labels))
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	return register(registerer, opts.Name, prometheus.NewGauge(opts))
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	return register(registerer, opts.Name, prometheus.NewHistogramVec(opts, labels))
}

// RecordOrderPlaced увеличивает счётчик созданных заказов.
func (m *Metrics) RecordOrderPlaced() {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
}

// RecordOrderTransition учитывает переход заказа в статус.
func (m *Metrics) RecordOrderTransition(status string) {
	if m == nil {
		return
	}
	m.orderTransitions.WithLabelValues(status).Inc()
}

// RecordOffer учитывает событие предложения цены: created, accepted, rejected.
func (m *Metrics) RecordOffer(result string) {
	if m == nil {
		return
	}
	m.offers.WithLabelValues(result).Inc()
}

// RecordDispute учитывает смену статуса спора.
func (m *Metrics) RecordDispute(status string) {
	if m == nil {
		return
	}
	m.disputes.WithLabelValues(status).Inc()
}

// RecordNotification учитывает материализацию уведомления: created, duplicate, failed.
func (m *Metrics) RecordNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

// RecordEventConsumed учитывает событие, прочитанное из Kafka.
func (m *Metrics) RecordEventConsumed(eventType string) {
	if m == nil {
		return
	}
	m.eventsConsumed.WithLabelValues(eventType).Inc()
}

// RecordOutboxDelivery учитывает исход доставки: sent, retry, failed, deferred, dlq_failed.
func (m *Metrics) RecordOutboxDelivery(result string) {
	if m == nil {
		return
	}
	m.outboxDeliveries.WithLabelValues(result).Inc()
}

// SetOutboxBacklog выставляет размер очереди outbox и возраст самой старой записи.
func (m *Metrics) SetOutboxBacklog(pending int, oldest time.Duration) {
	if m == nil {
		return
	}
	if oldest < 0 {
		oldest = 0
	}
	m.outboxPending.Set(float64(pending))
	m.outboxOldestAge.Set(oldest.Seconds())
}

// RecordIdempotencySweep учитывает проход очистки ключей идемпотентности.
func (m *Metrics) RecordIdempotencySweep(deleted int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.idempotencySweeps.WithLabelValues("error").Inc()
	} else {
		m.idempotencySweeps.WithLabelValues("ok").Inc()
	}
	m.idempotencyDeleted.Add(float64(deleted))
}

// ObserveOperation записывает длительность операции сервиса.
func (m *Metrics) ObserveOperation(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operationDuration.WithLabelValues(operation, result).Observe(d.Seconds())
}

// RecordVersionConflict увеличивает счётчик конфликтов версий.
func (m *Metrics) RecordVersionConflict() {
	if m == nil {
		return
	}
	m.versionConflicts.Inc()
}

// ObserveHTTP записывает результат HTTP-запроса.
func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, fmt.Sprint(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// HTTPInFlight возвращает функцию, уменьшающую gauge активных запросов.
func (m *Metrics) HTTPInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.httpInFlight.Inc()
	return m.httpInFlight.Dec
}
