package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	ReasonDeadlineExceeded = "deadline_exceeded"
	ReasonCanceled         = "canceled"
	ReasonUniqueViolation  = "unique_violation"
	ReasonUnknown          = "unknown"
)

const (
	GatewayObjectCharge             = "charge"
	GatewayObjectPaymentIntent      = "payment_intent"
	GatewayObjectBalanceTransaction = "balance_transaction"
	GatewayObjectCustomer           = "customer"
	GatewayObjectPaymentMethod      = "payment_method"
)

// ReconcileMetrics captures gateway fetch latency and ledger write conflicts.
// It is exported through the Prometheus registry served at /metrics.
type ReconcileMetrics struct {
	gatewayFetchDuration *prometheus.HistogramVec
	gatewayFetchErrors   *prometheus.CounterVec
	ledgerConflicts      prometheus.Counter
	resolveDuration      *prometheus.HistogramVec

	fetchObservers map[string]prometheus.Observer
}

var (
	reconcileMetricsOnce sync.Once
	reconcileMetrics     *ReconcileMetrics
)

// Reconcile returns the singleton reconciliation metrics registry.
func Reconcile() *ReconcileMetrics {
	return ReconcileWithConfig(Config{})
}

// ReconcileWithConfig returns the singleton registry using config labels.
func ReconcileWithConfig(cfg Config) *ReconcileMetrics {
	reconcileMetricsOnce.Do(func() {
		reconcileMetrics = newReconcileMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return reconcileMetrics
}

func newReconcileMetrics(registerer prometheus.Registerer, cfg Config) *ReconcileMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "donara"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	gatewayFetchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "donara_gateway_fetch_duration_seconds",
		Help:        "Payment gateway object retrieval latency.",
		Buckets:     []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"object"})
	gatewayFetchErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "donara_gateway_fetch_errors_total",
		Help:        "Payment gateway retrieval failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"object", "reason"})
	ledgerConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "donara_ledger_insert_conflicts_total",
		Help:        "Ledger inserts rejected by the charge or donation uniqueness constraint.",
		ConstLabels: constLabels,
	})
	resolveDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "donara_resolve_duration_seconds",
		Help:        "End to end donation resolution latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"operation"})

	registerer.MustRegister(
		gatewayFetchDuration,
		gatewayFetchErrors,
		ledgerConflicts,
		resolveDuration,
	)

	observers := map[string]prometheus.Observer{}
	for _, object := range []string{
		GatewayObjectCharge,
		GatewayObjectPaymentIntent,
		GatewayObjectBalanceTransaction,
		GatewayObjectCustomer,
		GatewayObjectPaymentMethod,
	} {
		observers[object] = gatewayFetchDuration.WithLabelValues(object)
	}

	return &ReconcileMetrics{
		gatewayFetchDuration: gatewayFetchDuration,
		gatewayFetchErrors:   gatewayFetchErrors,
		ledgerConflicts:      ledgerConflicts,
		resolveDuration:      resolveDuration,
		fetchObservers:       observers,
	}
}

// ObserveGatewayFetch records one gateway retrieval and its failure reason, if any.
func (m *ReconcileMetrics) ObserveGatewayFetch(object string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	observer, ok := m.fetchObservers[object]
	if !ok {
		observer = m.gatewayFetchDuration.WithLabelValues(object)
	}
	observer.Observe(elapsed.Seconds())
	if err != nil {
		m.gatewayFetchErrors.WithLabelValues(object, ClassifyReason(err)).Inc()
	}
}

func (m *ReconcileMetrics) IncLedgerConflict() {
	if m == nil {
		return
	}
	m.ledgerConflicts.Inc()
}

func (m *ReconcileMetrics) ObserveResolve(operation string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.resolveDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ClassifyReason maps an error to a bounded label value.
func ClassifyReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ReasonUniqueViolation
	}
	return ReasonUnknown
}
