package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	ierr "github.com/harvardinformatics/ifxbilling-sub000/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

const (
	BatchStatusCompleted = "completed"
	BatchStatusFailed    = "failed"
)

// BatchMetrics captures billing batch health for operators.
type BatchMetrics struct {
	runs               *prometheus.CounterVec
	duration           *prometheus.HistogramVec
	usageOutcomes      *prometheus.CounterVec
	finalizationErrors *prometheus.CounterVec
	lastSuccess        *prometheus.GaugeVec
}

// NewBatchMetrics registers batch instruments on registerer.
func NewBatchMetrics(registerer prometheus.Registerer, cfg Config) *BatchMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "ifxbilling"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ifxbilling_batch_runs_total",
		Help:        "Billing record batches by facility and terminal status.",
		ConstLabels: constLabels,
	}, []string{"facility", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "ifxbilling_batch_duration_seconds",
		Help:        "Billing record batch latency.",
		Buckets:     []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		ConstLabels: constLabels,
	}, []string{"facility"})
	usageOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ifxbilling_batch_usage_total",
		Help:        "Usage records processed by outcome and low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"facility", "outcome", "reason"})
	finalizationErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ifxbilling_batch_finalization_errors_total",
		Help:        "Calculator finalization failures.",
		ConstLabels: constLabels,
	}, []string{"facility"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "ifxbilling_batch_last_success_timestamp_seconds",
		Help:        "Unix time of the last completed batch per facility.",
		ConstLabels: constLabels,
	}, []string{"facility"})

	registerer.MustRegister(runs, duration, usageOutcomes, finalizationErrors, lastSuccess)

	return &BatchMetrics{
		runs:               runs,
		duration:           duration,
		usageOutcomes:      usageOutcomes,
		finalizationErrors: finalizationErrors,
		lastSuccess:        lastSuccess,
	}
}

// ObserveBatch records a finished batch run.
func (m *BatchMetrics) ObserveBatch(facility string, elapsed time.Duration, err error, finishedAt time.Time) {
	if m == nil {
		return
	}
	status := BatchStatusCompleted
	if err != nil {
		status = BatchStatusFailed
	}
	m.runs.WithLabelValues(facility, status).Inc()
	m.duration.WithLabelValues(facility).Observe(elapsed.Seconds())
	if err == nil {
		m.lastSuccess.WithLabelValues(facility).Set(float64(finishedAt.Unix()))
	}
}

// IncUsage counts a processed usage record; err is classified for the reason label.
func (m *BatchMetrics) IncUsage(facility, outcome string, err error) {
	if m == nil {
		return
	}
	reason := ""
	if err != nil {
		reason = ClassifyUsageError(err)
	}
	m.usageOutcomes.WithLabelValues(facility, outcome, reason).Inc()
}

func (m *BatchMetrics) IncFinalizationError(facility string) {
	if m == nil {
		return
	}
	m.finalizationErrors.WithLabelValues(facility).Inc()
}

// ClassifyUsageError maps engine errors to a low-cardinality reason.
func ClassifyUsageError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "deadline_exceeded"
	}
	return ierr.Code(err)
}
