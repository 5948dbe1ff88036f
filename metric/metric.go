package metric

import (
	"time"

	"github.com/hermeznetwork/txverifier/log"
	"github.com/prometheus/client_golang/prometheus"
)

type (
	// Metric represents the metric type
	Metric string
)

const (
	namespaceError    = "error"
	namespaceVerifier = "verifier"
	namespaceOracle   = "oracle"
	namespaceScenario = "scenario"

	// ResultPass is the result label of a passed verification
	ResultPass = "pass"
	// ResultFail is the result label of a failed verification
	ResultFail = "fail"
	// ResultInconclusive is the result label of a verification aborted by
	// a query error
	ResultInconclusive = "inconclusive"
	// ResultOperationFailed is the result label of an accept verification
	// whose operation was rejected
	ResultOperationFailed = "operation_failed"
)

var (
	// Errors errors count metric.
	Errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespaceError,
			Name:      "errors",
			Help:      "",
		}, []string{"error"})

	// Verifications verification count by check (accept/reject) and result
	Verifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespaceVerifier,
			Name:      "verifications_total",
			Help:      "",
		}, []string{"check", "result"})

	// Violations violated expectations count by kind
	Violations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespaceVerifier,
			Name:      "violations_total",
			Help:      "",
		}, []string{"kind"})

	// SettlementDuration time waiting for an operation to settle, in
	// milliseconds
	SettlementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespaceVerifier,
			Name:      "settlement_duration_ms",
			Help:      "",
		}, []string{"operation"})

	// BalanceQueries balance reads count by layer
	BalanceQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespaceOracle,
			Name:      "balance_queries_total",
			Help:      "",
		}, []string{"layer"})

	// QueryErrors failed balance reads count by layer
	QueryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespaceOracle,
			Name:      "query_errors_total",
			Help:      "",
		}, []string{"layer"})

	// Scenarios scenario runs count by name and outcome
	Scenarios = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespaceScenario,
			Name:      "runs_total",
			Help:      "",
		}, []string{"scenario", "outcome"})
)

func init() {
	if err := registerCollectors(); err != nil {
		log.Error(err)
	}
}
func registerCollectors() error {
	if err := registerCollector(Errors); err != nil {
		return err
	}
	if err := registerCollector(Verifications); err != nil {
		return err
	}
	if err := registerCollector(Violations); err != nil {
		return err
	}
	if err := registerCollector(SettlementDuration); err != nil {
		return err
	}
	if err := registerCollector(BalanceQueries); err != nil {
		return err
	}
	if err := registerCollector(QueryErrors); err != nil {
		return err
	}
	return registerCollector(Scenarios)
}

func registerCollector(collector prometheus.Collector) error {
	err := prometheus.Register(collector)
	if err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return err
		}
	}
	return nil
}

// MeasureDuration measure the method execution duration
// and save it into a histogram metric
func MeasureDuration(histogram *prometheus.HistogramVec, start time.Time, lvs ...string) {
	duration := time.Since(start)
	histogram.WithLabelValues(lvs...).Observe(float64(duration.Milliseconds()))
}

// CollectError collect the error message and increment
// the error count
func CollectError(err error) {
	Errors.With(map[string]string{"error": err.Error()}).Inc()
}
