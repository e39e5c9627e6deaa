package extraction

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
)

const (
	EnginePattern = "pattern"
	EngineModel   = "model"
)

type extractionMetrics struct {
	runCount   metric.Int64Counter
	runErrors  metric.Int64Counter
	duration   metric.Float64Histogram
	entities   metric.Int64Counter
	suppressed metric.Int64Counter
}

var (
	metricsOnce sync.Once
	metricsOK   bool
	runMetrics  extractionMetrics
)

func ensureMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/zatekoja/clinicalorders/extraction")

		runCount, err := meter.Int64Counter(
			"extraction.run.count",
			metric.WithDescription("Number of extraction calls"),
		)
		if err != nil {
			return
		}
		runErrors, err := meter.Int64Counter(
			"extraction.run.errors",
			metric.WithDescription("Number of failed extraction calls"),
		)
		if err != nil {
			return
		}
		duration, err := meter.Float64Histogram(
			"extraction.run.duration",
			metric.WithDescription("Extraction duration in milliseconds"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			return
		}
		emitted, err := meter.Int64Counter(
			"extraction.entities.emitted",
			metric.WithDescription("Orders present in the snapshot after an extraction call"),
		)
		if err != nil {
			return
		}
		suppressed, err := meter.Int64Counter(
			"extraction.candidates.dropped",
			metric.WithDescription("Candidates suppressed or converted, by reason"),
		)
		if err != nil {
			return
		}

		runMetrics = extractionMetrics{
			runCount:   runCount,
			runErrors:  runErrors,
			duration:   duration,
			entities:   emitted,
			suppressed: suppressed,
		}
		metricsOK = true
	})
}

// RecordRun reports one extraction call for engine.
func RecordRun(ctx context.Context, engine string, elapsed time.Duration, snapshot entities.OrdersSnapshot, dropped []entities.Drop, err error) {
	ensureMetrics()
	if !metricsOK {
		return
	}

	attrs := metric.WithAttributes(attribute.String("extraction.engine", engine))
	runMetrics.runCount.Add(ctx, 1, attrs)
	runMetrics.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
	if err != nil {
		runMetrics.runErrors.Add(ctx, 1, attrs)
		return
	}

	runMetrics.entities.Add(ctx, int64(len(snapshot.Medications)), metric.WithAttributes(
		attribute.String("extraction.engine", engine),
		attribute.String("order.kind", "medication"),
	))
	runMetrics.entities.Add(ctx, int64(len(snapshot.Labs)), metric.WithAttributes(
		attribute.String("extraction.engine", engine),
		attribute.String("order.kind", "lab"),
	))
	for _, d := range dropped {
		runMetrics.suppressed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("extraction.engine", engine),
			attribute.String("drop.reason", string(d.Reason)),
		))
	}
}
