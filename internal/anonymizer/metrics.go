package anonymizer

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/sentinel-privacy/sentinel/internal/classifier"
	sentinelotel "github.com/sentinel-privacy/sentinel/internal/otel"
)

const meterName = "github.com/sentinel-privacy/sentinel/internal/anonymizer"

var (
	requestCounter    metric.Int64Counter
	entityCounter     metric.Int64Counter
	metricsOnce       sync.Once
	metricsRegistered bool
)

func initMetrics() {
	meter := otel.Meter(meterName)
	var err error
	requestCounter, err = meter.Int64Counter(
		"sentinel.requests",
		metric.WithDescription("Anonymize and deanonymize calls"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return
	}
	entityCounter, err = meter.Int64Counter(
		"sentinel.pii.entities",
		metric.WithDescription("PII entities replaced by placeholders"),
		metric.WithUnit("{entity}"),
	)
	if err != nil {
		return
	}
	metricsRegistered = true
}

// recordAnonymize counts one anonymize call and its replaced entities by type.
// Only entity type names are recorded, never values.
func recordAnonymize(ctx context.Context, tenantID string, entities []classifier.PIIEntity) {
	metricsOnce.Do(initMetrics)
	if !metricsRegistered {
		return
	}
	requestCounter.Add(ctx, 1, metric.WithAttributes(
		sentinelotel.SentinelOperation.String("anonymize"),
		sentinelotel.SentinelTenant.String(tenantID),
	))
	byType := make(map[string]int64)
	for _, e := range entities {
		byType[e.Type]++
	}
	for entityType, n := range byType {
		entityCounter.Add(ctx, n, metric.WithAttributes(
			sentinelotel.PIIEntityType.String(entityType),
			sentinelotel.SentinelTenant.String(tenantID),
		))
	}
}

func recordDeanonymize(ctx context.Context, tenantID string) {
	metricsOnce.Do(initMetrics)
	if !metricsRegistered {
		return
	}
	requestCounter.Add(ctx, 1, metric.WithAttributes(
		sentinelotel.SentinelOperation.String("deanonymize"),
		sentinelotel.SentinelTenant.String(tenantID),
	))
}
