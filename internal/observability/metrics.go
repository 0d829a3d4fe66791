package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/securekit/secure-session-service/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

type AppMetrics struct {
	authLoginCounter      metric.Int64Counter
	authRefreshCounter    metric.Int64Counter
	authLogoutCounter     metric.Int64Counter
	tokenValidationCtr    metric.Int64Counter
	sessionOpCounter      metric.Int64Counter
	cryptoOpCounter       metric.Int64Counter
	keyRotationCounter    metric.Int64Counter
	repositoryOpCounter   metric.Int64Counter
	criticalOpCounter     metric.Int64Counter
	criticalOpDuration    metric.Float64Histogram
	rateLimitCounter      metric.Int64Counter
	auditCriticalCounter  metric.Int64Counter
	anomalyScoreHistogram metric.Int64Histogram
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter("secure-session-service")
	m := &AppMetrics{}
	if m.authLoginCounter, err = meter.Int64Counter("auth.login.attempts"); err != nil {
		return nil, err
	}
	if m.authRefreshCounter, err = meter.Int64Counter("auth.refresh.attempts"); err != nil {
		return nil, err
	}
	if m.authLogoutCounter, err = meter.Int64Counter("auth.logout.attempts"); err != nil {
		return nil, err
	}
	if m.tokenValidationCtr, err = meter.Int64Counter("auth.token.validations"); err != nil {
		return nil, err
	}
	if m.sessionOpCounter, err = meter.Int64Counter("session.operations"); err != nil {
		return nil, err
	}
	if m.cryptoOpCounter, err = meter.Int64Counter("crypto.operations"); err != nil {
		return nil, err
	}
	if m.keyRotationCounter, err = meter.Int64Counter("crypto.key.rotations"); err != nil {
		return nil, err
	}
	if m.repositoryOpCounter, err = meter.Int64Counter("repository.operations"); err != nil {
		return nil, err
	}
	if m.criticalOpCounter, err = meter.Int64Counter("critical.operations"); err != nil {
		return nil, err
	}
	if m.criticalOpDuration, err = meter.Float64Histogram("critical.operation.duration_ms"); err != nil {
		return nil, err
	}
	if m.rateLimitCounter, err = meter.Int64Counter("http.rate_limit.decisions"); err != nil {
		return nil, err
	}
	if m.auditCriticalCounter, err = meter.Int64Counter("audit.critical.events"); err != nil {
		return nil, err
	}
	if m.anomalyScoreHistogram, err = meter.Int64Histogram("session.anomaly.score"); err != nil {
		return nil, err
	}

	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordAuthLogin(ctx context.Context, status string) {
	m := current()
	if m == nil {
		return
	}
	m.authLoginCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordAuthRefresh(ctx context.Context, status string) {
	m := current()
	if m == nil {
		return
	}
	m.authRefreshCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordAuthLogout(ctx context.Context, status string) {
	m := current()
	if m == nil {
		return
	}
	m.authLogoutCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordTokenValidation(ctx context.Context, status, source string) {
	m := current()
	if m == nil {
		return
	}
	m.tokenValidationCtr.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("source", source),
	))
}

func RecordSessionOperation(ctx context.Context, operation, result, reason string) {
	m := current()
	if m == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	m.sessionOpCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
		attribute.String("reason", reason),
	))
}

func RecordCryptoOperation(ctx context.Context, operation, status string) {
	m := current()
	if m == nil {
		return
	}
	m.cryptoOpCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}

func RecordKeyRotation(ctx context.Context, keyContext, status string) {
	m := current()
	if m == nil {
		return
	}
	m.keyRotationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("context", keyContext),
		attribute.String("status", status),
	))
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, status string) {
	m := current()
	if m == nil {
		return
	}
	m.repositoryOpCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}

func RecordCriticalOperation(ctx context.Context, name, status string, durationMS float64) {
	m := current()
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", name),
		attribute.String("status", status),
	)
	m.criticalOpCounter.Add(ctx, 1, attrs)
	m.criticalOpDuration.Record(ctx, durationMS, attrs)
}

func RecordRateLimitDecision(ctx context.Context, scope, decision string) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("decision", decision),
	))
}

func RecordAuditCritical(ctx context.Context, event string) {
	m := current()
	if m == nil {
		return
	}
	m.auditCriticalCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

func RecordAnomalyScore(ctx context.Context, score int) {
	m := current()
	if m == nil {
		return
	}
	m.anomalyScoreHistogram.Record(ctx, int64(score))
}
