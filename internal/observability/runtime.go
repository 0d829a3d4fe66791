package observability

import (
	"context"
	"log/slog"

	"github.com/securekit/secure-session-service/internal/config"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type Runtime struct {
	MeterProvider *sdkmetric.MeterProvider
}

func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	mp, err := InitMetrics(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Runtime{MeterProvider: mp}, nil
}

func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil || r.MeterProvider == nil {
		return nil
	}
	return r.MeterProvider.Shutdown(ctx)
}
