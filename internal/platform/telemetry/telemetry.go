// Package telemetry sets up OpenTelemetry tracing, metrics and logging.
// Export goes over OTLP/gRPC and is enabled only when an endpoint is
// configured; otherwise the global no-op providers stay in place and
// instrumentation calls cost next to nothing.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/task-tracker/internal/config"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Providers holds whatever was started by Setup.
type Providers struct {
	// LogHandler bridges slog records to the OTel log pipeline. Nil when
	// export is disabled.
	LogHandler slog.Handler

	shutdowns []func(context.Context) error
	conn      *grpc.ClientConn
}

// Shutdown flushes and stops every provider, then closes the exporter
// connection.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	for i := len(p.shutdowns) - 1; i >= 0; i-- {
		if err := p.shutdowns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Setup starts the trace, metric and log providers and registers them
// globally. With an empty endpoint it returns an inert Providers.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (*Providers, error) {
	p := &Providers{}
	if !cfg.Enabled() {
		return p, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := grpc.NewClient(cfg.OTLPEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	p.conn = conn

	tp, err := InitTracerProvider(ctx, conn, res)
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}
	p.shutdowns = append(p.shutdowns, tp.Shutdown)

	mp, err := InitMeterProvider(ctx, conn, res)
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}
	p.shutdowns = append(p.shutdowns, mp.Shutdown)

	lp, handler, err := InitLoggerProvider(ctx, conn, res, cfg.ServiceName)
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}
	p.shutdowns = append(p.shutdowns, lp.Shutdown)
	p.LogHandler = handler

	return p, nil
}

func newResource(cfg config.TelemetryConfig) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}
