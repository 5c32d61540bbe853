// telemetry/telemetry.go

package telemetry

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/propagators/b3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Options selects where telemetry goes.
type Options struct {
	ServiceName    string
	ServiceVersion string
	SessionID      string

	// Endpoint is the OTLP gRPC collector address. Empty disables export.
	Endpoint string
	// Stdout, when set, receives every span as JSON.
	Stdout io.Writer
	// MetricInterval is the push interval of the periodic reader.
	MetricInterval time.Duration
}

// Providers holds the installed providers.
type Providers struct {
	Tracer *sdktrace.TracerProvider
	Meter  *sdkmetric.MeterProvider
}

// Setup installs tracer and meter providers and the W3C + B3 propagators as
// the otel globals.
func Setup(ctx context.Context, opts Options) (*Providers, error) {
	res, err := newResource(ctx, opts)
	if err != nil {
		return nil, err
	}

	tp, err := initTracerProvider(ctx, opts, res)
	if err != nil {
		return nil, err
	}
	mp, err := initMeterProvider(ctx, opts, res)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(Propagator())

	return &Providers{Tracer: tp, Meter: mp}, nil
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	terr := p.Tracer.Shutdown(ctx)
	merr := p.Meter.Shutdown(ctx)
	if terr != nil {
		return errors.Wrap(terr, "shutdown tracer provider")
	}
	if merr != nil {
		return errors.Wrap(merr, "shutdown meter provider")
	}
	return nil
}

// Propagator returns W3C Trace Context composed with B3, so requests to the
// stock service carry both header styles.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
		b3.New(b3.WithInjectEncoding(b3.B3MultipleHeader|b3.B3SingleHeader)),
	)
}

func newResource(ctx context.Context, opts Options) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(opts.ServiceName),
		semconv.ServiceVersionKey.String(opts.ServiceVersion),
	}
	if opts.SessionID != "" {
		attrs = append(attrs, attribute.String("session.id", opts.SessionID))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create resource")
	}
	return res, nil
}

func initTracerProvider(ctx context.Context, opts Options, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
	}

	if opts.Endpoint != "" {
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(opts.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create OTLP trace exporter")
		}
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)))
	}

	if opts.Stdout != nil {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(opts.Stdout))
		if err != nil {
			return nil, errors.Wrap(err, "failed to create stdout trace exporter")
		}
		// Synchronous so spans show up before the command returns.
		tpOpts = append(tpOpts, sdktrace.WithSyncer(exporter))
	}

	return sdktrace.NewTracerProvider(tpOpts...), nil
}

func initMeterProvider(ctx context.Context, opts Options, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if opts.Endpoint != "" {
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(opts.Endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create OTLP metric exporter")
		}
		interval := opts.MetricInterval
		if interval <= 0 {
			interval = 10 * time.Second
		}
		mpOpts = append(mpOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))))
	}

	return sdkmetric.NewMeterProvider(mpOpts...), nil
}
