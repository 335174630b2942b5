// Package observability sets up tracing export and the process-level
// metrics shared by every command.
package observability

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc/credentials"

	"github.com/tbourn/thread-commands/internal/config"
	"github.com/tbourn/thread-commands/internal/domain"
)

const serviceNamespace = "threadcmd"

// sourceKey is the span attribute the engine sets on HandleEvent.
const sourceKey = attribute.Key("source")

// newExporter builds the span exporter; tests replace it.
var newExporter = func(ctx context.Context, cfg config.OTELConfig) (sdktrace.SpanExporter, error) {
	return otlptrace.New(ctx, otlptracegrpc.NewClient(exporterOptions(cfg)...))
}

func exporterOptions(cfg config.OTELConfig) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		return append(opts, otlptracegrpc.WithInsecure())
	}
	return append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
}

// originSampler decides root spans by where the work came from: roots
// opened for scanner events use the scan ratio, every other root the base
// ratio. Child spans follow their parent through ParentBased.
type originSampler struct {
	base sdktrace.Sampler
	scan sdktrace.Sampler
}

// NewSampler returns the sampler SetupOTel installs for cfg.
func NewSampler(cfg config.OTELConfig) sdktrace.Sampler {
	return sdktrace.ParentBased(originSampler{
		base: sdktrace.TraceIDRatioBased(cfg.SampleRatio),
		scan: sdktrace.TraceIDRatioBased(cfg.ScanSampleRatio),
	})
}

func (s originSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	for _, kv := range p.Attributes {
		if kv.Key == sourceKey && kv.Value.AsString() == string(domain.SourceScan) {
			return s.scan.ShouldSample(p)
		}
	}
	return s.base.ShouldSample(p)
}

func (s originSampler) Description() string {
	return fmt.Sprintf("OriginSampler{base:%s,scan:%s}", s.base.Description(), s.scan.Description())
}

// serviceResource describes this process to the tracing backend.
func serviceResource(ctx context.Context, serviceName, version string) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
			semconv.ServiceNamespace(serviceNamespace),
			semconv.ServiceInstanceID(instanceID()),
		),
		resource.WithProcessRuntimeVersion(),
	)
}

// instanceID names this process: the hostname, else the pid.
func instanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "pid-" + strconv.Itoa(os.Getpid())
}

// SetupOTel installs a batching tracer provider exporting over OTLP gRPC and
// returns its shutdown function, which flushes queued spans. When tracing is
// disabled the globals are left alone and shutdown is a no-op.
func SetupOTel(ctx context.Context, cfg config.OTELConfig, version string) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}
	res, err := serviceResource(ctx, cfg.ServiceName, version)
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	var batch []sdktrace.BatchSpanProcessorOption
	if cfg.MaxQueueSize > 0 {
		batch = append(batch, sdktrace.WithMaxQueueSize(cfg.MaxQueueSize))
	}
	if cfg.BatchTimeout > 0 {
		batch = append(batch, sdktrace.WithBatchTimeout(cfg.BatchTimeout))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, batch...),
		sdktrace.WithSampler(NewSampler(cfg)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp.Shutdown, nil
}
