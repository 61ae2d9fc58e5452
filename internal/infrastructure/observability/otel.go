package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/zatekoja/bpcare"

// Metrics holds all application metrics
type Metrics struct {
	RequestCount    metric.Int64Counter
	RequestDuration metric.Float64Histogram

	// Workflow
	RecommendationsGenerated metric.Int64Counter
	RecommendationsReviewed  metric.Int64Counter
	ReadingsAccepted         metric.Int64Counter
	ReadingsRejected         metric.Int64Counter
	DoctorLinkChanges        metric.Int64Counter
}

// Setup initializes OpenTelemetry traces, metrics and logs against one OTLP endpoint
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, errors.Join(err, tracerProvider.Shutdown(ctx))
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		return nil, errors.Join(err, tracerProvider.Shutdown(ctx), meterProvider.Shutdown(ctx))
	}

	logExporter, err := otlploggrpc.New(ctx,
		otlploggrpc.WithEndpoint(endpoint),
		otlploggrpc.WithInsecure(),
	)
	if err != nil {
		return nil, errors.Join(err, tracerProvider.Shutdown(ctx), meterProvider.Shutdown(ctx))
	}
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)
	AttachOTelLogs(loggerProvider)

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			loggerProvider.Shutdown(ctx),
			meterProvider.Shutdown(ctx),
			tracerProvider.Shutdown(ctx),
		)
	}

	return shutdown, nil
}

// InitMetrics initializes application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	if m.RequestCount, err = meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Number of HTTP requests"),
	); err != nil {
		return nil, err
	}

	if m.RequestDuration, err = meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.RecommendationsGenerated, err = meter.Int64Counter(
		"bpcare.recommendations.generated",
		metric.WithDescription("Recommendations generated, by source"),
	); err != nil {
		return nil, err
	}

	if m.RecommendationsReviewed, err = meter.Int64Counter(
		"bpcare.recommendations.reviewed",
		metric.WithDescription("Doctor review decisions, by outcome"),
	); err != nil {
		return nil, err
	}

	if m.ReadingsAccepted, err = meter.Int64Counter(
		"bpcare.readings.accepted",
		metric.WithDescription("Blood pressure readings accepted, by time slot"),
	); err != nil {
		return nil, err
	}

	if m.ReadingsRejected, err = meter.Int64Counter(
		"bpcare.readings.rejected",
		metric.WithDescription("Blood pressure readings rejected by the daily quota"),
	); err != nil {
		return nil, err
	}

	if m.DoctorLinkChanges, err = meter.Int64Counter(
		"bpcare.doctor_links.changes",
		metric.WithDescription("Doctor link state changes, by status"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, spanName)
}

// RecordError records an error in the current span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}

// SetSpanAttributes sets attributes on a span
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// RecordRequestMetric records a metric with attributes
func RecordRequestMetric(ctx context.Context, metrics *Metrics, method, path string, statusCode int, duration time.Duration) {
	if metrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.route", path),
		attribute.Int("http.status_code", statusCode),
	}

	metrics.RequestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.RequestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordRecommendationGenerated counts a generated recommendation by its source
func RecordRecommendationGenerated(ctx context.Context, metrics *Metrics, source string) {
	if metrics == nil {
		return
	}
	metrics.RecommendationsGenerated.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordRecommendationReviewed counts a review decision
func RecordRecommendationReviewed(ctx context.Context, metrics *Metrics, outcome string) {
	if metrics == nil {
		return
	}
	metrics.RecommendationsReviewed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordReading counts an accepted or quota-rejected reading
func RecordReading(ctx context.Context, metrics *Metrics, slot string, accepted bool) {
	if metrics == nil {
		return
	}
	if !accepted {
		metrics.ReadingsRejected.Add(ctx, 1)
		return
	}
	metrics.ReadingsAccepted.Add(ctx, 1, metric.WithAttributes(attribute.String("time_slot", slot)))
}

// RecordDoctorLinkChange counts link transitions
func RecordDoctorLinkChange(ctx context.Context, metrics *Metrics, status string, n int) {
	if metrics == nil || n <= 0 {
		return
	}
	metrics.DoctorLinkChanges.Add(ctx, int64(n), metric.WithAttributes(attribute.String("status", status)))
}
