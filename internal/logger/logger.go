// Package logger provides the process-wide zap logger and OpenTelemetry
// tracer. Log calls take a context so records carry the active trace and
// span ids.
package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const instrumentation = "marketfeed"

var tracerProvider *sdktrace.TracerProvider

// Config holds logging configuration.
type Config struct {
	Level   string `yaml:"level"`   // debug, info, warn, error
	Format  string `yaml:"format"`  // json or console
	Tracing bool   `yaml:"tracing"` // export spans to stdout
	Service string `yaml:"service"`
}

// Init builds the global logger and, when enabled, the tracer provider.
func Init(cfg Config) error {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Format == "console" {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	l, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	zap.ReplaceGlobals(l)

	if cfg.Tracing {
		if err := initTracer(cfg.Service); err != nil {
			l.Warn("failed to initialize tracer, tracing disabled", zap.Error(err))
		}
	}
	return nil
}

func initTracer(service string) error {
	if service == "" {
		service = instrumentation
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return err
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(service),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return err
	}
	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	return nil
}

// Shutdown flushes the logger and the tracer provider.
func Shutdown(ctx context.Context) error {
	_ = zap.L().Sync()
	if tracerProvider != nil {
		return tracerProvider.Shutdown(ctx)
	}
	return nil
}

// StartSpan starts a span on the global tracer. Without Init it is a no-op
// span.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentation).Start(ctx, name, opts...)
}

func withTrace(ctx context.Context, fields []zap.Field) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return fields
	}
	return append(fields,
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	zap.L().Debug(msg, withTrace(ctx, fields)...)
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	zap.L().Info(msg, withTrace(ctx, fields)...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	zap.L().Warn(msg, withTrace(ctx, fields)...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	zap.L().Error(msg, withTrace(ctx, fields)...)
}

// Operation times one unit of work inside its own span.
type Operation struct {
	ctx    context.Context
	span   trace.Span
	name   string
	start  time.Time
	fields []zap.Field
}

// StartOperation opens a span named name. kv are alternating keys and values
// recorded both as span attributes and log fields.
func StartOperation(ctx context.Context, name string, kv ...any) *Operation {
	ctx, span := StartSpan(ctx, name)
	fields := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		span.SetAttributes(toAttribute(key, kv[i+1]))
		fields = append(fields, zap.Any(key, kv[i+1]))
	}
	Debug(ctx, "operation started", append([]zap.Field{zap.String("operation", name)}, fields...)...)
	return &Operation{ctx: ctx, span: span, name: name, start: time.Now(), fields: fields}
}

// Context returns the context carrying the operation span.
func (o *Operation) Context() context.Context { return o.ctx }

// Elapsed is the time since the operation started.
func (o *Operation) Elapsed() time.Duration { return time.Since(o.start) }

// End closes the span as successful.
func (o *Operation) End(kv ...any) {
	o.finish(nil, kv)
}

// EndWithError records err on the span and logs it.
func (o *Operation) EndWithError(err error, kv ...any) {
	o.finish(err, kv)
}

func (o *Operation) finish(err error, kv []any) {
	d := o.Elapsed()
	fields := append([]zap.Field{zap.String("operation", o.name)}, o.fields...)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			o.span.SetAttributes(toAttribute(key, kv[i+1]))
			fields = append(fields, zap.Any(key, kv[i+1]))
		}
	}
	fields = append(fields, zap.Int64("duration_ms", d.Milliseconds()))
	o.span.SetAttributes(attribute.Int64("duration_ms", d.Milliseconds()))

	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
		o.span.End()
		Warn(o.ctx, "operation failed", append(fields, zap.Error(err))...)
		return
	}
	o.span.SetStatus(codes.Ok, "")
	o.span.End()
	Debug(o.ctx, "operation completed", fields...)
}

func toAttribute(key string, v any) attribute.KeyValue {
	switch v := v.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
