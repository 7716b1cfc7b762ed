package commons

import (
	"context"
	"strings"

	"github.com/LerianStudio/beneficiary-pay/pkg/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "beneficiary-pay"

type customContextKey string

// CustomContextKey is the context key used to store CustomContextKeyValue.
var CustomContextKey = customContextKey("custom_context")

// CustomContextKeyValue holds the request scoped facilities attached to a context.
// Values are copied on every write so a derived context never mutates its parent.
type CustomContextKeyValue struct {
	CorrelationID string
	Tracer        trace.Tracer
	Logger        log.Logger
}

func valuesFrom(ctx context.Context) CustomContextKeyValue {
	if values, ok := ctx.Value(CustomContextKey).(*CustomContextKeyValue); ok && values != nil {
		return *values
	}

	return CustomContextKeyValue{}
}

// NewLoggerFromContext returns the request logger, or a NopLogger.
//
//nolint:ireturn
func NewLoggerFromContext(ctx context.Context) log.Logger {
	if values := valuesFrom(ctx); values.Logger != nil {
		return values.Logger
	}

	return &log.NopLogger{}
}

func ContextWithLogger(ctx context.Context, logger log.Logger) context.Context {
	values := valuesFrom(ctx)
	values.Logger = logger

	return context.WithValue(ctx, CustomContextKey, &values)
}

func ContextWithTracer(ctx context.Context, tracer trace.Tracer) context.Context {
	values := valuesFrom(ctx)
	values.Tracer = tracer

	return context.WithValue(ctx, CustomContextKey, &values)
}

// ContextWithCorrelationID stores the correlation identifier of the current request.
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	values := valuesFrom(ctx)
	values.CorrelationID = strings.TrimSpace(correlationID)

	return context.WithValue(ctx, CustomContextKey, &values)
}

// CorrelationIDFromContext returns the stored correlation identifier, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	return valuesFrom(ctx).CorrelationID
}

// EnsureCorrelationID returns ctx unchanged when it already carries a
// correlation identifier, otherwise it stores a fresh UUID.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := CorrelationIDFromContext(ctx); id != "" {
		return ctx, id
	}

	id := GenerateCorrelationID()

	return ContextWithCorrelationID(ctx, id), id
}

// GenerateCorrelationID returns a new random correlation identifier.
func GenerateCorrelationID() string {
	return uuid.New().String()
}

// NewTrackingFromContext returns the logger, tracer and correlation identifier
// of the request. Missing components fall back to a NopLogger, the global
// tracer and an empty correlation identifier.
//
//nolint:ireturn
func NewTrackingFromContext(ctx context.Context) (log.Logger, trace.Tracer, string) {
	values := valuesFrom(ctx)

	logger := values.Logger
	if logger == nil {
		logger = &log.NopLogger{}
	}

	tracer := values.Tracer
	if tracer == nil {
		tracer = otel.Tracer(defaultTracerName)
	}

	return logger, tracer, values.CorrelationID
}
