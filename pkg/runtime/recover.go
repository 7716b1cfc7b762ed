// Package runtime logs recovered panics with their stack and records them on
// the active span.
package runtime

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/LerianStudio/beneficiary-pay/pkg/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PanicEventName is the span event added for every recovered panic.
const PanicEventName = "panic.recovered"

// RecoverAndLog recovers from a panic, logs it and lets the caller return
// normally. It must be called directly by defer.
//
//	go func() {
//	    defer runtime.RecoverAndLog(ctx, logger, "idempotency janitor")
//	    // ...
//	}()
func RecoverAndLog(ctx context.Context, logger log.Logger, name string) {
	if r := recover(); r != nil {
		handle(ctx, logger, r, name, debug.Stack())
	}
}

// HandlePanicValue reports a panic that something else already recovered,
// such as the fiber recover middleware.
func HandlePanicValue(ctx context.Context, logger log.Logger, panicValue any, name string) {
	if panicValue == nil {
		return
	}

	handle(ctx, logger, panicValue, name, debug.Stack())
}

func handle(ctx context.Context, logger log.Logger, panicValue any, name string, stack []byte) {
	if ctx == nil {
		ctx = context.Background()
	}

	value := fmt.Sprintf("%v", panicValue)

	if logger != nil {
		logger.Log(ctx, log.LevelError, "panic recovered",
			log.String("source", name),
			log.String("panic_value", value),
			log.String("stack_trace", string(stack)),
		)
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.AddEvent(PanicEventName, trace.WithAttributes(
		attribute.String("panic.source", name),
		attribute.String("panic.value", value),
	))
	span.SetStatus(codes.Error, "panic recovered: "+name)
}
