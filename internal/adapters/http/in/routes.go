// Package in exposes the inbound HTTP routes.
package in

import (
	"github.com/LerianStudio/beneficiary-pay/pkg/commons"
	"github.com/LerianStudio/beneficiary-pay/pkg/log"
	libHTTP "github.com/LerianStudio/beneficiary-pay/pkg/net/http"
	"github.com/LerianStudio/beneficiary-pay/pkg/runtime"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.opentelemetry.io/otel"
)

const tracerName = "beneficiary-pay/http"

// NewRouter wires the payment route behind the correlation and access log
// middleware, plus the health, version and ping endpoints.
func NewRouter(logger log.Logger, ph *PaymentHandler, health ...libHTTP.DependencyCheck) *fiber.App {
	f := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          libHTTP.FiberErrorHandler,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	f.Use(libHTTP.WithCorrelationID())
	f.Use(libHTTP.WithHTTPLogging(
		libHTTP.WithCustomLogger(logger),
		libHTTP.WithTracer(otel.Tracer(tracerName)),
	))
	f.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e any) {
			runtime.HandlePanicValue(c.UserContext(), commons.NewLoggerFromContext(c.UserContext()), e, "http_handler")
		},
	}))

	f.Post("/v1/customers/:customerId/beneficiaries/pay", ph.PayBeneficiary)

	f.Get("/health", libHTTP.HealthWithDependencies(health...))
	f.Get("/version", libHTTP.Version)
	f.Get("/ping", libHTTP.Ping)

	return f
}
