package http

import (
	"strconv"
	"strings"
	"time"

	"github.com/LerianStudio/beneficiary-pay/pkg/commons"
	constant "github.com/LerianStudio/beneficiary-pay/pkg/constants"
	"github.com/LerianStudio/beneficiary-pay/pkg/log"
	"github.com/LerianStudio/beneficiary-pay/pkg/opentelemetry"
	"github.com/LerianStudio/beneficiary-pay/pkg/security"
	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/trace"
)

// RequestInfo holds access log data for one request.
type RequestInfo struct {
	Method        string
	URI           string
	Referer       string
	RemoteAddress string
	Status        int
	Date          time.Time
	Duration      time.Duration
	UserAgent     string
	CorrelationID string
	Protocol      string
	Size          int
	Body          string
}

// NewRequestInfo captures the request side of the access log. JSON bodies
// are logged with sensitive fields obfuscated.
func NewRequestInfo(c *fiber.Ctx) *RequestInfo {
	referer := "-"
	if r := c.Get(constant.HeaderReferer); r != "" {
		referer = r
	}

	body := ""
	if len(c.Body()) > 0 {
		body = string(security.ObfuscateJSON(c.Body()))
	}

	return &RequestInfo{
		CorrelationID: commons.CorrelationIDFromContext(c.UserContext()),
		Method:        c.Method(),
		URI:           c.OriginalURL(),
		Referer:       referer,
		UserAgent:     c.Get(constant.HeaderUserAgent),
		RemoteAddress: c.IP(),
		Protocol:      c.Protocol(),
		Date:          time.Now().UTC(),
		Body:          body,
	}
}

// CLFString renders the entry in Common Log Format.
func (r *RequestInfo) CLFString() string {
	return strings.Join([]string{
		r.RemoteAddress,
		"-",
		"-",
		r.Protocol,
		r.Date.Format("[02/Jan/2006:15:04:05 -0700]"),
		`"` + r.Method + " " + r.URI + `"`,
		strconv.Itoa(r.Status),
		strconv.Itoa(r.Size),
		r.Referer,
		r.UserAgent,
	}, " ")
}

func (r *RequestInfo) String() string {
	return r.CLFString()
}

func (r *RequestInfo) finish(c *fiber.Ctx) {
	r.Duration = time.Now().UTC().Sub(r.Date)
	r.Status = c.Response().StatusCode()
	r.Size = len(c.Response().Body())
}

// WithCorrelationID accepts the caller's X-Correlation-Id when non-blank,
// otherwise generates one. The id is stored in the request context, and
// echoed on the response even when the handler fails.
func WithCorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		correlationID := strings.TrimSpace(c.Get(constant.HeaderCorrelationID))
		if correlationID == "" {
			correlationID = commons.GenerateCorrelationID()
		}

		ctx := opentelemetry.ExtractHTTPContext(c)
		c.SetUserContext(commons.ContextWithCorrelationID(ctx, correlationID))
		c.Set(constant.HeaderCorrelationID, correlationID)

		err := c.Next()

		c.Set(constant.HeaderCorrelationID, correlationID)

		return err
	}
}

type logMiddleware struct {
	Logger log.Logger
	Tracer trace.Tracer
}

type LogMiddlewareOption func(l *logMiddleware)

func WithCustomLogger(logger log.Logger) LogMiddlewareOption {
	return func(l *logMiddleware) {
		if logger != nil {
			l.Logger = logger
		}
	}
}

// WithTracer makes tracer the one handlers get from NewTrackingFromContext.
func WithTracer(tracer trace.Tracer) LogMiddlewareOption {
	return func(l *logMiddleware) {
		l.Tracer = tracer
	}
}

// WithHTTPLogging stores a request logger carrying the correlation id in the
// request context and writes one CLF access log line per request. It must
// run after WithCorrelationID. /health is not logged.
func WithHTTPLogging(opts ...LogMiddlewareOption) fiber.Handler {
	mid := &logMiddleware{Logger: log.NewNop()}
	for _, opt := range opts {
		opt(mid)
	}

	return func(c *fiber.Ctx) error {
		if c.Path() == "/health" {
			return c.Next()
		}

		info := NewRequestInfo(c)

		logger := mid.Logger.With(log.String("correlation_id", info.CorrelationID))
		ctx := commons.ContextWithLogger(c.UserContext(), logger)
		if mid.Tracer != nil {
			ctx = commons.ContextWithTracer(ctx, mid.Tracer)
		}

		c.SetUserContext(ctx)

		err := c.Next()
		if err != nil {
			// Render now so the access log sees the final status.
			if renderErr := c.App().ErrorHandler(c, err); renderErr != nil {
				err = renderErr
			} else {
				err = nil
			}
		}

		info.finish(c)

		fields := []log.Field{
			log.Int("status", info.Status),
			log.Duration("duration", info.Duration),
		}
		if info.Body != "" && logger.Enabled(log.LevelDebug) {
			fields = append(fields, log.String("body", info.Body))
		}

		logger.Log(c.UserContext(), log.LevelInfo, info.CLFString(), fields...)

		return err
	}
}
