// Package downstream performs every call to the customer, beneficiary and
// payment systems and turns whatever goes wrong into a *Failure.
package downstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/LerianStudio/beneficiary-pay/pkg/circuitbreaker"
	"github.com/LerianStudio/beneficiary-pay/pkg/commons"
	cn "github.com/LerianStudio/beneficiary-pay/pkg/constants"
	"github.com/LerianStudio/beneficiary-pay/pkg/log"
	"github.com/LerianStudio/beneficiary-pay/pkg/opentelemetry"
	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 1 << 20
)

var (
	ErrServerStatus = errors.New("downstream responded with a server error")
	ErrEmptyBody    = errors.New("downstream responded with an empty body")
)

// CredentialProvider supplies the bearer token for outgoing calls. An empty
// token means no Authorization header.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// Caller is what the service proxies depend on.
type Caller interface {
	Call(ctx context.Context, req Request, out any) error
}

// Request describes one downstream call. Path must already be escaped.
type Request struct {
	Service string
	Method  string
	BaseURL string
	Path    string
	Query   url.Values
	Body    any
}

func (r Request) target() string {
	return strings.TrimRight(r.BaseURL, "/") + r.Path
}

type Config struct {
	Timeout     time.Duration
	Credentials CredentialProvider
	// Breakers enables per-service fast failing when set.
	Breakers   circuitbreaker.Manager
	HTTPClient *http.Client
}

// Gateway is the Caller backed by net/http. It never retries.
type Gateway struct {
	client      *http.Client
	credentials CredentialProvider
	breakers    circuitbreaker.Manager
}

var _ Caller = (*Gateway)(nil)

func NewGateway(cfg Config) *Gateway {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}

		client = &http.Client{Timeout: timeout}
	}

	return &Gateway{client: client, credentials: cfg.Credentials, breakers: cfg.Breakers}
}

type outcome struct {
	status int
	body   []byte
}

// Call sends req and decodes a 2xx body into out. out may be nil when the
// response body is not needed. Every error returned is a *Failure.
func (g *Gateway) Call(ctx context.Context, req Request, out any) error {
	logger, tracer, correlationID := commons.NewTrackingFromContext(ctx)
	target := req.target()

	ctx, span := tracer.Start(ctx, "downstream."+req.Service, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.url", target),
		attribute.String("app.correlation_id", correlationID),
	)

	start := time.Now()

	res, err := g.call(ctx, req, target, correlationID, out)

	fields := []log.Field{
		log.String("service", req.Service),
		log.String("method", req.Method),
		log.String("target", target),
		log.Duration("duration", time.Since(start)),
	}

	if err != nil {
		var f *Failure
		if errors.As(err, &f) {
			fields = append(fields, log.String("kind", string(f.Kind)), log.Int("status", f.Status))
			span.SetAttributes(attribute.String("app.failure_kind", string(f.Kind)), attribute.Int("http.status_code", f.Status))
		}

		opentelemetry.HandleSpanError(span, "Downstream call failed", err)
		logger.Log(ctx, log.LevelWarn, "downstream call failed", append(fields, log.Err(err))...)

		return err
	}

	span.SetAttributes(attribute.Int("http.status_code", res.status))
	logger.Log(ctx, log.LevelDebug, "downstream call succeeded", append(fields, log.Int("status", res.status))...)

	return nil
}

func (g *Gateway) call(ctx context.Context, req Request, target, correlationID string, out any) (outcome, error) {
	var payload []byte

	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return outcome{}, clientFailure(req.Service, target, nil, fmt.Errorf("encode request body: %w", err))
		}

		payload = b
	}

	token := ""

	if g.credentials != nil {
		t, err := g.credentials.Token(ctx)
		if err != nil {
			return outcome{}, clientFailure(req.Service, target, nil, fmt.Errorf("obtain service credential: %w", err))
		}

		token = t
	}

	var res outcome

	send := func() (any, error) {
		o, err := g.dispatch(ctx, req, target, correlationID, token, payload)
		if err != nil {
			return nil, err
		}

		res = o

		if o.status >= http.StatusInternalServerError {
			return nil, ErrServerStatus
		}

		return nil, nil
	}

	var err error

	if g.breakers != nil {
		g.breakers.GetOrCreate(req.Service, circuitbreaker.HTTPServiceConfig())
		_, err = g.breakers.Execute(req.Service, send)
	} else {
		_, err = send()
	}

	switch {
	case err == nil, errors.Is(err, ErrServerStatus):
	case errors.Is(err, circuitbreaker.ErrOpen):
		return outcome{}, clientFailure(req.Service, target, nil, err)
	case isTransportError(err):
		return outcome{}, transportFailure(req.Service, target, err)
	default:
		return outcome{}, clientFailure(req.Service, target, nil, err)
	}

	if res.status < http.StatusOK || res.status >= http.StatusMultipleChoices {
		return res, protocolFailure(req.Service, target, res.status, res.body)
	}

	if out == nil {
		return res, nil
	}

	if len(bytes.TrimSpace(res.body)) == 0 {
		return res, clientFailure(req.Service, target, nil, ErrEmptyBody)
	}

	if err := json.Unmarshal(res.body, out); err != nil {
		return res, clientFailure(req.Service, target, res.body, fmt.Errorf("decode response body: %w", err))
	}

	return res, nil
}

func (g *Gateway) dispatch(ctx context.Context, req Request, target, correlationID, token string, payload []byte) (outcome, error) {
	u := target
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return outcome{}, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set(cn.HeaderContentType, cn.MediaTypeJSON)
	httpReq.Header.Set(cn.HeaderAccept, cn.MediaTypeJSON)

	if correlationID != "" {
		httpReq.Header.Set(cn.HeaderCorrelationID, correlationID)
	}

	if token != "" {
		httpReq.Header.Set(cn.Authorization, cn.Bearer+" "+token)
	}

	opentelemetry.InjectHTTPContext(ctx, httpReq.Header)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return outcome{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return outcome{}, fmt.Errorf("read response body: %w", err)
	}

	return outcome{status: resp.StatusCode, body: raw}, nil
}

// isTransportError reports timeouts and refused, reset or dropped connections.
func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError

	return errors.As(err, &opErr)
}
