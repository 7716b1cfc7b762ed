package constant

const (
	// HeaderUserAgent is the HTTP User-Agent header key.
	HeaderUserAgent = "User-Agent"
	// HeaderCorrelationID carries the correlation identifier in and out of the service
	// and on every downstream call.
	HeaderCorrelationID = "X-Correlation-Id"
	// IdempotencyReplayed is set on responses served from the idempotency ledger.
	IdempotencyReplayed = "X-Idempotency-Replayed"
	// Authorization is the HTTP Authorization header key.
	Authorization = "Authorization"
	// Bearer is the HTTP Bearer auth scheme token.
	Bearer = "Bearer"
	HeaderReferer     = "Referer"
	HeaderContentType = "Content-Type"
	HeaderAccept      = "Accept"
	// MediaTypeJSON is the content type used for every downstream payload.
	MediaTypeJSON = "application/json"
)
