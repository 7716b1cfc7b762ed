package downstream

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// Kind classifies why a downstream call failed.
type Kind string

const (
	// KindProtocol is a non-2xx response from the remote system.
	KindProtocol Kind = "ProtocolError"
	// KindTransport is a timeout or a refused or reset connection.
	KindTransport Kind = "TransportError"
	// KindClient is any other local failure to dispatch or decode the call.
	KindClient Kind = "ClientError"
)

const maxFailureBodyBytes = 4 << 10

// Failure is the single error type returned by Gateway.Call.
type Failure struct {
	Kind    Kind
	Status  int
	Service string
	Target  string
	Body    string
	Err     error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("%s call to %s failed: %s (status %d)", f.Service, f.Target, f.Kind, f.Status)
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}

	return msg
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// IsNotFound reports whether err is a protocol failure with status 404.
func IsNotFound(err error) bool {
	var f *Failure

	return errors.As(err, &f) && f.Kind == KindProtocol && f.Status == http.StatusNotFound
}

func protocolFailure(service, target string, status int, body []byte) *Failure {
	return &Failure{Kind: KindProtocol, Status: status, Service: service, Target: target, Body: truncateBody(body)}
}

func transportFailure(service, target string, err error) *Failure {
	return &Failure{Kind: KindTransport, Status: http.StatusGatewayTimeout, Service: service, Target: target, Err: err}
}

func clientFailure(service, target string, body []byte, err error) *Failure {
	return &Failure{Kind: KindClient, Status: http.StatusBadGateway, Service: service, Target: target, Body: truncateBody(body), Err: err}
}

// truncateBody keeps at most maxFailureBodyBytes, cutting on a rune boundary.
func truncateBody(body []byte) string {
	if len(body) <= maxFailureBodyBytes {
		return string(body)
	}

	cut := maxFailureBodyBytes
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}

	return string(body[:cut])
}
