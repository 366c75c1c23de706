// Package gwerr defines the gateway's error taxonomy (spec §7). Every
// internal package that can fail on the hot path returns a *gwerr.Error
// (or wraps one) so the HTTP boundary has exactly one place that decides
// status codes and the client-facing JSON envelope.
package gwerr

import "fmt"

// Kind classifies a gateway error per spec §7.
type Kind string

const (
	KindInvalidRequest      Kind = "invalid_request"
	KindInvalidAPIKey       Kind = "invalid_api_key"
	KindUnknownProvider     Kind = "unknown_provider"
	KindUnknownModel        Kind = "unknown_model"
	KindUpstreamStatus      Kind = "upstream_status"
	KindUpstreamUnreachable Kind = "upstream_unreachable"
	KindUpstreamDecode      Kind = "upstream_decode"
	KindClientDisconnected  Kind = "client_disconnected"
	KindInternal            Kind = "internal"
)

// Error is the gateway's single error type. HTTPStatus is the status the
// handler should write when the error occurs before headers are sent;
// it is ignored once streaming has begun (spec §7 propagation policy).
type Error struct {
	Kind       Kind
	HTTPStatus int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newf(kind Kind, status int, format string, args ...any) *Error {
	return &Error{Kind: kind, HTTPStatus: status, Message: fmt.Sprintf(format, args...)}
}

// InvalidRequest builds a 400 InvalidRequest error.
func InvalidRequest(format string, args ...any) *Error {
	return newf(KindInvalidRequest, 400, format, args...)
}

// InvalidAPIKey builds a 401 InvalidApiKey error.
func InvalidAPIKey(format string, args ...any) *Error {
	return newf(KindInvalidAPIKey, 401, format, args...)
}

// UnknownProvider builds a 400 UnknownProvider error.
func UnknownProvider(id string) *Error {
	return newf(KindUnknownProvider, 400, "unknown provider %q", id)
}

// UnknownModel builds a 400 UnknownModel error.
func UnknownModel(id string) *Error {
	return newf(KindUnknownModel, 400, "unknown model %q", id)
}

// UpstreamStatus builds an error that forwards the upstream's own status
// code, per spec §7 ("body forwarded with credential-restricted messages
// redacted server-side").
func UpstreamStatus(code int, message string) *Error {
	return &Error{Kind: KindUpstreamStatus, HTTPStatus: code, Message: message}
}

// UpstreamUnreachable builds a 502 error for pre-header network failures.
func UpstreamUnreachable(cause error) *Error {
	return &Error{Kind: KindUpstreamUnreachable, HTTPStatus: 502, Message: "upstream unreachable", Cause: cause}
}

// UpstreamDecode builds a 502 error for a post-headers parse failure.
func UpstreamDecode(cause error) *Error {
	return &Error{Kind: KindUpstreamDecode, HTTPStatus: 502, Message: "upstream response could not be decoded", Cause: cause}
}

// ClientDisconnected marks a request whose client went away; it carries
// no HTTP response (the socket is already gone) and exists only so the
// logger can finalize with a matching reason.
func ClientDisconnected() *Error {
	return &Error{Kind: KindClientDisconnected, HTTPStatus: 499, Message: "client closed"}
}

// Internal builds a 500 error for states that should be unreachable.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, HTTPStatus: 500, Message: "internal error", Cause: cause}
}

// Envelope is the JSON error shape from spec §7: {"error":{"code","message"}}.
type Envelope struct {
	Error EnvelopeBody `json:"error"`
}

// EnvelopeBody is the body of Envelope.
type EnvelopeBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToEnvelope renders e as the client-facing JSON error body.
func (e *Error) ToEnvelope() Envelope {
	return Envelope{Error: EnvelopeBody{Code: string(e.Kind), Message: e.Message}}
}

// As extracts a *Error from err, following the standard unwrap chain.
func As(err error) (*Error, bool) {
	for err != nil {
		if g, ok := err.(*Error); ok {
			return g, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
