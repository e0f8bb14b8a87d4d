package broker

import (
	"errors"
	"fmt"
)

// Kind classifies a broker failure so callers can decide between retrying
// with backoff and giving up.
type Kind string

const (
	// KindTransport is a network-level failure (connect, timeout). Retryable.
	KindTransport Kind = "transport"
	// KindUnavailable is a broker-side outage. Retryable with backoff.
	KindUnavailable Kind = "unavailable"
	// KindAuthFailed means the token was rejected. Terminal.
	KindAuthFailed Kind = "auth_failed"
	// KindHTTPStatus is a non-OK HTTP response that fits no more specific
	// kind. Retryable only for 5xx and 429.
	KindHTTPStatus Kind = "http_status"
	// KindInvalidArgument is a caller bug caught before or by the broker.
	// Terminal.
	KindInvalidArgument Kind = "invalid_argument"
	// KindBrokerRejected is an order-specific business rejection. Terminal.
	KindBrokerRejected Kind = "broker_rejected"
	// KindUnknown means the outcome could not be confirmed.
	KindUnknown Kind = "unknown"
)

// Error is the classified failure every broker operation returns. Endpoint
// names the RPC method so a failure can be diagnosed without re-running.
type Error struct {
	Kind     Kind
	Endpoint string
	Status   int    // HTTP status, when applicable
	Body     string // capped response body, when applicable
	Err      error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("broker %s: %s", e.Endpoint, e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt of the same call can succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransport, KindUnavailable:
		return true
	case KindHTTPStatus:
		return e.Status >= 500 || e.Status == 429
	}
	return false
}

// IsRetryable reports whether err is (or wraps) a retryable broker error.
func IsRetryable(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Retryable()
	}
	return false
}

// KindOf extracts the classification from err, or KindUnknown if err is not
// a broker error.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

func transportErr(endpoint string, err error) *Error {
	return &Error{Kind: KindTransport, Endpoint: endpoint, Err: err}
}

func invalidArgErr(endpoint string, err error) *Error {
	return &Error{Kind: KindInvalidArgument, Endpoint: endpoint, Err: err}
}

func rejectedErr(endpoint string, err error) *Error {
	return &Error{Kind: KindBrokerRejected, Endpoint: endpoint, Err: err}
}

// classifyStatus maps a non-OK HTTP response onto the error taxonomy:
// 401/403 are auth failures, 503 is a broker outage, everything else keeps
// its status for the 5xx/429 retry rule.
func classifyStatus(endpoint string, status int, body string) *Error {
	kind := KindHTTPStatus
	switch status {
	case 401, 403:
		kind = KindAuthFailed
	case 503:
		kind = KindUnavailable
	}
	return &Error{Kind: kind, Endpoint: endpoint, Status: status, Body: body}
}
