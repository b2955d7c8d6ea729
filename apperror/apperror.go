// Package apperror defines the closed set of failure kinds the gateway reports
// and their mapping to HTTP status codes.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure at the point where it is produced.
type Kind int

const (
	Internal Kind = iota
	Validation
	QuotaExceeded
	UpstreamTimeout
	UpstreamUnreachable
	UpstreamHTTP
	NoHistory
	NotFound
	Forbidden
	RateLimited
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case QuotaExceeded:
		return "quota_exceeded"
	case UpstreamTimeout:
		return "upstream_timeout"
	case UpstreamUnreachable:
		return "upstream_unreachable"
	case UpstreamHTTP:
		return "upstream_http"
	case NoHistory:
		return "no_history"
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case RateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is the gateway error value. Status is only meaningful for UpstreamHTTP.
type Error struct {
	Kind    Kind
	Message string
	Reason  string
	Note    string
	Status  int
	Raw     string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Body is the JSON shape written to clients.
type Body struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Note   string `json:"note,omitempty"`
	Raw    string `json:"raw,omitempty"`
}

// Body returns the client-facing representation of e.
func (e *Error) Body() Body {
	return Body{Error: e.Message, Reason: e.Reason, Note: e.Note, Raw: e.Raw}
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func NewValidation(msg string) *Error { return New(Validation, msg) }

func NewNotFound(msg string) *Error { return New(NotFound, msg) }

func NewNoHistory(reason string) *Error {
	return &Error{Kind: NoHistory, Message: "no history", Reason: reason}
}

func NewQuota(note string) *Error {
	return &Error{Kind: QuotaExceeded, Message: "quota exceeded", Note: note}
}

func NewTimeout(err error) *Error {
	return &Error{Kind: UpstreamTimeout, Message: "upstream timeout", Reason: "timeout", Err: err}
}

func NewUnreachable(err error) *Error {
	return &Error{Kind: UpstreamUnreachable, Message: "upstream unreachable", Reason: "network", Err: err}
}

func NewUpstreamHTTP(status int, raw string) *Error {
	return &Error{Kind: UpstreamHTTP, Message: fmt.Sprintf("upstream http %d", status), Status: status, Raw: raw}
}

func NewRateLimited(note string) *Error {
	return &Error{Kind: RateLimited, Message: "rate limit", Note: note}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns Internal for errors not produced by this package.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Recoverable reports whether local data may stand in for the failed upstream call.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case QuotaExceeded, UpstreamTimeout, UpstreamUnreachable:
		return true
	}
	return false
}

// HTTPStatus maps err to the response status code.
func HTTPStatus(err error) int {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case Validation:
		return http.StatusBadRequest
	case QuotaExceeded, RateLimited:
		return http.StatusTooManyRequests
	case UpstreamTimeout:
		return http.StatusGatewayTimeout
	case UpstreamUnreachable:
		return http.StatusBadGateway
	case UpstreamHTTP:
		if e.Status >= 400 {
			return e.Status
		}
		return http.StatusInternalServerError
	case NoHistory, NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// BodyOf converts any error to its client body. Foreign errors are reported as internal.
func BodyOf(err error) Body {
	if e, ok := As(err); ok {
		return e.Body()
	}
	return Body{Error: "internal error"}
}
