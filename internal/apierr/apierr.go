// Package apierr defines the error taxonomy shared by every first-party
// handler: a small set of named failure kinds, the HTTP status each one
// maps to, and a wrapper type that keeps the original cause available to
// errors.Is/errors.As.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind names one of the failure modes a first-party request can hit.
type Kind string

const (
	KindInvalidToken         Kind = "InvalidToken"
	KindExpiredToken         Kind = "ExpiredToken"
	KindBaseChanged          Kind = "BaseChanged"
	KindTooManyRedirects     Kind = "TooManyRedirects"
	KindRedirectLoop         Kind = "RedirectLoop"
	KindUpstreamFailure      Kind = "UpstreamFailure"
	KindUpstreamTimeout      Kind = "UpstreamTimeout"
	KindConfigError          Kind = "ConfigError"
	KindSyntheticUnavailable Kind = "SyntheticUnavailable"
)

// sentinels allow callers to match a failure with errors.Is without
// depending on the wrapping *Error type.
var (
	ErrInvalidToken         = errors.New("invalid token")
	ErrExpiredToken         = errors.New("token expired")
	ErrBaseChanged          = errors.New("rebuild changed the signed base url")
	ErrTooManyRedirects     = errors.New("too many redirects")
	ErrRedirectLoop         = errors.New("redirect loop detected")
	ErrUpstreamFailure      = errors.New("upstream fetch failed")
	ErrUpstreamTimeout      = errors.New("upstream fetch timed out")
	ErrConfigError          = errors.New("configuration error")
	ErrSyntheticUnavailable = errors.New("synthetic id unavailable")
)

var sentinelFor = map[Kind]error{
	KindInvalidToken:         ErrInvalidToken,
	KindExpiredToken:         ErrExpiredToken,
	KindBaseChanged:          ErrBaseChanged,
	KindTooManyRedirects:     ErrTooManyRedirects,
	KindRedirectLoop:         ErrRedirectLoop,
	KindUpstreamFailure:      ErrUpstreamFailure,
	KindUpstreamTimeout:      ErrUpstreamTimeout,
	KindConfigError:          ErrConfigError,
	KindSyntheticUnavailable: ErrSyntheticUnavailable,
}

// statusFor mirrors the table in spec §7.
var statusFor = map[Kind]int{
	KindInvalidToken:         http.StatusBadRequest,
	KindExpiredToken:         http.StatusGone,
	KindBaseChanged:          http.StatusUnprocessableEntity,
	KindTooManyRedirects:     http.StatusBadGateway,
	KindRedirectLoop:         http.StatusBadGateway,
	KindUpstreamFailure:      http.StatusBadGateway,
	KindUpstreamTimeout:      http.StatusGatewayTimeout,
	KindConfigError:          http.StatusInternalServerError,
	KindSyntheticUnavailable: http.StatusInternalServerError,
}

// Error wraps a Kind with an optional underlying cause.
type Error struct {
	Kind  Kind
	Cause error
}

func New(kind Kind) *Error {
	return &Error{Kind: kind, Cause: sentinelFor[kind]}
}

func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	if sentinel, ok := sentinelFor[e.Kind]; ok {
		return errors.Is(sentinel, target)
	}
	return false
}

// StatusFor returns the HTTP status code for the given Kind, defaulting to
// 500 for an unrecognized kind (should not happen outside tests).
func StatusFor(kind Kind) int {
	if s, ok := statusFor[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// As extracts a *Error from err, mirroring errors.As for callers that don't
// want to import "errors" just for this.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// WriteHTTP writes the status/body for err onto w. If err is not an
// *Error, it is treated as an unexpected internal failure (500).
func WriteHTTP(w http.ResponseWriter, err error) {
	e, ok := As(err)
	if !ok {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Error(w, e.Error(), StatusFor(e.Kind))
}
