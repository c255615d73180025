// Package apierr maps gateway failures to stable HTTP error responses.
//
// Every error carries a public message and, optionally, an internal cause.
// Only the public part is ever written to the client.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindSecurity
	KindAuthentication
	KindAuthorization
	KindUpgradeRequired
	KindLockout
	KindConflict
	KindNotFound
	KindUnavailable
	KindTooLarge
	KindUnsupportedMediaType
)

var statusByKind = map[Kind]int{
	KindInternal:             http.StatusInternalServerError,
	KindValidation:           http.StatusBadRequest,
	KindSecurity:             http.StatusForbidden,
	KindAuthentication:       http.StatusUnauthorized,
	KindAuthorization:        http.StatusForbidden,
	KindUpgradeRequired:      http.StatusForbidden,
	KindLockout:              http.StatusTooManyRequests,
	KindConflict:             http.StatusConflict,
	KindNotFound:             http.StatusNotFound,
	KindUnavailable:          http.StatusServiceUnavailable,
	KindTooLarge:             http.StatusRequestEntityTooLarge,
	KindUnsupportedMediaType: http.StatusUnsupportedMediaType,
}

type Error struct {
	Kind    Kind
	Message string
	Err     error

	RequiredPlan string
	CurrentPlan  string
	RetryAfter   time.Duration
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status for the error kind.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func Validation(msg string, cause error) *Error {
	return &Error{Kind: KindValidation, Message: msg, Err: cause}
}

// InvalidInput is the single response used for every injection match.
func InvalidInput(cause error) *Error {
	return &Error{Kind: KindValidation, Message: "Invalid input detected", Err: cause}
}

func Security(msg string, cause error) *Error {
	return &Error{Kind: KindSecurity, Message: msg, Err: cause}
}

func Authentication(msg string, cause error) *Error {
	return &Error{Kind: KindAuthentication, Message: msg, Err: cause}
}

func Forbidden(cause error) *Error {
	return &Error{Kind: KindAuthorization, Message: "Insufficient permissions", Err: cause}
}

func UpgradeRequired(required, current string, cause error) *Error {
	return &Error{
		Kind:         KindUpgradeRequired,
		Message:      "Plan upgrade required",
		Err:          cause,
		RequiredPlan: required,
		CurrentPlan:  current,
	}
}

func Lockout(msg string, retryAfter time.Duration, cause error) *Error {
	return &Error{Kind: KindLockout, Message: msg, Err: cause, RetryAfter: retryAfter}
}

func Conflict(msg string, cause error) *Error {
	return &Error{Kind: KindConflict, Message: msg, Err: cause}
}

func NotFound(msg string, cause error) *Error {
	return &Error{Kind: KindNotFound, Message: msg, Err: cause}
}

func Unavailable(msg string, cause error) *Error {
	return &Error{Kind: KindUnavailable, Message: msg, Err: cause}
}

func TooLarge(cause error) *Error {
	return &Error{Kind: KindTooLarge, Message: "Payload too large", Err: cause}
}

func UnsupportedMediaType(cause error) *Error {
	return &Error{Kind: KindUnsupportedMediaType, Message: "Content-Type must be application/json", Err: cause}
}

func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "Internal server error", Err: cause}
}

// From returns err as an *Error, wrapping unknown errors as internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// Body is the JSON shape sent to clients.
type Body struct {
	Error        string `json:"error"`
	RetryAfter   string `json:"retryAfter,omitempty"`
}

// UpgradeBody is the plan-gate shape. Both plans are always present.
type UpgradeBody struct {
	Error        string `json:"error"`
	RequiredPlan string `json:"requiredPlan"`
	CurrentPlan  string `json:"currentPlan"`
}

// RetryMinutes renders a lockout duration the way clients expect it.
func RetryMinutes(d time.Duration) string {
	m := int(math.Ceil(d.Minutes()))
	if m < 1 {
		m = 1
	}
	return fmt.Sprintf("%d minutes", m)
}

// Write sends err to the client. Internal causes are not included.
func Write(w http.ResponseWriter, err error) {
	e := From(err)
	if e.Kind == KindUpgradeRequired {
		WriteJSON(w, e.Status(), UpgradeBody{Error: e.Message, RequiredPlan: e.RequiredPlan, CurrentPlan: e.CurrentPlan})
		return
	}
	body := Body{Error: e.Message}
	if e.Kind == KindLockout {
		body.RetryAfter = RetryMinutes(e.RetryAfter)
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(e.RetryAfter.Seconds()))))
	}
	WriteJSON(w, e.Status(), body)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
