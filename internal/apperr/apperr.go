package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error so the transport layer can pick a status code.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindProcessing
	KindUpload
	KindConflict
	KindAuthorization
	KindAuthentication
	KindNotFound
	KindRateLimited
)

var kindNames = map[Kind]string{
	KindInternal:       "internal",
	KindValidation:     "validation",
	KindProcessing:     "processing",
	KindUpload:         "upload",
	KindConflict:       "conflict",
	KindAuthorization:  "authorization",
	KindAuthentication: "authentication",
	KindNotFound:       "not_found",
	KindRateLimited:    "rate_limited",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

var httpStatus = map[Kind]int{
	KindInternal:       http.StatusInternalServerError,
	KindValidation:     http.StatusBadRequest,
	KindProcessing:     http.StatusInternalServerError,
	KindUpload:         http.StatusBadGateway,
	KindConflict:       http.StatusConflict,
	KindAuthorization:  http.StatusForbidden,
	KindAuthentication: http.StatusUnauthorized,
	KindNotFound:       http.StatusNotFound,
	KindRateLimited:    http.StatusTooManyRequests,
}

// exposed kinds carry messages that are safe to return to clients.
var exposed = map[Kind]bool{
	KindValidation:     true,
	KindConflict:       true,
	KindAuthorization:  true,
	KindAuthentication: true,
	KindNotFound:       true,
	KindRateLimited:    true,
}

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error    { return New(KindValidation, message) }
func Conflict(message string) *Error      { return New(KindConflict, message) }
func NotFound(message string) *Error      { return New(KindNotFound, message) }
func Authorization(message string) *Error { return New(KindAuthorization, message) }
func Authentication(message string) *Error {
	return New(KindAuthentication, message)
}
func RateLimited(message string) *Error { return New(KindRateLimited, message) }

func Processing(message string, err error) *Error { return Wrap(KindProcessing, message, err) }
func Upload(message string, err error) *Error     { return Wrap(KindUpload, message, err) }
func Internal(message string, err error) *Error   { return Wrap(KindInternal, message, err) }

// KindOf reports the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// HTTPStatus maps an error kind to its response status.
func HTTPStatus(kind Kind) int {
	if status, ok := httpStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the client-facing message for err. Internal details
// stay in the server logs.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && exposed[appErr.Kind] && appErr.Message != "" {
		return appErr.Message
	}
	switch KindOf(err) {
	case KindUpload:
		return "failed to store media"
	case KindProcessing:
		return "failed to process media"
	default:
		return "internal server error"
	}
}
