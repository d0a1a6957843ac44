package span

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

// Error response headers. Every failure response carries this header set;
// the body is empty unless the error explicitly attached dumpable media.
const (
	HeaderErrorName    = "error-name"
	HeaderErrorMessage = "error-message"
	HeaderErrorCode    = "error-code"
	HeaderErrorData    = "error-data"
	HeaderErrorID      = "error-id"
)

// ErrPagingNotDeclared is returned when paging state is accessed on a route
// that did not opt in via WithPaging.
var ErrPagingNotDeclared = errors.New("span: route does not declare paging")

// ErrorClass identifies a category of API error: its wire name, HTTP status,
// and stable API code. Classes form the error taxonomy; user-defined
// application errors are new classes.
type ErrorClass struct {
	Name     string
	HTTPCode int
	APICode  int

	parent *ErrorClass
}

// Built-in error classes.
var (
	// ClassAPIError is the open-ended base for application errors and the
	// class unrecognized handler failures are normalized into.
	ClassAPIError = ErrorClass{Name: "APIError", HTTPCode: http.StatusInternalServerError, APICode: 1000}
	// ClassInvalidMethod is surfaced when a route exists but does not
	// implement the requested method.
	ClassInvalidMethod = ErrorClass{Name: "InvalidMethodError", HTTPCode: http.StatusMethodNotAllowed, APICode: 1001}
	// ClassRequestValidation covers malformed bodies, decode failures,
	// schema load/validation failures, and invalid projection directives.
	ClassRequestValidation = ErrorClass{Name: "RequestValidationError", HTTPCode: http.StatusBadRequest, APICode: 1002}
	// ClassAPILimit is a specialization of ClassRequestValidation raised
	// when a requested paging limit exceeds the route maximum.
	ClassAPILimit = ErrorClass{Name: "APILimitError", HTTPCode: http.StatusBadRequest, APICode: 1003, parent: &ClassRequestValidation}
	// ClassResponseValidation covers dump failures and post-dump
	// validation failures.
	ClassResponseValidation = ErrorClass{Name: "ResponseValidationError", HTTPCode: http.StatusInternalServerError, APICode: 1004}
	// ClassNothingToReturn fires when a route declares a response schema
	// but the handler produced no media.
	ClassNothingToReturn = ErrorClass{Name: "NothingToReturnError", HTTPCode: http.StatusInternalServerError, APICode: 1005}
	// ClassTooManyRequests is raised by the rate limiting middleware.
	ClassTooManyRequests = ErrorClass{Name: "TooManyRequestsError", HTTPCode: http.StatusTooManyRequests, APICode: 1006}
)

// NewErrorClass defines a user application error class.
func NewErrorClass(name string, httpCode, apiCode int) ErrorClass {
	return ErrorClass{Name: name, HTTPCode: httpCode, APICode: apiCode, parent: &ClassAPIError}
}

// New creates an error of this class.
func (c ErrorClass) New(message string) *APIError {
	return &APIError{Class: c, Message: message, ID: uuid.New()}
}

// Errorf creates an error of this class with a formatted message.
func (c ErrorClass) Errorf(format string, args ...any) *APIError {
	return c.New(fmt.Sprintf(format, args...))
}

// Wrap creates an error of this class carrying an underlying cause.
func (c ErrorClass) Wrap(err error, message string) *APIError {
	e := c.New(message)
	e.cause = err
	return e
}

func (c ErrorClass) is(other ErrorClass) bool {
	if c.Name == other.Name {
		return true
	}
	for p := c.parent; p != nil; p = p.parent {
		if p.Name == other.Name {
			return true
		}
	}
	return false
}

// APIError is the single error type that travels the pipeline's error
// channel. It carries its class, a message, optional structured data, and
// a unique id emitted in the error-id header.
type APIError struct {
	Class   ErrorClass
	Message string
	Data    map[string]any
	ID      uuid.UUID

	// SendMedia attaches the response media (dumped best-effort through the
	// declared response schema) to the error response body.
	SendMedia bool

	cause error
}

func (e *APIError) Error() string {
	if e.cause != nil {
		return e.Class.Name + ": " + e.Message + ": " + e.cause.Error()
	}
	return e.Class.Name + ": " + e.Message
}

// StatusCode returns the HTTP status for this error's class.
func (e *APIError) StatusCode() int { return e.Class.HTTPCode }

// Unwrap returns the underlying cause, if any.
func (e *APIError) Unwrap() error { return e.cause }

// Is reports whether target is an *APIError of the same class or of an
// ancestor class, so errors.Is(err, span.ClassAPILimit.New("")) and
// specialization matching both work.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Class.is(t.Class)
}

// WithData attaches a key/value pair to the error-data header payload.
func (e *APIError) WithData(key string, value any) *APIError {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[key] = value
	return e
}

// WithMedia marks the error so response media is attached to the error body.
func (e *APIError) WithMedia() *APIError {
	e.SendMedia = true
	return e
}

// IsClass reports whether err belongs to the given error class, including
// through specialization (APILimitError is a RequestValidationError).
func IsClass(err error, c ErrorClass) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Class.is(c)
}

// normalizeError converts any handler failure into an *APIError so no
// unhandled error reaches the transport layer.
func normalizeError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return ClassAPIError.Wrap(err, "an unknown error occurred")
}

// writeErrorHeaders encodes the error-* header set.
func writeErrorHeaders(h http.Header, e *APIError) {
	h.Set(HeaderErrorName, e.Class.Name)
	h.Set(HeaderErrorMessage, e.Message)
	h.Set(HeaderErrorCode, strconv.Itoa(e.Class.APICode))
	h.Set(HeaderErrorID, e.ID.String())
	if len(e.Data) > 0 {
		if data, err := json.Marshal(e.Data); err == nil {
			h.Set(HeaderErrorData, string(data))
		}
	}
}

// ErrorFromHeaders reconstructs an *APIError from a response's error-*
// headers. The second return is false when the headers carry no error.
func ErrorFromHeaders(h http.Header) (*APIError, bool) {
	name := h.Get(HeaderErrorName)
	if name == "" {
		return nil, false
	}

	code, _ := strconv.Atoi(h.Get(HeaderErrorCode))
	e := &APIError{
		Class:   ErrorClass{Name: name, APICode: code},
		Message: h.Get(HeaderErrorMessage),
	}
	if id, err := uuid.Parse(h.Get(HeaderErrorID)); err == nil {
		e.ID = id
	}
	if data := h.Get(HeaderErrorData); data != "" {
		_ = json.Unmarshal([]byte(data), &e.Data)
	}
	return e, true
}
