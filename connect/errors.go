package connect

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// ErrorStatus returns the status carried by err, or 500.
func ErrorStatus(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		if code := sc.StatusCode(); code >= 400 && code < 600 {
			return code
		}
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the text a client may see for err: the error text
// below 500, the status text otherwise.
func PublicMessage(err error) string {
	status := ErrorStatus(err)
	if status < http.StatusInternalServerError {
		return err.Error()
	}
	return http.StatusText(status)
}

// HTTPError is an error with an HTTP status, for handlers that want the
// error phase to reply with something other than 500.
//
//	next(connect.NewHTTPError(http.StatusUnauthorized, "missing token"))
type HTTPError struct {
	Code    int
	Message string
	Err     error
}

// NewHTTPError creates an HTTPError. An empty message uses the status text.
func NewHTTPError(code int, message string) *HTTPError {
	if message == "" {
		message = http.StatusText(code)
	}
	return &HTTPError{Code: code, Message: message}
}

// WithCause returns a copy of e wrapping err. The copy still matches e
// with errors.Is.
func (e *HTTPError) WithCause(err error) *HTTPError {
	c := *e
	c.Err = err
	return &c
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// StatusCode implements StatusCoder.
func (e *HTTPError) StatusCode() int { return e.Code }

func (e *HTTPError) Unwrap() error { return e.Err }

// Is matches another HTTPError with the same code and message.
func (e *HTTPError) Is(target error) bool {
	t, ok := target.(*HTTPError)
	return ok && t.Code == e.Code && t.Message == e.Message
}

// PanicError is the chain error produced from a panic inside a handler.
type PanicError struct {
	Value any
	Stack []byte
}

func newPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("connect: panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
