package lifecycle

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrReplyAlreadySent is returned by Reply.Send on a second send.
	ErrReplyAlreadySent = errors.New("lifecycle: reply already sent")

	// ErrDecorationExists is returned when a decoration name is taken.
	ErrDecorationExists = errors.New("lifecycle: decoration already present")

	// ErrUnknownDecoration is returned when setting an undeclared request
	// decoration.
	ErrUnknownDecoration = errors.New("lifecycle: unknown request decoration")

	// ErrDuplicateRoute is returned by Ready when a method and path are
	// declared twice.
	ErrDuplicateRoute = errors.New("lifecycle: duplicate route")
)

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// StatusOf returns the status carried by err, or 500.
func StatusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		if code := sc.StatusCode(); code >= 400 && code < 600 {
			return code
		}
	}
	return http.StatusInternalServerError
}

// Error is an error with an HTTP status.
type Error struct {
	Code int
	err  error
}

// NewError wraps err with an HTTP status.
//
//	return lifecycle.NewError(http.StatusNotFound, fmt.Errorf("user %q", id))
func NewError(code int, err error) *Error {
	return &Error{Code: code, err: err}
}

func (e *Error) Error() string {
	if e.err == nil {
		return http.StatusText(e.Code)
	}
	return e.err.Error()
}

// StatusCode implements StatusCoder.
func (e *Error) StatusCode() int { return e.Code }

func (e *Error) Unwrap() error { return e.err }

// ErrorBody is the JSON body of the default error handler.
type ErrorBody struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func defaultErrorHandler(err error, req *Request, rep *Reply) {
	status := StatusOf(err)

	event := req.Log().Info()
	if status >= http.StatusInternalServerError {
		event = req.Log().Error()
	}
	event.Err(err).Int("status", status).Msg("request errored")

	_ = rep.Code(status).Send(ErrorBody{
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    err.Error(),
	})
}

func defaultNotFoundHandler(req *Request, rep *Reply) error {
	return rep.Code(http.StatusNotFound).Send(ErrorBody{
		StatusCode: http.StatusNotFound,
		Error:      http.StatusText(http.StatusNotFound),
		Message:    fmt.Sprintf("Route %s:%s not found", req.Method(), req.URL()),
	})
}

type panicError struct {
	value any
}

func (e panicError) Error() string {
	return fmt.Sprintf("lifecycle: panic: %v", e.value)
}

func (e panicError) Unwrap() error {
	err, _ := e.value.(error)
	return err
}
