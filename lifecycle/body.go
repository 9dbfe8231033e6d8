package lifecycle

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"
)

var (
	// ErrUnsupportedMediaType is returned for a body without a parser.
	ErrUnsupportedMediaType = NewError(http.StatusUnsupportedMediaType, errors.New("unsupported media type"))

	// ErrBodyTooLarge is returned for a body over the configured limit.
	ErrBodyTooLarge = NewError(http.StatusRequestEntityTooLarge, errors.New("request body is too large"))
)

// ParseJSON decodes a JSON body.
func ParseJSON(_ *Request, body []byte) (any, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, NewError(http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
	}
	return v, nil
}

// ParseText returns the body as a string.
func ParseText(_ *Request, body []byte) (any, error) {
	return string(body), nil
}

// ParseForm decodes an application/x-www-form-urlencoded body into
// url.Values. It is not installed by default.
func ParseForm(_ *Request, body []byte) (any, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, NewError(http.StatusBadRequest, fmt.Errorf("invalid form body: %w", err))
	}
	return values, nil
}

// parseBody reads the raw body once, leaves a re-readable copy on the
// underlying request and stores the parsed value in Body. A body already
// drained by an earlier reader parses as empty.
func (r *Request) parseBody() error {
	raw := r.raw
	if raw.Body == nil || raw.Body == http.NoBody || raw.Method == http.MethodGet || raw.Method == http.MethodHead {
		return nil
	}

	limit := r.app.config.BodyLimit
	data, err := io.ReadAll(io.LimitReader(raw.Body, limit+1))
	_ = raw.Body.Close()
	if err != nil {
		return NewError(http.StatusBadRequest, fmt.Errorf("read body: %w", err))
	}
	if int64(len(data)) > limit {
		return ErrBodyTooLarge
	}
	raw.Body = io.NopCloser(bytes.NewReader(data))

	if len(data) == 0 {
		return nil
	}

	mediaType, _, err := mime.ParseMediaType(raw.Header.Get("Content-Type"))
	if err != nil {
		return ErrUnsupportedMediaType
	}
	parser, ok := r.scope.parsers[strings.ToLower(mediaType)]
	if !ok {
		return ErrUnsupportedMediaType
	}

	body, err := parser(r, data)
	if err != nil {
		return err
	}
	r.Body = body
	return nil
}
