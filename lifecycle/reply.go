package lifecycle

import (
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Reply is the response model handed to hooks and handlers. Headers set on
// it are pending until the reply is sent.
type Reply struct {
	req    *Request
	raw    *replyWriter
	code   int
	header http.Header
	sent   bool
	err    error
}

func newReply(req *Request, w http.ResponseWriter) *Reply {
	return &Reply{
		req:    req,
		raw:    &replyWriter{ResponseWriter: w, status: http.StatusOK},
		code:   http.StatusOK,
		header: http.Header{},
	}
}

// Request returns the request being replied to.
func (rep *Reply) Request() *Request { return rep.req }

// Log returns the request logger.
func (rep *Reply) Log() *zerolog.Logger { return rep.req.Log() }

// Raw returns the underlying response writer. Writing to it directly ends
// the pipeline the same way Send does, minus OnSend.
func (rep *Reply) Raw() http.ResponseWriter { return rep.raw }

// Code sets the status code.
func (rep *Reply) Code(code int) *Reply {
	rep.code = code
	return rep
}

// StatusCode returns the status written, or the one pending.
func (rep *Reply) StatusCode() int {
	if rep.raw.Written() {
		return rep.raw.Status()
	}
	return rep.code
}

// Header sets a pending header.
func (rep *Reply) Header(key, value string) *Reply {
	rep.header.Set(key, value)
	return rep
}

// Headers returns the pending headers.
func (rep *Reply) Headers() http.Header { return rep.header }

// GetHeader returns a pending header.
func (rep *Reply) GetHeader(key string) string { return rep.header.Get(key) }

// RemoveHeader removes a pending header.
func (rep *Reply) RemoveHeader(key string) *Reply {
	rep.header.Del(key)
	return rep
}

// Type sets the Content-Type.
func (rep *Reply) Type(contentType string) *Reply {
	return rep.Header("Content-Type", contentType)
}

// Sent reports whether the response has been sent, through Send or by a
// direct write to Raw.
func (rep *Reply) Sent() bool {
	return rep.sent || rep.raw.Written()
}

// Err returns the error being handled, if any.
func (rep *Reply) Err() error { return rep.err }

// Send serializes payload, runs the OnSend hooks and writes the response.
// Strings are sent as text, []byte as is, nil as an empty body and
// anything else as JSON.
func (rep *Reply) Send(payload any) error {
	if rep.Sent() {
		rep.req.Log().Warn().Msg("reply was already sent")
		return ErrReplyAlreadySent
	}
	rep.sent = true

	body, err := rep.serialize(payload)
	if err != nil {
		rep.req.Log().Error().Err(err).Msg("failed to serialize reply payload")
		rep.code = http.StatusInternalServerError
		body, _ = json.Marshal(ErrorBody{
			StatusCode: http.StatusInternalServerError,
			Error:      http.StatusText(http.StatusInternalServerError),
			Message:    err.Error(),
		})
		rep.header.Set("Content-Type", "application/json; charset=utf-8")
	}

	for _, hook := range rep.req.scope.sendHooks {
		out, err := hook(rep.req, rep, body)
		if err != nil {
			rep.req.Log().Error().Err(err).Msg("onSend hook failed")
			rep.code = StatusOf(err)
			body, _ = json.Marshal(ErrorBody{
				StatusCode: rep.code,
				Error:      http.StatusText(rep.code),
				Message:    err.Error(),
			})
			rep.header.Set("Content-Type", "application/json; charset=utf-8")
			break
		}
		body = out
	}

	h := rep.raw.Header()
	for k, v := range rep.header {
		h[k] = v
	}
	h.Set("Content-Length", strconv.Itoa(len(body)))

	rep.raw.WriteHeader(rep.code)
	if len(body) > 0 && rep.req.Method() != http.MethodHead {
		_, err = rep.raw.Write(body)
		return err
	}
	return nil
}

func (rep *Reply) serialize(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case []byte:
		if rep.header.Get("Content-Type") == "" {
			rep.header.Set("Content-Type", "application/octet-stream")
		}
		return p, nil
	case string:
		if rep.header.Get("Content-Type") == "" {
			rep.header.Set("Content-Type", "text/plain; charset=utf-8")
		}
		return []byte(p), nil
	default:
		if rep.header.Get("Content-Type") == "" {
			rep.header.Set("Content-Type", "application/json; charset=utf-8")
		}
		return json.Marshal(p)
	}
}
