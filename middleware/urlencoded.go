package middleware

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/kroma-labs/sentinel-connect/connect"
)

// BodyLocal is the exchange local holding a parsed body.
const BodyLocal = "body"

const defaultBodyLimit = 100 * 1024

// URLEncodedConfig configures the form body parser.
type URLEncodedConfig struct {
	// Limit caps the body size in bytes. Default: 100KB.
	Limit int64
}

// URLEncoded returns middleware parsing application/x-www-form-urlencoded
// bodies into url.Values stored under BodyLocal. The body stays readable
// afterwards. Other content types pass through untouched.
//
// In a bridged app the host parses bodies after PreParsing; which parser
// sees the body first depends on the phase the bridge runs in.
func URLEncoded(cfg URLEncodedConfig) connect.HandlerFunc {
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultBodyLimit
	}

	return func(_ http.ResponseWriter, r *http.Request, next connect.Next) {
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType != "application/x-www-form-urlencoded" || r.Body == nil || r.Body == http.NoBody {
			next(nil)
			return
		}

		data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
		_ = r.Body.Close()
		if err != nil {
			next(connect.NewHTTPError(http.StatusBadRequest, "failed to read body").WithCause(err))
			return
		}
		if int64(len(data)) > limit {
			next(connect.NewHTTPError(http.StatusRequestEntityTooLarge, "request entity too large"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(data))

		values, err := url.ParseQuery(string(data))
		if err != nil {
			next(connect.NewHTTPError(http.StatusBadRequest, "malformed form body").WithCause(err))
			return
		}

		x := connect.ExchangeFrom(r)
		if x == nil {
			next(errors.New("middleware: URLEncoded requires an exchange"))
			return
		}
		x.Set(BodyLocal, values)
		next(nil)
	}
}
