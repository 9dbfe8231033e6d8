package connect

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestIDHeader is read by FieldsFromRequest for the exchange ID.
const RequestIDHeader = "X-Request-ID"

// Fields are the per-request values an Exchange is created from.
type Fields struct {
	ID          string
	Hostname    string
	IP          string
	IPs         []string
	OriginalURL string
	Log         zerolog.Logger

	// Protocol is resolved on first use of Exchange.Protocol.
	Protocol func() string
}

// Locals is the default store behind Exchange.Get and Exchange.Set.
type Locals map[string]any

// Get returns the value stored under name.
func (l Locals) Get(name string) (any, bool) {
	v, ok := l[name]
	return v, ok
}

// Set stores value under name.
func (l Locals) Set(name string, value any) {
	l[name] = value
}

// Interceptor observes or redirects Exchange.Get and Exchange.Set. The
// exchange's own Locals are passed as target; an interceptor that does not
// handle a name should fall back to it.
type Interceptor interface {
	Get(target Locals, name string) (any, bool)
	Set(target Locals, name string, value any)
}

// InterceptorFuncs adapts functions to an Interceptor. A nil function falls
// back to the target.
type InterceptorFuncs struct {
	GetFunc func(target Locals, name string) (any, bool)
	SetFunc func(target Locals, name string, value any)
}

// Get implements Interceptor.
func (f InterceptorFuncs) Get(target Locals, name string) (any, bool) {
	if f.GetFunc == nil {
		return target.Get(name)
	}
	return f.GetFunc(target, name)
}

// Set implements Interceptor.
func (f InterceptorFuncs) Set(target Locals, name string, value any) {
	if f.SetFunc == nil {
		target.Set(name, value)
		return
	}
	f.SetFunc(target, name, value)
}

// Exchange is the state shared by every handler of one request. It is
// owned by the request in flight and must not be retained after it.
type Exchange struct {
	ID          string
	Hostname    string
	IP          string
	IPs         []string
	OriginalURL string
	Log         zerolog.Logger

	protocol     func() string
	protocolOnce sync.Once
	protocolVal  string

	locals      Locals
	interceptor Interceptor

	url         *url.URL
	path        string
	rawPath     string
	restoreOnce sync.Once

	mu       sync.Mutex
	finish   []func()
	finished bool
}

// NewExchange creates an Exchange from f.
func NewExchange(f Fields) *Exchange {
	return &Exchange{
		ID:          f.ID,
		Hostname:    f.Hostname,
		IP:          f.IP,
		IPs:         f.IPs,
		OriginalURL: f.OriginalURL,
		Log:         f.Log,
		protocol:    f.Protocol,
		locals:      Locals{},
	}
}

// FieldsFromRequest derives Fields from a bare request: the ID from
// X-Request-ID or a new UUID, the client address from RemoteAddr, the
// logger from the request context.
func FieldsFromRequest(r *http.Request) Fields {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.New().String()
	}

	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}

	return Fields{
		ID:          id,
		Hostname:    r.Host,
		IP:          ip,
		IPs:         []string{ip},
		OriginalURL: r.URL.RequestURI(),
		Log:         *zerolog.Ctx(r.Context()),
		Protocol: func() string {
			if r.TLS != nil {
				return "https"
			}
			return "http"
		},
	}
}

// Protocol returns "http" or "https". It is computed once, on first call.
func (x *Exchange) Protocol() string {
	x.protocolOnce.Do(func() {
		if x.protocol != nil {
			x.protocolVal = x.protocol()
		}
	})
	return x.protocolVal
}

// SetInterceptor routes Get and Set through i.
func (x *Exchange) SetInterceptor(i Interceptor) {
	x.interceptor = i
}

// Get reads a named value of the exchange.
func (x *Exchange) Get(name string) (any, bool) {
	if x.interceptor != nil {
		return x.interceptor.Get(x.locals, name)
	}
	return x.locals.Get(name)
}

// Set writes a named value of the exchange.
func (x *Exchange) Set(name string, value any) {
	if x.interceptor != nil {
		x.interceptor.Set(x.locals, name, value)
		return
	}
	x.locals.Set(name, value)
}

// RestorePath puts back the URL path captured by Attach. Only the first
// call has an effect.
func (x *Exchange) RestorePath() {
	x.restoreOnce.Do(func() {
		if x.url != nil {
			x.url.Path, x.url.RawPath = x.path, x.rawPath
		}
	})
}

// OnFinish registers fn to run when the exchange finishes. Functions run
// in reverse registration order. After Finish, fn runs immediately.
func (x *Exchange) OnFinish(fn func()) {
	x.mu.Lock()
	if x.finished {
		x.mu.Unlock()
		fn()
		return
	}
	x.finish = append(x.finish, fn)
	x.mu.Unlock()
}

// Finish runs the functions registered with OnFinish. Only the first call
// has an effect.
func (x *Exchange) Finish() {
	x.mu.Lock()
	if x.finished {
		x.mu.Unlock()
		return
	}
	x.finished = true
	fns := x.finish
	x.finish = nil
	x.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

type exchangeKey struct{}

// Attach binds x to a request and its response writer. The request path is
// captured for RestorePath, which runs on the first write through the
// returned writer. The exchange logger is also bound to the context for
// zerolog.Ctx.
func Attach(w http.ResponseWriter, r *http.Request, x *Exchange) (http.ResponseWriter, *http.Request) {
	x.url = r.URL
	x.path, x.rawPath = r.URL.Path, r.URL.RawPath

	ctx := context.WithValue(r.Context(), exchangeKey{}, x)
	ctx = x.Log.WithContext(ctx)

	return &exchangeWriter{ResponseWriter: w, x: x}, r.WithContext(ctx)
}

// ExchangeFrom returns the exchange attached to r, or nil.
func ExchangeFrom(r *http.Request) *Exchange {
	x, _ := r.Context().Value(exchangeKey{}).(*Exchange)
	return x
}

// ExchangeOf returns the exchange attached to w, or nil.
func ExchangeOf(w http.ResponseWriter) *Exchange {
	for w != nil {
		if ew, ok := w.(interface{ Exchange() *Exchange }); ok {
			return ew.Exchange()
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return nil
		}
		w = u.Unwrap()
	}
	return nil
}

// AfterResponse registers fn to run once the response of r is complete.
// It reports false when r carries no exchange.
func AfterResponse(r *http.Request, fn func()) bool {
	x := ExchangeFrom(r)
	if x == nil {
		return false
	}
	x.OnFinish(fn)
	return true
}
