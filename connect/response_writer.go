package connect

import (
	"bufio"
	"net"
	"net/http"
	"sync"
)

// StatusWriter is a response writer that records what was written.
type StatusWriter interface {
	http.ResponseWriter
	Status() int
	BytesWritten() int
	Written() bool
}

// TrackWriter wraps w so the status and body size can be read back. A
// writer that already records them is returned unchanged.
func TrackWriter(w http.ResponseWriter) StatusWriter {
	if sw, ok := w.(StatusWriter); ok {
		return sw
	}
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

// StatusWriterOf finds a StatusWriter in the Unwrap chain of w.
func StatusWriterOf(w http.ResponseWriter) (StatusWriter, bool) {
	for w != nil {
		if sw, ok := w.(StatusWriter); ok {
			return sw, true
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return nil, false
		}
		w = u.Unwrap()
	}
	return nil, false
}

// Written reports whether a response header has been written through w.
// A writer that records nothing reports false.
func Written(w http.ResponseWriter) bool {
	sw, ok := StatusWriterOf(w)
	return ok && sw.Written()
}

type responseWriter struct {
	http.ResponseWriter
	mu           sync.Mutex
	status       int
	bytesWritten int
	wroteHeader  bool
}

// begin records the status of the first write and reports whether the
// caller must write the header.
func (rw *responseWriter) begin(code int) bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.wroteHeader {
		return false
	}
	rw.status = code
	rw.wroteHeader = true
	return true
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.begin(code) {
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.WriteHeader(http.StatusOK)
	n, err := rw.ResponseWriter.Write(b)
	rw.mu.Lock()
	rw.bytesWritten += n
	rw.mu.Unlock()
	return n, err
}

func (rw *responseWriter) Status() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.status
}

func (rw *responseWriter) BytesWritten() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.bytesWritten
}

func (rw *responseWriter) Written() bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.wroteHeader
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		rw.WriteHeader(http.StatusOK)
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// exchangeWriter carries the exchange on the response side and restores
// the request path when the response starts.
type exchangeWriter struct {
	http.ResponseWriter
	x *Exchange
}

func (ew *exchangeWriter) WriteHeader(code int) {
	ew.x.RestorePath()
	ew.ResponseWriter.WriteHeader(code)
}

func (ew *exchangeWriter) Write(b []byte) (int, error) {
	ew.x.RestorePath()
	return ew.ResponseWriter.Write(b)
}

func (ew *exchangeWriter) Exchange() *Exchange { return ew.x }

func (ew *exchangeWriter) Unwrap() http.ResponseWriter { return ew.ResponseWriter }

func (ew *exchangeWriter) Flush() {
	ew.x.RestorePath()
	if f, ok := ew.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// runWriter is the writer a Run hands to the chain. started is closed once
// the response has started. After detach, writes are dropped.
type runWriter struct {
	http.ResponseWriter
	once     sync.Once
	started  chan struct{}
	mu       sync.Mutex
	detached bool
}

func newRunWriter(w http.ResponseWriter) *runWriter {
	return &runWriter{ResponseWriter: w, started: make(chan struct{})}
}

func (rw *runWriter) start() {
	rw.once.Do(func() { close(rw.started) })
}

// detach cuts the chain off from the response.
func (rw *runWriter) detach() {
	rw.mu.Lock()
	rw.detached = true
	rw.mu.Unlock()
}

func (rw *runWriter) live() bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return !rw.detached
}

func (rw *runWriter) WriteHeader(code int) {
	if !rw.live() {
		return
	}
	rw.ResponseWriter.WriteHeader(code)
	rw.start()
}

func (rw *runWriter) Write(b []byte) (int, error) {
	if !rw.live() {
		return 0, http.ErrHandlerTimeout
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.start()
	return n, err
}

func (rw *runWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

func (rw *runWriter) Flush() {
	if !rw.live() {
		return
	}
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
	rw.start()
}

func (rw *runWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		rw.start()
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}
