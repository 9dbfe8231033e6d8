package lifecycle

import (
	"bufio"
	"net"
	"net/http"
	"sync"
)

// replyWriter records whether and what the response started with, so the
// pipeline notices writes made behind the Reply's back, including writes
// from goroutines of connect handlers.
type replyWriter struct {
	http.ResponseWriter
	mu           sync.Mutex
	status       int
	bytesWritten int
	wroteHeader  bool
}

func (rw *replyWriter) begin(code int) bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.wroteHeader {
		return false
	}
	rw.status = code
	rw.wroteHeader = true
	return true
}

func (rw *replyWriter) WriteHeader(code int) {
	if rw.begin(code) {
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *replyWriter) Write(b []byte) (int, error) {
	rw.WriteHeader(http.StatusOK)
	n, err := rw.ResponseWriter.Write(b)
	rw.mu.Lock()
	rw.bytesWritten += n
	rw.mu.Unlock()
	return n, err
}

// Status returns the status written, 200 before anything is written.
func (rw *replyWriter) Status() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.status
}

// BytesWritten returns the number of body bytes written.
func (rw *replyWriter) BytesWritten() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.bytesWritten
}

// Written reports whether the header has been written.
func (rw *replyWriter) Written() bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.wroteHeader
}

func (rw *replyWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

func (rw *replyWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		rw.WriteHeader(http.StatusOK)
		f.Flush()
	}
}

func (rw *replyWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}
