package middleware

import (
	"bytes"
	"net/http"
)

// responseBuffer holds back a response the middleware may rewrite. The
// capture decision is made once, when the status is known: anything not
// captured is streamed straight to the client.
type responseBuffer struct {
	w       http.ResponseWriter
	capture func(status int, h http.Header) bool

	status      int
	wroteHeader bool
	passthrough bool
	body        bytes.Buffer
}

func newResponseBuffer(w http.ResponseWriter, capture func(int, http.Header) bool) *responseBuffer {
	return &responseBuffer{w: w, capture: capture, status: http.StatusOK}
}

func (b *responseBuffer) Header() http.Header {
	return b.w.Header()
}

func (b *responseBuffer) WriteHeader(code int) {
	if b.wroteHeader {
		return
	}
	// 1xx responses are forwarded and do not settle the final status.
	if code >= 100 && code < 200 && code != http.StatusSwitchingProtocols {
		b.w.WriteHeader(code)
		return
	}
	b.wroteHeader = true
	b.status = code
	if b.capture != nil && b.capture(code, b.w.Header()) {
		return
	}
	b.passthrough = true
	b.w.Header().Set(HeaderMode, ModePassthrough)
	b.w.WriteHeader(code)
}

func (b *responseBuffer) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	if b.passthrough {
		return b.w.Write(p)
	}
	return b.body.Write(p)
}

// Flush forwards to the client only for passthrough responses.
func (b *responseBuffer) Flush() {
	if !b.passthrough {
		return
	}
	if f, ok := b.w.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the client writer to http.ResponseController.
func (b *responseBuffer) Unwrap() http.ResponseWriter {
	return b.w
}

// captured reports whether a body is being held back.
func (b *responseBuffer) captured() bool {
	return b.wroteHeader && !b.passthrough
}

// sent reports whether the status line already reached the client.
func (b *responseBuffer) sent() bool {
	return b.passthrough
}
