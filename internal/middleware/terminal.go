package middleware

import (
	"bytes"
	"net/http"
	"sync"
)

// TerminalFunc observes the terminal response of a request: the final
// status code and the accumulated body.
type TerminalFunc func(status int, body []byte)

type registration struct {
	once sync.Once
	fn   TerminalFunc
}

// Writer wraps http.ResponseWriter to record the response while passing it
// through to the client. Registered terminal callbacks each run exactly
// once when the response is finalized; registrations from independent
// middleware layers do not interfere because every registration carries its
// own one-shot guard.
type Writer struct {
	http.ResponseWriter

	mu            sync.Mutex
	status        int
	wroteHeader   bool
	body          bytes.Buffer
	registrations []*registration
}

// Wrap returns a terminal-observing Writer for w. If w is already a Writer
// (an outer middleware wrapped first) the same instance is returned so
// callbacks registered at different layers accumulate on one response.
func Wrap(w http.ResponseWriter) *Writer {
	if tw, ok := w.(*Writer); ok {
		return tw
	}
	return &Writer{
		ResponseWriter: w,
		status:         http.StatusOK,
	}
}

// OnTerminal registers a callback to run once when the response finalizes.
func (w *Writer) OnTerminal(fn TerminalFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.registrations = append(w.registrations, &registration{fn: fn})
}

// WriteHeader records the status code; only the first call counts.
func (w *Writer) WriteHeader(code int) {
	w.mu.Lock()
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.mu.Unlock()
	w.ResponseWriter.WriteHeader(code)
}

// Write records the body while streaming it to the client. An implicit
// 200 is recorded if the handler never called WriteHeader.
func (w *Writer) Write(b []byte) (int, error) {
	w.mu.Lock()
	w.wroteHeader = true
	w.body.Write(b)
	w.mu.Unlock()
	return w.ResponseWriter.Write(b)
}

// Status returns the recorded status code.
func (w *Writer) Status() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Finish fires every registered terminal callback that has not yet run.
// Safe to call more than once; each callback still runs at most once.
func (w *Writer) Finish() {
	w.mu.Lock()
	status := w.status
	body := w.body.Bytes()
	regs := make([]*registration, len(w.registrations))
	copy(regs, w.registrations)
	w.mu.Unlock()

	for _, reg := range regs {
		reg.once.Do(func() {
			reg.fn(status, body)
		})
	}
}

// Observe wraps the handler chain so that every request carries a terminal
// Writer and its callbacks fire when the handler returns. A client that
// disconnected before the response finalized gets no callbacks at all: an
// abandoned request must not fill the cache or consume rate-limit budget.
func Observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := Wrap(w)
		next.ServeHTTP(tw, r)

		if r.Context().Err() != nil {
			return
		}
		tw.Finish()
	})
}
