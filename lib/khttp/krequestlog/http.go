package krequestlog

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/flokana/authgate/lib/khttp"
)

// RequestIDHeader carries the request id assigned by the logger. An
// inbound value set by a trusted front proxy is kept, anything else gets
// a fresh id.
const RequestIDHeader = "X-Request-Id"

// NewHandler returns a new http.Handler that logs requests.
func NewHandler(next http.Handler, mods ...Modifier) http.Handler {
	opts := NewOptions(mods...)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path
		method := r.Method
		origin := khttp.ClientOrigin(r)

		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)

		if opts.LogStart {
			opts.Printer("HTTP START id=%s origin=%s method=%s path=%s", id, origin, method, path)
		}

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		if opts.LogEnd {
			duration := time.Since(start)
			status := sw.status
			if status == 0 {
				status = 200
			}

			if opts.LogFormat == "apache" {
				// minimal apache combined style
				opts.Printer("%s - - [%s] \"%s %s %s\" %d %d \"%s\" \"%s\" %v",
					origin,
					start.Format("02/Jan/2006:15:04:05 -0700"),
					method, r.URL.RequestURI(), r.Proto,
					status, sw.length,
					r.Referer(), r.UserAgent(),
					duration,
				)
			} else {
				opts.Printer("HTTP END id=%s origin=%s method=%s path=%s status=%d size=%d duration=%v", id, origin, method, path, status, sw.length, duration)
			}
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
	length int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(data []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(data)
	w.length += n
	return n, err
}
