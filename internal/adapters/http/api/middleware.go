package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/biomatch/pkg/logger"
	"github.com/okian/biomatch/pkg/metrics"
)

// MetricsMiddleware records request count, latency and error class for one
// endpoint. A panicking handler is answered with 500 and counted as a
// server error instead of tearing down the connection.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				logger.Get().Error(r.Context(), "handler panic",
					logger.String("endpoint", endpoint),
					logger.Any("panic", p))
				if !rec.wroteHeader {
					writeError(rec, http.StatusInternalServerError, "internal_error", nil)
				} else {
					rec.status = http.StatusInternalServerError
				}
			}

			durationMs := float64(time.Since(start).Microseconds()) / 1000
			status := strconv.Itoa(rec.status)
			metrics.RecordHTTPRequest(endpoint, r.Method, status)
			metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, durationMs)
			if rec.status >= http.StatusBadRequest {
				metrics.RecordErrorByComponent("http_"+endpoint, errorClass(rec.status))
			}
			logger.Get().Debug(r.Context(), "http request",
				logger.String("endpoint", endpoint),
				logger.String("method", r.Method),
				logger.Int("status", rec.status),
				logger.Float64("duration_ms", durationMs))
		}()

		next.ServeHTTP(rec, r)
	}
}

// errorClass buckets a status code for the errors-by-component counter.
func errorClass(status int) string {
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error"
	case status == http.StatusRequestEntityTooLarge:
		return "too_large"
	case status == http.StatusUnprocessableEntity:
		return "extraction_failed"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusConflict:
		return "conflict"
	default:
		return "client_error"
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}
