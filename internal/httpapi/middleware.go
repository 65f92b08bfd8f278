package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/meter-dashboard/internal/logging"
	"go.uber.org/zap"
)

type ctxKey struct{}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// instrument tags each request with a request id, logs it and records its latency
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, requestID))

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		h.metrics.ObserveHTTP(route, sw.status, elapsed)

		requestLogger(h.logger, r).Debug("request handled",
			zap.String("route", route),
			zap.Int("status", sw.status),
			zap.Duration("elapsed", elapsed),
		)
	})
}

func requestLogger(logger *zap.Logger, r *http.Request) *zap.Logger {
	requestID, _ := r.Context().Value(ctxKey{}).(string)
	return logging.WithRequestID(logger, requestID)
}
