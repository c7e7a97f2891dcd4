package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/fundbridge/fundbridge/internal/infra/observability"
)

// ─── Identity ───────────────────────────────────────────────────────────────
// Owners identify themselves with X-Owner-ID. Admin routes need
// "Authorization: Bearer <admin_token>".

const (
	ownerHeader   = "X-Owner-ID"
	traceHeader   = "X-Trace-ID"
	bearerPrefix  = "Bearer "
	ownerIDMaxLen = 128
)

type ctxKey int

const ownerKey ctxKey = iota

func ownerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey).(string)
	return owner
}

func (s *Server) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(ownerHeader))
		if owner == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing "+ownerHeader+" header")
			return
		}
		if len(owner) > ownerIDMaxLen {
			writeError(w, http.StatusBadRequest, "validation_error", ownerHeader+" header too long")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, owner)))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, bearerPrefix) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "admin bearer token required")
			return
		}
		token := strings.TrimPrefix(auth, bearerPrefix)
		if s.opts.AdminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.AdminToken)) != 1 {
			writeError(w, http.StatusForbidden, "forbidden", "admin access denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ─── Rate Limiting ──────────────────────────────────────────────────────────

func (s *Server) limitWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.writes != nil && !s.writes.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many write requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ─── Tracing & Access Log ───────────────────────────────────────────────────

// traceMiddleware adopts the caller's X-Trace-ID or mints a new one, and
// echoes it back so clients can correlate with server spans.
func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if _, err := uuid.Parse(traceID); err != nil {
			traceID = uuid.NewString()
		}
		w.Header().Set(traceHeader, traceID)
		ctx := observability.WithTraceID(r.Context(), traceID)

		ctx, span := s.opts.Tracer.StartSpan(ctx, "http "+r.Method, map[string]string{"path": r.URL.Path})
		span.Kind = observability.SpanServer
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		span.SetAttr("status", strconv.Itoa(ww.Status()))
		var spanErr error
		if ww.Status() >= http.StatusInternalServerError {
			spanErr = errServerStatus
		}
		s.opts.Tracer.EndSpan(span, spanErr)
	})
}

type statusError string

func (e statusError) Error() string { return string(e) }

const errServerStatus = statusError("server error response")

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		observability.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		s.log.DebugContext(r.Context(), "request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"trace_id", observability.TraceIDFromContext(r.Context()),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
