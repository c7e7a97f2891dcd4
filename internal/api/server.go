// Package api provides the HTTP server for fundbridge.
// It exposes the charity project and donation endpoints, the close-speed
// report and the operator endpoints (totals, traces, metrics).
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/fundbridge/fundbridge/internal/app/ledger"
	"github.com/fundbridge/fundbridge/internal/app/report"
	"github.com/fundbridge/fundbridge/internal/domain"
	"github.com/fundbridge/fundbridge/internal/infra/observability"
)

// Options configures a Server.
type Options struct {
	AdminToken     string
	RateLimitRPM   int // write requests per minute across all clients; 0 disables
	MetricsEnabled bool
	ReportFormat   report.Format
	ReportLimit    int
	Tracer         *observability.Tracer
	Logger         *slog.Logger
}

// Server is the fundbridge HTTP API server.
type Server struct {
	ledger   *ledger.Service
	reports  *report.Generator
	opts     Options
	log      *slog.Logger
	validate *validator.Validate
	writes   *rate.Limiter // nil when rate limiting is disabled
}

// NewServer creates a new API server.
func NewServer(svc *ledger.Service, reports *report.Generator, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ReportFormat == "" {
		opts.ReportFormat = report.FormatJSON
	}
	s := &Server{
		ledger:   svc,
		reports:  reports,
		opts:     opts,
		log:      opts.Logger.With("component", "api"),
		validate: validator.New(),
	}
	if opts.RateLimitRPM > 0 {
		s.writes = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RateLimitRPM)), opts.RateLimitRPM)
	}
	return s
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.traceMiddleware)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Route("/charity_project", func(r chi.Router) {
		r.Get("/", s.handleListTargets)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin, s.limitWrites)
			r.Post("/", s.handleCreateTarget)
			r.Patch("/{id}", s.handleUpdateTarget)
			r.Delete("/{id}", s.handleDeleteTarget)
		})
	})

	r.Route("/donation", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.requireOwner)
			r.With(s.limitWrites).Post("/", s.handleCreateContribution)
			r.Get("/my", s.handleMyContributions)
		})
		r.With(s.requireAdmin).Get("/", s.handleAllContributions)
	})

	r.With(s.requireAdmin).Get("/report/", s.handleReport)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/ledger/totals", s.handleTotals)
		r.Get("/traces", s.handleTraces)
	})

	// Prometheus metrics endpoint
	if s.opts.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, errType, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    errType,
		},
	})
}

// writeLedgerError maps a ledger error to its HTTP status and error type.
func (s *Server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrDuplicateName):
		writeError(w, http.StatusBadRequest, "duplicate_name", err.Error())
	case errors.Is(err, domain.ErrClosedEntityEdit):
		writeError(w, http.StatusBadRequest, "closed_entity_edit", err.Error())
	case errors.Is(err, domain.ErrAmountBelowInvested):
		writeError(w, http.StatusBadRequest, "amount_below_invested", err.Error())
	case errors.Is(err, domain.ErrNonEmptyTargetDeletion):
		writeError(w, http.StatusBadRequest, "non_empty_target_deletion", err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, domain.ErrInvariantViolation):
		s.log.ErrorContext(r.Context(), "invariant violation surfaced to client",
			"path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "invariant_violation", "ledger invariant violated; the request was not applied")
	default:
		s.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Owner-ID")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
