package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fundbridge/fundbridge/internal/app/report"
	"github.com/fundbridge/fundbridge/internal/domain"
)

// ─── Request & Response Shapes ──────────────────────────────────────────────

const maxBodyBytes = 1 << 20

type createTargetRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description" validate:"required,min=1"`
	FullAmount  int64  `json:"full_amount" validate:"gt=0"`
}

type updateTargetRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,min=1"`
	FullAmount  *int64  `json:"full_amount" validate:"omitempty,gt=0"`
}

type createContributionRequest struct {
	FullAmount int64  `json:"full_amount" validate:"gt=0"`
	Comment    string `json:"comment" validate:"max=1000"`
}

// ownerContribution is what a donor sees: allocation progress stays private.
type ownerContribution struct {
	ID         int64     `json:"id"`
	FullAmount int64     `json:"full_amount"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"create_date"`
}

func toOwnerView(c domain.Contribution) ownerContribution {
	return ownerContribution{
		ID:         c.ID,
		FullAmount: c.FullAmount,
		Comment:    c.Comment,
		CreatedAt:  c.CreatedAt,
	}
}

// decodeBody reads a single JSON object into dst, rejecting unknown fields,
// then validates it.
func (s *Server) decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", domain.ErrInvalidInput, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: body must contain a single JSON object", domain.ErrInvalidInput)
	}
	return s.validate.Struct(dst)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid project id %q", domain.ErrInvalidInput, chi.URLParam(r, "id"))
	}
	return id, nil
}

// ─── Charity Projects ───────────────────────────────────────────────────────

// GET /charity_project/
func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.ledger.ListFundingTargets(r.Context())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if targets == nil {
		targets = []domain.FundingTarget{}
	}
	writeJSON(w, http.StatusOK, targets)
}

// POST /charity_project/
func (s *Server) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	var req createTargetRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	target, err := s.ledger.CreateFundingTarget(r.Context(), domain.NewFundingTarget{
		Name:        req.Name,
		Description: req.Description,
		FullAmount:  req.FullAmount,
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, target)
}

// PATCH /charity_project/{id}
func (s *Server) handleUpdateTarget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	var req updateTargetRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	target, err := s.ledger.UpdateFundingTarget(r.Context(), id, domain.TargetPatch{
		Name:        req.Name,
		Description: req.Description,
		FullAmount:  req.FullAmount,
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, target)
}

// DELETE /charity_project/{id}
func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	target, err := s.ledger.DeleteFundingTarget(r.Context(), id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, target)
}

// ─── Donations ──────────────────────────────────────────────────────────────

// POST /donation/
func (s *Server) handleCreateContribution(w http.ResponseWriter, r *http.Request) {
	var req createContributionRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	c, err := s.ledger.CreateContribution(r.Context(), domain.NewContribution{
		OwnerID:    ownerFrom(r.Context()),
		FullAmount: req.FullAmount,
		Comment:    req.Comment,
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOwnerView(c))
}

// GET /donation/my
func (s *Server) handleMyContributions(w http.ResponseWriter, r *http.Request) {
	mine, err := s.ledger.ListContributionsForOwner(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	out := make([]ownerContribution, 0, len(mine))
	for _, c := range mine {
		out = append(out, toOwnerView(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /donation/
func (s *Server) handleAllContributions(w http.ResponseWriter, r *http.Request) {
	all, err := s.ledger.ListAllContributions(r.Context())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if all == nil {
		all = []domain.Contribution{}
	}
	writeJSON(w, http.StatusOK, all)
}

// ─── Reporting & Operations ─────────────────────────────────────────────────

// GET /report/?format=json|yaml|csv|table&limit=N
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	format := s.opts.ReportFormat
	if raw := r.URL.Query().Get("format"); raw != "" {
		f, err := report.ParseFormat(raw)
		if err != nil {
			s.writeLedgerError(w, r, err)
			return
		}
		format = f
	}
	limit := s.opts.ReportLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeLedgerError(w, r, fmt.Errorf("%w: invalid limit %q", domain.ErrInvalidInput, raw))
			return
		}
		limit = n
	}

	rep, err := s.reports.Generate(r.Context(), limit)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	if err := report.Render(w, rep, format); err != nil {
		s.log.ErrorContext(r.Context(), "render report", "format", format, "error", err)
	}
}

// GET /api/ledger/totals
func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := s.ledger.Totals(r.Context())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"targets_invested":       totals.TargetsInvested,
		"contributions_invested": totals.ContributionsInvested,
		"open_targets":           totals.OpenTargets,
		"open_contributions":     totals.OpenContributions,
		"balanced":               totals.Balanced(),
	})
}

// GET /api/traces?limit=N
func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	if s.opts.Tracer == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "tracing not enabled")
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeLedgerError(w, r, errors.Join(domain.ErrInvalidInput, err))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": s.opts.Tracer.SpanCount(),
		"spans": s.opts.Tracer.Spans(limit),
	})
}
