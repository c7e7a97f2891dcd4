// Package ledger is the application service in front of the ledger store.
//
// Every write follows the same lifecycle:
//  1. Validate the request shape (no store access)
//  2. Take the pairing lock so no two passes can read the same open capacity
//  3. Open one store transaction, run the guards, create/update the entity
//  4. For creations, load the open counterparts and run one allocation pass
//  5. Persist the new entity and every touched counterpart, then commit
//
// A guard failure or an invariant violation returns before commit, so a
// rejected request never leaves a partial change behind.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fundbridge/fundbridge/internal/app/allocator"
	"github.com/fundbridge/fundbridge/internal/domain"
	"github.com/fundbridge/fundbridge/internal/infra/observability"
)

const (
	kindTarget       = "target"
	kindContribution = "contribution"
)

// Options carries the optional collaborators of a Service.
type Options struct {
	Tracer *observability.Tracer
	Logger *slog.Logger
	Now    func() time.Time // injectable clock for testing
}

// Service exposes the ledger operations.
type Service struct {
	store  domain.LedgerStore
	tracer *observability.Tracer
	log    *slog.Logger
	now    func() time.Time

	// pairing guards the read-allocate-write window of every write. One lock
	// covers the FundingTarget ⋈ Contribution pair.
	pairing sync.Mutex
}

// New creates a ledger service over store.
func New(store domain.LedgerStore, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:  store,
		tracer: opts.Tracer,
		log:    opts.Logger.With("component", "ledger"),
		now:    opts.Now,
	}
}

// ─── Creation ───────────────────────────────────────────────────────────────

// CreateFundingTarget creates a target and matches it against all open
// contributions, oldest first.
func (s *Service) CreateFundingTarget(ctx context.Context, in domain.NewFundingTarget) (result domain.FundingTarget, err error) {
	ctx, span := s.tracer.StartSpan(ctx, "ledger.create_target", map[string]string{"name": in.Name})
	defer func() { s.finish(span, "create_target", err) }()

	if err := validateTarget(in.Name, in.Description, in.FullAmount); err != nil {
		return result, fmt.Errorf("create funding target: %w", err)
	}

	s.pairing.Lock()
	defer s.pairing.Unlock()

	start := time.Now()
	var pass allocator.Result
	var closedCounterparts int
	err = s.store.WithTx(ctx, func(tx domain.LedgerTx) error {
		if _, found, err := tx.TargetIDByName(ctx, in.Name); err != nil {
			return err
		} else if found {
			return fmt.Errorf("name %q: %w", in.Name, domain.ErrDuplicateName)
		}

		now := s.now()
		target, err := tx.CreateTarget(ctx, domain.FundingTarget{
			Name:        in.Name,
			Description: in.Description,
			Investment:  domain.Investment{FullAmount: in.FullAmount, CreatedAt: now},
		})
		if err != nil {
			return err
		}

		open, err := tx.ListContributions(ctx, true)
		if err != nil {
			return err
		}
		counterparts := allocator.Contributions(open)
		pass, err = allocator.Allocate(now, &target.Investment, counterparts)
		if err != nil {
			return fmt.Errorf("allocate target %d: %w", target.ID, err)
		}
		closedCounterparts = pass.Closed(counterparts)

		changed := make([]domain.Contribution, 0, len(pass.Touched))
		for _, idx := range pass.Touched {
			changed = append(changed, open[idx])
		}
		if err := tx.SaveContributions(ctx, changed...); err != nil {
			return err
		}
		if err := tx.SaveTargets(ctx, target); err != nil {
			return err
		}
		result = target
		return nil
	})
	if err != nil {
		return domain.FundingTarget{}, fmt.Errorf("create funding target: %w", err)
	}

	s.recordPass(kindTarget, pass, closedCounterparts, result.FullyInvested, time.Since(start))
	span.SetAttr("id", fmt.Sprint(result.ID))
	s.log.InfoContext(ctx, "funding target created",
		"id", result.ID,
		"full_amount", result.FullAmount,
		"invested_amount", result.InvestedAmount,
		"fully_invested", result.FullyInvested,
		"contributions_touched", len(pass.Touched),
	)
	return result, nil
}

// CreateContribution records a contribution and matches it against all open
// funding targets, oldest first.
func (s *Service) CreateContribution(ctx context.Context, in domain.NewContribution) (result domain.Contribution, err error) {
	ctx, span := s.tracer.StartSpan(ctx, "ledger.create_contribution", map[string]string{"owner": in.OwnerID})
	defer func() { s.finish(span, "create_contribution", err) }()

	if err := validateContribution(in); err != nil {
		return result, fmt.Errorf("create contribution: %w", err)
	}

	s.pairing.Lock()
	defer s.pairing.Unlock()

	start := time.Now()
	var pass allocator.Result
	var closedCounterparts int
	err = s.store.WithTx(ctx, func(tx domain.LedgerTx) error {
		now := s.now()
		contribution, err := tx.CreateContribution(ctx, domain.Contribution{
			OwnerID:    in.OwnerID,
			Comment:    in.Comment,
			Investment: domain.Investment{FullAmount: in.FullAmount, CreatedAt: now},
		})
		if err != nil {
			return err
		}

		open, err := tx.ListTargets(ctx, true)
		if err != nil {
			return err
		}
		counterparts := allocator.Targets(open)
		pass, err = allocator.Allocate(now, &contribution.Investment, counterparts)
		if err != nil {
			return fmt.Errorf("allocate contribution %d: %w", contribution.ID, err)
		}
		closedCounterparts = pass.Closed(counterparts)

		changed := make([]domain.FundingTarget, 0, len(pass.Touched))
		for _, idx := range pass.Touched {
			changed = append(changed, open[idx])
		}
		if err := tx.SaveTargets(ctx, changed...); err != nil {
			return err
		}
		if err := tx.SaveContributions(ctx, contribution); err != nil {
			return err
		}
		result = contribution
		return nil
	})
	if err != nil {
		return domain.Contribution{}, fmt.Errorf("create contribution: %w", err)
	}

	s.recordPass(kindContribution, pass, closedCounterparts, result.FullyInvested, time.Since(start))
	span.SetAttr("id", fmt.Sprint(result.ID))
	s.log.InfoContext(ctx, "contribution created",
		"id", result.ID,
		"owner", result.OwnerID,
		"full_amount", result.FullAmount,
		"invested_amount", result.InvestedAmount,
		"fully_invested", result.FullyInvested,
		"targets_touched", len(pass.Touched),
	)
	return result, nil
}

// ─── Administration ─────────────────────────────────────────────────────────

// UpdateFundingTarget applies an administrative patch. Closed targets are
// immutable; the full amount may never drop below what is already invested.
// Lowering the full amount to exactly the invested amount closes the target.
func (s *Service) UpdateFundingTarget(ctx context.Context, id int64, patch domain.TargetPatch) (result domain.FundingTarget, err error) {
	ctx, span := s.tracer.StartSpan(ctx, "ledger.update_target", map[string]string{"id": fmt.Sprint(id)})
	defer func() { s.finish(span, "update_target", err) }()

	if err := validatePatch(patch); err != nil {
		return result, fmt.Errorf("update funding target %d: %w", id, err)
	}

	s.pairing.Lock()
	defer s.pairing.Unlock()

	closed := false
	err = s.store.WithTx(ctx, func(tx domain.LedgerTx) error {
		target, err := tx.GetTarget(ctx, id)
		if err != nil {
			return err
		}
		if target.FullyInvested {
			return domain.ErrClosedEntityEdit
		}
		if patch.Empty() {
			result = target
			return nil
		}

		if patch.Name != nil && *patch.Name != target.Name {
			otherID, found, err := tx.TargetIDByName(ctx, *patch.Name)
			if err != nil {
				return err
			}
			if found && otherID != target.ID {
				return fmt.Errorf("name %q: %w", *patch.Name, domain.ErrDuplicateName)
			}
			target.Name = *patch.Name
		}
		if patch.Description != nil {
			target.Description = *patch.Description
		}
		if patch.FullAmount != nil {
			if *patch.FullAmount < target.InvestedAmount {
				return fmt.Errorf("%w: %d < %d", domain.ErrAmountBelowInvested, *patch.FullAmount, target.InvestedAmount)
			}
			target.FullAmount = *patch.FullAmount
			if target.InvestedAmount == target.FullAmount {
				target.Close(s.now())
				closed = true
			}
		}
		if err := target.Check(); err != nil {
			return err
		}

		if err := tx.SaveTargets(ctx, target); err != nil {
			return err
		}
		result = target
		return nil
	})
	if err != nil {
		return domain.FundingTarget{}, fmt.Errorf("update funding target %d: %w", id, err)
	}

	if closed {
		observability.EntitiesClosed.WithLabelValues(kindTarget).Inc()
	}
	s.log.InfoContext(ctx, "funding target updated",
		"id", result.ID,
		"full_amount", result.FullAmount,
		"fully_invested", result.FullyInvested,
	)
	return result, nil
}

// DeleteFundingTarget removes a target that has not received any money.
func (s *Service) DeleteFundingTarget(ctx context.Context, id int64) (result domain.FundingTarget, err error) {
	ctx, span := s.tracer.StartSpan(ctx, "ledger.delete_target", map[string]string{"id": fmt.Sprint(id)})
	defer func() { s.finish(span, "delete_target", err) }()

	s.pairing.Lock()
	defer s.pairing.Unlock()

	err = s.store.WithTx(ctx, func(tx domain.LedgerTx) error {
		target, err := tx.GetTarget(ctx, id)
		if err != nil {
			return err
		}
		if target.InvestedAmount > 0 {
			return fmt.Errorf("%w: invested %d", domain.ErrNonEmptyTargetDeletion, target.InvestedAmount)
		}
		if err := tx.DeleteTarget(ctx, id); err != nil {
			return err
		}
		result = target
		return nil
	})
	if err != nil {
		return domain.FundingTarget{}, fmt.Errorf("delete funding target %d: %w", id, err)
	}

	observability.TargetsDeleted.Inc()
	s.log.InfoContext(ctx, "funding target deleted", "id", result.ID, "name", result.Name)
	return result, nil
}

// ─── Queries ────────────────────────────────────────────────────────────────

// ListFundingTargets returns every target, oldest first.
func (s *Service) ListFundingTargets(ctx context.Context) ([]domain.FundingTarget, error) {
	var out []domain.FundingTarget
	err := s.store.WithTx(ctx, func(tx domain.LedgerTx) error {
		var err error
		out, err = tx.ListTargets(ctx, false)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list funding targets: %w", err)
	}
	return out, nil
}

// ListContributionsForOwner returns one owner's contributions, oldest first.
func (s *Service) ListContributionsForOwner(ctx context.Context, ownerID string) ([]domain.Contribution, error) {
	var out []domain.Contribution
	err := s.store.WithTx(ctx, func(tx domain.LedgerTx) error {
		var err error
		out, err = tx.ListContributionsByOwner(ctx, ownerID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list contributions for %q: %w", ownerID, err)
	}
	return out, nil
}

// ListAllContributions returns every contribution, oldest first.
func (s *Service) ListAllContributions(ctx context.Context) ([]domain.Contribution, error) {
	var out []domain.Contribution
	err := s.store.WithTx(ctx, func(tx domain.LedgerTx) error {
		var err error
		out, err = tx.ListContributions(ctx, false)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	return out, nil
}

// Totals sums matched money on both sides from one consistent read.
func (s *Service) Totals(ctx context.Context) (domain.Totals, error) {
	var totals domain.Totals
	err := s.store.WithTx(ctx, func(tx domain.LedgerTx) error {
		targets, err := tx.ListTargets(ctx, false)
		if err != nil {
			return err
		}
		contributions, err := tx.ListContributions(ctx, false)
		if err != nil {
			return err
		}
		for _, t := range targets {
			totals.TargetsInvested += t.InvestedAmount
			if t.Open() {
				totals.OpenTargets++
			}
		}
		for _, c := range contributions {
			totals.ContributionsInvested += c.InvestedAmount
			if c.Open() {
				totals.OpenContributions++
			}
		}
		return nil
	})
	if err != nil {
		return totals, fmt.Errorf("ledger totals: %w", err)
	}
	if !totals.Balanced() {
		s.log.ErrorContext(ctx, "matched money is not conserved",
			"targets_invested", totals.TargetsInvested,
			"contributions_invested", totals.ContributionsInvested,
		)
		observability.InvariantViolations.Inc()
		return totals, fmt.Errorf("%w: targets hold %d, contributions hold %d",
			domain.ErrInvariantViolation, totals.TargetsInvested, totals.ContributionsInvested)
	}
	return totals, nil
}

// ─── Bookkeeping ────────────────────────────────────────────────────────────

func (s *Service) recordPass(trigger string, pass allocator.Result, closedCounterparts int, entityClosed bool, elapsed time.Duration) {
	counterpart := kindTarget
	if trigger == kindTarget {
		counterpart = kindContribution
	}
	observability.EntitiesCreated.WithLabelValues(trigger).Inc()
	observability.MatchedAmount.WithLabelValues(trigger).Add(float64(pass.Matched))
	observability.CounterpartsTouched.Observe(float64(len(pass.Touched)))
	observability.PassDuration.WithLabelValues(trigger).Observe(elapsed.Seconds())
	if closedCounterparts > 0 {
		observability.EntitiesClosed.WithLabelValues(counterpart).Add(float64(closedCounterparts))
	}
	if entityClosed {
		observability.EntitiesClosed.WithLabelValues(trigger).Inc()
	}
}

// finish ends the span and classifies the error for metrics and logs.
func (s *Service) finish(span *observability.Span, op string, err error) {
	s.tracer.EndSpan(span, err)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvariantViolation):
		observability.InvariantViolations.Inc()
		s.log.Error("ledger invariant violated, transaction aborted", "op", op, "error", err)
	case domain.IsValidationError(err):
		observability.RequestsRejected.WithLabelValues(rejectReason(err)).Inc()
		s.log.Debug("request rejected", "op", op, "error", err)
	default:
		s.log.Error("ledger operation failed", "op", op, "error", err)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrDuplicateName):
		return "duplicate_name"
	case errors.Is(err, domain.ErrClosedEntityEdit):
		return "closed_entity_edit"
	case errors.Is(err, domain.ErrAmountBelowInvested):
		return "amount_below_invested"
	case errors.Is(err, domain.ErrNonEmptyTargetDeletion):
		return "non_empty_target_deletion"
	default:
		return "invalid_input"
	}
}

// ─── Input Validation ───────────────────────────────────────────────────────

func validateTarget(name, description string, amount int64) error {
	if err := validateName(name); err != nil {
		return err
	}
	if strings.TrimSpace(description) == "" {
		return fmt.Errorf("%w: description must not be empty", domain.ErrInvalidInput)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: full amount must be positive, got %d", domain.ErrInvalidInput, amount)
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name must not be empty", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > domain.MaxTargetNameLen {
		return fmt.Errorf("%w: name longer than %d characters", domain.ErrInvalidInput, domain.MaxTargetNameLen)
	}
	return nil
}

func validatePatch(p domain.TargetPatch) error {
	if p.Name != nil {
		if err := validateName(*p.Name); err != nil {
			return err
		}
	}
	if p.Description != nil && strings.TrimSpace(*p.Description) == "" {
		return fmt.Errorf("%w: description must not be empty", domain.ErrInvalidInput)
	}
	if p.FullAmount != nil && *p.FullAmount <= 0 {
		return fmt.Errorf("%w: full amount must be positive, got %d", domain.ErrInvalidInput, *p.FullAmount)
	}
	return nil
}

func validateContribution(in domain.NewContribution) error {
	if strings.TrimSpace(in.OwnerID) == "" {
		return fmt.Errorf("%w: owner must not be empty", domain.ErrInvalidInput)
	}
	if in.FullAmount <= 0 {
		return fmt.Errorf("%w: full amount must be positive, got %d", domain.ErrInvalidInput, in.FullAmount)
	}
	return nil
}
