// Package domain contains pure ledger types with ZERO infrastructure imports.
// This is the innermost ring; it depends on nothing.
package domain

import (
	"fmt"
	"time"
)

// ─── Investment ─────────────────────────────────────────────────────────────
// Shared by FundingTarget and Contribution through embedding. Both kinds
// carry a fixed capacity and a running matched amount.

// Investment holds the matching state common to both ledger entity kinds.
type Investment struct {
	FullAmount     int64      `json:"full_amount" yaml:"full_amount"`
	InvestedAmount int64      `json:"invested_amount" yaml:"invested_amount"`
	FullyInvested  bool       `json:"fully_invested" yaml:"fully_invested"`
	CreatedAt      time.Time  `json:"create_date" yaml:"create_date"`
	ClosedAt       *time.Time `json:"close_date,omitempty" yaml:"close_date,omitempty"`
}

// Remaining returns how much capacity is still unmatched.
func (i Investment) Remaining() int64 {
	return i.FullAmount - i.InvestedAmount
}

// Open reports whether the entity can still take part in matching.
func (i Investment) Open() bool { return !i.FullyInvested }

// Close marks the entity fully invested at the given instant.
// A second call keeps the original close time.
func (i *Investment) Close(at time.Time) {
	if i.FullyInvested && i.ClosedAt != nil {
		return
	}
	i.FullyInvested = true
	t := at
	i.ClosedAt = &t
}

// Check verifies the per-entity invariants: the matched amount stays inside
// [0, capacity], the closed flag mirrors a full match, and the close time is
// present exactly when the entity is closed.
func (i Investment) Check() error {
	switch {
	case i.FullAmount <= 0:
		return fmt.Errorf("%w: capacity %d is not positive", ErrInvariantViolation, i.FullAmount)
	case i.InvestedAmount < 0 || i.InvestedAmount > i.FullAmount:
		return fmt.Errorf("%w: invested %d outside [0, %d]", ErrInvariantViolation, i.InvestedAmount, i.FullAmount)
	case i.FullyInvested != (i.InvestedAmount == i.FullAmount):
		return fmt.Errorf("%w: fully_invested=%t with invested %d of %d",
			ErrInvariantViolation, i.FullyInvested, i.InvestedAmount, i.FullAmount)
	case i.FullyInvested != (i.ClosedAt != nil):
		return fmt.Errorf("%w: fully_invested=%t but close_date set=%t",
			ErrInvariantViolation, i.FullyInvested, i.ClosedAt != nil)
	}
	return nil
}

// ─── Funding Targets ────────────────────────────────────────────────────────

// MaxTargetNameLen bounds FundingTarget names.
const MaxTargetNameLen = 100

// FundingTarget is a charitable project asking for a fixed amount.
type FundingTarget struct {
	ID          int64  `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Investment  `yaml:",inline"`
}

// NewFundingTarget is the input for creating a FundingTarget.
type NewFundingTarget struct {
	Name        string
	Description string
	FullAmount  int64
}

// TargetPatch is a partial administrative update. Nil fields are left as is.
type TargetPatch struct {
	Name        *string
	Description *string
	FullAmount  *int64
}

// Empty reports whether the patch changes nothing.
func (p TargetPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.FullAmount == nil
}

// ─── Contributions ──────────────────────────────────────────────────────────

// Contribution is a single inbound sum of money from a donor.
type Contribution struct {
	ID         int64  `json:"id" yaml:"id"`
	OwnerID    string `json:"user_id" yaml:"user_id"`
	Comment    string `json:"comment,omitempty" yaml:"comment,omitempty"`
	Investment `yaml:",inline"`
}

// NewContribution is the input for creating a Contribution.
type NewContribution struct {
	OwnerID    string
	FullAmount int64
	Comment    string
}

// ─── Totals ─────────────────────────────────────────────────────────────────

// Totals summarises matched money on both sides of the ledger.
type Totals struct {
	TargetsInvested       int64 `json:"targets_invested"`
	ContributionsInvested int64 `json:"contributions_invested"`
	OpenTargets           int   `json:"open_targets"`
	OpenContributions     int   `json:"open_contributions"`
}

// Balanced reports whether matched money is conserved across both kinds.
func (t Totals) Balanced() bool {
	return t.TargetsInvested == t.ContributionsInvested
}
