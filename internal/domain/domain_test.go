package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

// ─── Investment Tests ───────────────────────────────────────────────────────

func TestInvestment_Remaining(t *testing.T) {
	inv := Investment{FullAmount: 100, InvestedAmount: 30}
	if got := inv.Remaining(); got != 70 {
		t.Errorf("Remaining() = %d, want 70", got)
	}
}

func TestInvestment_Close_KeepsFirstTimestamp(t *testing.T) {
	first := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	inv := Investment{FullAmount: 10, InvestedAmount: 10}

	inv.Close(first)
	inv.Close(first.Add(time.Hour))

	if !inv.FullyInvested {
		t.Fatal("FullyInvested = false after Close")
	}
	if !inv.ClosedAt.Equal(first) {
		t.Errorf("ClosedAt = %v, want %v", inv.ClosedAt, first)
	}
	if inv.Open() {
		t.Error("Open() = true after Close")
	}
}

func TestInvestment_Check(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		inv     Investment
		wantErr bool
	}{
		{"fresh", Investment{FullAmount: 10}, false},
		{"partial", Investment{FullAmount: 10, InvestedAmount: 4}, false},
		{"closed", Investment{FullAmount: 10, InvestedAmount: 10, FullyInvested: true, ClosedAt: &now}, false},
		{"zero capacity", Investment{FullAmount: 0}, true},
		{"negative invested", Investment{FullAmount: 10, InvestedAmount: -1}, true},
		{"overshoot", Investment{FullAmount: 10, InvestedAmount: 11}, true},
		{"full but open", Investment{FullAmount: 10, InvestedAmount: 10}, true},
		{"closed without date", Investment{FullAmount: 10, InvestedAmount: 10, FullyInvested: true}, true},
		{"open with date", Investment{FullAmount: 10, InvestedAmount: 5, ClosedAt: &now}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.inv.Check()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvariantViolation) {
				t.Errorf("Check() error = %v, want ErrInvariantViolation", err)
			}
		})
	}
}

// ─── Wire Format Tests ──────────────────────────────────────────────────────

func TestFundingTarget_JSON_FlattensInvestment(t *testing.T) {
	target := FundingTarget{
		ID:          7,
		Name:        "Cats",
		Description: "Food for cats",
		Investment:  Investment{FullAmount: 500, InvestedAmount: 100},
	}

	data, err := json.Marshal(target)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if raw["full_amount"] != float64(500) {
		t.Errorf("full_amount = %v, want 500", raw["full_amount"])
	}
	if raw["invested_amount"] != float64(100) {
		t.Errorf("invested_amount = %v, want 100", raw["invested_amount"])
	}
	if _, ok := raw["close_date"]; ok {
		t.Error("close_date should be omitted while the target is open")
	}
}

// ─── Patch & Totals ─────────────────────────────────────────────────────────

func TestTargetPatch_Empty(t *testing.T) {
	if !(TargetPatch{}).Empty() {
		t.Error("zero patch should be empty")
	}
	name := "x"
	if (TargetPatch{Name: &name}).Empty() {
		t.Error("patch with name should not be empty")
	}
}

func TestTotals_Balanced(t *testing.T) {
	if !(Totals{TargetsInvested: 40, ContributionsInvested: 40}).Balanced() {
		t.Error("equal totals should be balanced")
	}
	if (Totals{TargetsInvested: 40, ContributionsInvested: 39}).Balanced() {
		t.Error("unequal totals should not be balanced")
	}
}

// ─── Errors ─────────────────────────────────────────────────────────────────

func TestIsValidationError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrNotFound, true},
		{fmt.Errorf("update target: %w", ErrDuplicateName), true},
		{ErrClosedEntityEdit, true},
		{ErrAmountBelowInvested, true},
		{ErrNonEmptyTargetDeletion, true},
		{ErrInvalidInput, true},
		{fmt.Errorf("allocate: %w", ErrInvariantViolation), false},
		{errors.New("disk full"), false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := IsValidationError(tt.err); got != tt.want {
				t.Errorf("IsValidationError(%v) = %t, want %t", tt.err, got, tt.want)
			}
		})
	}
}
