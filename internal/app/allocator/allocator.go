// Package allocator implements the matching pass between a newly created
// ledger entity and the open entities of the opposite kind.
//
// The pass is greedy and single-shot:
//  1. remaining = capacity of the new entity minus what it already holds
//  2. walk the open counterparts oldest-first, giving each min(remaining, need)
//  3. close every counterpart that reaches its capacity
//  4. close the new entity if it reached its own capacity
//
// The package never touches storage. Callers load the counterparts, call
// Allocate, and persist the touched entities in one transaction.
package allocator

import (
	"fmt"
	"time"

	"github.com/fundbridge/fundbridge/internal/domain"
)

// Result describes what a single pass changed.
type Result struct {
	// Touched holds indices into the counterpart slice whose invested amount
	// changed, in the order they were filled.
	Touched []int
	// Matched is the total amount moved across the pass.
	Matched int64
}

// Closed reports how many touched counterparts the pass closed.
func (r Result) Closed(open []*domain.Investment) int {
	n := 0
	for _, idx := range r.Touched {
		if open[idx].FullyInvested {
			n++
		}
	}
	return n
}

// Allocate distributes the unmatched capacity of entity over open, in slice
// order. open must already be sorted oldest-first and contain only open
// entities. Both entity and the touched counterparts are mutated in place.
//
// A returned error always wraps domain.ErrInvariantViolation: the inputs or
// the outcome broke a ledger invariant and nothing should be persisted.
func Allocate(now time.Time, entity *domain.Investment, open []*domain.Investment) (Result, error) {
	var res Result

	if entity.FullyInvested {
		return res, fmt.Errorf("%w: allocation requested for a closed entity", domain.ErrInvariantViolation)
	}
	if err := entity.Check(); err != nil {
		return res, fmt.Errorf("new entity: %w", err)
	}

	startInvested := entity.InvestedAmount
	remaining := entity.Remaining()

	for idx, c := range open {
		if remaining == 0 {
			break
		}
		if c.FullyInvested {
			return res, fmt.Errorf("%w: counterpart %d is already closed", domain.ErrInvariantViolation, idx)
		}
		need := c.Remaining()
		if need <= 0 {
			return res, fmt.Errorf("%w: counterpart %d is open with need %d", domain.ErrInvariantViolation, idx, need)
		}

		matched := min(remaining, need)
		c.InvestedAmount += matched
		entity.InvestedAmount += matched
		remaining -= matched
		res.Matched += matched
		res.Touched = append(res.Touched, idx)

		if c.InvestedAmount == c.FullAmount {
			c.Close(now)
		}
		if err := c.Check(); err != nil {
			return res, fmt.Errorf("counterpart %d: %w", idx, err)
		}
	}

	if entity.InvestedAmount == entity.FullAmount {
		entity.Close(now)
	}
	if err := entity.Check(); err != nil {
		return res, fmt.Errorf("new entity: %w", err)
	}

	// Conservation: what the entity gained is exactly what counterparts took.
	if gained := entity.InvestedAmount - startInvested; gained != res.Matched {
		return res, fmt.Errorf("%w: entity gained %d but counterparts received %d",
			domain.ErrInvariantViolation, gained, res.Matched)
	}
	return res, nil
}

// Targets returns pointers to the embedded Investment of each target so the
// slice can be passed to Allocate.
func Targets(targets []domain.FundingTarget) []*domain.Investment {
	out := make([]*domain.Investment, len(targets))
	for i := range targets {
		out[i] = &targets[i].Investment
	}
	return out
}

// Contributions is the Contribution counterpart of Targets.
func Contributions(contributions []domain.Contribution) []*domain.Investment {
	out := make([]*domain.Investment, len(contributions))
	for i := range contributions {
		out[i] = &contributions[i].Investment
	}
	return out
}
