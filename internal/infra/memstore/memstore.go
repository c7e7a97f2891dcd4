// Package memstore provides an in-memory ledger store used by tests and by
// ephemeral runs (storage.driver = "memory").
//
// Transactions work on a private copy of the state and swap it in on
// success, so a failed pass leaves nothing behind. One transaction runs at
// a time.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/fundbridge/fundbridge/internal/domain"
)

var _ domain.LedgerStore = (*Store)(nil)

// Store is the in-memory ledger.
type Store struct {
	// Serialises transactions. Held for the whole of WithTx.
	lock  chan struct{}
	state state
}

type state struct {
	targets       map[int64]domain.FundingTarget
	contributions map[int64]domain.Contribution
	nextTargetID  int64
	nextContribID int64
}

// New creates an empty store.
func New() *Store {
	s := &Store{
		lock: make(chan struct{}, 1),
		state: state{
			targets:       make(map[int64]domain.FundingTarget),
			contributions: make(map[int64]domain.Contribution),
		},
	}
	return s
}

// WithTx runs fn against a copy of the ledger and commits the copy when fn
// succeeds. Waiting for the lock honours ctx cancellation.
func (s *Store) WithTx(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	select {
	case s.lock <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("begin tx: %w", ctx.Err())
	}
	defer func() { <-s.lock }()

	work := s.state.clone()
	if err := fn(&memTx{st: &work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (st state) clone() state {
	return state{
		targets:       maps.Clone(st.targets),
		contributions: maps.Clone(st.contributions),
		nextTargetID:  st.nextTargetID,
		nextContribID: st.nextContribID,
	}
}

// ─── Transaction View ───────────────────────────────────────────────────────

type memTx struct {
	st *state
}

func (m *memTx) CreateTarget(_ context.Context, t domain.FundingTarget) (domain.FundingTarget, error) {
	for _, existing := range m.st.targets {
		if existing.Name == t.Name {
			return t, fmt.Errorf("insert target: name %q: %w", t.Name, domain.ErrDuplicateName)
		}
	}
	m.st.nextTargetID++
	t.ID = m.st.nextTargetID
	m.st.targets[t.ID] = t
	return t, nil
}

func (m *memTx) GetTarget(_ context.Context, id int64) (domain.FundingTarget, error) {
	t, ok := m.st.targets[id]
	if !ok {
		return t, fmt.Errorf("funding target %d: %w", id, domain.ErrNotFound)
	}
	return t, nil
}

func (m *memTx) TargetIDByName(_ context.Context, name string) (int64, bool, error) {
	for id, t := range m.st.targets {
		if t.Name == name {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (m *memTx) ListTargets(_ context.Context, openOnly bool) ([]domain.FundingTarget, error) {
	var out []domain.FundingTarget
	for _, t := range m.st.targets {
		if openOnly && t.FullyInvested {
			continue
		}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b domain.FundingTarget) int {
		return compareCreated(a.Investment, a.ID, b.Investment, b.ID)
	})
	return out, nil
}

func (m *memTx) SaveTargets(_ context.Context, targets ...domain.FundingTarget) error {
	for _, t := range targets {
		if _, ok := m.st.targets[t.ID]; !ok {
			return fmt.Errorf("funding target %d: %w", t.ID, domain.ErrNotFound)
		}
		m.st.targets[t.ID] = t
	}
	return nil
}

func (m *memTx) DeleteTarget(_ context.Context, id int64) error {
	if _, ok := m.st.targets[id]; !ok {
		return fmt.Errorf("funding target %d: %w", id, domain.ErrNotFound)
	}
	delete(m.st.targets, id)
	return nil
}

func (m *memTx) CreateContribution(_ context.Context, c domain.Contribution) (domain.Contribution, error) {
	m.st.nextContribID++
	c.ID = m.st.nextContribID
	m.st.contributions[c.ID] = c
	return c, nil
}

func (m *memTx) ListContributions(_ context.Context, openOnly bool) ([]domain.Contribution, error) {
	return m.contributions(func(c domain.Contribution) bool {
		return !openOnly || !c.FullyInvested
	}), nil
}

func (m *memTx) ListContributionsByOwner(_ context.Context, ownerID string) ([]domain.Contribution, error) {
	return m.contributions(func(c domain.Contribution) bool {
		return c.OwnerID == ownerID
	}), nil
}

func (m *memTx) contributions(keep func(domain.Contribution) bool) []domain.Contribution {
	var out []domain.Contribution
	for _, c := range m.st.contributions {
		if keep(c) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b domain.Contribution) int {
		return compareCreated(a.Investment, a.ID, b.Investment, b.ID)
	})
	return out
}

func (m *memTx) SaveContributions(_ context.Context, contributions ...domain.Contribution) error {
	for _, c := range contributions {
		stored, ok := m.st.contributions[c.ID]
		if !ok {
			return fmt.Errorf("contribution %d: %w", c.ID, domain.ErrNotFound)
		}
		stored.InvestedAmount = c.InvestedAmount
		stored.FullyInvested = c.FullyInvested
		stored.ClosedAt = c.ClosedAt
		m.st.contributions[c.ID] = stored
	}
	return nil
}

// compareCreated orders by creation time, then id.
func compareCreated(a domain.Investment, aID int64, b domain.Investment, bID int64) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(aID, bID)
}
