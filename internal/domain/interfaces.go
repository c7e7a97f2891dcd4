package domain

import "context"

// ─── Store Interfaces ───────────────────────────────────────────────────────
// These interfaces define the boundary between the ledger service and
// persistence. Infrastructure implements them; the app layer depends on them.

// LedgerStore is the durable home of FundingTargets and Contributions.
type LedgerStore interface {
	// WithTx runs fn inside one atomic transaction. Every write made through
	// tx commits together, or none do when fn returns an error.
	WithTx(ctx context.Context, fn func(tx LedgerTx) error) error

	Close() error
}

// LedgerTx is the read/write view of the ledger inside a transaction.
// Every list is ordered by creation time ascending, then id ascending.
type LedgerTx interface {
	CreateTarget(ctx context.Context, t FundingTarget) (FundingTarget, error)
	GetTarget(ctx context.Context, id int64) (FundingTarget, error)
	TargetIDByName(ctx context.Context, name string) (id int64, found bool, err error)
	ListTargets(ctx context.Context, openOnly bool) ([]FundingTarget, error)
	SaveTargets(ctx context.Context, targets ...FundingTarget) error
	DeleteTarget(ctx context.Context, id int64) error

	CreateContribution(ctx context.Context, c Contribution) (Contribution, error)
	ListContributions(ctx context.Context, openOnly bool) ([]Contribution, error)
	ListContributionsByOwner(ctx context.Context, ownerID string) ([]Contribution, error)
	SaveContributions(ctx context.Context, contributions ...Contribution) error
}
