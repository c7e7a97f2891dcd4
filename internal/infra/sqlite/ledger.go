package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fundbridge/fundbridge/internal/domain"
)

// ledgerTx implements domain.LedgerTx over a *sql.Tx.
type ledgerTx struct {
	tx *sql.Tx
}

const (
	targetColumns       = `id, name, description, full_amount, invested_amount, fully_invested, create_date, close_date`
	contributionColumns = `id, user_id, comment, full_amount, invested_amount, fully_invested, create_date, close_date`
)

// ─── Funding Target Operations ──────────────────────────────────────────────

// CreateTarget inserts a FundingTarget and returns it with its assigned id.
func (l *ledgerTx) CreateTarget(ctx context.Context, t domain.FundingTarget) (domain.FundingTarget, error) {
	res, err := l.tx.ExecContext(ctx, `
		INSERT INTO charity_project (name, description, full_amount, invested_amount, fully_invested, create_date, close_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.Name, t.Description, t.FullAmount, t.InvestedAmount, boolToInt(t.FullyInvested),
		toNanos(t.CreatedAt), nullableNanos(t.ClosedAt))
	if isUniqueViolation(err) {
		return t, fmt.Errorf("insert target: name %q: %w", t.Name, domain.ErrDuplicateName)
	}
	if err != nil {
		return t, fmt.Errorf("insert target: %w", err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return t, fmt.Errorf("insert target: last insert id: %w", err)
	}
	return t, nil
}

// GetTarget retrieves a FundingTarget by id.
func (l *ledgerTx) GetTarget(ctx context.Context, id int64) (domain.FundingTarget, error) {
	row := l.tx.QueryRowContext(ctx, `SELECT `+targetColumns+` FROM charity_project WHERE id = ?`, id)
	t, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return t, fmt.Errorf("funding target %d: %w", id, domain.ErrNotFound)
	}
	return t, err
}

// TargetIDByName looks up a FundingTarget id by exact, case-sensitive name.
func (l *ledgerTx) TargetIDByName(ctx context.Context, name string) (int64, bool, error) {
	var id int64
	err := l.tx.QueryRowContext(ctx, `SELECT id FROM charity_project WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("target by name: %w", err)
	}
	return id, true, nil
}

// ListTargets returns FundingTargets oldest-first.
func (l *ledgerTx) ListTargets(ctx context.Context, openOnly bool) ([]domain.FundingTarget, error) {
	query := `SELECT ` + targetColumns + ` FROM charity_project`
	if openOnly {
		query += ` WHERE fully_invested = 0`
	}
	query += ` ORDER BY create_date ASC, id ASC`

	rows, err := l.tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var result []domain.FundingTarget
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("list targets: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// SaveTargets writes back the mutable fields of each target.
func (l *ledgerTx) SaveTargets(ctx context.Context, targets ...domain.FundingTarget) error {
	for _, t := range targets {
		res, err := l.tx.ExecContext(ctx, `
			UPDATE charity_project SET
				name            = ?,
				description     = ?,
				full_amount     = ?,
				invested_amount = ?,
				fully_invested  = ?,
				close_date      = ?
			WHERE id = ?
		`, t.Name, t.Description, t.FullAmount, t.InvestedAmount, boolToInt(t.FullyInvested),
			nullableNanos(t.ClosedAt), t.ID)
		if isUniqueViolation(err) {
			return fmt.Errorf("save target %d: name %q: %w", t.ID, t.Name, domain.ErrDuplicateName)
		}
		if err != nil {
			return fmt.Errorf("save target %d: %w", t.ID, err)
		}
		if err := expectOneRow(res, "funding target", t.ID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteTarget removes a FundingTarget.
func (l *ledgerTx) DeleteTarget(ctx context.Context, id int64) error {
	res, err := l.tx.ExecContext(ctx, `DELETE FROM charity_project WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete target %d: %w", id, err)
	}
	return expectOneRow(res, "funding target", id)
}

// ─── Contribution Operations ────────────────────────────────────────────────

// CreateContribution inserts a Contribution and returns it with its id.
func (l *ledgerTx) CreateContribution(ctx context.Context, c domain.Contribution) (domain.Contribution, error) {
	res, err := l.tx.ExecContext(ctx, `
		INSERT INTO donation (user_id, comment, full_amount, invested_amount, fully_invested, create_date, close_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.OwnerID, c.Comment, c.FullAmount, c.InvestedAmount, boolToInt(c.FullyInvested),
		toNanos(c.CreatedAt), nullableNanos(c.ClosedAt))
	if err != nil {
		return c, fmt.Errorf("insert contribution: %w", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return c, fmt.Errorf("insert contribution: last insert id: %w", err)
	}
	return c, nil
}

// ListContributions returns Contributions oldest-first.
func (l *ledgerTx) ListContributions(ctx context.Context, openOnly bool) ([]domain.Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM donation`
	if openOnly {
		query += ` WHERE fully_invested = 0`
	}
	query += ` ORDER BY create_date ASC, id ASC`
	return l.queryContributions(ctx, query)
}

// ListContributionsByOwner returns one owner's Contributions oldest-first.
func (l *ledgerTx) ListContributionsByOwner(ctx context.Context, ownerID string) ([]domain.Contribution, error) {
	return l.queryContributions(ctx, `
		SELECT `+contributionColumns+` FROM donation
		WHERE user_id = ?
		ORDER BY create_date ASC, id ASC
	`, ownerID)
}

func (l *ledgerTx) queryContributions(ctx context.Context, query string, args ...any) ([]domain.Contribution, error) {
	rows, err := l.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	var result []domain.Contribution
	for rows.Next() {
		var (
			c         domain.Contribution
			fully     int
			createdNs int64
			closedNs  sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Comment, &c.FullAmount, &c.InvestedAmount,
			&fully, &createdNs, &closedNs); err != nil {
			return nil, fmt.Errorf("list contributions: %w", err)
		}
		c.FullyInvested = fully == 1
		c.CreatedAt = fromNanos(createdNs)
		c.ClosedAt = fromNullNanos(closedNs)
		result = append(result, c)
	}
	return result, rows.Err()
}

// SaveContributions writes back the matching state of each contribution.
// Amount, owner and comment are immutable and never rewritten.
func (l *ledgerTx) SaveContributions(ctx context.Context, contributions ...domain.Contribution) error {
	for _, c := range contributions {
		res, err := l.tx.ExecContext(ctx, `
			UPDATE donation SET
				invested_amount = ?,
				fully_invested  = ?,
				close_date      = ?
			WHERE id = ?
		`, c.InvestedAmount, boolToInt(c.FullyInvested), nullableNanos(c.ClosedAt), c.ID)
		if err != nil {
			return fmt.Errorf("save contribution %d: %w", c.ID, err)
		}
		if err := expectOneRow(res, "contribution", c.ID); err != nil {
			return err
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTarget(row rowScanner) (domain.FundingTarget, error) {
	var (
		t         domain.FundingTarget
		fully     int
		createdNs int64
		closedNs  sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.FullAmount, &t.InvestedAmount,
		&fully, &createdNs, &closedNs); err != nil {
		return t, err
	}
	t.FullyInvested = fully == 1
	t.CreatedAt = fromNanos(createdNs)
	t.ClosedAt = fromNullNanos(closedNs)
	return t, nil
}

func expectOneRow(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %d: rows affected: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, domain.ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Timestamps are stored as UTC Unix nanoseconds so ORDER BY create_date is
// exact and independent of string formatting.
func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(ns int64) time.Time { return time.Unix(0, ns).UTC() }

func nullableNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toNanos(*t)
}

func fromNullNanos(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := fromNanos(ns.Int64)
	return &t
}
