package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundbridge/fundbridge/internal/domain"
)

var errRollback = errors.New("rollback requested")

// RunStoreContract exercises a domain.LedgerStore implementation against the
// behaviour every store must provide: id assignment, ordering, open
// filtering, lookups and all-or-nothing transactions.
func RunStoreContract(t *testing.T, newStore func(t *testing.T) domain.LedgerStore) {
	t.Run("CreateAndGetTarget", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

		var got domain.FundingTarget
		err := s.WithTx(ctx, func(tx domain.LedgerTx) error {
			t1, err := tx.CreateTarget(ctx, target("Shelter", 100, created))
			if err != nil {
				return err
			}
			got, err = tx.GetTarget(ctx, t1.ID)
			return err
		})
		require.NoError(t, err)
		assert.NotZero(t, got.ID)
		assert.Equal(t, "Shelter", got.Name)
		assert.Equal(t, int64(100), got.FullAmount)
		assert.True(t, got.CreatedAt.Equal(created))
		assert.Nil(t, got.ClosedAt)
	})

	t.Run("GetTarget_NotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		err := s.WithTx(ctx, func(tx domain.LedgerTx) error {
			_, err := tx.GetTarget(ctx, 404)
			return err
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("TargetIDByName_CaseSensitive", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		err := s.WithTx(ctx, func(tx domain.LedgerTx) error {
			created, err := tx.CreateTarget(ctx, target("Library", 10, time.Now()))
			require.NoError(t, err)

			id, found, err := tx.TargetIDByName(ctx, "Library")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, created.ID, id)

			_, found, err = tx.TargetIDByName(ctx, "library")
			require.NoError(t, err)
			assert.False(t, found)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("CreateTarget_DuplicateName", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		err := s.WithTx(ctx, func(tx domain.LedgerTx) error {
			if _, err := tx.CreateTarget(ctx, target("Twin", 10, time.Now())); err != nil {
				return err
			}
			_, err := tx.CreateTarget(ctx, target("Twin", 20, time.Now()))
			return err
		})
		assert.ErrorIs(t, err, domain.ErrDuplicateName)
	})

	t.Run("ListOrdering_CreatedThenID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		late := early.Add(time.Minute)

		var ids []int64
		err := s.WithTx(ctx, func(tx domain.LedgerTx) error {
			// Inserted out of time order; two share a timestamp.
			for _, c := range []domain.Contribution{
				contribution("alice", 10, late),
				contribution("bob", 10, early),
				contribution("carol", 10, early),
			} {
				if _, err := tx.CreateContribution(ctx, c); err != nil {
					return err
				}
			}
			list, err := tx.ListContributions(ctx, false)
			for _, c := range list {
				ids = append(ids, c.ID)
			}
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 3, 1}, ids)
	})

	t.Run("ListOpenOnly", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC()

		err := s.WithTx(ctx, func(tx domain.LedgerTx) error {
			open, err := tx.CreateTarget(ctx, target("Open", 10, now))
			require.NoError(t, err)
			closed, err := tx.CreateTarget(ctx, target("Closed", 10, now))
			require.NoError(t, err)

			closed.InvestedAmount = 10
			closed.Close(now)
			require.NoError(t, tx.SaveTargets(ctx, closed))

			all, err := tx.ListTargets(ctx, false)
			require.NoError(t, err)
			assert.Len(t, all, 2)

			openOnly, err := tx.ListTargets(ctx, true)
			require.NoError(t, err)
			require.Len(t, openOnly, 1)
			assert.Equal(t, open.ID, openOnly[0].ID)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("ListContributionsByOwner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC()

		err := s.WithTx(ctx, func(tx domain.LedgerTx) error {
			for _, owner := range []string{"alice", "bob", "alice"} {
				_, err := tx.CreateContribution(ctx, contribution(owner, 5, now))
				require.NoError(t, err)
			}
			mine, err := tx.ListContributionsByOwner(ctx, "alice")
			require.NoError(t, err)
			assert.Len(t, mine, 2)
			for _, c := range mine {
				assert.Equal(t, "alice", c.OwnerID)
			}
			none, err := tx.ListContributionsByOwner(ctx, "nobody")
			require.NoError(t, err)
			assert.Empty(t, none)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("SaveContributions_PersistsMatchingState", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := time.Date(2024, 2, 2, 2, 2, 2, 0, time.UTC)

		err := s.WithTx(ctx, func(tx domain.LedgerTx) error {
			c, err := tx.CreateContribution(ctx, contribution("dora", 30, now))
			require.NoError(t, err)
			c.InvestedAmount = 30
			c.Close(now.Add(time.Hour))
			return tx.SaveContributions(ctx, c)
		})
		require.NoError(t, err)

		err = s.WithTx(ctx, func(tx domain.LedgerTx) error {
			list, err := tx.ListContributions(ctx, false)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.True(t, list[0].FullyInvested)
			assert.Equal(t, int64(30), list[0].InvestedAmount)
			require.NotNil(t, list[0].ClosedAt)
			assert.True(t, list[0].ClosedAt.Equal(now.Add(time.Hour)))
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("SaveTargets_Missing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		err := s.WithTx(ctx, func(tx domain.LedgerTx) error {
			ghost := target("Ghost", 10, time.Now())
			ghost.ID = 99
			return tx.SaveTargets(ctx, ghost)
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("DeleteTarget", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		err := s.WithTx(ctx, func(tx domain.LedgerTx) error {
			created, err := tx.CreateTarget(ctx, target("Gone", 10, time.Now()))
			require.NoError(t, err)
			require.NoError(t, tx.DeleteTarget(ctx, created.ID))
			_, err = tx.GetTarget(ctx, created.ID)
			assert.ErrorIs(t, err, domain.ErrNotFound)
			assert.ErrorIs(t, tx.DeleteTarget(ctx, created.ID), domain.ErrNotFound)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("WithTx_RollbackOnError", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		err := s.WithTx(ctx, func(tx domain.LedgerTx) error {
			if _, err := tx.CreateTarget(ctx, target("Phantom", 10, time.Now())); err != nil {
				return err
			}
			if _, err := tx.CreateContribution(ctx, contribution("eve", 10, time.Now())); err != nil {
				return err
			}
			return errRollback
		})
		require.ErrorIs(t, err, errRollback)

		err = s.WithTx(ctx, func(tx domain.LedgerTx) error {
			targets, err := tx.ListTargets(ctx, false)
			require.NoError(t, err)
			assert.Empty(t, targets)
			contributions, err := tx.ListContributions(ctx, false)
			require.NoError(t, err)
			assert.Empty(t, contributions)
			return nil
		})
		require.NoError(t, err)
	})
}

func target(name string, amount int64, created time.Time) domain.FundingTarget {
	return domain.FundingTarget{
		Name:        name,
		Description: name + " description",
		Investment:  domain.Investment{FullAmount: amount, CreatedAt: created},
	}
}

func contribution(owner string, amount int64, created time.Time) domain.Contribution {
	return domain.Contribution{
		OwnerID:    owner,
		Investment: domain.Investment{FullAmount: amount, CreatedAt: created},
	}
}
