package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/deliverydesk-backend/internal/wallet"
	"github.com/angelmondragon/deliverydesk-backend/pkg/db/models"
	"github.com/angelmondragon/deliverydesk-backend/pkg/logger"
)

type pagedWallets struct {
	ids   []uuid.UUID
	calls int
	err   error
}

func (p *pagedWallets) ListUserIDs(_ context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	start := 0
	if after != uuid.Nil {
		for i, id := range p.ids {
			if id == after {
				start = i + 1
			}
		}
	}
	end := start + limit
	if end > len(p.ids) {
		end = len(p.ids)
	}
	return p.ids[start:end], nil
}

type scriptedReconciler struct {
	drifted map[uuid.UUID]bool
	failing map[uuid.UUID]bool
	seen    []uuid.UUID
}

func (s *scriptedReconciler) Reconcile(_ context.Context, userID uuid.UUID) (*wallet.Reconciliation, error) {
	s.seen = append(s.seen, userID)
	if s.failing[userID] {
		return nil, errors.New("ledger unreadable")
	}
	return &wallet.Reconciliation{UserID: userID, Consistent: !s.drifted[userID]}, nil
}

func TestWalletReconcileJobSweepsAllPages(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	wallets := &pagedWallets{ids: ids}
	reconciler := &scriptedReconciler{
		drifted: map[uuid.UUID]bool{ids[1]: true},
		failing: map[uuid.UUID]bool{ids[3]: true},
	}
	job, err := NewWalletReconcileJob(WalletReconcileJobParams{
		Logger:     logger.Nop(),
		Wallets:    wallets,
		Reconciler: reconciler,
		BatchSize:  2,
	})
	require.NoError(t, err)
	require.Equal(t, "wallet-reconcile", job.Name())

	err = job.Run(context.Background())
	require.Len(t, multierr.Errors(err), 1)
	require.ErrorContains(t, err, ids[3].String())
	require.Equal(t, ids, reconciler.seen, "every wallet must be visited once, in order")
	require.Equal(t, 3, wallets.calls)
}

func TestWalletReconcileJobAbortsOnListFailure(t *testing.T) {
	job, err := NewWalletReconcileJob(WalletReconcileJobParams{
		Logger:     logger.Nop(),
		Wallets:    &pagedWallets{err: errors.New("db down")},
		Reconciler: &scriptedReconciler{},
	})
	require.NoError(t, err)
	require.ErrorContains(t, job.Run(context.Background()), "list wallets")
}

type fakeStaleLister struct {
	at   time.Time
	rows []models.Promotion
	err  error
}

func (f *fakeStaleLister) ListStale(_ context.Context, now time.Time) ([]models.Promotion, error) {
	f.at = now
	return f.rows, f.err
}

func TestPromotionAuditJobUsesClock(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeStaleLister{rows: []models.Promotion{{Code: "OLD"}, {Code: "GONE"}}}
	job, err := NewPromotionAuditJob(PromotionAuditJobParams{
		Logger:     logger.Nop(),
		Promotions: repo,
		Now:        func() time.Time { return now },
	})
	require.NoError(t, err)
	require.Equal(t, "promotion-audit", job.Name())
	require.NoError(t, job.Run(context.Background()))
	require.True(t, repo.at.Equal(now))

	repo.err = errors.New("locked")
	require.Error(t, job.Run(context.Background()))
}

func TestJobConstructorsValidate(t *testing.T) {
	_, err := NewWalletReconcileJob(WalletReconcileJobParams{Logger: logger.Nop(), Wallets: &pagedWallets{}})
	require.Error(t, err)
	_, err = NewPromotionAuditJob(PromotionAuditJobParams{Logger: logger.Nop()})
	require.Error(t, err)
}
