package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/deliverydesk-backend/internal/wallet"
	"github.com/angelmondragon/deliverydesk-backend/pkg/logger"
	"github.com/angelmondragon/deliverydesk-backend/pkg/metrics"
)

const (
	walletReconcileJobName   = "wallet-reconcile"
	defaultReconcileBatch    = 200
	findingDrift             = "drift"
	findingReconcileFailures = "error"
)

type walletLister interface {
	ListUserIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type walletReconciler interface {
	Reconcile(ctx context.Context, userID uuid.UUID) (*wallet.Reconciliation, error)
}

// WalletReconcileJobParams configure the ledger audit sweep.
type WalletReconcileJobParams struct {
	Logger     *logger.Logger
	Wallets    walletLister
	Reconciler walletReconciler
	Metrics    *metrics.CronJobMetrics
	BatchSize  int
}

type walletReconcileJob struct {
	logg       *logger.Logger
	wallets    walletLister
	reconciler walletReconciler
	metrics    *metrics.CronJobMetrics
	batch      int
}

// NewWalletReconcileJob builds the job that replays every wallet ledger and
// reports balances that drifted from it. It never rewrites balances.
func NewWalletReconcileJob(params WalletReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet lister required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("wallet reconciler required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &walletReconcileJob{
		logg:       params.Logger,
		wallets:    params.Wallets,
		reconciler: params.Reconciler,
		metrics:    params.Metrics,
		batch:      batch,
	}, nil
}

func (j *walletReconcileJob) Name() string { return walletReconcileJobName }

// Run pages through all wallets. A failure on one wallet is recorded and the
// sweep continues; listing failures abort it.
func (j *walletReconcileJob) Run(ctx context.Context) error {
	var (
		after   uuid.UUID
		checked int
		drifted int
		errs    error
	)
	for {
		ids, err := j.wallets.ListUserIDs(ctx, after, j.batch)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list wallets: %w", err))
		}
		for _, id := range ids {
			report, err := j.reconciler.Reconcile(ctx, id)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("reconcile %s: %w", id, err))
				continue
			}
			checked++
			if !report.Consistent {
				drifted++
			}
		}
		if len(ids) < j.batch {
			break
		}
		after = ids[len(ids)-1]
	}

	failures := len(multierr.Errors(errs))
	j.metrics.AddFindings(walletReconcileJobName, findingDrift, drifted)
	j.metrics.AddFindings(walletReconcileJobName, findingReconcileFailures, failures)

	summary := j.logg.WithFields(ctx, map[string]any{
		"wallets_checked": checked,
		"wallets_drifted": drifted,
		"failures":        failures,
	})
	if drifted > 0 {
		j.logg.Warn(summary, "wallet ledgers out of balance")
	} else {
		j.logg.Info(summary, "wallet ledgers reconciled")
	}
	return errs
}
