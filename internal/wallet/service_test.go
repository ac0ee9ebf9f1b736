package wallet

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/deliverydesk-backend/pkg/db"
	"github.com/angelmondragon/deliverydesk-backend/pkg/db/models"
	"github.com/angelmondragon/deliverydesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/deliverydesk-backend/pkg/errors"
	"github.com/angelmondragon/deliverydesk-backend/pkg/logger"
	"github.com/angelmondragon/deliverydesk-backend/pkg/pagination"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&models.Wallet{}, &models.WalletTransaction{}))
	return conn
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	c := &clock{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	svc, err := NewService(ServiceParams{
		Repo:       NewRepository(conn),
		Transactor: db.Wrap(conn),
		Minimum:    decimal.NewFromInt(100),
		Logger:     logger.Nop(),
		Now:        c.Now,
	})
	require.NoError(t, err)
	return svc
}

func amount(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func storedBalance(t *testing.T, conn *gorm.DB, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	var w models.Wallet
	require.NoError(t, conn.Where("user_id = ?", userID).First(&w).Error)
	return w.Balance
}

func countTransactions(t *testing.T, conn *gorm.DB, userID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&models.WalletTransaction{}).Where("user_id = ?", userID).Count(&n).Error)
	return n
}

func TestCreditCreatesWalletAndSnapshotsBalance(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	userID := uuid.New()

	first, err := svc.Credit(context.Background(), MutationInput{UserID: userID, Amount: amount("500"), Description: "top up"})
	require.NoError(t, err)
	require.False(t, first.Replayed)
	require.True(t, first.Balance.Equal(amount("500")))

	second, err := svc.Credit(context.Background(), MutationInput{UserID: userID, Amount: amount("250.50"), Description: "top up"})
	require.NoError(t, err)
	require.True(t, second.Transaction.BalanceAfter.Equal(amount("750.50")))
	require.True(t, storedBalance(t, conn, userID).Equal(amount("750.50")))
	require.Equal(t, enums.WalletTransactionTypeCredit, second.Transaction.Type)
}

func TestCreditWithSameReferenceAppliesOnce(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	userID := uuid.New()
	input := MutationInput{
		UserID:        userID,
		Amount:        amount("2500"),
		Description:   "gateway payment",
		ReferenceID:   "ref-123",
		ReferenceType: ReferenceTypeGateway,
	}

	first, err := svc.Credit(context.Background(), input)
	require.NoError(t, err)
	second, err := svc.Credit(context.Background(), input)
	require.NoError(t, err)

	require.True(t, second.Replayed)
	require.Equal(t, first.Transaction.ID, second.Transaction.ID)
	require.True(t, second.Balance.Equal(amount("2500")))
	require.True(t, storedBalance(t, conn, userID).Equal(amount("2500")))
	require.EqualValues(t, 1, countTransactions(t, conn, userID))
}

func TestReferenceCannotBeReusedAcrossUsersOrDirections(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	userID := uuid.New()

	_, err := svc.Credit(context.Background(), MutationInput{UserID: userID, Amount: amount("1000"), ReferenceID: "ref-x"})
	require.NoError(t, err)

	_, err = svc.Credit(context.Background(), MutationInput{UserID: uuid.New(), Amount: amount("1000"), ReferenceID: "ref-x"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict), "got %v", err)

	_, err = svc.Debit(context.Background(), MutationInput{UserID: userID, Amount: amount("1000"), ReferenceID: "ref-x"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict), "got %v", err)
	require.True(t, storedBalance(t, conn, userID).Equal(amount("1000")))
}

func TestDebitBeyondBalanceFailsWithoutSideEffects(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	userID := uuid.New()

	_, err := svc.Credit(context.Background(), MutationInput{UserID: userID, Amount: amount("300")})
	require.NoError(t, err)

	_, err = svc.Debit(context.Background(), MutationInput{UserID: userID, Amount: amount("300.01")})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientFunds), "got %v", err)
	require.True(t, storedBalance(t, conn, userID).Equal(amount("300")))
	require.EqualValues(t, 1, countTransactions(t, conn, userID))

	res, err := svc.Debit(context.Background(), MutationInput{UserID: userID, Amount: amount("300")})
	require.NoError(t, err)
	require.True(t, res.Balance.IsZero())
}

func TestDebitWithoutWalletIsInsufficientFunds(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)

	_, err := svc.Debit(context.Background(), MutationInput{UserID: uuid.New(), Amount: amount("150")})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientFunds), "got %v", err)
}

func TestMutationValidation(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	userID := uuid.New()

	cases := []MutationInput{
		{UserID: userID, Amount: amount("0")},
		{UserID: userID, Amount: amount("-200")},
		{UserID: userID, Amount: amount("99.99")},
		{UserID: userID, Amount: amount("100.001")},
		{UserID: uuid.Nil, Amount: amount("500")},
	}
	for _, in := range cases {
		_, err := svc.Credit(context.Background(), in)
		require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "input %+v got %v", in, err)
	}

	var wallets int64
	require.NoError(t, conn.Model(&models.Wallet{}).Count(&wallets).Error)
	require.Zero(t, wallets, "validation failures must not create wallets")
}

func TestReconcileReplaysLedger(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	userID := uuid.New()
	ctx := context.Background()

	_, err := svc.Credit(ctx, MutationInput{UserID: userID, Amount: amount("1000")})
	require.NoError(t, err)
	_, err = svc.Debit(ctx, MutationInput{UserID: userID, Amount: amount("400")})
	require.NoError(t, err)
	_, err = svc.Credit(ctx, MutationInput{UserID: userID, Amount: amount("150.25"), ReferenceID: "ref-r"})
	require.NoError(t, err)
	_, err = svc.Credit(ctx, MutationInput{UserID: userID, Amount: amount("150.25"), ReferenceID: "ref-r"})
	require.NoError(t, err)

	rec, err := svc.Reconcile(ctx, userID)
	require.NoError(t, err)
	require.True(t, rec.Consistent)
	require.Equal(t, 3, rec.TransactionCount)
	require.True(t, rec.LedgerBalance.Equal(amount("750.25")))
	require.True(t, rec.StoredBalance.Equal(rec.LedgerBalance))

	require.NoError(t, conn.Model(&models.Wallet{}).Where("user_id = ?", userID).Update("balance", amount("9999")).Error)
	rec, err = svc.Reconcile(ctx, userID)
	require.NoError(t, err)
	require.False(t, rec.Consistent)
}

func TestReconcileFollowsLockOrderWhenClocksDrift(t *testing.T) {
	conn := newTestDB(t)
	// Each mutation is stamped earlier than the one before it, as with a
	// replica whose clock runs behind.
	stamp := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	svc, err := NewService(ServiceParams{
		Repo:       NewRepository(conn),
		Transactor: db.Wrap(conn),
		Minimum:    decimal.NewFromInt(100),
		Logger:     logger.Nop(),
		Now: func() time.Time {
			stamp = stamp.Add(-time.Minute)
			return stamp
		},
	})
	require.NoError(t, err)
	userID := uuid.New()
	ctx := context.Background()

	_, err = svc.Credit(ctx, MutationInput{UserID: userID, Amount: amount("500")})
	require.NoError(t, err)
	_, err = svc.Debit(ctx, MutationInput{UserID: userID, Amount: amount("450")})
	require.NoError(t, err)
	res, err := svc.Credit(ctx, MutationInput{UserID: userID, Amount: amount("100")})
	require.NoError(t, err)
	require.Equal(t, int64(3), res.Transaction.Seq)

	rec, err := svc.Reconcile(ctx, userID)
	require.NoError(t, err)
	require.True(t, rec.Consistent, "mismatches: %v", rec.SnapshotMismatches)
	require.Empty(t, rec.SnapshotMismatches)
	require.True(t, rec.LedgerBalance.Equal(amount("150")))

	var w models.Wallet
	require.NoError(t, conn.Where("user_id = ?", userID).First(&w).Error)
	require.Equal(t, int64(3), w.LastSeq)
}

func TestDebitWithinRollsBackWithCallerTransaction(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	userID := uuid.New()
	ctx := context.Background()

	_, err := svc.Credit(ctx, MutationInput{UserID: userID, Amount: amount("800")})
	require.NoError(t, err)

	callerErr := errors.New("order update failed")
	err = db.Wrap(conn).WithTx(ctx, func(tx *gorm.DB) error {
		res, err := svc.DebitWithin(ctx, tx, MutationInput{UserID: userID, Amount: amount("500"), ReferenceID: "order:1"})
		require.NoError(t, err)
		require.True(t, res.Balance.Equal(amount("300")))
		return callerErr
	})
	require.ErrorIs(t, err, callerErr)
	require.True(t, storedBalance(t, conn, userID).Equal(amount("800")))
	require.EqualValues(t, 1, countTransactions(t, conn, userID))
}

func TestSummaryPaginatesNewestFirst(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	userID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Credit(ctx, MutationInput{UserID: userID, Amount: amount("100")})
		require.NoError(t, err)
	}

	summary, err := svc.Summary(ctx, userID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.True(t, summary.Balance.Equal(amount("300")))
	require.Len(t, summary.Transactions, 2)
	require.NotEmpty(t, summary.NextCursor)
	require.True(t, summary.Transactions[0].BalanceAfter.Equal(amount("300")))

	empty, err := svc.Summary(ctx, uuid.New(), pagination.Params{})
	require.NoError(t, err)
	require.True(t, empty.Balance.IsZero())
	require.Empty(t, empty.Transactions)
}

// racingRepo simulates a concurrent request committing the same reference
// between our lookup and insert.
type racingRepo struct {
	Repository
	committed *models.WalletTransaction
	inTx      bool
}

func (r *racingRepo) WithTx(*gorm.DB) Repository {
	return &racingRepo{Repository: r.Repository, committed: r.committed, inTx: true}
}

func (r *racingRepo) FindByReference(ctx context.Context, ref string) (*models.WalletTransaction, error) {
	if r.inTx {
		return nil, nil
	}
	return r.committed, nil
}

func (r *racingRepo) LockWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return &models.Wallet{UserID: userID, Balance: amount("0")}, nil
}

func (r *racingRepo) UpdateBalance(context.Context, uuid.UUID, decimal.Decimal, int64) error {
	return nil
}

func (r *racingRepo) CreateTransaction(context.Context, *models.WalletTransaction) error {
	return errors.New("UNIQUE constraint failed: wallet_transactions.reference_id")
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func TestCreditRaceReturnsCommittedResult(t *testing.T) {
	userID := uuid.New()
	ref := "ref-race"
	committed := &models.WalletTransaction{
		ID:           uuid.New(),
		UserID:       userID,
		Type:         enums.WalletTransactionTypeCredit,
		Amount:       amount("500"),
		BalanceAfter: amount("500"),
		ReferenceID:  &ref,
	}
	svc, err := NewService(ServiceParams{
		Repo:       &racingRepo{committed: committed},
		Transactor: passthroughTx{},
		Minimum:    decimal.NewFromInt(100),
		Logger:     logger.Nop(),
	})
	require.NoError(t, err)

	res, err := svc.Credit(context.Background(), MutationInput{UserID: userID, Amount: amount("500"), ReferenceID: ref})
	require.NoError(t, err)
	require.True(t, res.Replayed)
	require.Equal(t, committed.ID, res.Transaction.ID)
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Transactor: passthroughTx{}, Logger: logger.Nop()})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Repo: &racingRepo{}, Logger: logger.Nop()})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Repo: &racingRepo{}, Transactor: passthroughTx{}, Logger: logger.Nop(), Minimum: amount("-1")})
	require.Error(t, err)
}

func TestListUserIDsPagesInOrder(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, repo.EnsureWallet(ctx, id))
	}

	first, err := repo.ListUserIDs(ctx, uuid.Nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)

	rest, err := repo.ListUserIDs(ctx, first[1], 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)

	seen := map[uuid.UUID]bool{}
	for _, id := range append(first, rest...) {
		seen[id] = true
	}
	for _, id := range ids {
		require.True(t, seen[id], "missing %s", id)
	}
}
