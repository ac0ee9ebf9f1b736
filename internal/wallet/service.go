package wallet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/deliverydesk-backend/pkg/db"
	"github.com/angelmondragon/deliverydesk-backend/pkg/db/models"
	"github.com/angelmondragon/deliverydesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/deliverydesk-backend/pkg/errors"
	"github.com/angelmondragon/deliverydesk-backend/pkg/logger"
	"github.com/angelmondragon/deliverydesk-backend/pkg/metrics"
	"github.com/angelmondragon/deliverydesk-backend/pkg/pagination"
)

const referenceConstraint = "wallet_transactions_reference_id_key"

// Service is the wallet ledger. Every mutation reads the balance, writes the
// new balance and appends the ledger row inside one transaction.
type Service interface {
	Credit(ctx context.Context, input MutationInput) (*Result, error)
	Debit(ctx context.Context, input MutationInput) (*Result, error)
	// DebitWithin applies a debit inside a transaction owned by the caller.
	DebitWithin(ctx context.Context, tx *gorm.DB, input MutationInput) (*Result, error)
	Summary(ctx context.Context, userID uuid.UUID, params pagination.Params) (*Summary, error)
	Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error)
}

// ServiceParams groups the wallet service dependencies.
type ServiceParams struct {
	Repo       Repository
	Transactor db.Transactor
	Minimum    decimal.Decimal
	Logger     *logger.Logger
	Metrics    *metrics.SettlementMetrics
	Now        func() time.Time
}

type service struct {
	repo    Repository
	tx      db.Transactor
	minimum decimal.Decimal
	logg    *logger.Logger
	metrics *metrics.SettlementMetrics
	now     func() time.Time
}

// NewService wires the wallet ledger.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if params.Transactor == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Minimum.IsNegative() {
		return nil, fmt.Errorf("wallet minimum must not be negative")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Transactor,
		minimum: params.Minimum,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

func (s *service) Credit(ctx context.Context, input MutationInput) (*Result, error) {
	return s.run(ctx, enums.WalletTransactionTypeCredit, input)
}

func (s *service) Debit(ctx context.Context, input MutationInput) (*Result, error) {
	return s.run(ctx, enums.WalletTransactionTypeDebit, input)
}

func (s *service) DebitWithin(ctx context.Context, tx *gorm.DB, input MutationInput) (*Result, error) {
	input = input.normalized()
	if err := s.validate(input); err != nil {
		return nil, err
	}
	ctx = s.logContext(ctx, enums.WalletTransactionTypeDebit, input)
	result, err := s.apply(ctx, s.repo.WithTx(tx), enums.WalletTransactionTypeDebit, input)
	if err != nil {
		if input.ReferenceID != "" && db.IsUniqueViolation(err, referenceConstraint) {
			err = pkgerrors.Wrap(pkgerrors.CodeConflict, err, "wallet reference already applied")
		}
		s.record(ctx, enums.WalletTransactionTypeDebit, nil, err)
		return nil, err
	}
	s.record(ctx, enums.WalletTransactionTypeDebit, result, nil)
	return result, nil
}

func (s *service) run(ctx context.Context, txType enums.WalletTransactionType, input MutationInput) (*Result, error) {
	input = input.normalized()
	if err := s.validate(input); err != nil {
		return nil, err
	}
	ctx = s.logContext(ctx, txType, input)

	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var applyErr error
		result, applyErr = s.apply(ctx, s.repo.WithTx(tx), txType, input)
		return applyErr
	})
	if err != nil && input.ReferenceID != "" && db.IsUniqueViolation(err, referenceConstraint) {
		// A concurrent request inserted the same reference first; return its result.
		s.logg.Warn(ctx, "wallet reference raced, replaying committed transaction")
		result, err = s.replayCommitted(ctx, txType, input)
	}
	if err != nil {
		s.record(ctx, txType, nil, err)
		return nil, err
	}
	s.record(ctx, txType, result, nil)
	return result, nil
}

func (s *service) apply(ctx context.Context, repo Repository, txType enums.WalletTransactionType, input MutationInput) (*Result, error) {
	if input.ReferenceID != "" {
		existing, err := repo.FindByReference(ctx, input.ReferenceID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup wallet reference")
		}
		if existing != nil {
			return replay(existing, txType, input)
		}
	}

	wallet, err := repo.LockWallet(ctx, input.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock wallet")
	}
	if wallet == nil {
		if txType == enums.WalletTransactionTypeDebit {
			return nil, insufficientFunds(decimal.Zero, input.Amount)
		}
		if err := repo.EnsureWallet(ctx, input.UserID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create wallet")
		}
		if wallet, err = repo.LockWallet(ctx, input.UserID); err != nil || wallet == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock new wallet")
		}
	}

	balance := wallet.Balance
	switch txType {
	case enums.WalletTransactionTypeCredit:
		balance = balance.Add(input.Amount)
	case enums.WalletTransactionTypeDebit:
		if input.Amount.GreaterThan(balance) {
			return nil, insufficientFunds(balance, input.Amount)
		}
		balance = balance.Sub(input.Amount)
	}

	seq := wallet.LastSeq + 1
	if err := repo.UpdateBalance(ctx, input.UserID, balance, seq); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update wallet balance")
	}

	txn := &models.WalletTransaction{
		UserID:       input.UserID,
		Seq:          seq,
		Type:         txType,
		Amount:       input.Amount,
		BalanceAfter: balance,
		Description:  input.Description,
		CreatedAt:    s.now().UTC(),
	}
	if input.ReferenceID != "" {
		ref := input.ReferenceID
		txn.ReferenceID = &ref
	}
	if input.ReferenceType != "" {
		refType := input.ReferenceType
		txn.ReferenceType = &refType
	}
	if err := repo.CreateTransaction(ctx, txn); err != nil {
		if db.IsUniqueViolation(err, referenceConstraint) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append wallet transaction")
	}

	return &Result{Transaction: txn, Balance: balance}, nil
}

func (s *service) replayCommitted(ctx context.Context, txType enums.WalletTransactionType, input MutationInput) (*Result, error) {
	existing, err := s.repo.FindByReference(ctx, input.ReferenceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup wallet reference")
	}
	if existing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "wallet reference conflict, retry the request")
	}
	return replay(existing, txType, input)
}

// replay returns the prior result for a reference, refusing to reuse it for a
// different user or direction.
func replay(existing *models.WalletTransaction, txType enums.WalletTransactionType, input MutationInput) (*Result, error) {
	if existing.UserID != input.UserID || existing.Type != txType {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "reference already used for a different wallet operation").
			WithDetails(map[string]any{"reference": input.ReferenceID})
	}
	return &Result{Transaction: existing, Balance: existing.BalanceAfter, Replayed: true}, nil
}

func (s *service) validate(input MutationInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if input.Amount.LessThan(s.minimum) {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("amount must be at least %s", s.minimum.String())).
			WithDetails(map[string]any{"minimum": s.minimum.String()})
	}
	if !input.Amount.Equal(input.Amount.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount supports at most two decimal places")
	}
	return nil
}

func (s *service) logContext(ctx context.Context, txType enums.WalletTransactionType, input MutationInput) context.Context {
	ctx = s.logg.WithUserID(ctx, input.UserID.String())
	if input.ReferenceID != "" {
		ctx = s.logg.WithReference(ctx, input.ReferenceID)
	}
	return s.logg.WithFields(ctx, map[string]any{
		"wallet_op": txType.String(),
		"amount":    input.Amount.String(),
	})
}

func (s *service) record(ctx context.Context, txType enums.WalletTransactionType, result *Result, err error) {
	switch {
	case err != nil && pkgerrors.Is(err, pkgerrors.CodeInsufficientFunds):
		s.metrics.IncWalletMutation(txType.String(), metrics.OutcomeRejected)
		s.logg.Warn(ctx, "wallet debit rejected: insufficient funds")
	case err != nil:
		s.metrics.IncWalletMutation(txType.String(), metrics.OutcomeFailed)
		s.logg.Error(ctx, "wallet mutation failed", err)
	case result.Replayed:
		s.metrics.IncWalletMutation(txType.String(), metrics.OutcomeReplayed)
		s.logg.Info(ctx, "wallet mutation replayed")
	default:
		s.metrics.IncWalletMutation(txType.String(), metrics.OutcomeApplied)
		s.logg.Info(s.logg.WithField(ctx, "balance_after", result.Balance.String()), "wallet mutation applied")
	}
}

func insufficientFunds(balance, amount decimal.Decimal) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient wallet balance").
		WithDetails(map[string]any{
			"balance": balance.String(),
			"amount":  amount.String(),
		})
}

func (s *service) Summary(ctx context.Context, userID uuid.UUID, params pagination.Params) (*Summary, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	wallet, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet")
	}
	balance := decimal.Zero
	if wallet != nil {
		balance = wallet.Balance
	}

	txns, err := s.repo.ListTransactions(ctx, userID, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list wallet transactions")
	}
	page := pagination.Trim(txns, params.Limit, func(t models.WalletTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})

	return &Summary{
		UserID:       userID,
		Balance:      balance,
		Transactions: page.Items,
		NextCursor:   page.NextCursor,
	}, nil
}

// Reconcile replays the full ledger for a user and compares it with the stored
// balance and each balance_after snapshot.
func (s *service) Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	wallet, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet")
	}
	txns, err := s.repo.AllTransactions(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet ledger")
	}

	out := &Reconciliation{
		UserID:           userID,
		StoredBalance:    decimal.Zero,
		TransactionCount: len(txns),
	}
	if wallet != nil {
		out.StoredBalance = wallet.Balance
	}

	running := decimal.Zero
	for _, txn := range txns {
		if txn.Type == enums.WalletTransactionTypeDebit {
			running = running.Sub(txn.Amount)
		} else {
			running = running.Add(txn.Amount)
		}
		if !running.Equal(txn.BalanceAfter) {
			out.SnapshotMismatches = append(out.SnapshotMismatches, txn.ID)
		}
	}
	out.LedgerBalance = running
	out.Consistent = running.Equal(out.StoredBalance) && len(out.SnapshotMismatches) == 0

	if !out.Consistent {
		ctx = s.logg.WithUserID(ctx, userID.String())
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"stored_balance": out.StoredBalance.String(),
			"ledger_balance": out.LedgerBalance.String(),
			"mismatches":     len(out.SnapshotMismatches),
		}), "wallet ledger does not reconcile")
	}
	return out, nil
}

func (in MutationInput) normalized() MutationInput {
	in.Description = strings.TrimSpace(in.Description)
	in.ReferenceID = strings.TrimSpace(in.ReferenceID)
	in.ReferenceType = strings.TrimSpace(in.ReferenceType)
	return in
}
