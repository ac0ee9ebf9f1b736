package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/deliverydesk-backend/internal/wallet"
	"github.com/angelmondragon/deliverydesk-backend/pkg/db"
	"github.com/angelmondragon/deliverydesk-backend/pkg/db/models"
	"github.com/angelmondragon/deliverydesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/deliverydesk-backend/pkg/errors"
	"github.com/angelmondragon/deliverydesk-backend/pkg/logger"
	"github.com/angelmondragon/deliverydesk-backend/pkg/metrics"
	"github.com/angelmondragon/deliverydesk-backend/pkg/paystack"
)

const providerName = "paystack"

// Gateway is the payment provider surface used by the adapter.
type Gateway interface {
	InitializeTransaction(ctx context.Context, params paystack.InitializeParams) (*paystack.Initialization, error)
	VerifyTransaction(ctx context.Context, reference string) (*paystack.Transaction, error)
	FetchCustomer(ctx context.Context, emailOrCode string) (*paystack.Customer, error)
	CreateCustomer(ctx context.Context, params paystack.CustomerParams) (*paystack.Customer, error)
	CreateDedicatedAccount(ctx context.Context, customerCode, preferredBank string) (*paystack.DedicatedAccount, error)
}

// WalletCrediter applies idempotent wallet credits.
type WalletCrediter interface {
	Credit(ctx context.Context, input wallet.MutationInput) (*wallet.Result, error)
}

// ProfileReader loads the caller profile used for provider customer records.
type ProfileReader interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

// Service is the payment gateway adapter.
type Service interface {
	Initialize(ctx context.Context, input InitializeInput) (*Initialization, error)
	Verify(ctx context.Context, input VerifyInput) (*Verification, error)
	HandleEvent(ctx context.Context, event *paystack.Event) error
	VirtualAccount(ctx context.Context, userID uuid.UUID) (*VirtualAccountResult, error)
}

// ServiceParams groups the adapter dependencies.
type ServiceParams struct {
	Gateway       Gateway
	Wallet        WalletCrediter
	Accounts      AccountRepository
	Profiles      ProfileReader
	Logger        *logger.Logger
	Metrics       *metrics.SettlementMetrics
	CallbackURL   string
	PreferredBank string
	// WalletMinimum rejects wallet top-ups the ledger would refuse to credit.
	WalletMinimum decimal.Decimal
	NewReference  func() string
}

type service struct {
	gateway       Gateway
	wallet        WalletCrediter
	accounts      AccountRepository
	profiles      ProfileReader
	logg          *logger.Logger
	metrics       *metrics.SettlementMetrics
	callbackURL   string
	preferredBank string
	walletMinimum decimal.Decimal
	newReference  func() string
}

// NewService wires the payment adapter.
func NewService(params ServiceParams) (Service, error) {
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Wallet == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if params.Accounts == nil {
		return nil, fmt.Errorf("virtual account repository required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profile reader required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	newReference := params.NewReference
	if newReference == nil {
		newReference = uuid.NewString
	}
	return &service{
		gateway:       params.Gateway,
		wallet:        params.Wallet,
		accounts:      params.Accounts,
		profiles:      params.Profiles,
		logg:          params.Logger,
		metrics:       params.Metrics,
		callbackURL:   strings.TrimSpace(params.CallbackURL),
		preferredBank: strings.TrimSpace(params.PreferredBank),
		walletMinimum: params.WalletMinimum,
		newReference:  newReference,
	}, nil
}

func (s *service) Initialize(ctx context.Context, input InitializeInput) (*Initialization, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller required")
	}
	email := strings.TrimSpace(input.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	mode := input.Mode
	if mode == "" {
		mode = enums.PaymentModeWallet
	}
	if !mode.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment type")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if !input.Amount.Equal(input.Amount.Round(2)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount supports at most two decimal places")
	}
	if mode == enums.PaymentModeWallet && input.Amount.LessThan(s.walletMinimum) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("amount must be at least %s", s.walletMinimum.String())).
			WithDetails(map[string]any{"minimum": s.walletMinimum.String()})
	}

	reference := s.newReference()
	metadata := map[string]string{
		MetadataUserID: input.UserID.String(),
		MetadataMode:   mode.String(),
	}
	if input.OrderID != nil {
		metadata[MetadataOrderID] = input.OrderID.String()
	}

	ctx = s.logg.WithUserID(ctx, input.UserID.String())
	ctx = s.logg.WithReference(ctx, reference)
	ctx = s.logg.WithFields(ctx, map[string]any{"amount": input.Amount.String(), "payment_mode": mode.String()})

	start := time.Now()
	init, err := s.gateway.InitializeTransaction(ctx, paystack.InitializeParams{
		Email:       email,
		Amount:      input.Amount,
		Reference:   reference,
		CallbackURL: s.callbackURL,
		Metadata:    metadata,
	})
	s.metrics.ObserveProviderCall(providerName, "initialize", time.Since(start))
	if err != nil {
		s.logg.Error(ctx, "payment initialization failed", err)
		return nil, err
	}

	s.logg.Info(ctx, "payment initialized")
	if init.Reference != "" {
		reference = init.Reference
	}
	return &Initialization{
		AuthorizationURL: init.AuthorizationURL,
		AccessCode:       init.AccessCode,
		Reference:        reference,
		Mode:             mode,
	}, nil
}

// Verify asks the provider for the state of a reference and, in wallet mode,
// credits the embedded user exactly once per reference.
func (s *service) Verify(ctx context.Context, input VerifyInput) (*Verification, error) {
	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	mode := input.Mode
	if mode == "" {
		mode = enums.PaymentModeWallet
	}
	if !mode.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "type must be wallet or order")
	}
	ctx = s.logg.WithReference(ctx, reference)
	ctx = s.logg.WithField(ctx, "payment_mode", mode.String())

	start := time.Now()
	txn, err := s.gateway.VerifyTransaction(ctx, reference)
	s.metrics.ObserveProviderCall(providerName, "verify", time.Since(start))
	if err != nil {
		s.metrics.IncPaymentVerification(mode.String(), metrics.OutcomeFailed)
		s.logg.Error(ctx, "payment verification request failed", err)
		return nil, err
	}

	ownerID, err := embeddedUser(txn.Metadata)
	if err != nil && mode == enums.PaymentModeWallet {
		return nil, err
	}
	if ownerID != nil {
		ctx = s.logg.WithUserID(ctx, ownerID.String())
	}
	if input.CallerID != nil && (ownerID == nil || *ownerID != *input.CallerID) {
		s.logg.Warn(ctx, "payment verification by non-owner rejected")
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment reference belongs to another user")
	}
	if embedded := txn.Metadata[MetadataMode]; embedded != "" && embedded != mode.String() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("payment was initialized for %s mode", embedded)).
			WithDetails(map[string]any{"mode": embedded})
	}

	out := &Verification{
		Status:    mapStatus(txn.Status),
		Amount:    txn.Amount,
		Reference: reference,
		Mode:      mode,
		UserID:    ownerID,
	}
	out.Success = out.Status == StatusSuccess
	ctx = s.logg.WithFields(ctx, map[string]any{
		"amount":          txn.Amount.String(),
		"provider_status": txn.Status,
	})

	if !out.Success || mode != enums.PaymentModeWallet {
		s.metrics.IncPaymentVerification(mode.String(), string(out.Status))
		s.logg.Info(ctx, "payment verified without ledger change")
		return out, nil
	}

	result, err := s.wallet.Credit(ctx, wallet.MutationInput{
		UserID:        *ownerID,
		Amount:        txn.Amount,
		Description:   "Wallet funding via Paystack",
		ReferenceID:   reference,
		ReferenceType: wallet.ReferenceTypeGateway,
	})
	if err != nil {
		s.metrics.IncPaymentVerification(mode.String(), metrics.OutcomeFailed)
		s.logg.Error(ctx, "wallet credit after successful payment failed", err)
		return nil, err
	}
	out.Credited = true
	out.Replayed = result.Replayed
	balance := result.Balance
	out.Balance = &balance
	s.metrics.IncPaymentVerification(mode.String(), string(out.Status))
	return out, nil
}

// HandleEvent processes a signed webhook delivery. Only charge.success has an
// effect. Checkout charges run the same verify path as client polling;
// charges without an embedded user are transfers into a dedicated account.
func (s *service) HandleEvent(ctx context.Context, event *paystack.Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event required")
	}
	ctx = s.logg.WithField(ctx, "webhook_event", event.Name)
	if event.Name != paystack.EventChargeSuccess {
		s.logg.Info(ctx, "webhook event ignored")
		return nil
	}
	if event.Reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "charge event missing reference")
	}
	if strings.TrimSpace(event.Metadata[MetadataUserID]) == "" {
		return s.creditDeposit(ctx, event)
	}

	mode := enums.PaymentModeWallet
	if raw := event.Metadata[MetadataMode]; raw != "" {
		parsed, err := enums.ParsePaymentMode(raw)
		if err != nil {
			s.logg.Warn(s.logg.WithReference(ctx, event.Reference), "webhook carries unknown payment type")
			return nil
		}
		mode = parsed
	}

	_, err := s.Verify(ctx, VerifyInput{Reference: event.Reference, Mode: mode})
	return err
}

// creditDeposit credits a transfer into a dedicated account to the account
// owner, keyed by the provider reference. Charges that match no account, are
// not successful, or fall below the wallet minimum are acknowledged without a
// ledger change so the provider stops retrying them.
func (s *service) creditDeposit(ctx context.Context, event *paystack.Event) error {
	ctx = s.logg.WithReference(ctx, event.Reference)
	code := strings.TrimSpace(event.CustomerCode)
	if code == "" {
		s.logg.Warn(ctx, "charge without user or customer ignored")
		return nil
	}
	ctx = s.logg.WithField(ctx, "customer_code", code)

	account, err := s.accounts.FindByCustomerCode(ctx, code)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load virtual account")
	}
	if account == nil {
		s.logg.Warn(ctx, "charge for customer without virtual account ignored")
		return nil
	}
	ctx = s.logg.WithUserID(ctx, account.UserID.String())

	mode := enums.PaymentModeWallet.String()
	start := time.Now()
	txn, err := s.gateway.VerifyTransaction(ctx, event.Reference)
	s.metrics.ObserveProviderCall(providerName, "verify", time.Since(start))
	if err != nil {
		s.metrics.IncPaymentVerification(mode, metrics.OutcomeFailed)
		s.logg.Error(ctx, "deposit verification request failed", err)
		return err
	}
	if txn.CustomerCode != "" && txn.CustomerCode != code {
		s.metrics.IncPaymentVerification(mode, metrics.OutcomeRejected)
		s.logg.Warn(s.logg.WithField(ctx, "verified_customer", txn.CustomerCode), "deposit customer mismatch ignored")
		return nil
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"amount": txn.Amount.String(), "provider_status": txn.Status})
	if status := mapStatus(txn.Status); status != StatusSuccess {
		s.metrics.IncPaymentVerification(mode, string(status))
		s.logg.Info(ctx, "deposit not successful, wallet unchanged")
		return nil
	}

	result, err := s.wallet.Credit(ctx, wallet.MutationInput{
		UserID:        account.UserID,
		Amount:        txn.Amount,
		Description:   "Wallet funding via bank transfer",
		ReferenceID:   event.Reference,
		ReferenceType: wallet.ReferenceTypeGateway,
	})
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeValidation) {
			s.metrics.IncPaymentVerification(mode, metrics.OutcomeRejected)
			s.logg.Warn(ctx, "deposit cannot be credited, left for manual review")
			return nil
		}
		s.metrics.IncPaymentVerification(mode, metrics.OutcomeFailed)
		s.logg.Error(ctx, "wallet credit for deposit failed", err)
		return err
	}
	s.metrics.IncPaymentVerification(mode, string(StatusSuccess))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"replayed": result.Replayed,
		"balance":  result.Balance.String(),
	}), "deposit credited")
	return nil
}

// VirtualAccount returns the caller's dedicated account, issuing one with the
// provider on first use.
func (s *service) VirtualAccount(ctx context.Context, userID uuid.UUID) (*VirtualAccountResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller required")
	}
	ctx = s.logg.WithUserID(ctx, userID.String())

	existing, err := s.accounts.FindByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load virtual account")
	}
	if existing != nil {
		return &VirtualAccountResult{Account: existing}, nil
	}

	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(profile.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "profile email is required for a virtual account")
	}

	customer, err := s.customerFor(ctx, profile)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	dedicated, err := s.gateway.CreateDedicatedAccount(ctx, customer.CustomerCode, s.preferredBank)
	s.metrics.ObserveProviderCall(providerName, "dedicated_account", time.Since(start))
	if err != nil {
		s.logg.Error(ctx, "dedicated account request failed", err)
		return nil, err
	}

	account := &models.VirtualAccount{
		UserID:        userID,
		CustomerCode:  customer.CustomerCode,
		AccountNumber: dedicated.AccountNumber,
		AccountName:   dedicated.AccountName,
		BankName:      dedicated.Bank.Name,
		BankCode:      dedicated.Bank.Slug,
		Assigned:      dedicated.Assigned,
		Active:        dedicated.Active,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if db.IsUniqueViolation(err, "") {
			// A concurrent request persisted first.
			winner, findErr := s.accounts.FindByUser(ctx, userID)
			if findErr == nil && winner != nil {
				return &VirtualAccountResult{Account: winner}, nil
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist virtual account")
	}

	s.logg.Info(s.logg.WithField(ctx, "customer_code", customer.CustomerCode), "virtual account created")
	return &VirtualAccountResult{Account: account, Created: true}, nil
}

func (s *service) customerFor(ctx context.Context, profile *models.Profile) (*paystack.Customer, error) {
	customer, err := s.gateway.FetchCustomer(ctx, profile.Email)
	if err == nil && customer.CustomerCode != "" {
		return customer, nil
	}
	if err != nil && !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		return nil, err
	}

	first, last := splitName(profile.FullName)
	params := paystack.CustomerParams{Email: profile.Email, FirstName: first, LastName: last}
	if profile.Phone != nil {
		params.Phone = *profile.Phone
	}
	return s.gateway.CreateCustomer(ctx, params)
}

func embeddedUser(metadata map[string]string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(metadata[MetadataUserID])
	if raw == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment metadata missing user")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payment metadata has invalid user")
	}
	return &id, nil
}

func mapStatus(provider string) Status {
	switch strings.ToLower(provider) {
	case paystack.StatusSuccess:
		return StatusSuccess
	case paystack.StatusFailed, paystack.StatusAbandoned, paystack.StatusReversed:
		return StatusFailed
	default:
		return StatusPending
	}
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
