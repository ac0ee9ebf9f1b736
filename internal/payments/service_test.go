package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/deliverydesk-backend/internal/wallet"
	"github.com/angelmondragon/deliverydesk-backend/pkg/db"
	"github.com/angelmondragon/deliverydesk-backend/pkg/db/models"
	"github.com/angelmondragon/deliverydesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/deliverydesk-backend/pkg/errors"
	"github.com/angelmondragon/deliverydesk-backend/pkg/logger"
	"github.com/angelmondragon/deliverydesk-backend/pkg/paystack"
)

type stubGateway struct {
	mu sync.Mutex

	initParams   paystack.InitializeParams
	transactions map[string]*paystack.Transaction
	customer     *paystack.Customer
	fetchErr     error
	created      []paystack.CustomerParams
	dedicated    *paystack.DedicatedAccount
	accountCalls int
}

func (g *stubGateway) InitializeTransaction(_ context.Context, params paystack.InitializeParams) (*paystack.Initialization, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initParams = params
	return &paystack.Initialization{
		AuthorizationURL: "https://checkout.paystack.com/abc",
		AccessCode:       "abc",
		Reference:        params.Reference,
	}, nil
}

func (g *stubGateway) VerifyTransaction(_ context.Context, reference string) (*paystack.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	txn, ok := g.transactions[reference]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Transaction reference not found")
	}
	copied := *txn
	return &copied, nil
}

func (g *stubGateway) FetchCustomer(context.Context, string) (*paystack.Customer, error) {
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	return g.customer, nil
}

func (g *stubGateway) CreateCustomer(_ context.Context, params paystack.CustomerParams) (*paystack.Customer, error) {
	g.created = append(g.created, params)
	return &paystack.Customer{CustomerCode: "CUS_new", Email: params.Email}, nil
}

func (g *stubGateway) CreateDedicatedAccount(context.Context, string, string) (*paystack.DedicatedAccount, error) {
	g.accountCalls++
	return g.dedicated, nil
}

type stubProfiles struct {
	profile *models.Profile
}

func (s stubProfiles) Get(context.Context, uuid.UUID) (*models.Profile, error) {
	if s.profile == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
	}
	return s.profile, nil
}

type fixture struct {
	conn    *gorm.DB
	gateway *stubGateway
	svc     Service
}

func newFixture(t *testing.T, profile *models.Profile) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&models.Wallet{}, &models.WalletTransaction{}, &models.VirtualAccount{}))

	walletSvc, err := wallet.NewService(wallet.ServiceParams{
		Repo:       wallet.NewRepository(conn),
		Transactor: db.Wrap(conn),
		Minimum:    decimal.NewFromInt(100),
		Logger:     logger.Nop(),
	})
	require.NoError(t, err)

	gateway := &stubGateway{transactions: map[string]*paystack.Transaction{}}
	svc, err := NewService(ServiceParams{
		Gateway:       gateway,
		Wallet:        walletSvc,
		Accounts:      NewAccountRepository(conn),
		Profiles:      stubProfiles{profile: profile},
		Logger:        logger.Nop(),
		CallbackURL:   "https://app.example.com/paid",
		WalletMinimum: decimal.NewFromInt(100),
		NewReference:  func() string { return "ref-fixed" },
	})
	require.NoError(t, err)
	return &fixture{conn: conn, gateway: gateway, svc: svc}
}

func (f *fixture) balance(t *testing.T, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	var w models.Wallet
	if err := f.conn.Where("user_id = ?", userID).First(&w).Error; err != nil {
		return decimal.Zero
	}
	return w.Balance
}

func (f *fixture) seedTransaction(reference, status string, userID uuid.UUID, amount string, mode enums.PaymentMode) {
	f.gateway.transactions[reference] = &paystack.Transaction{
		Reference: reference,
		Status:    status,
		Amount:    decimal.RequireFromString(amount),
		Metadata:  map[string]string{MetadataUserID: userID.String(), MetadataMode: mode.String()},
	}
}

func TestInitializeEmbedsUserAndMode(t *testing.T) {
	f := newFixture(t, nil)
	userID := uuid.New()

	init, err := f.svc.Initialize(context.Background(), InitializeInput{UserID: userID, Email: "ada@example.com", Amount: decimal.NewFromInt(2500)})
	require.NoError(t, err)
	require.Equal(t, "ref-fixed", init.Reference)
	require.Equal(t, enums.PaymentModeWallet, init.Mode)
	require.Equal(t, userID.String(), f.gateway.initParams.Metadata[MetadataUserID])
	require.Equal(t, "wallet", f.gateway.initParams.Metadata[MetadataMode])
	require.Equal(t, "https://app.example.com/paid", f.gateway.initParams.CallbackURL)

	_, err = f.svc.Initialize(context.Background(), InitializeInput{UserID: userID, Email: "ada@example.com", Amount: decimal.NewFromInt(50)})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)

	_, err = f.svc.Initialize(context.Background(), InitializeInput{UserID: userID, Email: "ada@example.com", Amount: decimal.NewFromInt(50), Mode: enums.PaymentModeOrder})
	require.NoError(t, err, "order payments are not bound by the wallet minimum")

	_, err = f.svc.Initialize(context.Background(), InitializeInput{UserID: userID, Amount: decimal.NewFromInt(500)})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestVerifyWalletModeCreditsOnce(t *testing.T) {
	f := newFixture(t, nil)
	userID := uuid.New()
	f.seedTransaction("ref-1", paystack.StatusSuccess, userID, "2500", enums.PaymentModeWallet)

	var wg sync.WaitGroup
	results := make([]*Verification, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Verify(context.Background(), VerifyInput{Reference: "ref-1", Mode: enums.PaymentModeWallet, CallerID: &userID})
		}(i)
	}
	wg.Wait()

	replays := 0
	for i := range results {
		require.NoError(t, errs[i])
		require.True(t, results[i].Success)
		require.True(t, results[i].Credited)
		require.True(t, results[i].Amount.Equal(decimal.NewFromInt(2500)))
		if results[i].Replayed {
			replays++
		}
	}
	require.Equal(t, 1, replays)
	require.True(t, f.balance(t, userID).Equal(decimal.NewFromInt(2500)))
}

func TestVerifyStatusMapping(t *testing.T) {
	f := newFixture(t, nil)
	userID := uuid.New()
	cases := map[string]Status{
		paystack.StatusFailed:    StatusFailed,
		paystack.StatusAbandoned: StatusFailed,
		paystack.StatusReversed:  StatusFailed,
		paystack.StatusOngoing:   StatusPending,
		"queued":                 StatusPending,
	}
	for providerStatus, expected := range cases {
		ref := "ref-" + providerStatus
		f.seedTransaction(ref, providerStatus, userID, "1000", enums.PaymentModeWallet)
		out, err := f.svc.Verify(context.Background(), VerifyInput{Reference: ref, CallerID: &userID})
		require.NoError(t, err)
		require.Equal(t, expected, out.Status, providerStatus)
		require.False(t, out.Success)
		require.False(t, out.Credited)
	}
	require.True(t, f.balance(t, userID).IsZero())
}

func TestVerifyOrderModeNeverTouchesWallet(t *testing.T) {
	f := newFixture(t, nil)
	userID := uuid.New()
	f.seedTransaction("ref-order", paystack.StatusSuccess, userID, "4200", enums.PaymentModeOrder)

	out, err := f.svc.Verify(context.Background(), VerifyInput{Reference: "ref-order", Mode: enums.PaymentModeOrder, CallerID: &userID})
	require.NoError(t, err)
	require.True(t, out.Success)
	require.False(t, out.Credited)
	require.Equal(t, enums.PaymentModeOrder, out.Mode)
	require.True(t, f.balance(t, userID).IsZero())

	_, err = f.svc.Verify(context.Background(), VerifyInput{Reference: "ref-order", Mode: enums.PaymentModeWallet, CallerID: &userID})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict), "order payments must not be credited to the wallet, got %v", err)
}

func TestVerifyRejectsOtherUsers(t *testing.T) {
	f := newFixture(t, nil)
	owner := uuid.New()
	intruder := uuid.New()
	f.seedTransaction("ref-2", paystack.StatusSuccess, owner, "900", enums.PaymentModeWallet)

	_, err := f.svc.Verify(context.Background(), VerifyInput{Reference: "ref-2", CallerID: &intruder})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden), "got %v", err)
	require.True(t, f.balance(t, owner).IsZero())

	_, err = f.svc.Verify(context.Background(), VerifyInput{Reference: "unknown", CallerID: &owner})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "got %v", err)

	_, err = f.svc.Verify(context.Background(), VerifyInput{Reference: "ref-2", Mode: "card"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestHandleEventCreditsThroughVerify(t *testing.T) {
	f := newFixture(t, nil)
	userID := uuid.New()
	f.seedTransaction("ref-hook", paystack.StatusSuccess, userID, "1500", enums.PaymentModeWallet)

	event := &paystack.Event{
		Name:      paystack.EventChargeSuccess,
		Reference: "ref-hook",
		Metadata:  map[string]string{MetadataUserID: userID.String(), MetadataMode: "wallet"},
	}
	require.NoError(t, f.svc.HandleEvent(context.Background(), event))
	require.NoError(t, f.svc.HandleEvent(context.Background(), event))
	require.True(t, f.balance(t, userID).Equal(decimal.NewFromInt(1500)))

	out, err := f.svc.Verify(context.Background(), VerifyInput{Reference: "ref-hook", CallerID: &userID})
	require.NoError(t, err)
	require.True(t, out.Replayed)

	require.NoError(t, f.svc.HandleEvent(context.Background(), &paystack.Event{Name: "transfer.success", Reference: "x"}))
}

func (f *fixture) seedAccount(t *testing.T, userID uuid.UUID, customerCode string) {
	t.Helper()
	require.NoError(t, f.conn.Create(&models.VirtualAccount{
		UserID:        userID,
		CustomerCode:  customerCode,
		AccountNumber: "9930000001",
		AccountName:   "DeliveryDesk/Ada",
		BankName:      "Wema Bank",
	}).Error)
}

func (f *fixture) seedDeposit(reference, status, customerCode, amount string) {
	f.gateway.transactions[reference] = &paystack.Transaction{
		Reference:    reference,
		Status:       status,
		Amount:       decimal.RequireFromString(amount),
		CustomerCode: customerCode,
		Metadata:     map[string]string{},
	}
}

func TestHandleEventCreditsTransferIntoVirtualAccount(t *testing.T) {
	f := newFixture(t, nil)
	userID := uuid.New()
	f.seedAccount(t, userID, "CUS_ada")
	f.seedDeposit("T_bank_1", paystack.StatusSuccess, "CUS_ada", "5000")

	event := &paystack.Event{Name: paystack.EventChargeSuccess, Reference: "T_bank_1", CustomerCode: "CUS_ada", Metadata: map[string]string{}}
	require.NoError(t, f.svc.HandleEvent(context.Background(), event))
	require.NoError(t, f.svc.HandleEvent(context.Background(), event))
	require.True(t, f.balance(t, userID).Equal(decimal.NewFromInt(5000)))

	var txn models.WalletTransaction
	require.NoError(t, f.conn.Where("reference_id = ?", "T_bank_1").First(&txn).Error)
	require.Equal(t, userID, txn.UserID)
	require.Equal(t, wallet.ReferenceTypeGateway, *txn.ReferenceType)
}

func TestHandleEventAcknowledgesUnmatchedTransfers(t *testing.T) {
	f := newFixture(t, nil)
	userID := uuid.New()
	f.seedAccount(t, userID, "CUS_ada")
	f.seedDeposit("T_small", paystack.StatusSuccess, "CUS_ada", "50")
	f.seedDeposit("T_failed", paystack.StatusFailed, "CUS_ada", "5000")
	f.seedDeposit("T_other", paystack.StatusSuccess, "CUS_someone", "5000")
	ctx := context.Background()

	events := []*paystack.Event{
		{Name: paystack.EventChargeSuccess, Reference: "T_unknown", CustomerCode: "CUS_nobody"},
		{Name: paystack.EventChargeSuccess, Reference: "T_anonymous"},
		{Name: paystack.EventChargeSuccess, Reference: "T_small", CustomerCode: "CUS_ada"},
		{Name: paystack.EventChargeSuccess, Reference: "T_failed", CustomerCode: "CUS_ada"},
		{Name: paystack.EventChargeSuccess, Reference: "T_other", CustomerCode: "CUS_ada"},
	}
	for _, event := range events {
		require.NoError(t, f.svc.HandleEvent(ctx, event), event.Reference)
	}
	require.True(t, f.balance(t, userID).IsZero())

	err := f.svc.HandleEvent(ctx, &paystack.Event{Name: paystack.EventChargeSuccess, Reference: "T_missing", CustomerCode: "CUS_ada"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "provider errors are retried, got %v", err)
}

func TestVirtualAccountIsCreatedOnce(t *testing.T) {
	userID := uuid.New()
	profile := &models.Profile{ID: userID, FullName: "Ada Lovelace Byron", Email: "ada@example.com"}
	f := newFixture(t, profile)
	f.gateway.fetchErr = pkgerrors.New(pkgerrors.CodeNotFound, "Customer not found")
	f.gateway.dedicated = &paystack.DedicatedAccount{AccountName: "DeliveryDesk/Ada", AccountNumber: "9930000000", Assigned: true, Active: true}
	f.gateway.dedicated.Bank.Name = "Wema Bank"
	f.gateway.dedicated.Bank.Slug = "wema-bank"

	first, err := f.svc.VirtualAccount(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, first.Created)
	require.Equal(t, "9930000000", first.Account.AccountNumber)
	require.Equal(t, "CUS_new", first.Account.CustomerCode)
	require.Len(t, f.gateway.created, 1)
	require.Equal(t, "Ada", f.gateway.created[0].FirstName)
	require.Equal(t, "Lovelace Byron", f.gateway.created[0].LastName)

	second, err := f.svc.VirtualAccount(context.Background(), userID)
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.Account.ID, second.Account.ID)
	require.Equal(t, 1, f.gateway.accountCalls)
}

func TestVirtualAccountReusesExistingCustomer(t *testing.T) {
	userID := uuid.New()
	f := newFixture(t, &models.Profile{ID: userID, FullName: "Ada", Email: "ada@example.com"})
	f.gateway.customer = &paystack.Customer{CustomerCode: "CUS_existing"}
	f.gateway.dedicated = &paystack.DedicatedAccount{AccountNumber: "1", AccountName: "n"}

	out, err := f.svc.VirtualAccount(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, "CUS_existing", out.Account.CustomerCode)
	require.Empty(t, f.gateway.created)
}

func TestVirtualAccountPropagatesProviderFailure(t *testing.T) {
	userID := uuid.New()
	f := newFixture(t, &models.Profile{ID: userID, Email: "ada@example.com"})
	f.gateway.fetchErr = pkgerrors.Wrap(pkgerrors.CodeUpstream, errors.New("503"), "provider down")

	_, err := f.svc.VirtualAccount(context.Background(), userID)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeUpstream), "got %v", err)

	var count int64
	require.NoError(t, f.conn.Model(&models.VirtualAccount{}).Count(&count).Error)
	require.Zero(t, count)
}
