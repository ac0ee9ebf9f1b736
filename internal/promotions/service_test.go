package promotions

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/deliverydesk-backend/pkg/db/models"
	"github.com/angelmondragon/deliverydesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/deliverydesk-backend/pkg/errors"
	"github.com/angelmondragon/deliverydesk-backend/pkg/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&models.Promotion{}))
	return conn
}

func newTestService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(conn), logger.Nop(), nil, func() time.Time { return evalNow })
	require.NoError(t, err)
	return svc
}

func createSave10(t *testing.T, svc Service, limit int) *models.Promotion {
	t.Helper()
	p, err := svc.Create(context.Background(), CreateInput{
		Code:              "save10",
		DiscountType:      enums.DiscountTypePercentage,
		DiscountValue:     dec("10"),
		MinOrderAmount:    dec("1000"),
		MaxDiscountAmount: dec("100"),
		ValidFrom:         evalNow.Add(-time.Hour),
		ValidUntil:        evalNow.Add(time.Hour),
		UsageLimit:        limit,
	})
	require.NoError(t, err)
	return p
}

func TestEvaluateIsCaseInsensitive(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	p := createSave10(t, svc, 0)
	require.Equal(t, "SAVE10", p.Code)

	eval, err := svc.Evaluate(context.Background(), EvaluateInput{Code: " Save10", Subtotal: dec("2000"), Fee: dec("1500")})
	require.NoError(t, err)
	require.Equal(t, p.ID, eval.PromotionID)
	require.True(t, eval.Discount.Equal(dec("100")))

	_, err = svc.Evaluate(context.Background(), EvaluateInput{Code: "NOPE", Subtotal: dec("2000"), Fee: dec("1500")})
	require.Equal(t, ReasonNotFound, ReasonOf(err))

	_, err = svc.Evaluate(context.Background(), EvaluateInput{Code: "SAVE10", Subtotal: dec("500"), Fee: dec("1500")})
	require.Equal(t, ReasonBelowMinimum, ReasonOf(err))
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	createSave10(t, svc, 0)

	_, err := svc.Create(context.Background(), CreateInput{
		Code:          "SAVE10",
		DiscountType:  enums.DiscountTypeFixedAmount,
		DiscountValue: dec("50"),
		ValidFrom:     evalNow,
		ValidUntil:    evalNow.Add(time.Hour),
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict), "got %v", err)
}

func TestCreateValidation(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)

	cases := []CreateInput{
		{Code: "", DiscountType: enums.DiscountTypeFixedAmount, DiscountValue: dec("1"), ValidFrom: evalNow, ValidUntil: evalNow},
		{Code: "A", DiscountType: "bogus", DiscountValue: dec("1"), ValidFrom: evalNow, ValidUntil: evalNow},
		{Code: "B", DiscountType: enums.DiscountTypePercentage, DiscountValue: dec("101"), ValidFrom: evalNow, ValidUntil: evalNow},
		{Code: "C", DiscountType: enums.DiscountTypeFixedAmount, DiscountValue: dec("0"), ValidFrom: evalNow, ValidUntil: evalNow},
		{Code: "D", DiscountType: enums.DiscountTypeFixedAmount, DiscountValue: dec("5"), ValidFrom: evalNow, ValidUntil: evalNow.Add(-time.Second)},
		{Code: "E", DiscountType: enums.DiscountTypeFixedAmount, DiscountValue: dec("5"), ValidFrom: evalNow, ValidUntil: evalNow, UsageLimit: -1},
	}
	for _, in := range cases {
		_, err := svc.Create(context.Background(), in)
		require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "input %+v got %v", in, err)
	}
}

func TestConcurrentRedemptionsNeverExceedLimit(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	p := createSave10(t, svc, 3)
	eval := &Evaluation{PromotionID: p.ID, Code: p.Code}

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exhausted int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := conn.Transaction(func(tx *gorm.DB) error {
				return svc.Redeem(context.Background(), tx, eval)
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case ReasonOf(err) == ReasonExhausted:
				exhausted++
			default:
				t.Errorf("unexpected redeem error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 3, succeeded)
	require.Equal(t, attempts-3, exhausted)

	var stored models.Promotion
	require.NoError(t, conn.First(&stored, "id = ?", p.ID).Error)
	require.Equal(t, 3, stored.UsageCount)
}

func TestRedeemRespectsDeactivation(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	p := createSave10(t, svc, 0)

	updated, err := svc.SetActive(context.Background(), p.ID, false)
	require.NoError(t, err)
	require.False(t, updated.IsActive)

	err = svc.Redeem(context.Background(), conn, &Evaluation{PromotionID: p.ID, Code: p.Code})
	require.Equal(t, ReasonInactive, ReasonOf(err))

	_, err = svc.SetActive(context.Background(), uuid.New(), true)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestListStaleFindsUnusableActivePromotions(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	seed := func(code string, until time.Time, limit, used int, active bool) {
		p := &models.Promotion{
			Code:          code,
			DiscountType:  enums.DiscountTypeFixedAmount,
			DiscountValue: dec("50"),
			ValidFrom:     evalNow.Add(-48 * time.Hour),
			ValidUntil:    until,
			UsageLimit:    limit,
			UsageCount:    used,
			IsActive:      true,
		}
		require.NoError(t, repo.Create(ctx, p))
		if !active {
			require.NoError(t, repo.SetActive(ctx, p.ID, false))
		}
	}
	seed("OLD", evalNow.Add(-time.Minute), 0, 0, true)
	seed("GONE", evalNow.Add(time.Hour), 2, 2, true)
	seed("LIVE", evalNow.Add(time.Hour), 5, 1, true)
	seed("OFF", evalNow.Add(-time.Hour), 0, 0, false)

	stale, err := repo.ListStale(ctx, evalNow)
	require.NoError(t, err)
	codes := make([]string, 0, len(stale))
	for _, p := range stale {
		codes = append(codes, p.Code)
	}
	require.Equal(t, []string{"OLD", "GONE"}, codes)
}
