package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/deliverydesk-backend/internal/wallet"
	"github.com/angelmondragon/deliverydesk-backend/pkg/db"
	"github.com/angelmondragon/deliverydesk-backend/pkg/db/models"
	"github.com/angelmondragon/deliverydesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/deliverydesk-backend/pkg/errors"
	"github.com/angelmondragon/deliverydesk-backend/pkg/logger"
	"github.com/angelmondragon/deliverydesk-backend/pkg/pagination"
)

// Service is the order lifecycle controller used by the admin surface and
// wallet checkout. Authorization happens before these methods are called.
type Service interface {
	List(ctx context.Context, filter ListFilter) (*AdminOrderList, error)
	Update(ctx context.Context, orderID uuid.UUID, input UpdateInput) (*UpdateResult, error)
	Delete(ctx context.Context, orderID uuid.UUID) error
	PayWithWallet(ctx context.Context, input WalletPaymentInput) (*WalletPaymentResult, error)
}

type service struct {
	repo      Repository
	tx        txRunner
	summaries SummaryLoader
	wallet    WalletDebiter
	logg      *logger.Logger
}

// NewService builds the order lifecycle controller.
func NewService(repo Repository, tx txRunner, summaries SummaryLoader, wallet WalletDebiter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if summaries == nil {
		return nil, fmt.Errorf("summary loader required")
	}
	if wallet == nil {
		return nil, fmt.Errorf("wallet debiter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, summaries: summaries, wallet: wallet, logg: logg}, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) (*AdminOrderList, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	if filter.PaymentStatus != "" && !filter.PaymentStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment_status filter")
	}
	cursor, err := pagination.ParseCursor(filter.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, filter, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	page := pagination.Trim(rows, filter.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})

	customerIDs := make([]uuid.UUID, 0, len(page.Items))
	vendorIDs := make([]uuid.UUID, 0, len(page.Items))
	for _, o := range page.Items {
		customerIDs = append(customerIDs, o.CustomerID)
		vendorIDs = append(vendorIDs, o.VendorID)
	}
	summaries, err := s.summaries.Summaries(ctx, customerIDs, vendorIDs)
	if err != nil {
		return nil, err
	}

	out := &AdminOrderList{Orders: make([]AdminOrder, 0, len(page.Items)), NextCursor: page.NextCursor}
	for _, o := range page.Items {
		item := AdminOrder{Order: o}
		if c, ok := summaries.Customers[o.CustomerID]; ok {
			item.Customer = &c
		}
		if v, ok := summaries.Vendors[o.VendorID]; ok {
			item.Vendor = &v
		}
		out.Orders = append(out.Orders, item)
	}
	return out, nil
}

// Update applies an admin status change. Any status may be set from any
// status; regressions and moves out of a terminal state are flagged and
// logged. Payment status can only move forward to completed.
func (s *service) Update(ctx context.Context, orderID uuid.UUID, input UpdateInput) (*UpdateResult, error) {
	status, paymentStatus, err := parseUpdate(input)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithField(ctx, "order_id", orderID.String())

	var result *UpdateResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}

		updates := map[string]any{}
		flagged := false
		if status != nil && *status != order.Status {
			flagged = IsFlaggedTransition(order.Status, *status)
			updates["status"] = *status
		}
		if paymentStatus != nil && *paymentStatus != order.PaymentStatus {
			if order.PaymentStatus == enums.PaymentStatusCompleted {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already completed and cannot be reverted").
					WithDetails(map[string]any{"payment_status": order.PaymentStatus.String()})
			}
			updates["payment_status"] = *paymentStatus
		}

		result = &UpdateResult{PreviousStatus: order.Status, TransitionFlagged: flagged}
		if len(updates) > 0 {
			if err := repo.UpdateFields(ctx, orderID, updates); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order")
			}
		}
		updated, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
		}
		result.Order = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := map[string]any{
		"previous_status": result.PreviousStatus.String(),
		"status":          result.Order.Status.String(),
		"payment_status":  result.Order.PaymentStatus.String(),
	}
	if result.TransitionFlagged {
		s.logg.Warn(s.logg.WithFields(ctx, fields), "order status moved against the lifecycle")
	} else {
		s.logg.Info(s.logg.WithFields(ctx, fields), "order updated")
	}
	return result, nil
}

func (s *service) Delete(ctx context.Context, orderID uuid.UUID) error {
	if err := s.repo.Delete(ctx, orderID); err != nil {
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete order")
	}
	s.logg.Warn(s.logg.WithField(ctx, "order_id", orderID.String()), "order deleted")
	return nil
}

// PayWithWallet debits the customer's wallet for the order total and marks
// the order paid in the same transaction. The ledger reference is derived
// from the order id so a retried checkout cannot debit twice.
func (s *service) PayWithWallet(ctx context.Context, input WalletPaymentInput) (*WalletPaymentResult, error) {
	if input.OrderID == uuid.Nil || input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and user id are required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id": input.OrderID.String(),
		"user_id":  input.UserID.String(),
	})

	var out *WalletPaymentResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, input.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if order == nil || order.CustomerID != input.UserID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.PaymentMethod != enums.PaymentMethodWallet {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not a wallet payment").
				WithDetails(map[string]any{"payment_method": order.PaymentMethod.String()})
		}
		if order.PaymentStatus == enums.PaymentStatusCompleted {
			out = &WalletPaymentResult{Order: order, AlreadyPaid: true}
			return nil
		}
		if order.Status == enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cancelled orders cannot be paid")
		}

		debit, err := s.wallet.DebitWithin(ctx, tx, wallet.MutationInput{
			UserID:        input.UserID,
			Amount:        order.TotalAmount,
			Description:   "Payment for order " + order.ID.String(),
			ReferenceID:   OrderReference(order.ID),
			ReferenceType: wallet.ReferenceTypeOrder,
		})
		if err != nil {
			return err
		}
		if err := repo.UpdateFields(ctx, order.ID, map[string]any{"payment_status": enums.PaymentStatusCompleted}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order paid")
		}
		order.PaymentStatus = enums.PaymentStatusCompleted
		out = &WalletPaymentResult{Order: order, Balance: debit.Balance}
		return nil
	})
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error_code", string(pkgerrors.CodeOf(err))), "wallet order payment failed")
		return nil, err
	}
	if !out.AlreadyPaid {
		s.logg.Info(s.logg.WithField(ctx, "amount", out.Order.TotalAmount.String()), "order paid from wallet")
	}
	return out, nil
}

// OrderReference is the ledger reference used for wallet order payments.
func OrderReference(orderID uuid.UUID) string {
	return "order:" + orderID.String()
}

var lifecycle = map[enums.OrderStatus]int{
	enums.OrderStatusPending:        0,
	enums.OrderStatusConfirmed:      1,
	enums.OrderStatusPreparing:      2,
	enums.OrderStatusReadyForPickup: 3,
	enums.OrderStatusOutForDelivery: 4,
	enums.OrderStatusDelivered:      5,
}

// IsFlaggedTransition reports whether moving from -> to leaves a terminal
// state or steps backwards along the delivery lifecycle. Cancelling a
// non-terminal order is never flagged.
func IsFlaggedTransition(from, to enums.OrderStatus) bool {
	if from == to {
		return false
	}
	if from.IsTerminal() {
		return true
	}
	if to == enums.OrderStatusCancelled {
		return false
	}
	return lifecycle[to] < lifecycle[from]
}

func parseUpdate(input UpdateInput) (*enums.OrderStatus, *enums.PaymentStatus, error) {
	if input.Status == nil && input.PaymentStatus == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "status or payment_status is required")
	}
	var status *enums.OrderStatus
	if input.Status != nil {
		parsed, err := enums.ParseOrderStatus(strings.TrimSpace(*input.Status))
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		status = &parsed
	}
	var paymentStatus *enums.PaymentStatus
	if input.PaymentStatus != nil {
		parsed, err := enums.ParsePaymentStatus(strings.TrimSpace(*input.PaymentStatus))
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_status")
		}
		paymentStatus = &parsed
	}
	return status, paymentStatus, nil
}
