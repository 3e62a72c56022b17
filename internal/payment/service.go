package payment

import (
	"context"
	"errors"
	"log"

	"github.com/shopspring/decimal"

	"github.com/restobook/orders-api/internal/order"
)

var (
	// ErrAmountMismatch means the gateway settled a different amount than
	// this order's total. Not retryable without correction; the order stays
	// unpaid.
	ErrAmountMismatch = errors.New("paid amount does not match order total")
)

// amountTolerance absorbs rounding drift between our NUMERIC totals and the
// gateway's minor-unit integers.
var amountTolerance = decimal.RequireFromString("0.01")

// OrderStore is the slice of order persistence reconciliation needs.
// *order.PGRepo satisfies it.
type OrderStore interface {
	GetByID(ctx context.Context, id int64) (*order.Order, error)
	SetPaystackReference(ctx context.Context, id int64, reference string) error
	MarkPaid(ctx context.Context, id int64) error
}

type Gateway interface {
	VerifyTransaction(ctx context.Context, reference string) (*VerifyResponse, error)
}

type Result struct {
	Status    string `json:"status"` // success | failed
	Reference string `json:"reference"`
	OrderID   int64  `json:"order_id"`
	Paid      bool   `json:"paid"`
}

type Service struct {
	orders  OrderStore
	gateway Gateway
}

func NewService(orders OrderStore, gateway Gateway) *Service {
	return &Service{orders: orders, gateway: gateway}
}

// Verify reconciles a client-supplied gateway reference with the order.
// Orders outside the actor's read scope are reported as not found before
// anything is written or leaked. The call is idempotent: verifying an
// already-paid order is a success no-op with no further side effects. The
// reference is persisted before the gateway round-trip so a failed
// attempt can still be correlated.
func (s *Service) Verify(ctx context.Context, actor order.Actor, orderID int64, reference string) (*Result, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.VisibleTo(actor) {
		return nil, order.ErrNotFound
	}
	if o.Paid {
		log.Printf("[payment] order=%d already paid, verify is a no-op", o.ID)
		return &Result{Status: "success", Reference: o.PaystackReference, OrderID: o.ID, Paid: true}, nil
	}

	if err := s.orders.SetPaystackReference(ctx, o.ID, reference); err != nil {
		return nil, err
	}

	resp, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !resp.Status || resp.Data.Status != "success" {
		log.Printf("[payment] order=%d reference=%s gateway reported %q", o.ID, reference, resp.Data.Status)
		return &Result{Status: "failed", Reference: reference, OrderID: o.ID}, nil
	}

	paidAmount := decimal.NewFromInt(resp.Data.Amount).Div(decimal.NewFromInt(100))
	if paidAmount.Sub(o.Total).Abs().GreaterThan(amountTolerance) {
		log.Printf("[payment] order=%d amount mismatch: gateway=%s order=%s", o.ID, paidAmount, o.Total)
		return nil, ErrAmountMismatch
	}

	if err := s.orders.MarkPaid(ctx, o.ID); err != nil {
		return nil, err
	}
	log.Printf("[payment] order=%d confirmed reference=%s amount=%s", o.ID, reference, paidAmount)
	return &Result{Status: "success", Reference: reference, OrderID: o.ID, Paid: true}, nil
}
