package order

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/restobook/orders-api/internal/cart"
)

// CartStore is the slice of the cart store the engine reads at checkout.
// Clearing the cart happens inside the checkout transaction, not here.
type CartStore interface {
	GetOrCreate(ctx context.Context, customerID int64) (*cart.Cart, error)
	Items(ctx context.Context, cartID int64) ([]cart.Item, error)
}

type Pricing struct {
	TaxRate     decimal.Decimal
	DeliveryFee decimal.Decimal
}

type Service struct {
	repo    Repository
	carts   CartStore
	pricing Pricing
}

func NewService(repo Repository, carts CartStore, pricing Pricing) *Service {
	return &Service{repo: repo, carts: carts, pricing: pricing}
}

// Detail is an order together with its item snapshots.
type Detail struct {
	Order
	Items []Item `json:"items"`
}

const maxReferenceAttempts = 5

// Checkout converts the customer's cart into an order. Totals are derived
// from the stored cart lines only: subtotal = sum(quantity x unit price),
// tax = subtotal x rate, flat delivery fee for delivery orders, everything
// quantized to two decimal places.
func (s *Service) Checkout(ctx context.Context, customerID int64, req *CreateOrderRequest) (*Detail, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	c, err := s.carts.GetOrCreate(ctx, customerID)
	if err != nil {
		return nil, err
	}
	lines, err := s.carts.Items(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	subtotal := decimal.Zero
	items := make([]Item, 0, len(lines))
	lineIDs := make([]int64, 0, len(lines))
	for _, l := range lines {
		subtotal = subtotal.Add(l.LinePrice)
		lineIDs = append(lineIDs, l.ID)
		items = append(items, Item{
			MenuItemID: l.MenuItemID,
			Name:       l.Name,
			Quantity:   l.Quantity,
			Price:      l.UnitPrice,
		})
	}
	subtotal = subtotal.Round(2)
	tax := subtotal.Mul(s.pricing.TaxRate).Round(2)
	fee := decimal.Zero
	if req.Delivery.Type == DeliveryTypeDelivery {
		fee = s.pricing.DeliveryFee.Round(2)
	}
	total := subtotal.Add(tax).Add(fee)

	o := &Order{
		CustomerID:           customerID,
		Status:               StatusPending,
		Subtotal:             subtotal,
		Tax:                  tax,
		DeliveryFee:          fee,
		Total:                total,
		PaymentMethod:        req.PaymentMethod,
		DeliveryType:         req.Delivery.Type,
		DeliveryAddress:      req.Delivery.Address,
		ContactNumber:        req.Delivery.ContactNumber,
		DeliveryInstructions: req.Delivery.Instructions,
		PreferredTime:        req.Delivery.PreferredTime,
		TableBookingID:       req.TableBookingID,
	}

	if o.Reference, err = s.allocateReference(ctx); err != nil {
		return nil, err
	}
	if err := s.repo.CreateFromCart(ctx, o, items, lineIDs); err != nil {
		return nil, err
	}
	log.Printf("[order] created reference=%s customer=%d total=%s", o.Reference, customerID, o.Total)
	return &Detail{Order: *o, Items: items}, nil
}

// allocateReference retries generation under a uniqueness check. The loop
// is bounded; the orders.reference constraint closes the remaining
// check-then-insert window.
func (s *Service) allocateReference(ctx context.Context) (string, error) {
	for i := 0; i < maxReferenceAttempts; i++ {
		ref := NewReference()
		exists, err := s.repo.ReferenceExists(ctx, ref)
		if err != nil {
			return "", err
		}
		if !exists {
			return ref, nil
		}
	}
	return "", ErrReferenceConflict
}

// Get returns an order the actor is allowed to see. Orders outside the
// actor's scope read as not found rather than forbidden, so their
// existence is not leaked.
func (s *Service) Get(ctx context.Context, actor Actor, orderID int64) (*Detail, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.VisibleTo(actor) {
		return nil, ErrNotFound
	}
	items, err := s.repo.Items(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return &Detail{Order: *o, Items: items}, nil
}

// List scopes by role: customers see their own orders, crew their assigned
// ones, managers everything.
func (s *Service) List(ctx context.Context, actor Actor, limit, offset int) ([]Order, error) {
	f := ListFilter{Limit: limit, Offset: offset}
	switch actor.Role {
	case RoleManager:
	case RoleDelivery:
		f.CrewID = &actor.ID
	default:
		f.CustomerID = &actor.ID
	}
	return s.repo.List(ctx, f)
}

// Update applies the role-gated mutations. Permission is decided before any
// field validation so a denied caller learns nothing about whether the
// change would have been valid.
func (s *Service) Update(ctx context.Context, actor Actor, orderID int64, req *UpdateOrderRequest) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if req.DeliveryCrewID != nil && actor.Role != RoleManager {
		return nil, ErrForbidden
	}
	if req.Status != nil {
		switch actor.Role {
		case RoleManager:
		case RoleDelivery:
			if o.DeliveryCrewID == nil || *o.DeliveryCrewID != actor.ID {
				return nil, ErrForbidden
			}
		default:
			return nil, ErrForbidden
		}
	}

	ve := newValidationError()
	var next Status
	if req.DeliveryCrewID != nil {
		if o.DeliveryType != DeliveryTypeDelivery {
			ve.add("deliveryCrew", "crew can only be assigned to delivery orders")
		} else {
			isCrew, err := s.repo.CrewMemberExists(ctx, *req.DeliveryCrewID)
			if err != nil {
				return nil, err
			}
			if !isCrew {
				ve.add("deliveryCrew", "assignee is not delivery crew")
			}
		}
	}
	if req.Status != nil {
		next = Status(*req.Status)
		if !next.Valid() {
			ve.add("status", fmt.Sprintf("unknown status %q", *req.Status))
		} else if !o.Status.CanTransitionTo(next) {
			ve.add("status", fmt.Sprintf("cannot move from %s to %s", o.Status, next))
		}
	}
	if err := ve.orNil(); err != nil {
		return nil, err
	}

	if req.DeliveryCrewID != nil {
		if err := s.repo.AssignCrew(ctx, o.ID, *req.DeliveryCrewID); err != nil {
			return nil, err
		}
		o.DeliveryCrewID = req.DeliveryCrewID
	}
	if req.Status != nil {
		if err := s.repo.UpdateStatus(ctx, o.ID, next); err != nil {
			return nil, err
		}
		o.Status = next
	}
	return o, nil
}

func validateCreate(req *CreateOrderRequest) error {
	ve := newValidationError()
	if req.PaymentMethod == "" {
		ve.add("paymentMethod", "paymentMethod is required")
	}
	d := req.Delivery
	switch d.Type {
	case DeliveryTypeDelivery:
		if d.Address == "" {
			ve.add("address", "address is required for delivery orders")
		}
	case DeliveryTypePickup, DeliveryTypeDineIn:
		if d.PreferredTime == "" {
			ve.add("preferredTime", fmt.Sprintf("preferredTime is required for %s orders", d.Type))
		}
	default:
		ve.add("type", "delivery type must be delivery, pickup or dine-in")
	}
	if d.ContactNumber == "" {
		ve.add("contactNumber", "contactNumber is required")
	}
	return ve.orNil()
}
