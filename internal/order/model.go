package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// stageRank orders the fulfilment stages. A status change may move
// forward through the stages (skipping is fine, a manager can confirm and
// hand an order straight to the kitchen) but never backward. cancelled is
// reachable from any non-terminal state.
var stageRank = map[Status]int{
	StatusPending:   0,
	StatusConfirmed: 1,
	StatusPreparing: 2,
	StatusReady:     3,
	StatusDelivered: 4,
}

func (s Status) Valid() bool {
	if s == StatusCancelled {
		return true
	}
	_, ok := stageRank[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s Status) CanTransitionTo(next Status) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() || s == next {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	return stageRank[next] > stageRank[s]
}

type Role string

const (
	RoleCustomer Role = "customer"
	RoleManager  Role = "manager"
	RoleDelivery Role = "delivery"
)

// Actor is the caller's identity, resolved once per request by the auth
// middleware and passed in explicitly.
type Actor struct {
	ID   int64
	Role Role
}

const (
	DeliveryTypeDelivery = "delivery"
	DeliveryTypePickup   = "pickup"
	DeliveryTypeDineIn   = "dine-in"
)

type Order struct {
	ID                   int64           `json:"id"`
	Reference            string          `json:"reference"`
	CustomerID           int64           `json:"customer_id"`
	Status               Status          `json:"status"`
	Subtotal             decimal.Decimal `json:"subtotal"`
	Tax                  decimal.Decimal `json:"tax"`
	DeliveryFee          decimal.Decimal `json:"delivery_fee"`
	Total                decimal.Decimal `json:"total"`
	PaymentMethod        string          `json:"payment_method"`
	DeliveryType         string          `json:"delivery_type"`
	DeliveryAddress      string          `json:"delivery_address,omitempty"`
	ContactNumber        string          `json:"contact_number"`
	DeliveryInstructions string          `json:"delivery_instructions,omitempty"`
	PreferredTime        string          `json:"preferred_time,omitempty"`
	DeliveryCrewID       *int64          `json:"delivery_crew_id,omitempty"`
	TableBookingID       *int64          `json:"table_booking_id,omitempty"`
	PaystackReference    string          `json:"paystack_reference,omitempty"`
	Paid                 bool            `json:"paid"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// VisibleTo reports whether the actor may read this order: customers see
// their own, crew their assigned ones, managers everything. Every read
// surface, payment verification included, goes through this so an order
// outside the actor's scope never leaks its existence.
func (o *Order) VisibleTo(a Actor) bool {
	switch a.Role {
	case RoleManager:
		return true
	case RoleDelivery:
		return o.DeliveryCrewID != nil && *o.DeliveryCrewID == a.ID
	default:
		return o.CustomerID == a.ID
	}
}

// Item snapshots the cart line at checkout. Price is never recalculated
// from the live catalog afterwards.
type Item struct {
	ID                  int64           `json:"id"`
	OrderID             int64           `json:"order_id"`
	MenuItemID          int64           `json:"menu_item_id"`
	Name                string          `json:"name"`
	Quantity            int             `json:"quantity"`
	Price               decimal.Decimal `json:"price"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
}
