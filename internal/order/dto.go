package order

// DeliveryInfo mirrors the checkout payload's delivery block.
// swagger:model DeliveryInfo
type DeliveryInfo struct {
	Type          string `json:"type" example:"delivery"`
	Address       string `json:"address,omitempty" example:"12 Riverside Dr"`
	ContactNumber string `json:"contactNumber" example:"+254712345678"`
	Instructions  string `json:"instructions,omitempty" example:"gate code 4411"`
	PreferredTime string `json:"preferredTime,omitempty" example:"18:30"`
}

// CreateOrderRequest is the checkout body. Monetary totals are always
// derived server-side from the stored cart; any client-sent figures are
// ignored rather than trusted.
// swagger:model CreateOrderRequest
type CreateOrderRequest struct {
	Delivery       DeliveryInfo `json:"delivery"`
	PaymentMethod  string       `json:"paymentMethod" example:"paystack"`
	TableBookingID *int64       `json:"tableBookingId,omitempty"`
}

// UpdateOrderRequest carries the role-gated mutations: status changes and
// delivery crew assignment. Nil fields are left untouched.
// swagger:model UpdateOrderRequest
type UpdateOrderRequest struct {
	Status         *string `json:"status,omitempty" example:"ready"`
	DeliveryCrewID *int64  `json:"deliveryCrew,omitempty"`
}
