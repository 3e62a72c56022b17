package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Item is one line of a customer's open cart. UnitPrice is snapshotted from
// the catalog when the line is first inserted and never re-read afterwards.
type Item struct {
	ID         int64           `json:"id"`
	CartID     int64           `json:"-"`
	MenuItemID int64           `json:"menu_item_id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	LinePrice  decimal.Decimal `json:"line_price"`
}

// View is what GET /cart/ returns.
type View struct {
	Cart     Cart            `json:"cart"`
	Items    []Item          `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}
