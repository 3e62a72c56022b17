package cart

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrItemNotFound = errors.New("cart item not found")
)

type Repository interface {
	GetOrCreate(ctx context.Context, customerID int64) (*Cart, error)
	Items(ctx context.Context, cartID int64) ([]Item, error)
	AddItem(ctx context.Context, cartID, menuItemID int64, quantity int, unitPrice decimal.Decimal) (*Item, error)
	UpdateQuantity(ctx context.Context, customerID, itemID int64, quantity int) (*Item, error)
	RemoveItem(ctx context.Context, customerID, itemID int64) error
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

// GetOrCreate is idempotent: carts.customer_id is unique, so concurrent
// first requests race on the constraint instead of on an existence check.
// The no-op DO UPDATE makes RETURNING yield the row on both paths.
func (r *PGRepo) GetOrCreate(ctx context.Context, customerID int64) (*Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var c Cart
	err := r.db.QueryRow(ctx, `
		INSERT INTO carts (customer_id)
		VALUES ($1)
		ON CONFLICT (customer_id) DO UPDATE SET customer_id = EXCLUDED.customer_id
		RETURNING id, customer_id, created_at
	`, customerID).Scan(&c.ID, &c.CustomerID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PGRepo) Items(ctx context.Context, cartID int64) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT ci.id, ci.cart_id, ci.menu_item_id, mi.name, ci.quantity, ci.unit_price::text
		FROM cart_items ci
		JOIN menu_items mi ON mi.id = ci.menu_item_id
		WHERE ci.cart_id = $1
		ORDER BY ci.id
	`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

// AddItem inserts a line, or increments the existing line's quantity when the
// menu item is already in the cart. The first insert's unit price sticks.
func (r *PGRepo) AddItem(ctx context.Context, cartID, menuItemID int64, quantity int, unitPrice decimal.Decimal) (*Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		INSERT INTO cart_items (cart_id, menu_item_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, menu_item_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id, cart_id, menu_item_id,
			(SELECT name FROM menu_items WHERE id = $2),
			quantity, unit_price::text
	`, cartID, menuItemID, quantity, unitPrice.StringFixed(2))
	return scanItem(row)
}

func (r *PGRepo) UpdateQuantity(ctx context.Context, customerID, itemID int64, quantity int) (*Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		UPDATE cart_items ci
		SET quantity = $3
		FROM carts c, menu_items mi
		WHERE ci.id = $2 AND c.id = ci.cart_id AND c.customer_id = $1 AND mi.id = ci.menu_item_id
		RETURNING ci.id, ci.cart_id, ci.menu_item_id, mi.name, ci.quantity, ci.unit_price::text
	`, customerID, itemID, quantity)
	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	return it, err
}

func (r *PGRepo) RemoveItem(ctx context.Context, customerID, itemID int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		DELETE FROM cart_items ci
		USING carts c
		WHERE ci.id = $2 AND c.id = ci.cart_id AND c.customer_id = $1
	`, customerID, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func scanItem(row pgx.Row) (*Item, error) {
	var (
		it    Item
		price string
	)
	if err := row.Scan(&it.ID, &it.CartID, &it.MenuItemID, &it.Name, &it.Quantity, &price); err != nil {
		return nil, err
	}
	var err error
	if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return nil, err
	}
	it.LinePrice = it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
	return &it, nil
}
