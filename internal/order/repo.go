package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type ListFilter struct {
	CustomerID *int64
	CrewID     *int64
	Limit      int
	Offset     int
}

type Repository interface {
	CreateFromCart(ctx context.Context, o *Order, items []Item, cartItemIDs []int64) error
	GetByID(ctx context.Context, id int64) (*Order, error)
	Items(ctx context.Context, orderID int64) ([]Item, error)
	List(ctx context.Context, f ListFilter) ([]Order, error)
	UpdateStatus(ctx context.Context, id int64, st Status) error
	AssignCrew(ctx context.Context, id, crewID int64) error
	ReferenceExists(ctx context.Context, reference string) (bool, error)
	CrewMemberExists(ctx context.Context, userID int64) (bool, error)
	SetPaystackReference(ctx context.Context, id int64, reference string) error
	MarkPaid(ctx context.Context, id int64) error
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

// mapTxErr translates the constraint and isolation failures a checkout
// transaction can hit into the package's retryable sentinels.
func mapTxErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrReferenceConflict
		case "40001":
			return ErrCheckoutConflict
		}
	}
	return err
}

// CreateFromCart persists the order, its item snapshots and the cart
// cleanup in one serializable transaction. Either all of it lands or none
// of it does: a crash can never leave an order without items, or consume a
// cart without producing an order. Only the cart lines the caller
// snapshotted are deleted; if any of them were consumed or removed in the
// meantime the whole transaction fails with ErrCartChanged, so a line
// added after the snapshot is never silently swallowed.
func (r *PGRepo) CreateFromCart(ctx context.Context, o *Order, items []Item, cartItemIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO orders (
			reference, customer_id, status,
			subtotal, tax, delivery_fee, total,
			payment_method, delivery_type, delivery_address, contact_number,
			delivery_instructions, preferred_time, table_booking_id,
			created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''),$11,NULLIF($12,''),NULLIF($13,''),$14,NOW(),NOW())
		RETURNING id, created_at, updated_at
	`, o.Reference, o.CustomerID, o.Status,
		o.Subtotal.StringFixed(2), o.Tax.StringFixed(2), o.DeliveryFee.StringFixed(2), o.Total.StringFixed(2),
		o.PaymentMethod, o.DeliveryType, o.DeliveryAddress, o.ContactNumber,
		o.DeliveryInstructions, o.PreferredTime, o.TableBookingID,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return mapTxErr(err)
	}

	for i := range items {
		items[i].OrderID = o.ID
		if err := tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, menu_item_id, quantity, price, special_instructions)
			VALUES ($1,$2,$3,$4,NULLIF($5,''))
			RETURNING id
		`, o.ID, items[i].MenuItemID, items[i].Quantity,
			items[i].Price.StringFixed(2), items[i].SpecialInstructions,
		).Scan(&items[i].ID); err != nil {
			return mapTxErr(err)
		}
	}

	tag, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE id = ANY($1)`, cartItemIDs)
	if err != nil {
		return mapTxErr(err)
	}
	if int(tag.RowsAffected()) != len(cartItemIDs) {
		// a concurrent checkout or removal got to some of these lines first
		return ErrCartChanged
	}
	if err := tx.Commit(ctx); err != nil {
		return mapTxErr(err)
	}
	return nil
}

const orderColumns = `
	id, reference, customer_id, status,
	subtotal::text, tax::text, delivery_fee::text, total::text,
	payment_method, delivery_type, delivery_address, contact_number,
	delivery_instructions, preferred_time, delivery_crew_id, table_booking_id,
	paystack_reference, paid, created_at, updated_at`

func (r *PGRepo) GetByID(ctx context.Context, id int64) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (r *PGRepo) Items(ctx context.Context, orderID int64) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT oi.id, oi.order_id, oi.menu_item_id, mi.name, oi.quantity,
			oi.price::text, COALESCE(oi.special_instructions, '')
		FROM order_items oi
		JOIN menu_items mi ON mi.id = oi.menu_item_id
		WHERE oi.order_id = $1
		ORDER BY oi.id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var (
			it    Item
			price string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.Quantity, &price, &it.SpecialInstructions); err != nil {
			return nil, err
		}
		if it.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *PGRepo) List(ctx context.Context, f ListFilter) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1::bigint IS NULL OR customer_id = $1)
		  AND ($2::bigint IS NULL OR delivery_crew_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, f.CustomerID, f.CrewID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *PGRepo) UpdateStatus(ctx context.Context, id int64, st Status) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, st)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) AssignCrew(ctx context.Context, id, crewID int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET delivery_crew_id = $2, updated_at = NOW() WHERE id = $1
	`, id, crewID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM orders WHERE reference = $1)
	`, reference).Scan(&exists)
	return exists, err
}

func (r *PGRepo) CrewMemberExists(ctx context.Context, userID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND role = 'delivery')
	`, userID).Scan(&exists)
	return exists, err
}

func (r *PGRepo) SetPaystackReference(ctx context.Context, id int64, reference string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET paystack_reference = $2, updated_at = NOW() WHERE id = $1
	`, id, reference)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPaid flips paid in one statement, confirming the order only when it
// is still pending. Payment never moves an order backward through the
// fulfilment stages: a late verification on an order the kitchen already
// advanced keeps its current status.
func (r *PGRepo) MarkPaid(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE orders
		SET paid = TRUE,
		    status = CASE WHEN status = $2 THEN $3 ELSE status END,
		    updated_at = NOW()
		WHERE id = $1
	`, id, StatusPending, StatusConfirmed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                               Order
		subtotal, tax, fee, total       string
		addr, instructions, pref, psRef *string
	)
	err := row.Scan(
		&o.ID, &o.Reference, &o.CustomerID, &o.Status,
		&subtotal, &tax, &fee, &total,
		&o.PaymentMethod, &o.DeliveryType, &addr, &o.ContactNumber,
		&instructions, &pref, &o.DeliveryCrewID, &o.TableBookingID,
		&psRef, &o.Paid, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	for dst, src := range map[*decimal.Decimal]string{
		&o.Subtotal: subtotal, &o.Tax: tax, &o.DeliveryFee: fee, &o.Total: total,
	} {
		if *dst, err = decimal.NewFromString(src); err != nil {
			return nil, err
		}
	}
	if addr != nil {
		o.DeliveryAddress = *addr
	}
	if instructions != nil {
		o.DeliveryInstructions = *instructions
	}
	if pref != nil {
		o.PreferredTime = *pref
	}
	if psRef != nil {
		o.PaystackReference = *psRef
	}
	return &o, nil
}
