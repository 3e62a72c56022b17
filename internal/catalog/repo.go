// Package catalog provides read access to the menu. The order engine only
// ever consumes it for price snapshots; menu curation happens elsewhere.
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("menu item not found")
)

type Query struct {
	Q      string
	Limit  int
	Offset int
}

type Repository interface {
	GetByID(ctx context.Context, id int64) (*MenuItem, error)
	List(ctx context.Context, q Query) ([]MenuItem, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) GetByID(ctx context.Context, id int64) (*MenuItem, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		m     MenuItem
		price string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, name, category, description, price::text, featured, created_at, updated_at
		FROM menu_items WHERE id=$1
	`, id).Scan(&m.ID, &m.Name, &m.Category, &m.Description, &price, &m.Featured, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if m.Price, err = decimal.NewFromString(price); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PGRepo) List(ctx context.Context, q Query) ([]MenuItem, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	search := strings.TrimSpace(q.Q)

	rows, err := r.db.Query(ctx, `
		SELECT id, name, category, description, price::text, featured, created_at, updated_at
		FROM menu_items
		WHERE ($1 = '' OR name ILIKE '%'||$1||'%' OR description ILIKE '%'||$1||'%')
		ORDER BY name
		LIMIT $2 OFFSET $3
	`, search, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MenuItem
	for rows.Next() {
		var (
			m     MenuItem
			price string
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Category, &m.Description, &price, &m.Featured, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		if m.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
