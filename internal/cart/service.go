package cart

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/restobook/orders-api/internal/catalog"
)

var (
	// ErrQuantityTooLow rejects zero or negative quantities outright;
	// they are never clamped.
	ErrQuantityTooLow = errors.New("quantity must be at least 1")
)

type Service struct {
	repo    Repository
	catalog catalog.Repository
}

func NewService(repo Repository, cat catalog.Repository) *Service {
	return &Service{repo: repo, catalog: cat}
}

func (s *Service) Get(ctx context.Context, customerID int64) (*View, error) {
	c, err := s.repo.GetOrCreate(ctx, customerID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.Items(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.LinePrice)
	}
	return &View{Cart: *c, Items: items, Subtotal: subtotal}, nil
}

// Add puts quantity units of a menu item into the customer's cart,
// snapshotting the catalog price. Re-adding the same item increments the
// existing line instead of duplicating it.
func (s *Service) Add(ctx context.Context, customerID, menuItemID int64, quantity int) (*Item, error) {
	if quantity <= 0 {
		return nil, ErrQuantityTooLow
	}
	m, err := s.catalog.GetByID(ctx, menuItemID)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.GetOrCreate(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return s.repo.AddItem(ctx, c.ID, m.ID, quantity, m.Price)
}

// UpdateQuantity overwrites a line's quantity, unlike Add.
func (s *Service) UpdateQuantity(ctx context.Context, customerID, itemID int64, quantity int) (*Item, error) {
	if quantity <= 0 {
		return nil, ErrQuantityTooLow
	}
	return s.repo.UpdateQuantity(ctx, customerID, itemID, quantity)
}

func (s *Service) Remove(ctx context.Context, customerID, itemID int64) error {
	return s.repo.RemoveItem(ctx, customerID, itemID)
}
