package order

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/restobook/orders-api/internal/cart"
)

//
// ---------- STUBS ----------
//

// stubRepo keeps orders in memory and mimics the uniqueness and
// line-claiming behaviour of the real repository: each snapshotted cart
// line can be consumed by exactly one checkout.
type stubRepo struct {
	nextID      int64
	orders      map[int64]*Order
	items       map[int64][]Item
	refs        map[string]bool
	crew        map[int64]bool
	consumed    map[int64]bool
	gotLineIDs  []int64
	refChecks   int
	alwaysTaken bool
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		orders:   map[int64]*Order{},
		items:    map[int64][]Item{},
		refs:     map[string]bool{},
		crew:     map[int64]bool{},
		consumed: map[int64]bool{},
	}
}

func (s *stubRepo) CreateFromCart(ctx context.Context, o *Order, items []Item, cartItemIDs []int64) error {
	if s.refs[o.Reference] {
		return ErrReferenceConflict
	}
	for _, id := range cartItemIDs {
		if s.consumed[id] {
			return ErrCartChanged
		}
	}
	for _, id := range cartItemIDs {
		s.consumed[id] = true
	}
	s.gotLineIDs = append([]int64(nil), cartItemIDs...)
	s.nextID++
	o.ID = s.nextID
	cp := *o
	s.orders[o.ID] = &cp
	s.items[o.ID] = append([]Item(nil), items...)
	s.refs[o.Reference] = true
	return nil
}

func (s *stubRepo) GetByID(ctx context.Context, id int64) (*Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *stubRepo) Items(ctx context.Context, orderID int64) ([]Item, error) {
	return s.items[orderID], nil
}

func (s *stubRepo) List(ctx context.Context, f ListFilter) ([]Order, error) {
	var out []Order
	for _, o := range s.orders {
		if f.CustomerID != nil && o.CustomerID != *f.CustomerID {
			continue
		}
		if f.CrewID != nil && (o.DeliveryCrewID == nil || *o.DeliveryCrewID != *f.CrewID) {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (s *stubRepo) UpdateStatus(ctx context.Context, id int64, st Status) error {
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = st
	return nil
}

func (s *stubRepo) AssignCrew(ctx context.Context, id, crewID int64) error {
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.DeliveryCrewID = &crewID
	return nil
}

func (s *stubRepo) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	s.refChecks++
	if s.alwaysTaken {
		return true, nil
	}
	return s.refs[reference], nil
}

func (s *stubRepo) CrewMemberExists(ctx context.Context, userID int64) (bool, error) {
	return s.crew[userID], nil
}

func (s *stubRepo) SetPaystackReference(ctx context.Context, id int64, reference string) error {
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.PaystackReference = reference
	return nil
}

func (s *stubRepo) MarkPaid(ctx context.Context, id int64) error {
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Paid = true
	if o.Status == StatusPending {
		o.Status = StatusConfirmed
	}
	return nil
}

type stubCarts struct {
	cart  cart.Cart
	items []cart.Item
}

func (s *stubCarts) GetOrCreate(ctx context.Context, customerID int64) (*cart.Cart, error) {
	c := s.cart
	c.CustomerID = customerID
	return &c, nil
}

func (s *stubCarts) Items(ctx context.Context, cartID int64) ([]cart.Item, error) {
	return s.items, nil
}

func dec(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", v, err)
	}
	return d
}

func line(t *testing.T, id, menuID int64, name string, qty int, unit string) cart.Item {
	t.Helper()
	u := dec(t, unit)
	return cart.Item{
		ID:         id,
		MenuItemID: menuID,
		Name:       name,
		Quantity:   qty,
		UnitPrice:  u,
		LinePrice:  u.Mul(decimal.NewFromInt(int64(qty))),
	}
}

func testPricing(t *testing.T) Pricing {
	return Pricing{TaxRate: dec(t, "0.08"), DeliveryFee: dec(t, "5.00")}
}

func deliveryReq() *CreateOrderRequest {
	return &CreateOrderRequest{
		Delivery: DeliveryInfo{
			Type:          DeliveryTypeDelivery,
			Address:       "12 Riverside Dr",
			ContactNumber: "+254712345678",
		},
		PaymentMethod: "paystack",
	}
}

func pickupReq() *CreateOrderRequest {
	return &CreateOrderRequest{
		Delivery: DeliveryInfo{
			Type:          DeliveryTypePickup,
			ContactNumber: "+254712345678",
			PreferredTime: "18:30",
		},
		PaymentMethod: "cash",
	}
}

//
// ---------- CHECKOUT ----------
//

func TestCheckout_DerivesTotalsForDelivery(t *testing.T) {
	repo := newStubRepo()
	carts := &stubCarts{
		cart: cart.Cart{ID: 7},
		items: []cart.Item{
			line(t, 101, 1, "Margherita", 2, "12.50"),
			line(t, 102, 2, "Lemonade", 3, "5.00"),
		},
	}
	svc := NewService(repo, carts, testPricing(t))

	d, err := svc.Checkout(context.Background(), 42, deliveryReq())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	for name, got := range map[string]struct{ have, want decimal.Decimal }{
		"subtotal":     {d.Subtotal, dec(t, "40.00")},
		"tax":          {d.Tax, dec(t, "3.20")},
		"delivery_fee": {d.DeliveryFee, dec(t, "5.00")},
		"total":        {d.Total, dec(t, "48.20")},
	} {
		if !got.have.Equal(got.want) {
			t.Errorf("%s = %s, want %s", name, got.have, got.want)
		}
	}
	if d.Status != StatusPending {
		t.Errorf("status = %s, want pending", d.Status)
	}
	if len(d.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(d.Items))
	}
	if len(repo.gotLineIDs) != 2 || repo.gotLineIDs[0] != 101 || repo.gotLineIDs[1] != 102 {
		t.Errorf("consumed line ids = %v, want exactly the snapshotted [101 102]", repo.gotLineIDs)
	}
}

func TestCheckout_NoDeliveryFeeForPickup(t *testing.T) {
	repo := newStubRepo()
	carts := &stubCarts{cart: cart.Cart{ID: 1}, items: []cart.Item{line(t, 101, 1, "Margherita", 2, "12.50")}}
	svc := NewService(repo, carts, testPricing(t))

	d, err := svc.Checkout(context.Background(), 42, pickupReq())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if !d.DeliveryFee.IsZero() {
		t.Errorf("delivery_fee = %s, want 0", d.DeliveryFee)
	}
	if !d.Total.Equal(dec(t, "27.00")) { // 25.00 + 2.00 tax
		t.Errorf("total = %s, want 27.00", d.Total)
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	svc := NewService(newStubRepo(), &stubCarts{cart: cart.Cart{ID: 1}}, testPricing(t))

	if _, err := svc.Checkout(context.Background(), 42, deliveryReq()); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("err = %v, want ErrEmptyCart", err)
	}
}

func TestCheckout_DeliveryRequiresAddress(t *testing.T) {
	repo := newStubRepo()
	carts := &stubCarts{cart: cart.Cart{ID: 1}, items: []cart.Item{line(t, 101, 1, "Margherita", 1, "12.50")}}
	svc := NewService(repo, carts, testPricing(t))

	req := deliveryReq()
	req.Delivery.Address = ""
	_, err := svc.Checkout(context.Background(), 42, req)

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if _, ok := ve.Fields["address"]; !ok {
		t.Fatalf("validation fields = %v, want address named", ve.Fields)
	}
	if len(repo.orders) != 0 {
		t.Fatal("order was persisted despite validation failure")
	}
}

func TestCheckout_PickupRequiresPreferredTime(t *testing.T) {
	carts := &stubCarts{cart: cart.Cart{ID: 1}, items: []cart.Item{line(t, 101, 1, "Margherita", 1, "12.50")}}
	svc := NewService(newStubRepo(), carts, testPricing(t))

	req := pickupReq()
	req.Delivery.PreferredTime = ""
	_, err := svc.Checkout(context.Background(), 42, req)

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if _, ok := ve.Fields["preferredTime"]; !ok {
		t.Fatalf("validation fields = %v, want preferredTime named", ve.Fields)
	}
}

func TestCheckout_SnapshotsCartPrices(t *testing.T) {
	repo := newStubRepo()
	carts := &stubCarts{cart: cart.Cart{ID: 1}, items: []cart.Item{line(t, 101, 9, "Margherita", 2, "12.50")}}
	svc := NewService(repo, carts, testPricing(t))

	d, err := svc.Checkout(context.Background(), 42, pickupReq())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if !d.Items[0].Price.Equal(dec(t, "12.50")) {
		t.Errorf("item price = %s, want the cart line's 12.50", d.Items[0].Price)
	}
}

func TestCheckout_ClaimsOnlySnapshottedLines(t *testing.T) {
	repo := newStubRepo()
	carts := &stubCarts{cart: cart.Cart{ID: 1}, items: []cart.Item{
		line(t, 101, 1, "Margherita", 1, "12.50"),
		line(t, 102, 2, "Lemonade", 1, "5.00"),
	}}
	svc := NewService(repo, carts, testPricing(t))

	// line 101 was consumed between the cart read and the transaction
	repo.consumed[101] = true

	_, err := svc.Checkout(context.Background(), 42, pickupReq())
	if !errors.Is(err, ErrCartChanged) {
		t.Fatalf("err = %v, want ErrCartChanged", err)
	}
	if len(repo.orders) != 0 {
		t.Fatal("order persisted despite a changed cart")
	}
	if repo.consumed[102] {
		t.Fatal("line 102 consumed by a failed checkout")
	}
}

func TestAllocateReference_BoundedRetry(t *testing.T) {
	repo := newStubRepo()
	repo.alwaysTaken = true
	carts := &stubCarts{cart: cart.Cart{ID: 1}, items: []cart.Item{line(t, 101, 1, "Margherita", 1, "12.50")}}
	svc := NewService(repo, carts, testPricing(t))

	_, err := svc.Checkout(context.Background(), 42, pickupReq())
	if !errors.Is(err, ErrReferenceConflict) {
		t.Fatalf("err = %v, want ErrReferenceConflict", err)
	}
	if repo.refChecks != maxReferenceAttempts {
		t.Errorf("uniqueness checks = %d, want %d", repo.refChecks, maxReferenceAttempts)
	}
}

//
// ---------- STATUS & CREW ----------
//

func seedOrder(repo *stubRepo, o Order) *Order {
	repo.nextID++
	o.ID = repo.nextID
	if o.Status == "" {
		o.Status = StatusPending
	}
	repo.orders[o.ID] = &o
	return repo.orders[o.ID]
}

func strp(s string) *string { return &s }
func i64p(v int64) *int64   { return &v }

func TestUpdate_CustomerCannotChangeStatus(t *testing.T) {
	repo := newStubRepo()
	o := seedOrder(repo, Order{CustomerID: 42, DeliveryType: DeliveryTypeDelivery})
	svc := NewService(repo, &stubCarts{}, testPricing(t))

	_, err := svc.Update(context.Background(), Actor{ID: 42, Role: RoleCustomer}, o.ID, &UpdateOrderRequest{Status: strp("ready")})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if repo.orders[o.ID].Status != StatusPending {
		t.Fatal("status mutated on a forbidden request")
	}
}

func TestUpdate_ManagerCanChangeStatus(t *testing.T) {
	repo := newStubRepo()
	o := seedOrder(repo, Order{CustomerID: 42, DeliveryType: DeliveryTypeDelivery})
	svc := NewService(repo, &stubCarts{}, testPricing(t))

	got, err := svc.Update(context.Background(), Actor{ID: 1, Role: RoleManager}, o.ID, &UpdateOrderRequest{Status: strp("ready")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Status != StatusReady {
		t.Errorf("status = %s, want ready", got.Status)
	}
}

func TestUpdate_CrewOnlyOnAssignedOrders(t *testing.T) {
	repo := newStubRepo()
	assigned := seedOrder(repo, Order{CustomerID: 42, DeliveryType: DeliveryTypeDelivery, DeliveryCrewID: i64p(9), Status: StatusReady})
	other := seedOrder(repo, Order{CustomerID: 43, DeliveryType: DeliveryTypeDelivery, Status: StatusReady})
	svc := NewService(repo, &stubCarts{}, testPricing(t))

	if _, err := svc.Update(context.Background(), Actor{ID: 9, Role: RoleDelivery}, other.ID, &UpdateOrderRequest{Status: strp("delivered")}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("unassigned crew err = %v, want ErrForbidden", err)
	}
	got, err := svc.Update(context.Background(), Actor{ID: 9, Role: RoleDelivery}, assigned.ID, &UpdateOrderRequest{Status: strp("delivered")})
	if err != nil {
		t.Fatalf("assigned crew update: %v", err)
	}
	if got.Status != StatusDelivered {
		t.Errorf("status = %s, want delivered", got.Status)
	}
}

func TestUpdate_PermissionDecidedBeforeValidation(t *testing.T) {
	repo := newStubRepo()
	o := seedOrder(repo, Order{CustomerID: 42, DeliveryType: DeliveryTypeDelivery})
	svc := NewService(repo, &stubCarts{}, testPricing(t))

	// bogus status must still read as forbidden for a customer, not as a
	// validation failure
	_, err := svc.Update(context.Background(), Actor{ID: 42, Role: RoleCustomer}, o.ID, &UpdateOrderRequest{Status: strp("no-such-status")})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestUpdate_TransitionRules(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusReady, true}, // forward skip
		{StatusPending, StatusCancelled, true},
		{StatusPreparing, StatusPending, false}, // backward
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusReady, StatusDelivered, true},
	}
	for _, tc := range cases {
		repo := newStubRepo()
		o := seedOrder(repo, Order{CustomerID: 42, DeliveryType: DeliveryTypePickup, Status: tc.from})
		svc := NewService(repo, &stubCarts{}, testPricing(t))

		st := string(tc.to)
		_, err := svc.Update(context.Background(), Actor{ID: 1, Role: RoleManager}, o.ID, &UpdateOrderRequest{Status: &st})
		if tc.ok && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		var ve *ValidationError
		if !tc.ok && !errors.As(err, &ve) {
			t.Errorf("%s -> %s: err = %v, want ValidationError", tc.from, tc.to, err)
		}
	}
}

func TestUpdate_CrewAssignment(t *testing.T) {
	repo := newStubRepo()
	repo.crew[9] = true
	deliveryOrder := seedOrder(repo, Order{CustomerID: 42, DeliveryType: DeliveryTypeDelivery})
	pickupOrder := seedOrder(repo, Order{CustomerID: 42, DeliveryType: DeliveryTypePickup})
	svc := NewService(repo, &stubCarts{}, testPricing(t))

	manager := Actor{ID: 1, Role: RoleManager}

	if _, err := svc.Update(context.Background(), Actor{ID: 42, Role: RoleCustomer}, deliveryOrder.ID, &UpdateOrderRequest{DeliveryCrewID: i64p(9)}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("customer assigning crew: err = %v, want ErrForbidden", err)
	}

	var ve *ValidationError
	if _, err := svc.Update(context.Background(), manager, pickupOrder.ID, &UpdateOrderRequest{DeliveryCrewID: i64p(9)}); !errors.As(err, &ve) {
		t.Fatalf("crew on pickup order: err = %v, want ValidationError", err)
	}
	if _, err := svc.Update(context.Background(), manager, deliveryOrder.ID, &UpdateOrderRequest{DeliveryCrewID: i64p(8)}); !errors.As(err, &ve) {
		t.Fatalf("non-crew assignee: err = %v, want ValidationError", err)
	}

	got, err := svc.Update(context.Background(), manager, deliveryOrder.ID, &UpdateOrderRequest{DeliveryCrewID: i64p(9)})
	if err != nil {
		t.Fatalf("assign crew: %v", err)
	}
	if got.DeliveryCrewID == nil || *got.DeliveryCrewID != 9 {
		t.Errorf("delivery_crew_id = %v, want 9", got.DeliveryCrewID)
	}
}

//
// ---------- VISIBILITY ----------
//

func TestGet_ScopedByRole(t *testing.T) {
	repo := newStubRepo()
	o := seedOrder(repo, Order{CustomerID: 42, DeliveryType: DeliveryTypeDelivery, DeliveryCrewID: i64p(9)})
	svc := NewService(repo, &stubCarts{}, testPricing(t))

	cases := []struct {
		name  string
		actor Actor
		found bool
	}{
		{"owner", Actor{ID: 42, Role: RoleCustomer}, true},
		{"other customer", Actor{ID: 43, Role: RoleCustomer}, false},
		{"assigned crew", Actor{ID: 9, Role: RoleDelivery}, true},
		{"other crew", Actor{ID: 10, Role: RoleDelivery}, false},
		{"manager", Actor{ID: 1, Role: RoleManager}, true},
	}
	for _, tc := range cases {
		_, err := svc.Get(context.Background(), tc.actor, o.ID)
		if tc.found && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.found && !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: err = %v, want ErrNotFound", tc.name, err)
		}
	}
}
