package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// helper для создания заказа в статусе pending.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	o := domain.Order{
		ID:          "order-1",
		OrderNumber: "AB12CD34",
		BuyerID:     "buyer-1",
		SellerID:    "seller-1",
		ProductID:   "product-1",
		Status:      domain.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	o.Price(decimal.RequireFromString("100.00"), decimal.RequireFromString("10.00"))
	return o
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
	if !order.TotalAmount.Equal(decimal.RequireFromString("110.00")) {
		t.Fatalf("unexpected total %s", order.TotalAmount)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{
			name: "no buyer",
			mut:  func(o *domain.Order) { o.BuyerID = "" },
			want: domain.ErrOrderPartiesRequired,
		},
		{
			name: "total mismatch",
			mut:  func(o *domain.Order) { o.TotalAmount = decimal.RequireFromString("100.00") },
			want: domain.ErrAmountMismatch,
		},
		{
			name: "negative shipping",
			mut: func(o *domain.Order) {
				o.Price(decimal.RequireFromString("100.00"), decimal.RequireFromString("-1"))
			},
			want: domain.ErrProductPriceInvalid,
		},
		{
			name: "lowercase number",
			mut:  func(o *domain.Order) { o.OrderNumber = "ab12cd34" },
			want: domain.ErrOrderNumberInvalid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)
			errs := order.ValidateInvariants()
			if len(errs) == 0 {
				t.Fatalf("expected validation errors")
			}
			found := false
			for _, err := range errs {
				if errors.Is(err, tc.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %v in %v", tc.want, errs)
			}
		})
	}
}

func TestOrderTransitionTable(t *testing.T) {
	all := []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusApproved,
		domain.OrderStatusRejected,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
	}
	allowed := map[[2]domain.OrderStatus]bool{
		{domain.OrderStatusPending, domain.OrderStatusApproved}:   true,
		{domain.OrderStatusPending, domain.OrderStatusRejected}:   true,
		{domain.OrderStatusPending, domain.OrderStatusCancelled}:  true,
		{domain.OrderStatusApproved, domain.OrderStatusShipped}:   true,
		{domain.OrderStatusShipped, domain.OrderStatusDelivered}: true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]domain.OrderStatus{from, to}]
			if got := domain.CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s)=%v, want %v", from, to, got, want)
			}
		}
	}
}

func TestOrderTransitionStampsAndErrors(t *testing.T) {
	order := makeOrder()
	now := time.Now().UTC()

	if err := order.Transition(domain.OrderStatusApproved, now); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if order.ApprovedAt == nil {
		t.Fatal("approved_at must be set")
	}
	if err := order.Transition(domain.OrderStatusCancelled, now); !errors.Is(err, domain.ErrOrderCannotCancel) {
		t.Fatalf("expected ErrOrderCannotCancel, got %v", err)
	}
	if err := order.Transition(domain.OrderStatusDelivered, now); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if err := order.Transition(domain.OrderStatusShipped, now); err != nil {
		t.Fatalf("ship: %v", err)
	}
	if err := order.Transition(domain.OrderStatusCancelled, now); !errors.Is(err, domain.ErrOrderCannotCancel) {
		t.Fatalf("cancel from shipped must fail, got %v", err)
	}
	if order.Status != domain.OrderStatusShipped || order.ShippedAt == nil || order.CancelledAt != nil {
		t.Fatalf("unexpected order state %+v", order)
	}
}

func TestNewOrderNumberFormat(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		n := domain.NewOrderNumber()
		if !domain.IsValidOrderNumber(n) {
			t.Fatalf("invalid order number %q", n)
		}
		seen[n] = struct{}{}
	}
	if len(seen) < 990 {
		t.Fatalf("too many collisions: %d unique of 1000", len(seen))
	}
}

func TestOrderFilterMatches(t *testing.T) {
	order := makeOrder()
	cases := []struct {
		name   string
		filter domain.OrderFilter
		want   bool
	}{
		{name: "any party buyer", filter: domain.OrderFilter{UserID: "buyer-1"}, want: true},
		{name: "any party stranger", filter: domain.OrderFilter{UserID: "x"}, want: false},
		{name: "seller role as buyer", filter: domain.OrderFilter{UserID: "buyer-1", Role: domain.OrderRoleSeller}, want: false},
		{name: "seller role", filter: domain.OrderFilter{UserID: "seller-1", Role: domain.OrderRoleSeller}, want: true},
		{name: "status mismatch", filter: domain.OrderFilter{UserID: "buyer-1", Status: domain.OrderStatusShipped}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Matches(order); got != tc.want {
				t.Fatalf("Matches=%v, want %v", got, tc.want)
			}
		})
	}
}
