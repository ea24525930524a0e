package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestComputeOrderTotal(t *testing.T) {
	tests := []struct {
		subtotal string
		tax      string
		shipping string
		discount string
		want     string
	}{
		{subtotal: "900.00", tax: "67.50", shipping: "50.00", discount: "17.50", want: "1000"},
		{subtotal: "100.00", tax: "0", shipping: "0", discount: "0", want: "100"},
		{subtotal: "49.99", tax: "3.75", shipping: "5.00", discount: "58.74", want: "0"},
	}

	for _, tt := range tests {
		got := ComputeOrderTotal(dec(tt.subtotal), dec(tt.tax), dec(tt.shipping), dec(tt.discount))
		if !got.Equal(dec(tt.want)) {
			t.Fatalf("ComputeOrderTotal(%s,%s,%s,%s) = %s, want %s",
				tt.subtotal, tt.tax, tt.shipping, tt.discount, got, tt.want)
		}
	}
}

func TestOrderTotalConsistent(t *testing.T) {
	o := &Order{
		Subtotal: dec("900.00"),
		Tax:      dec("67.50"),
		Shipping: dec("50.00"),
		Discount: dec("17.50"),
		Total:    dec("1000.00"),
	}
	if !o.TotalConsistent() {
		t.Fatalf("expected total to be consistent")
	}
	o.Total = dec("999.99")
	if o.TotalConsistent() {
		t.Fatalf("expected inconsistent total to be detected")
	}
}

func TestOrderMetadataRoundTrip(t *testing.T) {
	o := &Order{}
	if err := o.SetMetadataValue("risk_factors", []string{"high_amount"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := o.SetMetadataValue("source", "web"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	meta := o.Metadata()
	if meta["source"] != "web" {
		t.Fatalf("expected source=web, got %v", meta["source"])
	}
	if _, ok := meta["risk_factors"]; !ok {
		t.Fatalf("expected risk_factors to survive the merge")
	}
}

func TestCustomerCancellable(t *testing.T) {
	for _, status := range []string{OrderStatusPending, OrderStatusPendingPayment} {
		if !(&Order{Status: status}).CustomerCancellable() {
			t.Fatalf("expected %q to be customer-cancellable", status)
		}
	}
	for _, status := range []string{OrderStatusPaid, OrderStatusShipped, OrderStatusCancelled} {
		if (&Order{Status: status}).CustomerCancellable() {
			t.Fatalf("expected %q to not be customer-cancellable", status)
		}
	}
}

func TestReservationActiveAt(t *testing.T) {
	now := time.Now()
	released := now.Add(-time.Minute)

	tests := []struct {
		name string
		res  InventoryReservation
		want bool
	}{
		{"active", InventoryReservation{ReservedUntil: now.Add(10 * time.Minute)}, true},
		{"expired but unreleased", InventoryReservation{ReservedUntil: now.Add(-time.Second)}, false},
		{"released", InventoryReservation{ReservedUntil: now.Add(10 * time.Minute), ReleasedAt: &released}, false},
	}

	for _, tt := range tests {
		if got := tt.res.ActiveAt(now); got != tt.want {
			t.Fatalf("%s: ActiveAt = %v, want %v", tt.name, got, tt.want)
		}
	}
}
