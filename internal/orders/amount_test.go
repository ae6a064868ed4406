package orders

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestComputeAmount(t *testing.T) {
	tests := []struct {
		name     string
		itemType ItemType
		price    string
		want     int64
	}{
		{"course whole rupees", ItemCourse, "499", 49900},
		{"course with paise", ItemCourse, "499.99", 49999},
		{"project", ItemProject, "49", 4900},
		{"sub-paise rounds", ItemProject, "10.005", 1001},
		{"certificate ignores price", ItemCertificate, "12345", 900},
		{"certificate zero price", ItemCertificate, "0", 900},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ComputeAmount(tc.itemType, decimal.RequireFromString(tc.price))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestComputeAmount_Deterministic(t *testing.T) {
	price := decimal.RequireFromString("1299.5")
	first, _ := ComputeAmount(ItemCourse, price)
	for i := 0; i < 100; i++ {
		got, _ := ComputeAmount(ItemCourse, price)
		if got != first {
			t.Fatalf("amount changed between calls: %d then %d", first, got)
		}
	}
}

func TestComputeAmount_Errors(t *testing.T) {
	if _, err := ComputeAmount(ItemCourse, decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for free course, got %v", err)
	}
	if _, err := ComputeAmount(ItemProject, decimal.RequireFromString("-5")); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative price, got %v", err)
	}
	if _, err := ComputeAmount("bundle", decimal.NewFromInt(10)); !errors.Is(err, ErrInvalidItemType) {
		t.Fatalf("expected ErrInvalidItemType, got %v", err)
	}
}

func TestParseItemType(t *testing.T) {
	for in, want := range map[string]ItemType{
		"course":                 ItemCourse,
		"project":                ItemProject,
		"internship_certificate": ItemCertificate,
		"certificate":            ItemCertificate,
	} {
		got, err := ParseItemType(in)
		if err != nil || got != want {
			t.Fatalf("ParseItemType(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseItemType("Course"); !errors.Is(err, ErrInvalidItemType) {
		t.Fatalf("expected ErrInvalidItemType, got %v", err)
	}
}

func TestStatusCanTransition(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusCreated, StatusPaid}:   true,
		{StatusCreated, StatusFailed}: true,
		{StatusFailed, StatusPaid}:    true,
		{StatusPaid, StatusPaid}:      true,
		{StatusPaid, StatusFailed}:    false,
		{StatusPaid, StatusCreated}:   false,
		{StatusFailed, StatusCreated}: false,
	}
	for pair, want := range allowed {
		if got := pair[0].CanTransition(pair[1]); got != want {
			t.Fatalf("%s -> %s: expected %v, got %v", pair[0], pair[1], want, got)
		}
	}
}

func TestOrderBindItemAndValidate(t *testing.T) {
	o := Order{OrderID: "o1", GatewayOrderRef: "order_1", Amount: 900, Status: StatusCreated}
	if err := o.Validate(); err == nil {
		t.Fatal("expected error without item reference")
	}
	if err := o.BindItem(ItemCourse, 7); err != nil {
		t.Fatalf("bind course: %v", err)
	}
	if err := o.BindItem(ItemCertificate, 3); err != nil {
		t.Fatalf("bind certificate: %v", err)
	}
	if o.CourseID != nil || o.ApplicationID == nil || *o.ApplicationID != 3 {
		t.Fatalf("rebinding must leave only the application reference, got %+v", o)
	}
	if o.ItemType() != ItemCertificate || o.ItemID() != 3 {
		t.Fatalf("unexpected item %s/%d", o.ItemType(), o.ItemID())
	}
	if err := o.Validate(); err != nil {
		t.Fatalf("expected valid order, got %v", err)
	}
}
