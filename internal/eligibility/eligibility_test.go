package eligibility

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func testStore() *Store {
	return FromDataset(Dataset{
		Customers: []Customer{
			{
				Email: "a@b.com",
				Last4: "1234",
				Orders: []Order{
					{OrderNumber: 1, OrderID: "X1", Eligible: true, Total: 50.0},
					{OrderNumber: 2, OrderID: "X2", Eligible: false, Total: 19.99},
				},
			},
			{
				Email: "c@d.com",
				Last4: "9876",
				Orders: []Order{
					{OrderNumber: 1, OrderID: "Y1", Eligible: false, Total: 12.0},
				},
			},
		},
	})
}

func TestResolveApproved(t *testing.T) {
	d := testStore().Resolve("a@b.com", "1234", 1)
	want := Decision{Status: StatusApproved, RefundID: "RFND-X1", Amount: 50.0}
	if d != want {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if !d.Approved() {
		t.Fatalf("expected approved decision")
	}
}

func TestResolveEmailCaseInsensitive(t *testing.T) {
	d := testStore().Resolve("A@B.COM", "1234", 1)
	if d.Status != StatusApproved {
		t.Fatalf("expected approval for case-insensitive email, got %+v", d)
	}
}

func TestResolveDenied(t *testing.T) {
	d := testStore().Resolve("a@b.com", "1234", 2)
	if d.Status != StatusDenied {
		t.Fatalf("expected denied, got %+v", d)
	}
	if d.Reason != "Order not eligible for refund" {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
	if d.RefundID != "" || d.Amount != 0 {
		t.Fatalf("denied decision should not carry refund fields: %+v", d)
	}
}

func TestResolveNotFound(t *testing.T) {
	store := testStore()

	cases := []struct {
		name  string
		email string
		last4 string
		order int
	}{
		{"unknown email", "nobody@b.com", "1234", 1},
		{"mismatched last4", "a@b.com", "0000", 1},
		{"unknown order number", "a@b.com", "1234", 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := store.Resolve(tc.email, tc.last4, tc.order)
			if d.Status != StatusError {
				t.Fatalf("expected error decision, got %+v", d)
			}
			if d.Reason != "Customer or order not found" {
				t.Fatalf("unexpected reason: %s", d.Reason)
			}
		})
	}
}

func TestResolveFirstMatchWinsOnDuplicates(t *testing.T) {
	store := FromDataset(Dataset{
		Customers: []Customer{
			{Email: "dup@b.com", Last4: "1111", Orders: []Order{{OrderNumber: 1, OrderID: "FIRST", Eligible: true, Total: 10}}},
			{Email: "dup@b.com", Last4: "1111", Orders: []Order{{OrderNumber: 1, OrderID: "SECOND", Eligible: true, Total: 99}}},
		},
	})

	d := store.Resolve("dup@b.com", "1111", 1)
	if d.RefundID != "RFND-FIRST" {
		t.Fatalf("expected first customer record to win, got %+v", d)
	}

	// The first matching customer is authoritative even when it lacks the
	// requested order.
	d = store.Resolve("dup@b.com", "1111", 2)
	if d.Status != StatusError {
		t.Fatalf("expected error for order missing on first match, got %+v", d)
	}
}

func TestResolveIdempotent(t *testing.T) {
	store := testStore()
	first := store.Resolve("a@b.com", "1234", 1)
	second := store.Resolve("a@b.com", "1234", 1)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("resolution not idempotent: %+v vs %+v", first, second)
	}
}

func TestOpenLoadsDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order_data.json")
	payload := `{"customers":[{"email":"a@b.com","last4":"1234","orders":[{"order_number":1,"order_id":"X1","eligible":true,"total":50.0}]}]}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open dataset: %v", err)
	}
	if store.Customers() != 1 {
		t.Fatalf("expected 1 customer, got %d", store.Customers())
	}
	if d := store.Resolve("a@b.com", "1234", 1); d.RefundID != "RFND-X1" {
		t.Fatalf("unexpected decision from loaded store: %+v", d)
	}
}

func TestOpenFailsOnMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing dataset")
	}
}

func TestOpenFailsOnMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order_data.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for malformed dataset")
	}
}
