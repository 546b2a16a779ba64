package enums

import "testing"

func TestParseBatchStatus(t *testing.T) {
	for _, raw := range []string{"draft", "imported", "cancelled", "discontinued", "sold_out"} {
		got, err := ParseBatchStatus(raw)
		if err != nil {
			t.Fatalf("ParseBatchStatus(%q) unexpected error: %v", raw, err)
		}
		if got.String() != raw {
			t.Fatalf("expected %q got %q", raw, got)
		}
	}
	if _, err := ParseBatchStatus("Imported"); err == nil {
		t.Fatal("expected case-sensitive parse to fail")
	}
}

func TestParseOrderStatus(t *testing.T) {
	if _, err := ParseOrderStatus("shipping"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseOrderStatus("returned"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
	if OrderStatus("").IsValid() {
		t.Fatal("empty status must be invalid")
	}
}

func TestPaymentMethodIsOnline(t *testing.T) {
	if PaymentMethodCOD.IsOnline() {
		t.Fatal("cod must not be online")
	}
	for _, method := range []PaymentMethod{PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodWallet} {
		if !method.IsOnline() {
			t.Fatalf("%s should be online", method)
		}
	}
	if PaymentMethod("cheque").IsOnline() {
		t.Fatal("unknown methods are never online")
	}
}

func TestParseOutboxEventType(t *testing.T) {
	got, err := ParseOutboxEventType("stock_allocated")
	if err != nil || got != EventStockAllocated {
		t.Fatalf("expected stock_allocated, got %q err=%v", got, err)
	}
	if _, err := ParseOutboxAggregateType("vendor_order"); err == nil {
		t.Fatal("expected unknown aggregate to fail")
	}
}
