package stock

import (
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from enums.BatchStatus
		to   enums.BatchStatus
		want bool
	}{
		{enums.BatchStatusDraft, enums.BatchStatusImported, true},
		{enums.BatchStatusDraft, enums.BatchStatusCancelled, true},
		{enums.BatchStatusDraft, enums.BatchStatusDiscontinued, true},
		{enums.BatchStatusImported, enums.BatchStatusCancelled, true},
		{enums.BatchStatusImported, enums.BatchStatusDiscontinued, true},
		{enums.BatchStatusImported, enums.BatchStatusDraft, false},
		{enums.BatchStatusCancelled, enums.BatchStatusImported, true},
		{enums.BatchStatusCancelled, enums.BatchStatusDiscontinued, true},
		{enums.BatchStatusCancelled, enums.BatchStatusDraft, false},
		{enums.BatchStatusDiscontinued, enums.BatchStatusImported, false},
		{enums.BatchStatusSoldOut, enums.BatchStatusImported, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestSoldOutIsNeverAManualTarget(t *testing.T) {
	for from := range batchTransitions {
		if CanTransition(from, enums.BatchStatusSoldOut) {
			t.Fatalf("%s must not reach sold_out manually", from)
		}
	}
}

func TestAllowedTransitionsReturnsCopy(t *testing.T) {
	next := AllowedTransitions(enums.BatchStatusDraft)
	next[0] = enums.BatchStatusSoldOut
	if CanTransition(enums.BatchStatusDraft, enums.BatchStatusSoldOut) {
		t.Fatal("mutating the returned slice must not change the table")
	}
}
