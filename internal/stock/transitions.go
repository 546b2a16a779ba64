package stock

import (
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// batchTransitions is the only source of legal manual batch moves. sold_out
// is absent as a target: only allocation reaches it.
var batchTransitions = map[enums.BatchStatus][]enums.BatchStatus{
	enums.BatchStatusDraft:        {enums.BatchStatusImported, enums.BatchStatusCancelled, enums.BatchStatusDiscontinued},
	enums.BatchStatusImported:     {enums.BatchStatusCancelled, enums.BatchStatusDiscontinued},
	enums.BatchStatusCancelled:    {enums.BatchStatusImported, enums.BatchStatusDiscontinued},
	enums.BatchStatusDiscontinued: {},
	enums.BatchStatusSoldOut:      {},
}

// CanTransition reports whether a manual move from -> to is legal.
func CanTransition(from, to enums.BatchStatus) bool {
	for _, candidate := range batchTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// AllowedTransitions lists the legal manual targets from a status.
func AllowedTransitions(from enums.BatchStatus) []enums.BatchStatus {
	return append([]enums.BatchStatus{}, batchTransitions[from]...)
}

func invalidTransition(from, to enums.BatchStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "batch status transition not allowed").
		WithDetails(map[string]any{"from": from, "to": to})
}
