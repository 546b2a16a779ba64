package orders

import (
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

var orderTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:   {enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed: {enums.OrderStatusPreparing, enums.OrderStatusCancelled},
	enums.OrderStatusPreparing: {enums.OrderStatusShipping, enums.OrderStatusCancelled},
	enums.OrderStatusShipping:  {enums.OrderStatusDelivered},
	enums.OrderStatusDelivered: {},
	enums.OrderStatusCancelled: {},
}

// CanTransition reports whether an admin may move an order from -> to.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range orderTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// AllowedTransitions lists the statuses reachable from the given one.
func AllowedTransitions(from enums.OrderStatus) []enums.OrderStatus {
	return append([]enums.OrderStatus{}, orderTransitions[from]...)
}

// IsTerminal reports whether no transition leaves the status.
func IsTerminal(status enums.OrderStatus) bool {
	return len(orderTransitions[status]) == 0
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "order status transition not allowed").
		WithDetails(map[string]any{"from": from, "to": to})
}
