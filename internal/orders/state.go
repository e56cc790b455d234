package orders

import (
	"github.com/pagehaven/bookstore-backend/pkg/enums"
)

// legalTransitions is the authoritative edge list of the order state machine.
// Any move not listed here is rejected with a state conflict.
var legalTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPendingPayment: {
		enums.OrderStatusPaid,
		enums.OrderStatusPaymentFailed,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusPaid: {
		enums.OrderStatusProcessing,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusProcessing: {
		enums.OrderStatusShipped,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusShipped: {
		enums.OrderStatusDelivered,
	},
	enums.OrderStatusDelivered: {
		enums.OrderStatusCompleted,
	},
	enums.OrderStatusPaymentFailed: {
		enums.OrderStatusPendingPayment,
	},
}

// CanTransition reports whether the move from one status to another is legal.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range legalTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
