package order

import (
	"errors"

	"github.com/trendora/order-svc/internal/service/models/apperrors"
	"github.com/trendora/order-svc/internal/service/models/principal"
)

// Status is the fulfillment status of an order. It is orthogonal to
// PaymentConfirmed: a gateway order moves through fulfillment regardless of
// which channel eventually confirmed the payment.
type Status string

const (
	StatusOrderPlaced    Status = "Order Placed"
	StatusPacking        Status = "Packing"
	StatusShipped        Status = "Shipped"
	StatusOutForDelivery Status = "Out for Delivery"
	StatusDelivered      Status = "Delivered"
	StatusCancelled      Status = "Cancelled"
)

var ErrInvalidStatus = errors.New("invalid order status")

func (s Status) String() string {
	return string(s)
}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusOrderPlaced, StatusPacking, StatusShipped,
		StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return Status(s), nil
	default:
		return "", ErrInvalidStatus
	}
}

// IsTerminal reports whether no further fulfillment transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// next returns the strictly-forward successor in the fulfillment sequence,
// or "" when there is none.
func (s Status) next() Status {
	switch s {
	case StatusOrderPlaced:
		return StatusPacking
	case StatusPacking:
		return StatusShipped
	case StatusShipped:
		return StatusOutForDelivery
	case StatusOutForDelivery:
		return StatusDelivered
	default:
		return ""
	}
}

// Transition validates a requested fulfillment transition. It is a pure
// function of its arguments: no clock, no state, no I/O.
//
// Rules:
//   - Requesting the current status again is denied, even though the caller
//     could treat it as a no-op.
//   - Operators may move one strictly-forward step, or cancel any order that
//     is not yet delivered.
//   - Owners may only cancel, and only while the order is still in
//     "Order Placed" or "Packing".
func Transition(current, requested Status, role principal.Role) error {
	if requested == current {
		return apperrors.StateConflict("order is already marked as %s", current)
	}

	if requested == StatusCancelled {
		if current == StatusDelivered {
			return apperrors.StateConflict("a delivered order cannot be cancelled")
		}
		if current == StatusCancelled {
			// unreachable: equal statuses are rejected above
			return apperrors.StateConflict("order is already cancelled")
		}
		switch role {
		case principal.RoleOperator:
			return nil
		case principal.RoleOwner:
			if current == StatusOrderPlaced || current == StatusPacking {
				return nil
			}

			return apperrors.StateConflict("order in status %s can no longer be cancelled by its owner", current)
		default:
			return apperrors.Forbidden("role %s may not cancel orders", role)
		}
	}

	if role != principal.RoleOperator {
		return apperrors.Forbidden("only operators may update fulfillment status")
	}

	if current.IsTerminal() {
		return apperrors.StateConflict("order in terminal status %s cannot move to %s", current, requested)
	}

	if requested != current.next() {
		return apperrors.StateConflict("cannot move order from %s to %s", current, requested)
	}

	return nil
}
