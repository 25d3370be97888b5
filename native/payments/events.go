package payments

import (
	"strconv"
)

const (
	EventTypeOrderCreated   = "payments.order.created"
	EventTypeOrderSettled   = "payments.order.settled"
	EventTypeOrderRefunded  = "payments.order.refunded"
	EventTypeOrderRejected  = "payments.order.rejected"
	EventTypeBalanceClaimed = "payments.balance.claimed"
	EventTypeOrdersCleared  = "payments.orders.cleared"
)

// Event is the canonical record emitted on every ledger state transition.
type Event struct {
	Type       string
	Attributes map[string]string
}

// Emitter receives ledger events. Implementations must not block.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// NewOrderCreatedEvent returns the canonical payload for a newly escrowed
// deposit.
func NewOrderCreatedEvent(o *Order) Event { return newOrderEvent(EventTypeOrderCreated, o) }

// NewOrderSettledEvent returns the payload emitted when a deposit is split
// between the fee account and the store's recipients.
func NewOrderSettledEvent(o *Order, plan *Plan) Event {
	event := newOrderEvent(EventTypeOrderSettled, o)
	if plan != nil {
		event.Attributes["fee"] = strconv.FormatInt(plan.Fee, 10)
		event.Attributes["remainder"] = strconv.FormatInt(plan.Remainder, 10)
		event.Attributes["recipients"] = strconv.Itoa(len(plan.Payouts))
		event.Attributes["slippage"] = strconv.FormatFloat(plan.Slippage, 'f', -1, 64)
	}
	return event
}

// NewOrderRefundedEvent returns the payload emitted when an accepted order's
// token is unsupported by the store and the deposit moves to the payer's
// refund balance.
func NewOrderRefundedEvent(o *Order) Event { return newOrderEvent(EventTypeOrderRefunded, o) }

// NewOrderRejectedEvent returns the payload emitted when an operator rejects
// an order.
func NewOrderRejectedEvent(o *Order) Event { return newOrderEvent(EventTypeOrderRejected, o) }

// NewBalanceClaimedEvent returns the payload emitted when a payer drains
// their refund balance.
func NewBalanceClaimedEvent(payer string, entries int, total int64) Event {
	return Event{
		Type: EventTypeBalanceClaimed,
		Attributes: map[string]string{
			"payer":   payer,
			"entries": strconv.Itoa(entries),
			"total":   strconv.FormatInt(total, 10),
		},
	}
}

// NewOrdersClearedEvent returns the payload emitted by the administrative
// clear operation.
func NewOrdersClearedEvent(count int) Event {
	return Event{
		Type: EventTypeOrdersCleared,
		Attributes: map[string]string{
			"orders": strconv.Itoa(count),
		},
	}
}

func newOrderEvent(eventType string, o *Order) Event {
	attrs := make(map[string]string)
	if o != nil {
		attrs["id"] = strconv.FormatUint(o.ID, 10)
		attrs["orderRef"] = o.OrderRef
		attrs["payer"] = o.Payer.String()
		attrs["token"] = o.Token.String()
		attrs["amount"] = strconv.FormatInt(o.Amount, 10)
		attrs["createdAt"] = strconv.FormatInt(o.CreatedAt, 10)
	}
	return Event{Type: eventType, Attributes: attrs}
}
