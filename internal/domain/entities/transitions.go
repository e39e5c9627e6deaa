package entities

// Trigger is an event that may move an order between statuses.
type Trigger string

const (
	TriggerCancel     Trigger = "cancel"
	TriggerModify     Trigger = "modify"
	TriggerCreate     Trigger = "create"
	TriggerBulkRefill Trigger = "bulk_refill"
)

// statusTransitions is the complete status machine. A create against a live order keeps
// its status (fields are only filled in); against a cancelled order it revives it.
var statusTransitions = map[OrderStatus]map[Trigger]OrderStatus{
	OrderStatusNew: {
		TriggerCancel:     OrderStatusCancelled,
		TriggerModify:     OrderStatusModified,
		TriggerCreate:     OrderStatusNew,
		TriggerBulkRefill: OrderStatusNew,
	},
	OrderStatusModified: {
		TriggerCancel:     OrderStatusCancelled,
		TriggerModify:     OrderStatusModified,
		TriggerCreate:     OrderStatusModified,
		TriggerBulkRefill: OrderStatusNew,
	},
	OrderStatusCancelled: {
		TriggerCancel:     OrderStatusCancelled,
		TriggerModify:     OrderStatusModified,
		TriggerCreate:     OrderStatusNew,
		TriggerBulkRefill: OrderStatusNew,
	},
}

// initialStatus is the status of an order first seen through a trigger. Cancel has no
// entry: an order that was never placed cannot be cancelled.
var initialStatus = map[Trigger]OrderStatus{
	TriggerCreate: OrderStatusNew,
	TriggerModify: OrderStatusModified,
}

// NextStatus returns the status after trigger fires on an order in status from.
func NextStatus(from OrderStatus, trigger Trigger) (OrderStatus, bool) {
	next, ok := statusTransitions[from][trigger]
	return next, ok
}

// InitialStatus returns the status of an order created by trigger.
func InitialStatus(trigger Trigger) (OrderStatus, bool) {
	s, ok := initialStatus[trigger]
	return s, ok
}

// Trigger maps a candidate command onto the status machine.
func (k CommandKind) Trigger() Trigger {
	switch k {
	case CommandCancel:
		return TriggerCancel
	case CommandModify:
		return TriggerModify
	default:
		return TriggerCreate
	}
}
