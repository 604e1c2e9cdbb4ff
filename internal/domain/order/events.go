package order

import "time"

const eventPrefix = "order."

// StatusChangedEvent is emitted after an order transition commits. It feeds
// the notification collaborator and carries no consistency guarantees.
type StatusChangedEvent struct {
	OrderID    string
	UserID     string
	From       Status
	To         Status
	Amount     int64
	OccurredAt time.Time
}

func (e StatusChangedEvent) EventName() string { return EventName(e.To) }

// EventName is the bus topic for transitions into s.
func EventName(s Status) string { return eventPrefix + string(s) }

func NewStatusChangedEvent(o *Order, from Status) StatusChangedEvent {
	return StatusChangedEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		From:       from,
		To:         o.Status,
		Amount:     o.TotalAmount,
		OccurredAt: time.Now().UTC(),
	}
}
