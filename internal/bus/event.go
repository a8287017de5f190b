package bus

import "time"

// Event kinds published inside the daemon. Subscribers filter by prefix,
// so "message." receives both message kinds.
const (
	KindMessageAppended = "message.appended"
	KindMessagesRead    = "message.read"
	KindPresenceChanged = "presence.changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
