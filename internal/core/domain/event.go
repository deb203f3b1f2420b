package domain

// EventKind identifies a bus message type.
type EventKind string

const (
	// EventConnected is synthesized by the bus for each new subscriber.
	EventConnected EventKind = "connected"
	// EventAllStatus asks viewers to refresh the full service list.
	EventAllStatus EventKind = "all_status"
	// EventServiceUpdate carries a status transition of one service.
	EventServiceUpdate EventKind = "service_update"
	// EventUnknown carries an unstructured error message.
	EventUnknown EventKind = "unknown"
)

// Event is the payload of the event bus. Ordering is publish order.
type Event struct {
	Kind      EventKind
	ServiceID int64
	Status    Status
	Message   string
}

// ServiceUpdate returns an EventServiceUpdate for the given service.
func ServiceUpdate(id int64, status Status) Event {
	return Event{Kind: EventServiceUpdate, ServiceID: id, Status: status}
}

// AllStatus returns a request for a full status refresh.
func AllStatus() Event {
	return Event{Kind: EventAllStatus}
}

// UnknownEvent returns an unstructured error notification.
func UnknownEvent(msg string) Event {
	return Event{Kind: EventUnknown, Message: msg}
}
