package events

// Message is a received notification.
type Message struct {
	Topic string
	Data  []byte
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers messages on the returned channel until the returned
	// cancel function is called.
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}
