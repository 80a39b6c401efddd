// Package queue abstracts the notification transport between pipeline
// stages. The kafka implementation speaks to Redpanda/Kafka via franz-go;
// the memory implementation backs hermetic tests.
package queue

import "context"

// Message is a single queue record.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Publisher sends messages to a topic.
type Publisher interface {
	// Publish sends one message and waits for broker acknowledgement.
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Handler processes one consumed message. Returning an error leaves the
// message uncommitted so it is redelivered.
type Handler func(ctx context.Context, msg Message) error

// Consumer delivers messages from subscribed topics to a handler.
type Consumer interface {
	// Start blocks, polling and dispatching until the context is cancelled
	// or Stop is called.
	Start(ctx context.Context, h Handler) error
	// Stop shuts the consumer down and releases its connections.
	Stop()
}
