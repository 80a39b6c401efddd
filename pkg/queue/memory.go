package queue

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBroker is an in-process transport with kafka-like delivery order.
// One broker serves both ends: publish on one side, consume on the other.
// Used by tests and the single-process dev mode.
type MemoryBroker struct {
	mu     sync.Mutex
	topics map[string]chan Message
	closed bool
}

// NewMemoryBroker returns an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		topics: map[string]chan Message{},
	}
}

func (b *MemoryBroker) topic(name string) chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.topics[name]
	if !ok {
		ch = make(chan Message, 1024)
		b.topics[name] = ch
	}
	return ch
}

// Publish enqueues a message; it never blocks unless the topic buffer is
// full.
func (b *MemoryBroker) Publish(ctx context.Context, topic, key string, value []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("broker is closed")
	}
	b.mu.Unlock()

	select {
	case b.topic(topic) <- Message{Topic: topic, Key: key, Value: value}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consumer returns a Consumer reading the given topics from this broker.
func (b *MemoryBroker) Consumer(topics ...string) *MemoryConsumer {
	return &MemoryConsumer{
		broker: b,
		topics: topics,
		stopCh: make(chan struct{}),
	}
}

// Close marks the broker closed for publishing.
func (b *MemoryBroker) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// MemoryConsumer delivers broker messages to a handler. Handler errors are
// recorded but do not stop the loop, matching the kafka consumer's
// per-record isolation.
type MemoryConsumer struct {
	broker *MemoryBroker
	topics []string
	stopCh chan struct{}

	// LastErr records the most recent handler failure for tests.
	mu      sync.Mutex
	lastErr error
}

// Start dispatches messages from every subscribed topic until the context is
// cancelled or Stop is called.
func (c *MemoryConsumer) Start(ctx context.Context, h Handler) error {
	var wg sync.WaitGroup
	done := make(chan struct{})

	for _, topic := range c.topics {
		ch := c.broker.topic(topic)
		wg.Add(1)
		go func(ch chan Message) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-c.stopCh:
					return
				case msg := <-ch:
					if err := h(ctx, msg); err != nil {
						c.mu.Lock()
						c.lastErr = err
						c.mu.Unlock()
					}
				}
			}
		}(ch)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		<-done
		return ctx.Err()
	case <-c.stopCh:
		<-done
		return nil
	}
}

// Stop terminates the dispatch loops.
func (c *MemoryConsumer) Stop() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
}

// LastErr returns the most recent handler error, if any.
func (c *MemoryConsumer) LastErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}
