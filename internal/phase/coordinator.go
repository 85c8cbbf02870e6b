// Package phase provides the keyed FIFO wait/notify facility driving the
// startup handshake and other one-shot cross-boundary signals.
package phase

import (
	"sync"

	"go.uber.org/zap"

	"github.com/suredesigns/alier-bridge/internal/dispatch"
)

// DefaultTopic is the fallback: a signal on a topic with no queued waiters
// is redirected here instead of being dropped as an error.
const DefaultTopic = "default"

// Coordinator queues continuations under string topics and drains them in
// enqueue order. Each enqueued waiter is a one-shot rendezvous: signals are
// not buffered and topics are not persistent broadcast channels.
type Coordinator struct {
	mu      sync.Mutex
	waiters map[string][]func()
	log     *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// New creates an empty coordinator.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		waiters: make(map[string][]func()),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enqueue appends a continuation under topic. An empty topic enqueues under
// DefaultTopic. Entries for a topic are created lazily and removed when
// drained.
func (c *Coordinator) Enqueue(topic string, fn func()) {
	if topic == "" {
		topic = DefaultTopic
	}
	c.mu.Lock()
	c.waiters[topic] = append(c.waiters[topic], fn)
	c.mu.Unlock()
}

// Wait enqueues a waiter under topic and returns a future that settles when
// that waiter is drained.
func (c *Coordinator) Wait(topic string) *dispatch.Future {
	fut := dispatch.NewFuture()
	c.Enqueue(topic, func() { fut.Resolve(nil) })
	return fut
}

// Signal drains and invokes, in enqueue order, every continuation currently
// queued under topic. A topic with no queued continuations redirects to
// DefaultTopic as an explicit fallback, not an error.
func (c *Coordinator) Signal(topic string) {
	if topic == "" {
		topic = DefaultTopic
	}

	c.mu.Lock()
	queue := c.waiters[topic]
	drained := topic
	if len(queue) == 0 && topic != DefaultTopic {
		queue = c.waiters[DefaultTopic]
		drained = DefaultTopic
	}
	delete(c.waiters, drained)
	c.mu.Unlock()

	c.log.Debug("phase signal",
		zap.String("topic", topic),
		zap.String("drained", drained),
		zap.Int("waiters", len(queue)))

	for _, fn := range queue {
		fn()
	}
}

// Pending returns the number of continuations queued under topic.
func (c *Coordinator) Pending(topic string) int {
	if topic == "" {
		topic = DefaultTopic
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters[topic])
}
