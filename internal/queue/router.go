package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoHandler is returned for a message whose type has no subscriber.
var ErrNoHandler = errors.New("queue: no handler for topic")

// Handler processes one envelope.
type Handler func(ctx context.Context, env Envelope) error

// Router maps topics to handlers.  Registration is explicit; there are no
// wildcard subscriptions.
type Router struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string][]Handler)}
}

// Handle appends handlers for topic.
func (r *Router) Handle(topic string, hs ...Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[topic] = append(r.handlers[topic], hs...)
}

// Dispatch runs every handler registered for env.Type in order and stops at
// the first error.
func (r *Router) Dispatch(ctx context.Context, env Envelope) error {
	r.mu.RLock()
	hs := r.handlers[env.Type]
	r.mu.RUnlock()
	if len(hs) == 0 {
		return fmt.Errorf("%w: %s", ErrNoHandler, env.Type)
	}
	for _, h := range hs {
		if err := h(ctx, env); err != nil {
			return err
		}
	}
	return nil
}
