package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/shifalink/portal-client/pkg/logging"
)

// SubscriptionState tracks a channel's lifecycle.
type SubscriptionState int

const (
	SubscriptionPending SubscriptionState = iota
	SubscriptionSubscribed
	SubscriptionFailed
)

// Handler consumes one event payload. The context is the owning
// connection's; it is cancelled on teardown.
type Handler func(ctx context.Context, payload []byte)

type binding struct {
	event string
	id    string
	fn    Handler
}

// Channel is a cached private-channel handle with its listener bindings.
// Reference-counted: each GetOrSubscribe takes a reference, each Release
// drops one, and the last Release unsubscribes.
type Channel struct {
	name     string
	state    SubscriptionState
	refs     int
	bindings []binding
}

func (c *Channel) Name() string { return c.name }

// Registry caches channel handles keyed by name, bound to exactly one
// connection at a time. Handles from a previous connection are never reused:
// binding a new connection clears the cache.
type Registry struct {
	mu       sync.Mutex
	conn     *Conn
	channels map[string]*Channel
	logger   *logging.Logger
}

func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		channels: make(map[string]*Channel),
		logger:   logger,
	}
}

// bind keys the cache to conn, dropping any state from a previous one.
func (r *Registry) bind(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conn = conn
	r.channels = make(map[string]*Channel)
}

// GetOrSubscribe returns the cached handle for name on the current
// connection, subscribing first when there is none. A concurrent call for
// the same name gets the same (possibly still pending) handle rather than a
// second subscription.
func (r *Registry) GetOrSubscribe(ctx context.Context, conn *Conn, name string) (*Channel, error) {
	if conn == nil {
		return nil, fmt.Errorf("realtime: no connection")
	}

	r.mu.Lock()
	if r.conn != conn {
		r.mu.Unlock()
		return nil, fmt.Errorf("realtime: connection superseded")
	}
	if ch, ok := r.channels[name]; ok {
		ch.refs++
		r.mu.Unlock()
		return ch, nil
	}
	ch := &Channel{name: name, state: SubscriptionPending, refs: 1}
	r.channels[name] = ch
	r.mu.Unlock()

	err := conn.transport.Subscribe(ctx, name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != conn || conn.isClosed() {
		// The connection was torn down while the subscribe was in flight
		// (token rotation, logout). Discard the result: nothing may attach
		// under the successor connection.
		if r.channels[name] == ch {
			delete(r.channels, name)
		}
		return nil, fmt.Errorf("realtime: subscribe %s: connection torn down", name)
	}
	if err != nil {
		ch.state = SubscriptionFailed
		delete(r.channels, name)
		return nil, err
	}
	ch.state = SubscriptionSubscribed
	return ch, nil
}

// On registers a handler for an event on a channel. Registering the same
// (channel, event, handlerID) triple again is a no-op, so a double-mounted
// component cannot double-handle events.
func (r *Registry) On(ch *Channel, event, handlerID string, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range ch.bindings {
		if b.event == event && b.id == handlerID {
			return
		}
	}
	ch.bindings = append(ch.bindings, binding{event: event, id: handlerID, fn: fn})
}

// Off removes a binding; removing one not present is a no-op.
func (r *Registry) Off(ch *Channel, event, handlerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, b := range ch.bindings {
		if b.event == event && b.id == handlerID {
			ch.bindings = append(ch.bindings[:i], ch.bindings[i+1:]...)
			return
		}
	}
}

// Release drops one reference; the last reference unsubscribes and evicts
// the cache entry.
func (r *Registry) Release(ch *Channel) {
	r.mu.Lock()
	if r.channels[ch.name] != ch {
		r.mu.Unlock()
		return
	}
	ch.refs--
	if ch.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.channels, ch.name)
	ch.bindings = nil
	conn := r.conn
	r.mu.Unlock()

	if conn != nil {
		if err := conn.transport.Unsubscribe(ch.name); err != nil {
			r.logger.Debug("realtime: unsubscribe failed", "channel", ch.name, "error", err)
		}
	}
}

// Clear detaches every binding and drops the cache. The connection manager
// calls this before closing the transport so no listener from the old
// connection survives into the next one.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.channels {
		ch.bindings = nil
	}
	r.channels = make(map[string]*Channel)
	r.conn = nil
}

// dispatch routes a frame from conn to its channel's handlers. Frames from a
// superseded connection are dropped. A panicking handler is contained and
// logged; it never breaks delivery of subsequent events.
func (r *Registry) dispatch(ctx context.Context, conn *Conn, f Frame) {
	r.mu.Lock()
	if r.conn != conn {
		r.mu.Unlock()
		return
	}
	ch, ok := r.channels[f.Channel]
	if !ok {
		r.mu.Unlock()
		return
	}
	handlers := make([]Handler, 0, len(ch.bindings))
	for _, b := range ch.bindings {
		if b.event == f.Event {
			handlers = append(handlers, b.fn)
		}
	}
	r.mu.Unlock()

	for _, fn := range handlers {
		r.invoke(ctx, fn, f)
	}
}

func (r *Registry) invoke(ctx context.Context, fn Handler, f Frame) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("realtime: handler panicked", "channel", f.Channel, "event", f.Event, "panic", rec)
		}
	}()
	fn(ctx, f.Payload)
}
