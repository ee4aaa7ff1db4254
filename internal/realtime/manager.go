package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shifalink/portal-client/internal/observability/metrics"
	"github.com/shifalink/portal-client/internal/session"
	"github.com/shifalink/portal-client/pkg/logging"
)

// ErrNotAuthenticated means no connection can exist: the session is logged
// out or has no token.
var ErrNotAuthenticated = errors.New("realtime: session not authenticated")

// TransportFactory builds a fresh Transport for each connection.
type TransportFactory func() Transport

// Conn is one live socket connection bound to the token it was built from.
type Conn struct {
	token     string
	transport Transport
	registry  *Registry

	ctx       context.Context
	cancel    context.CancelFunc
	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// Token returns the bearer token this connection was established with.
func (c *Conn) Token() string { return c.token }

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.cancel()
		_ = c.transport.Close()
	})
	<-c.done
}

// dispatchLoop drains the transport until it closes its channels, routing
// frames through the registry and logging transport errors. Running on a
// single goroutine preserves the transport's delivery order end to end.
func (c *Conn) dispatchLoop(logger *logging.Logger) {
	defer close(c.done)
	frames := c.transport.Frames()
	errs := c.transport.Errors()
	for frames != nil || errs != nil {
		select {
		case f, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			c.registry.dispatch(c.ctx, c, f)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			// Non-fatal: the transport owns reconnection, we only surface
			// the failure for diagnostics.
			logger.Warn("realtime: transport error", "error", err)
		}
	}
}

// Manager owns the single socket connection for the running client. A
// connection exists iff the observed session is authenticated; rotating the
// token replaces the connection, tearing the old one down first.
type Manager struct {
	mu       sync.Mutex
	factory  TransportFactory
	registry *Registry
	logger   *logging.Logger
	metrics  *metrics.RealtimeMetrics
	conn     *Conn
}

func NewManager(factory TransportFactory, registry *Registry, logger *logging.Logger, m *metrics.RealtimeMetrics) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		factory:  factory,
		registry: registry,
		logger:   logger,
		metrics:  m,
	}
}

// EnsureConnection reconciles the connection with the session: tears down
// when unauthenticated, reuses the live connection for the same token, and
// replaces it when the token changed. The old connection's listeners are
// fully detached before the new connection attaches anything.
func (m *Manager) EnsureConnection(ctx context.Context, sess session.Session) (*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !sess.Authenticated || sess.Token == "" {
		m.teardownLocked()
		return nil, ErrNotAuthenticated
	}
	if m.conn != nil && m.conn.token == sess.Token {
		return m.conn, nil
	}

	m.teardownLocked()

	transport := m.factory()
	if err := transport.Connect(ctx, sess.Token); err != nil {
		return nil, fmt.Errorf("realtime: connect: %w", err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	conn := &Conn{
		token:     sess.Token,
		transport: transport,
		registry:  m.registry,
		ctx:       connCtx,
		cancel:    cancel,
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	m.registry.bind(conn)
	go conn.dispatchLoop(m.logger)

	m.conn = conn
	m.metrics.ObserveConnect()
	m.logger.Info("realtime: connection established")
	return conn, nil
}

// Current returns the live connection, if any.
func (m *Manager) Current() *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// Teardown closes the connection and releases all channel state reachable
// from it. Safe to call multiple times.
func (m *Manager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

func (m *Manager) teardownLocked() {
	if m.conn == nil {
		return
	}
	conn := m.conn
	m.conn = nil
	// Detach listeners before closing the transport so no event delivered
	// during shutdown reaches a handler, and nothing stale survives into a
	// successor connection.
	m.registry.Clear()
	conn.close()
	m.logger.Info("realtime: connection torn down")
}
