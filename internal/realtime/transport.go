package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shifalink/portal-client/internal/observability/metrics"
	"github.com/shifalink/portal-client/pkg/logging"
)

// Transport is the injected push capability: the connection manager and the
// registry are tested against a deterministic fake, the real implementation
// speaks the broadcast server's websocket protocol.
type Transport interface {
	// Connect dials and performs the handshake with the given bearer token.
	Connect(ctx context.Context, token string) error
	// Subscribe joins a private channel, authorizing with the current
	// bearer token, and returns after the server acknowledges.
	Subscribe(ctx context.Context, channel string) error
	// Unsubscribe leaves a channel.
	Unsubscribe(channel string) error
	// Frames delivers channel events. Closed after Close.
	Frames() <-chan Frame
	// Errors surfaces transport-level failures for diagnostics. Reconnection
	// is the transport's own responsibility; errors here are not fatal.
	Errors() <-chan error
	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// TokenFunc returns the bearer token to authorize with. It is consulted on
// every (re)subscription so a rotated token is always the one sent.
type TokenFunc func() string

// SocketConfig configures the websocket transport.
type SocketConfig struct {
	// URL is the websocket endpoint, e.g. "ws://host:8080/app/<key>".
	URL string
	// AuthURL is the private-channel authorization endpoint.
	AuthURL string
	// Token supplies the current bearer token.
	Token TokenFunc
	// BaseDelay and MaxDelay bound the reconnect backoff.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	HTTPClient *http.Client
	Logger     *logging.Logger
	Metrics    *metrics.RealtimeMetrics
}

// wireMessage is the broadcast server's message envelope.
type wireMessage struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// SocketTransport is the production Transport over gorilla/websocket. It
// reconnects with exponential backoff and resubscribes its channels, fetching
// a fresh channel authorization each time.
type SocketTransport struct {
	cfg    SocketConfig
	logger *logging.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	socketID string
	subs     map[string]struct{}
	acks     map[string]chan error
	token    string

	writeMu sync.Mutex

	frames    chan Frame
	errs      chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func NewSocketTransport(cfg SocketConfig) *SocketTransport {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &SocketTransport{
		cfg:    cfg,
		logger: logger,
		subs:   make(map[string]struct{}),
		acks:   make(map[string]chan error),
		frames: make(chan Frame, 64),
		errs:   make(chan error, 8),
		closed: make(chan struct{}),
	}
}

func (t *SocketTransport) Frames() <-chan Frame { return t.frames }
func (t *SocketTransport) Errors() <-chan error { return t.errs }

func (t *SocketTransport) Connect(ctx context.Context, token string) error {
	t.mu.Lock()
	t.token = token
	t.mu.Unlock()

	if err := t.dial(ctx); err != nil {
		return err
	}
	go t.readLoop()
	return nil
}

// dial opens the socket and waits for the connection_established handshake.
func (t *SocketTransport) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("realtime: dial %s: %w", t.cfg.URL, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var msg wireMessage
	if err := conn.ReadJSON(&msg); err != nil {
		_ = conn.Close()
		return fmt.Errorf("realtime: handshake read: %w", err)
	}
	if msg.Event != "pusher:connection_established" {
		_ = conn.Close()
		return fmt.Errorf("realtime: unexpected handshake event %q", msg.Event)
	}
	var established struct {
		SocketID string `json:"socket_id"`
	}
	inner, err := normalizePayload(msg.Data)
	if err == nil {
		err = json.Unmarshal(inner, &established)
	}
	if err != nil || established.SocketID == "" {
		_ = conn.Close()
		return fmt.Errorf("realtime: handshake payload: %v", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	t.mu.Lock()
	t.conn = conn
	t.socketID = established.SocketID
	t.mu.Unlock()
	return nil
}

func (t *SocketTransport) Subscribe(ctx context.Context, channel string) error {
	name := privateName(channel)

	ack := make(chan error, 1)
	t.mu.Lock()
	if _, pending := t.acks[name]; pending {
		t.mu.Unlock()
		return fmt.Errorf("realtime: subscribe already pending for %s", channel)
	}
	t.acks[name] = ack
	socketID := t.socketID
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.acks, name)
		t.mu.Unlock()
	}()

	if err := t.sendSubscribe(ctx, name, socketID); err != nil {
		return err
	}

	select {
	case err := <-ack:
		if err != nil {
			return err
		}
		t.mu.Lock()
		t.subs[name] = struct{}{}
		t.mu.Unlock()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("realtime: subscribe %s: %w", channel, ctx.Err())
	case <-t.closed:
		return fmt.Errorf("realtime: subscribe %s: transport closed", channel)
	}
}

// sendSubscribe authorizes the channel with the current bearer token and
// writes the subscribe message.
func (t *SocketTransport) sendSubscribe(ctx context.Context, name, socketID string) error {
	auth, err := t.authorize(ctx, name, socketID)
	if err != nil {
		return err
	}
	data, _ := json.Marshal(map[string]string{"channel": name, "auth": auth})
	return t.write(wireMessage{Event: "pusher:subscribe", Data: data})
}

func (t *SocketTransport) authorize(ctx context.Context, name, socketID string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"socket_id":    socketID,
		"channel_name": name,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.AuthURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("realtime: create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.cfg.Token != nil {
		if tok := t.cfg.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := t.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("realtime: channel auth: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("realtime: channel auth for %s failed with status %d: %s", name, resp.StatusCode, raw)
	}
	var parsed struct {
		Auth string `json:"auth"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("realtime: decode auth response: %w", err)
	}
	return parsed.Auth, nil
}

func (t *SocketTransport) Unsubscribe(channel string) error {
	name := privateName(channel)
	t.mu.Lock()
	delete(t.subs, name)
	t.mu.Unlock()
	data, _ := json.Marshal(map[string]string{"channel": name})
	return t.write(wireMessage{Event: "pusher:unsubscribe", Data: data})
}

func (t *SocketTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
	})
	return nil
}

func (t *SocketTransport) write(msg wireMessage) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("realtime: not connected")
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("realtime: write %s: %w", msg.Event, err)
	}
	return nil
}

// readLoop pumps inbound messages, reconnecting with backoff until Close.
func (t *SocketTransport) readLoop() {
	defer close(t.frames)
	defer close(t.errs)

	for {
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()

		var msg wireMessage
		err := conn.ReadJSON(&msg)
		if err != nil {
			select {
			case <-t.closed:
				return
			default:
			}
			t.reportError(fmt.Errorf("realtime: read: %w", err))
			if !t.reconnect() {
				return
			}
			continue
		}
		t.handleMessage(msg)
	}
}

func (t *SocketTransport) handleMessage(msg wireMessage) {
	switch msg.Event {
	case "pusher:ping":
		_ = t.write(wireMessage{Event: "pusher:pong"})
	case "pusher:connection_established":
		// Seen only on the first read of a fresh dial, which the dial path
		// already consumed.
	case "pusher_internal:subscription_succeeded":
		t.resolveAck(msg.Channel, nil)
	case "pusher:subscription_error", "pusher_internal:subscription_error":
		t.resolveAck(msg.Channel, fmt.Errorf("realtime: subscription refused for %s", msg.Channel))
	case "pusher:error":
		t.reportError(fmt.Errorf("realtime: server error: %s", msg.Data))
	default:
		select {
		case t.frames <- Frame{
			Channel: strings.TrimPrefix(msg.Channel, "private-"),
			Event:   msg.Event,
			Payload: msg.Data,
		}:
		case <-t.closed:
		}
	}
}

func (t *SocketTransport) resolveAck(channel string, err error) {
	t.mu.Lock()
	ack := t.acks[channel]
	t.mu.Unlock()
	if ack != nil {
		ack <- err
	}
}

// reconnect redials with exponential backoff and resubscribes the channels
// that were active, re-authorizing each with the current token. Returns
// false when the transport was closed while waiting.
func (t *SocketTransport) reconnect() bool {
	delay := t.cfg.BaseDelay
	for {
		select {
		case <-t.closed:
			return false
		case <-time.After(delay):
		}

		t.cfg.Metrics.ObserveReconnect()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := t.dial(ctx)
		cancel()
		if err != nil {
			t.logger.Warn("realtime: reconnect failed", "error", err, "retry_in", delay.String())
			if delay *= 2; delay > t.cfg.MaxDelay {
				delay = t.cfg.MaxDelay
			}
			continue
		}

		t.logger.Info("realtime: reconnected")
		t.resubscribe()
		return true
	}
}

func (t *SocketTransport) resubscribe() {
	t.mu.Lock()
	names := make([]string, 0, len(t.subs))
	for name := range t.subs {
		names = append(names, name)
	}
	socketID := t.socketID
	t.mu.Unlock()

	for _, name := range names {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := t.sendSubscribe(ctx, name, socketID)
		cancel()
		if err != nil {
			t.reportError(fmt.Errorf("realtime: resubscribe %s: %w", name, err))
		}
	}
}

func (t *SocketTransport) reportError(err error) {
	select {
	case t.errs <- err:
	default:
		// Diagnostics channel full; drop rather than stall the read loop.
	}
}

func privateName(channel string) string {
	if strings.HasPrefix(channel, "private-") {
		return channel
	}
	return "private-" + channel
}
