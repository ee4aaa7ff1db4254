package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shifalink/portal-client/internal/session"
)

type countingFactory struct {
	transports []*fakeTransport
}

func (f *countingFactory) build() Transport {
	t := newFakeTransport()
	f.transports = append(f.transports, t)
	return t
}

func authedSession(token string) session.Session {
	return session.Session{UserID: 7, Token: token, Authenticated: true}
}

func TestEnsureConnectionRequiresAuth(t *testing.T) {
	factory := &countingFactory{}
	m := NewManager(factory.build, NewRegistry(quietLogger()), quietLogger(), nil)

	_, err := m.EnsureConnection(context.Background(), session.Session{})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Nil(t, m.Current())
	assert.Empty(t, factory.transports)
}

func TestEnsureConnectionSameTokenReusesConnection(t *testing.T) {
	factory := &countingFactory{}
	m := NewManager(factory.build, NewRegistry(quietLogger()), quietLogger(), nil)
	defer m.Teardown()

	first, err := m.EnsureConnection(context.Background(), authedSession("tok-a"))
	require.NoError(t, err)
	second, err := m.EnsureConnection(context.Background(), authedSession("tok-a"))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, factory.transports, 1)
	assert.Equal(t, "tok-a", factory.transports[0].connectToken)
}

func TestTokenRotationReplacesConnection(t *testing.T) {
	factory := &countingFactory{}
	reg := NewRegistry(quietLogger())
	m := NewManager(factory.build, reg, quietLogger(), nil)
	defer m.Teardown()

	oldConn, err := m.EnsureConnection(context.Background(), authedSession("tok-a"))
	require.NoError(t, err)
	ch, err := reg.GetOrSubscribe(context.Background(), oldConn, "users.7")
	require.NoError(t, err)

	var calls int
	reg.On(ch, EventNotificationCreated, "toasts", func(context.Context, []byte) { calls++ })

	newConn, err := m.EnsureConnection(context.Background(), authedSession("tok-b"))
	require.NoError(t, err)

	assert.NotSame(t, oldConn, newConn)
	assert.True(t, factory.transports[0].isClosed())
	assert.False(t, factory.transports[1].isClosed())

	// Handlers attached under the old token must never fire again.
	reg.dispatch(context.Background(), oldConn, Frame{Channel: "users.7", Event: EventNotificationCreated})
	reg.dispatch(context.Background(), newConn, Frame{Channel: "users.7", Event: EventNotificationCreated})
	assert.Zero(t, calls)
}

func TestLogoutTearsDownConnection(t *testing.T) {
	factory := &countingFactory{}
	m := NewManager(factory.build, NewRegistry(quietLogger()), quietLogger(), nil)

	_, err := m.EnsureConnection(context.Background(), authedSession("tok-a"))
	require.NoError(t, err)

	_, err = m.EnsureConnection(context.Background(), session.Session{})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Nil(t, m.Current())
	assert.True(t, factory.transports[0].isClosed())
}

func TestTeardownIdempotent(t *testing.T) {
	factory := &countingFactory{}
	m := NewManager(factory.build, NewRegistry(quietLogger()), quietLogger(), nil)

	_, err := m.EnsureConnection(context.Background(), authedSession("tok-a"))
	require.NoError(t, err)

	m.Teardown()
	m.Teardown()
	assert.Nil(t, m.Current())
}

func TestPendingSubscribeDiscardedOnRotation(t *testing.T) {
	factory := &countingFactory{}
	reg := NewRegistry(quietLogger())
	m := NewManager(factory.build, reg, quietLogger(), nil)
	defer m.Teardown()

	oldConn, err := m.EnsureConnection(context.Background(), authedSession("tok-a"))
	require.NoError(t, err)

	hold := make(chan struct{})
	factory.transports[0].mu.Lock()
	factory.transports[0].subscribeHold = hold
	factory.transports[0].mu.Unlock()

	subErr := make(chan error, 1)
	go func() {
		_, err := reg.GetOrSubscribe(context.Background(), oldConn, "chats.c-1")
		subErr <- err
	}()

	// Rotate while the subscribe is still in flight. Closing the old
	// transport releases the blocked subscribe.
	_, err = m.EnsureConnection(context.Background(), authedSession("tok-b"))
	require.NoError(t, err)

	select {
	case err := <-subErr:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not resolve after rotation")
	}

	// Nothing attached under the new connection for that channel.
	newConn := m.Current()
	_, errSub := reg.GetOrSubscribe(context.Background(), newConn, "chats.c-1")
	require.NoError(t, errSub)
	assert.Equal(t, []string{"chats.c-1"}, factory.transports[1].subscribed())
}

func TestDispatchLoopRoutesFrames(t *testing.T) {
	factory := &countingFactory{}
	reg := NewRegistry(quietLogger())
	m := NewManager(factory.build, reg, quietLogger(), nil)
	defer m.Teardown()

	conn, err := m.EnsureConnection(context.Background(), authedSession("tok-a"))
	require.NoError(t, err)
	ch, err := reg.GetOrSubscribe(context.Background(), conn, "users.7")
	require.NoError(t, err)

	got := make(chan []byte, 1)
	reg.On(ch, EventNotificationCreated, "toasts", func(_ context.Context, payload []byte) {
		got <- payload
	})

	factory.transports[0].emit(Frame{
		Channel: "users.7",
		Event:   EventNotificationCreated,
		Payload: json.RawMessage(`{"id":"n-1"}`),
	})

	select {
	case payload := <-got:
		assert.JSONEq(t, `{"id":"n-1"}`, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("frame was not dispatched")
	}
}
