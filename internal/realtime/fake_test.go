package realtime

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/shifalink/portal-client/pkg/logging"
)

// fakeTransport is a deterministic in-memory Transport for manager and
// registry tests.
type fakeTransport struct {
	mu            sync.Mutex
	connectToken  string
	subscribes    []string
	unsubscribes  []string
	subscribeErr  error
	subscribeHold chan struct{}
	closedFlag    bool

	frames    chan Frame
	errs      chan error
	closedCh  chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		frames:   make(chan Frame, 16),
		errs:     make(chan error, 4),
		closedCh: make(chan struct{}),
	}
}

func (t *fakeTransport) Connect(_ context.Context, token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectToken = token
	return nil
}

func (t *fakeTransport) Subscribe(ctx context.Context, channel string) error {
	t.mu.Lock()
	hold := t.subscribeHold
	t.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		case <-t.closedCh:
			return fmt.Errorf("transport closed")
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subscribeErr != nil {
		return t.subscribeErr
	}
	t.subscribes = append(t.subscribes, channel)
	return nil
}

func (t *fakeTransport) Unsubscribe(channel string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unsubscribes = append(t.unsubscribes, channel)
	return nil
}

func (t *fakeTransport) Frames() <-chan Frame { return t.frames }
func (t *fakeTransport) Errors() <-chan error { return t.errs }

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closedCh)
		t.mu.Lock()
		t.closedFlag = true
		t.mu.Unlock()
		close(t.frames)
		close(t.errs)
	})
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closedFlag
}

func (t *fakeTransport) emit(f Frame) {
	t.frames <- f
}

func (t *fakeTransport) subscribed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.subscribes))
	copy(out, t.subscribes)
	return out
}

func quietLogger() *logging.Logger {
	return logging.NewWithWriter("error", io.Discard)
}
