// Package app wires the client together: config, session store, REST client,
// local stores, the realtime pipeline, and the payment flow. Session changes
// drive the socket connection, so login, token refresh, and logout all funnel
// through the same reconcile path.
package app

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/shifalink/portal-client/internal/api"
	"github.com/shifalink/portal-client/internal/config"
	"github.com/shifalink/portal-client/internal/observability/metrics"
	"github.com/shifalink/portal-client/internal/payments"
	"github.com/shifalink/portal-client/internal/realtime"
	"github.com/shifalink/portal-client/internal/session"
	"github.com/shifalink/portal-client/internal/store"
	"github.com/shifalink/portal-client/pkg/logging"
)

// handler ids for the user-channel bindings; one logical listener each.
const (
	handlerToasts = "app.toasts"
)

// Options tunes construction; zero values give production defaults.
type Options struct {
	Logger *logging.Logger
	// Notifier receives user-facing toasts. Required.
	Notifier realtime.Notifier
	// Registerer for metrics; nil uses the default registry.
	Registerer prometheus.Registerer
	// TransportFactory overrides the websocket transport, for tests.
	TransportFactory realtime.TransportFactory
}

// App is the composed client.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	Sessions *session.Store
	API      *api.Client

	Notifications *store.Notifications
	Chats         *store.Chats
	Appointments  *store.Appointments

	Metrics  *metrics.RealtimeMetrics
	Payments *payments.Flow

	registry *realtime.Registry
	manager  *realtime.Manager
	notifier realtime.Notifier

	mu           sync.Mutex
	reconciler   *realtime.Reconciler
	userChannel  *realtime.Channel
	chatChannels map[string]*realtime.Channel
	refreshTimer *time.Timer
	unwatch      func()
}

// New builds an App from config. The socket connection is not established
// until Start runs with an authenticated session.
func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config is required")
	}
	if opts.Notifier == nil {
		return nil, fmt.Errorf("app: notifier is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	sessions := session.NewStore()
	m := metrics.NewRealtimeMetrics(opts.Registerer)
	client := api.New(cfg.APIBaseURL, sessions,
		api.WithLogger(logger.With("component", "api")),
		api.WithMetrics(m),
	)

	factory := opts.TransportFactory
	if factory == nil {
		factory = func() realtime.Transport {
			return realtime.NewSocketTransport(realtime.SocketConfig{
				URL:       cfg.SocketURL(),
				AuthURL:   cfg.AuthURL(),
				Token:     func() string { return sessions.Current().Token },
				BaseDelay: cfg.ReconnectBaseDelay,
				MaxDelay:  cfg.ReconnectMaxDelay,
				Logger:    logger.With("component", "transport"),
				Metrics:   m,
			})
		}
	}

	registry := realtime.NewRegistry(logger.With("component", "registry"))
	manager := realtime.NewManager(factory, registry, logger.With("component", "manager"), m)

	appointments := store.NewAppointments()
	a := &App{
		cfg:           cfg,
		logger:        logger,
		Sessions:      sessions,
		API:           client,
		Notifications: store.NewNotifications(),
		Chats:         store.NewChats(),
		Appointments:  appointments,
		Metrics:       m,
		Payments:      payments.NewFlow(client, appointments, logger.With("component", "payments")),
		registry:      registry,
		manager:       manager,
		notifier:      opts.Notifier,
		chatChannels:  make(map[string]*realtime.Channel),
	}

	a.unwatch = sessions.Watch(a.onSessionChange)
	return a, nil
}

// onSessionChange keeps the connection in step with the session. Token
// rotation replaces the connection; logout tears it down.
func (a *App) onSessionChange(sess session.Session) {
	if !sess.Authenticated {
		a.stopRefreshTimer()
		// Watchers run on whichever goroutine mutated the session. A refetch
		// inside an event handler that loses its token clears the session
		// from the dispatch goroutine, and Teardown waits for that goroutine
		// to drain, so the teardown must not run inline here.
		go a.manager.Teardown()
		return
	}
	a.scheduleRefresh(sess.Token)
	// A token without a user id is a session being adopted; Resume attaches
	// once the profile load fills the id in.
	if sess.UserID == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTPTimeout)
		defer cancel()
		if err := a.reconnect(ctx, sess); err != nil {
			a.logger.Warn("app: reconcile connection failed", "error", err)
		}
	}()
}

// scheduleRefresh arms a timer to rotate the token ahead of its exp claim.
// Rotation feeds back through the session watcher, so each refreshed token
// reschedules itself. Tokens without a readable expiry rely on the reactive
// 401 replay instead.
func (a *App) scheduleRefresh(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.refreshTimer != nil {
		a.refreshTimer.Stop()
		a.refreshTimer = nil
	}
	exp, ok := session.TokenExpiry(token)
	if !ok {
		return
	}
	lead := a.cfg.TokenRefreshLead
	if lead <= 0 {
		lead = time.Minute
	}
	delay := time.Until(exp) - lead
	if delay <= 0 {
		return
	}
	a.refreshTimer = time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTPTimeout)
		defer cancel()
		if _, err := a.API.Refresh(ctx); err != nil {
			a.logger.Warn("app: scheduled token refresh failed", "error", err)
		}
	})
}

func (a *App) stopRefreshTimer() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.refreshTimer != nil {
		a.refreshTimer.Stop()
		a.refreshTimer = nil
	}
}

// reconnect ensures a connection for sess and reattaches the user channel
// listeners when the connection was replaced.
func (a *App) reconnect(ctx context.Context, sess session.Session) error {
	conn, err := a.manager.EnsureConnection(ctx, sess)
	if err != nil {
		return err
	}
	return a.attachUserChannel(ctx, conn, sess.UserID)
}

// Login authenticates and brings the realtime pipeline up.
func (a *App) Login(ctx context.Context, email, password string) (*api.User, error) {
	res, err := a.API.Login(ctx, api.LoginInput{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	a.Sessions.SetAuth(res.User.ID, res.AccessToken)
	if err := a.Start(ctx); err != nil {
		return nil, err
	}
	return &res.User, nil
}

// Resume adopts an existing token, validating it against the profile
// endpoint, then starts the pipeline. The token's sub claim names the user,
// so the socket can come up while the profile round trip confirms the token
// is still good.
func (a *App) Resume(ctx context.Context, token string) (*api.User, error) {
	claimed, _ := session.TokenSubject(token)
	a.Sessions.SetAuth(claimed, token)
	user, err := a.API.Profile(ctx)
	if err != nil {
		a.Sessions.Clear()
		return nil, err
	}
	if user.ID != claimed {
		a.Sessions.SetAuth(user.ID, a.Sessions.Current().Token)
	}
	if err := a.Start(ctx); err != nil {
		return nil, err
	}
	return user, nil
}

// Start loads the REST baseline and attaches the user channel. The baseline
// fetch and the socket bring-up run concurrently; push events arriving while
// the baseline loads deduplicate against it afterwards.
func (a *App) Start(ctx context.Context) error {
	sess := a.Sessions.Current()
	if !sess.Authenticated {
		return realtime.ErrNotAuthenticated
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appts, err := a.API.Appointments(gctx, "")
		if err != nil {
			return fmt.Errorf("app: load appointments: %w", err)
		}
		a.Appointments.Set(appts)
		return nil
	})
	g.Go(func() error {
		notifs, err := a.API.Notifications(gctx)
		if err != nil {
			return fmt.Errorf("app: load notifications: %w", err)
		}
		a.Notifications.Set(notifs)
		return nil
	})
	g.Go(func() error {
		return a.reconnect(gctx, sess)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	a.logger.Info("app: started", "user_id", sess.UserID)
	return nil
}

// attachUserChannel subscribes users.<id> and binds the reconciler's
// handlers. Idempotent per connection: the registry caches the channel and
// deduplicates bindings by handler id.
func (a *App) attachUserChannel(ctx context.Context, conn *realtime.Conn, userID int64) error {
	a.mu.Lock()
	rec := a.reconciler
	if rec == nil || a.selfIDLocked() != userID {
		rec = realtime.NewReconciler(realtime.ReconcilerConfig{
			UserID:          userID,
			Notifications:   a.Notifications,
			Chats:           a.Chats,
			Appointments:    a.Appointments,
			Notifier:        a.notifier,
			Refetcher:       apiRefetcher{a},
			RecencyCapacity: a.cfg.RecencyCapacity,
			Logger:          a.logger.With("component", "reconciler"),
			Metrics:         a.Metrics,
		})
		a.reconciler = rec
	}
	a.mu.Unlock()

	name := "users." + strconv.FormatInt(userID, 10)
	ch, err := a.registry.GetOrSubscribe(ctx, conn, name)
	if err != nil {
		return fmt.Errorf("app: subscribe %s: %w", name, err)
	}

	for _, event := range []string{
		realtime.EventNotificationCreated,
		realtime.EventAppointmentCreated,
		realtime.EventAppointmentStatusUpdated,
	} {
		a.registry.On(ch, event, handlerToasts, rec.HandlerFor(event))
	}

	a.mu.Lock()
	a.userChannel = ch
	a.mu.Unlock()
	return nil
}

func (a *App) selfIDLocked() int64 {
	if a.reconciler == nil {
		return 0
	}
	return a.reconciler.SelfID()
}

// OpenChat loads the message baseline for a conversation and subscribes its
// channel. Each open takes a channel reference; CloseChat releases it.
func (a *App) OpenChat(ctx context.Context, chatUUID string) error {
	msgs, err := a.API.Messages(ctx, chatUUID)
	if err != nil {
		return fmt.Errorf("app: load messages: %w", err)
	}
	a.Chats.Set(chatUUID, msgs)

	conn := a.manager.Current()
	if conn == nil {
		return realtime.ErrNotAuthenticated
	}
	ch, err := a.registry.GetOrSubscribe(ctx, conn, "chats."+chatUUID)
	if err != nil {
		return err
	}

	a.mu.Lock()
	rec := a.reconciler
	a.chatChannels[chatUUID] = ch
	a.mu.Unlock()
	if rec != nil {
		a.registry.On(ch, realtime.EventMessageSent, handlerToasts, rec.HandlerFor(realtime.EventMessageSent))
	}
	return nil
}

// CloseChat releases the conversation's channel reference.
func (a *App) CloseChat(chatUUID string) {
	a.mu.Lock()
	ch, ok := a.chatChannels[chatUUID]
	delete(a.chatChannels, chatUUID)
	a.mu.Unlock()
	if ok {
		a.registry.Release(ch)
	}
}

// SendMessage posts a message over REST. The broadcast echo of our own
// message is suppressed by the reconciler, so the store is updated here.
func (a *App) SendMessage(ctx context.Context, chatUUID, content string) (*api.Message, error) {
	msg, err := a.API.SendMessage(ctx, chatUUID, content, "", nil)
	if err != nil {
		return nil, err
	}
	a.Chats.Append(chatUUID, *msg)
	return msg, nil
}

// Logout revokes the session server-side, tears the socket down, and clears
// every local store.
func (a *App) Logout(ctx context.Context) error {
	err := a.API.Logout(ctx)
	if err != nil {
		a.logger.Warn("app: server logout failed", "error", err)
	}

	a.Sessions.Clear()
	a.manager.Teardown()

	a.mu.Lock()
	a.userChannel = nil
	a.chatChannels = make(map[string]*realtime.Channel)
	a.reconciler = nil
	a.mu.Unlock()

	a.Notifications.Clear()
	a.Chats.Clear()
	a.Appointments.Clear()
	return err
}

// Close stops watching the session and tears down the connection. The App is
// not usable afterwards.
func (a *App) Close() {
	if a.unwatch != nil {
		a.unwatch()
	}
	a.stopRefreshTimer()
	a.manager.Teardown()
}

// apiRefetcher adapts the REST client to the reconciler's refetch surface.
type apiRefetcher struct{ app *App }

func (r apiRefetcher) RefetchAppointment(ctx context.Context, id int64) (*api.Appointment, error) {
	return r.app.API.Appointment(ctx, id)
}

func (r apiRefetcher) RefetchAppointments(ctx context.Context) ([]api.Appointment, error) {
	return r.app.API.Appointments(ctx, "")
}
