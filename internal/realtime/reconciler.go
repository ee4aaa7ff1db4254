package realtime

import (
	"context"
	"time"

	"github.com/shifalink/portal-client/internal/api"
	"github.com/shifalink/portal-client/internal/observability/metrics"
	"github.com/shifalink/portal-client/internal/store"
	"github.com/shifalink/portal-client/pkg/logging"
)

// Notifier receives the single user-visible side effect per logical event.
type Notifier interface {
	Success(msg string)
	Warning(msg string)
	Info(msg string)
}

// Refetcher pulls authoritative state over REST when a push payload is a
// signal rather than a full shape.
type Refetcher interface {
	RefetchAppointment(ctx context.Context, id int64) (*api.Appointment, error)
	RefetchAppointments(ctx context.Context) ([]api.Appointment, error)
}

// ReconcilerConfig wires the reconciler's collaborators.
type ReconcilerConfig struct {
	UserID        int64
	Notifications *store.Notifications
	Chats         *store.Chats
	Appointments  *store.Appointments
	Notifier      Notifier
	Refetcher     Refetcher
	// RecencyCapacity bounds the applied-key set; 0 means the default.
	RecencyCapacity int
	Logger          *logging.Logger
	Metrics         *metrics.RealtimeMetrics
}

// Reconciler turns push events into deduplicated state mutations with at
// most one side effect per logical event. Events for the same resource are
// applied in the order the transport delivered them; the dispatch loop is
// single-goroutine so no reordering is introduced here.
type Reconciler struct {
	selfID        int64
	notifications *store.Notifications
	chats         *store.Chats
	appointments  *store.Appointments
	notifier      Notifier
	refetch       Refetcher
	applied       *recencySet
	logger        *logging.Logger
	metrics       *metrics.RealtimeMetrics
	now           func() time.Time
}

func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		selfID:        cfg.UserID,
		notifications: cfg.Notifications,
		chats:         cfg.Chats,
		appointments:  cfg.Appointments,
		notifier:      cfg.Notifier,
		refetch:       cfg.Refetcher,
		applied:       newRecencySet(cfg.RecencyCapacity),
		logger:        logger,
		metrics:       cfg.Metrics,
		now:           time.Now,
	}
}

// SelfID is the user this reconciler suppresses echoes for.
func (r *Reconciler) SelfID() int64 { return r.selfID }

// HandlerFor adapts the reconciler to a registry binding for one event name.
// Malformed payloads are dropped with a log line and never propagate into
// the dispatch loop.
func (r *Reconciler) HandlerFor(event string) Handler {
	return func(ctx context.Context, payload []byte) {
		evt, err := Decode(Frame{Event: event, Payload: payload})
		if err != nil {
			r.logger.Warn("realtime: dropping malformed event", "event", event, "error", err)
			r.metrics.ObserveEvent(event, metrics.OutcomeDropped)
			return
		}
		r.Handle(ctx, evt)
	}
}

// Handle applies one normalized event. A key already in the recency window
// is discarded silently: no second mutation, no second toast. Keys enter the
// window only after the mutation lands, so an event whose refetch failed is
// not consumed and a redelivery can still heal the stale state. The dispatch
// loop is single-goroutine, so the check-then-add is not racy.
func (r *Reconciler) Handle(ctx context.Context, evt Event) {
	key := evt.DedupKey()
	if r.applied.Seen(key) {
		r.metrics.ObserveEvent(evt.Kind(), metrics.OutcomeDuplicate)
		r.logger.Debug("realtime: duplicate event discarded", "kind", evt.Kind(), "key", key)
		return
	}

	var applied bool
	switch e := evt.(type) {
	case NotificationCreated:
		applied = r.applyNotification(e)
	case AppointmentCreated:
		applied = r.applyAppointmentCreated(ctx, e)
	case AppointmentStatusUpdated:
		applied = r.applyAppointmentStatus(ctx, e)
	case MessageSent:
		applied = r.applyMessage(e)
	default:
		r.metrics.ObserveEvent(evt.Kind(), metrics.OutcomeDropped)
		r.logger.Warn("realtime: unhandled event kind", "kind", evt.Kind())
		return
	}
	if !applied {
		r.metrics.ObserveEvent(evt.Kind(), metrics.OutcomeFailed)
		return
	}
	r.applied.Add(key)
	r.metrics.ObserveEvent(evt.Kind(), metrics.OutcomeApplied)
}

func (r *Reconciler) applyNotification(e NotificationCreated) bool {
	now := r.now().UTC()
	added := r.notifications.Add(api.Notification{
		ID:           e.ID,
		NotifiableID: r.selfID,
		Type:         e.Type,
		Data: api.NotificationData{
			Message:       e.Message,
			Status:        e.Status,
			AppointmentID: e.AppointmentID,
			ChatUUID:      e.ChatUUID,
		},
		CreatedAt: now,
		UpdatedAt: now,
	})
	// Already present means the REST baseline beat the push; the user has
	// seen it, so no toast either.
	if added && e.Message != "" {
		r.toast(e.Type, e.Status, e.Message)
	}
	return true
}

func (r *Reconciler) applyAppointmentCreated(ctx context.Context, e AppointmentCreated) bool {
	if e.Appointment.AppointmentDate != "" && e.Appointment.Status.Valid() {
		r.appointments.Upsert(e.Appointment)
	} else if err := r.refetchList(ctx); err != nil {
		return false
	}
	if e.Message != "" {
		r.notifier.Success(e.Message)
	}
	return true
}

func (r *Reconciler) applyAppointmentStatus(ctx context.Context, e AppointmentStatusUpdated) bool {
	if !r.appointments.PatchStatus(e.AppointmentID, e.Status) {
		// Unknown locally: the push payload is only a signal, fetch the
		// authoritative shape instead of fabricating an entry.
		appt, err := r.refetch.RefetchAppointment(ctx, e.AppointmentID)
		if err != nil {
			r.logger.Warn("realtime: refetch appointment failed", "appointment_id", e.AppointmentID, "error", err)
			r.notifier.Warning("Could not refresh appointment, pull to reload")
			return false
		}
		r.appointments.Upsert(*appt)
	}
	if e.Message != "" {
		r.toast("appointment.status.updated", string(e.Status), e.Message)
	}
	return true
}

func (r *Reconciler) applyMessage(e MessageSent) bool {
	if e.Message.SenderID == r.selfID {
		// Echo of a message this client just sent over REST; the optimistic
		// entry is already in the store. Dedup, no side effect.
		r.logger.Debug("realtime: self-origin message suppressed", "chat", e.ChatUUID, "message_id", e.Message.ID)
		return true
	}
	if r.chats.Append(e.ChatUUID, e.Message) {
		r.notifier.Info("New message received")
	}
	return true
}

func (r *Reconciler) refetchList(ctx context.Context) error {
	appts, err := r.refetch.RefetchAppointments(ctx)
	if err != nil {
		r.logger.Warn("realtime: refetch appointments failed", "error", err)
		r.notifier.Warning("Could not refresh appointments, pull to reload")
		return err
	}
	r.appointments.Set(appts)
	return nil
}

// toast maps an event's type and status to a severity, matching how the
// platform presents them: bookings and confirmations succeed, cancellations
// warn, everything else informs.
func (r *Reconciler) toast(eventType, status, msg string) {
	switch {
	case status == string(api.AppointmentCancelled):
		r.notifier.Warning(msg)
	case eventType == EventAppointmentCreated,
		status == string(api.AppointmentConfirmed),
		eventType == "payment.confirmed":
		r.notifier.Success(msg)
	default:
		r.notifier.Info(msg)
	}
}
