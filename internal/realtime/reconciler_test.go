package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shifalink/portal-client/internal/api"
	"github.com/shifalink/portal-client/internal/store"
)

type toastRecorder struct {
	successes []string
	warnings  []string
	infos     []string
}

func (r *toastRecorder) Success(msg string) { r.successes = append(r.successes, msg) }
func (r *toastRecorder) Warning(msg string) { r.warnings = append(r.warnings, msg) }
func (r *toastRecorder) Info(msg string)    { r.infos = append(r.infos, msg) }

func (r *toastRecorder) total() int {
	return len(r.successes) + len(r.warnings) + len(r.infos)
}

type fakeRefetcher struct {
	appointment  *api.Appointment
	appointments []api.Appointment
	err          error
	calls        int
}

func (f *fakeRefetcher) RefetchAppointment(context.Context, int64) (*api.Appointment, error) {
	f.calls++
	return f.appointment, f.err
}

func (f *fakeRefetcher) RefetchAppointments(context.Context) ([]api.Appointment, error) {
	f.calls++
	return f.appointments, f.err
}

type reconcilerFixture struct {
	rec           *Reconciler
	notifications *store.Notifications
	chats         *store.Chats
	appointments  *store.Appointments
	toasts        *toastRecorder
	refetch       *fakeRefetcher
}

func newReconcilerFixture(selfID int64) *reconcilerFixture {
	f := &reconcilerFixture{
		notifications: store.NewNotifications(),
		chats:         store.NewChats(),
		appointments:  store.NewAppointments(),
		toasts:        &toastRecorder{},
		refetch:       &fakeRefetcher{},
	}
	f.rec = NewReconciler(ReconcilerConfig{
		UserID:        selfID,
		Notifications: f.notifications,
		Chats:         f.chats,
		Appointments:  f.appointments,
		Notifier:      f.toasts,
		Refetcher:     f.refetch,
		Logger:        quietLogger(),
	})
	return f
}

func TestDuplicateEventAppliedOnce(t *testing.T) {
	f := newReconcilerFixture(7)
	evt := NotificationCreated{ID: "n-1", Type: "appointment", Message: "Appointment confirmed", Status: "confirmed"}

	f.rec.Handle(context.Background(), evt)
	f.rec.Handle(context.Background(), evt)

	assert.Len(t, f.notifications.List(), 1)
	assert.Equal(t, 1, f.toasts.total())
}

func TestNotificationAlreadyInBaselineNoToast(t *testing.T) {
	f := newReconcilerFixture(7)
	f.notifications.Set([]api.Notification{{ID: "n-1", Type: "appointment"}})

	f.rec.Handle(context.Background(), NotificationCreated{ID: "n-1", Type: "appointment", Message: "hi"})

	assert.Len(t, f.notifications.List(), 1)
	assert.Zero(t, f.toasts.total())
}

func TestSelfOriginMessageSuppressed(t *testing.T) {
	f := newReconcilerFixture(7)

	f.rec.Handle(context.Background(), MessageSent{
		ChatUUID: "c-1",
		Message:  api.Message{ID: 9, SenderID: 7, Content: "mine"},
	})

	assert.Empty(t, f.chats.Messages("c-1"))
	assert.Zero(t, f.toasts.total())
}

func TestInboundMessageAppendsAndNotifies(t *testing.T) {
	f := newReconcilerFixture(7)

	f.rec.Handle(context.Background(), MessageSent{
		ChatUUID: "c-1",
		Message:  api.Message{ID: 9, SenderID: 3, Content: "hello"},
	})

	require.Len(t, f.chats.Messages("c-1"), 1)
	assert.Equal(t, []string{"New message received"}, f.toasts.infos)
}

func TestStatusUpdatePatchesKnownAppointment(t *testing.T) {
	f := newReconcilerFixture(7)
	f.appointments.Set([]api.Appointment{{ID: 5, AppointmentDate: "2026-09-01", Status: api.AppointmentPending}})

	f.rec.Handle(context.Background(), AppointmentStatusUpdated{
		AppointmentID: 5,
		Status:        api.AppointmentConfirmed,
		Message:       "Your appointment was confirmed",
		UpdatedAt:     time.Now(),
	})

	got, ok := f.appointments.Get(5)
	require.True(t, ok)
	assert.Equal(t, api.AppointmentConfirmed, got.Status)
	assert.Equal(t, []string{"Your appointment was confirmed"}, f.toasts.successes)
	assert.Zero(t, f.refetch.calls)
}

func TestStatusUpdateUnknownAppointmentRefetches(t *testing.T) {
	f := newReconcilerFixture(7)
	f.refetch.appointment = &api.Appointment{ID: 5, AppointmentDate: "2026-09-01", Status: api.AppointmentCancelled}

	f.rec.Handle(context.Background(), AppointmentStatusUpdated{
		AppointmentID: 5,
		Status:        api.AppointmentCancelled,
		Message:       "Appointment cancelled",
		UpdatedAt:     time.Now(),
	})

	got, ok := f.appointments.Get(5)
	require.True(t, ok)
	assert.Equal(t, api.AppointmentCancelled, got.Status)
	assert.Equal(t, 1, f.refetch.calls)
	assert.Equal(t, []string{"Appointment cancelled"}, f.toasts.warnings)
}

func TestStatusUpdateRefetchFailureWarnsOnce(t *testing.T) {
	f := newReconcilerFixture(7)
	f.refetch.err = fmt.Errorf("boom")

	f.rec.Handle(context.Background(), AppointmentStatusUpdated{
		AppointmentID: 5,
		Status:        api.AppointmentConfirmed,
		Message:       "confirmed",
		UpdatedAt:     time.Now(),
	})

	_, ok := f.appointments.Get(5)
	assert.False(t, ok)
	assert.Len(t, f.toasts.warnings, 1)
	assert.Zero(t, len(f.toasts.successes))
}

// A failed refetch must not consume the event: a redelivery of the same key
// retries and heals the stale state, and only then does dedup kick in.
func TestStatusUpdateRefetchFailureIsReplayable(t *testing.T) {
	f := newReconcilerFixture(7)
	f.refetch.err = fmt.Errorf("boom")

	evt := AppointmentStatusUpdated{
		AppointmentID: 5,
		Status:        api.AppointmentConfirmed,
		Message:       "confirmed",
		UpdatedAt:     time.Unix(1756600000, 0),
	}
	f.rec.Handle(context.Background(), evt)
	_, ok := f.appointments.Get(5)
	require.False(t, ok)

	f.refetch.err = nil
	f.refetch.appointment = &api.Appointment{ID: 5, AppointmentDate: "2026-09-01", Status: api.AppointmentConfirmed}
	f.rec.Handle(context.Background(), evt)

	got, ok := f.appointments.Get(5)
	require.True(t, ok)
	assert.Equal(t, api.AppointmentConfirmed, got.Status)
	assert.Equal(t, []string{"confirmed"}, f.toasts.successes)
	assert.Equal(t, 2, f.refetch.calls)

	f.rec.Handle(context.Background(), evt)
	assert.Equal(t, []string{"confirmed"}, f.toasts.successes, "applied event must dedup on redelivery")
	assert.Equal(t, 2, f.refetch.calls)
}

func TestAppointmentCreatedWithFullShapeUpserts(t *testing.T) {
	f := newReconcilerFixture(7)

	f.rec.Handle(context.Background(), AppointmentCreated{
		Appointment: api.Appointment{ID: 5, AppointmentDate: "2026-09-01", Status: api.AppointmentPending},
		Message:     "New appointment booked",
	})

	_, ok := f.appointments.Get(5)
	assert.True(t, ok)
	assert.Equal(t, []string{"New appointment booked"}, f.toasts.successes)
	assert.Zero(t, f.refetch.calls)
}

func TestAppointmentCreatedSignalOnlyRefetchesList(t *testing.T) {
	f := newReconcilerFixture(7)
	f.refetch.appointments = []api.Appointment{
		{ID: 5, AppointmentDate: "2026-09-01", Status: api.AppointmentPending},
	}

	f.rec.Handle(context.Background(), AppointmentCreated{
		Appointment: api.Appointment{ID: 5},
		Message:     "New appointment booked",
	})

	assert.Equal(t, 1, f.refetch.calls)
	_, ok := f.appointments.Get(5)
	assert.True(t, ok)
}

func TestHandlerForDropsMalformedPayload(t *testing.T) {
	f := newReconcilerFixture(7)
	handler := f.rec.HandlerFor(EventAppointmentCreated)

	handler(context.Background(), json.RawMessage(`{"appointment":`))
	handler(context.Background(), json.RawMessage(`{"appointment":{}}`))

	assert.Empty(t, f.appointments.List())
	assert.Zero(t, f.toasts.total())
}

func TestHandlerForDecodesAndApplies(t *testing.T) {
	f := newReconcilerFixture(7)
	handler := f.rec.HandlerFor(EventMessageSent)

	handler(context.Background(), json.RawMessage(`{"chat_uuid":"c-1","message":{"id":4,"sender_id":3,"content":"hey"}}`))

	assert.Len(t, f.chats.Messages("c-1"), 1)
}

func TestToastSeverityMapping(t *testing.T) {
	f := newReconcilerFixture(7)

	f.rec.toast("appointment.created", "pending", "booked")
	f.rec.toast("appointment.status.updated", "confirmed", "confirmed")
	f.rec.toast("appointment.status.updated", "cancelled", "cancelled")
	f.rec.toast("appointment.status.updated", "completed", "completed")

	assert.Equal(t, []string{"booked", "confirmed"}, f.toasts.successes)
	assert.Equal(t, []string{"cancelled"}, f.toasts.warnings)
	assert.Equal(t, []string{"completed"}, f.toasts.infos)
}
