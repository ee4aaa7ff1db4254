// Package realtime is the push side of the client: one socket connection per
// authenticated session, private channel subscriptions, and the reconciler
// that merges inbound events into the local stores.
package realtime

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shifalink/portal-client/internal/api"
)

// Wire event names delivered on private channels.
const (
	EventAppointmentCreated       = "appointment.created"
	EventAppointmentStatusUpdated = "appointment.status.updated"
	EventMessageSent              = "message.sent"
	EventNotificationCreated      = "notification.created"
)

// Frame is one raw event off the transport: channel, event name, payload.
type Frame struct {
	Channel string
	Event   string
	Payload json.RawMessage
}

// Event is a normalized push event. Kind is the wire event name; DedupKey is
// a stable idempotency key derived from the event's own fields, never from
// arrival time, so a redelivery produces the same key.
type Event interface {
	Kind() string
	DedupKey() string
}

// NotificationCreated is the generic per-user notification event.
type NotificationCreated struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Message       string `json:"message"`
	Status        string `json:"status,omitempty"`
	AppointmentID int64  `json:"appointment_id,omitempty"`
	ChatUUID      string `json:"chat_uuid,omitempty"`
}

func (e NotificationCreated) Kind() string { return EventNotificationCreated }

func (e NotificationCreated) DedupKey() string {
	if e.ID != "" {
		return "notification:" + e.ID
	}
	return fmt.Sprintf("notification:%s:%d:%s", e.Type, e.AppointmentID, e.Status)
}

// AppointmentCreated announces a new appointment to its doctor.
type AppointmentCreated struct {
	EventID     string          `json:"id,omitempty"`
	Appointment api.Appointment `json:"appointment"`
	Message     string          `json:"message,omitempty"`
}

func (e AppointmentCreated) Kind() string { return EventAppointmentCreated }

func (e AppointmentCreated) DedupKey() string {
	if e.EventID != "" {
		return "appointment.created:" + e.EventID
	}
	return "appointment.created:" + strconv.FormatInt(e.Appointment.ID, 10)
}

// AppointmentStatusUpdated signals a lifecycle transition for an appointment
// both parties already know about.
type AppointmentStatusUpdated struct {
	EventID       string                `json:"id,omitempty"`
	AppointmentID int64                 `json:"appointment_id"`
	Status        api.AppointmentStatus `json:"status"`
	Message       string                `json:"message,omitempty"`
	UpdatedAt     time.Time             `json:"updated_at,omitempty"`
}

func (e AppointmentStatusUpdated) Kind() string { return EventAppointmentStatusUpdated }

// DedupKey buckets the update timestamp to the second: two deliveries of the
// same transition match, while a later re-transition to the same status (eg
// cancelled, rebooked, cancelled again) does not.
func (e AppointmentStatusUpdated) DedupKey() string {
	if e.EventID != "" {
		return "appointment.status:" + e.EventID
	}
	return fmt.Sprintf("appointment.status:%d:%s:%d", e.AppointmentID, e.Status, e.UpdatedAt.UTC().Unix())
}

// MessageSent carries one chat message.
type MessageSent struct {
	EventID  string      `json:"id,omitempty"`
	ChatUUID string      `json:"chat_uuid"`
	Message  api.Message `json:"message"`
}

func (e MessageSent) Kind() string { return EventMessageSent }

func (e MessageSent) DedupKey() string {
	// The message id is server-assigned and stable; an envelope id adds
	// nothing over it.
	return fmt.Sprintf("message:%s:%d", e.ChatUUID, e.Message.ID)
}

// Decode normalizes a raw frame into its typed variant. Unknown event names
// and malformed payloads return an error; the caller drops and logs them.
func Decode(f Frame) (Event, error) {
	payload, err := normalizePayload(f.Payload)
	if err != nil {
		return nil, fmt.Errorf("realtime: payload for %q: %w", f.Event, err)
	}
	switch f.Event {
	case EventNotificationCreated:
		var e NotificationCreated
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("realtime: decode %s: %w", f.Event, err)
		}
		if e.ID == "" && e.Type == "" {
			return nil, fmt.Errorf("realtime: %s missing id and type", f.Event)
		}
		return e, nil
	case EventAppointmentCreated:
		var e AppointmentCreated
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("realtime: decode %s: %w", f.Event, err)
		}
		if e.Appointment.ID == 0 {
			return nil, fmt.Errorf("realtime: %s missing appointment id", f.Event)
		}
		return e, nil
	case EventAppointmentStatusUpdated:
		var e AppointmentStatusUpdated
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("realtime: decode %s: %w", f.Event, err)
		}
		if e.AppointmentID == 0 || !e.Status.Valid() {
			return nil, fmt.Errorf("realtime: %s missing appointment id or status", f.Event)
		}
		return e, nil
	case EventMessageSent:
		var e MessageSent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("realtime: decode %s: %w", f.Event, err)
		}
		if e.ChatUUID == "" || e.Message.ID == 0 {
			return nil, fmt.Errorf("realtime: %s missing chat uuid or message id", f.Event)
		}
		return e, nil
	}
	return nil, fmt.Errorf("realtime: unknown event %q", f.Event)
}

// normalizePayload unwraps the double-encoding some broadcasters apply: the
// data field may arrive as a JSON string containing JSON.
func normalizePayload(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	if raw[0] != '"' {
		return raw, nil
	}
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, err
	}
	return json.RawMessage(inner), nil
}
