package api

import (
	"context"
	"fmt"
	"net/url"
)

// CreateAppointmentInput is the POST /appointments payload.
type CreateAppointmentInput struct {
	DoctorID        int64  `json:"doctor_id"`
	AppointmentDate string `json:"appointment_date"`
	Notes           string `json:"notes,omitempty"`
}

// Appointments lists the caller's appointments, optionally filtered by status.
func (c *Client) Appointments(ctx context.Context, status AppointmentStatus) ([]Appointment, error) {
	path := "/appointments"
	if status != "" {
		if !status.Valid() {
			return nil, fmt.Errorf("api: unknown appointment status %q", status)
		}
		path += "?status=" + url.QueryEscape(string(status))
	}
	var res envelope[[]Appointment]
	if err := c.get(ctx, path, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

func (c *Client) Appointment(ctx context.Context, id int64) (*Appointment, error) {
	var res envelope[Appointment]
	if err := c.get(ctx, fmt.Sprintf("/appointments/%d", id), &res); err != nil {
		return nil, err
	}
	return &res.Data, nil
}

func (c *Client) CreateAppointment(ctx context.Context, in CreateAppointmentInput) (*Appointment, error) {
	var res envelope[Appointment]
	if err := c.post(ctx, "/appointments", in, &res); err != nil {
		return nil, err
	}
	return &res.Data, nil
}

// UpdateAppointmentStatus moves an appointment through its lifecycle via
// PUT /appointments/:id/status.
func (c *Client) UpdateAppointmentStatus(ctx context.Context, id int64, status AppointmentStatus) (*Appointment, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("api: unknown appointment status %q", status)
	}
	var res envelope[Appointment]
	body := map[string]AppointmentStatus{"status": status}
	if err := c.put(ctx, fmt.Sprintf("/appointments/%d/status", id), body, &res); err != nil {
		return nil, err
	}
	return &res.Data, nil
}

// ConfirmAppointment is the doctor-side confirm: the appointment moves to
// awaiting_payment until the patient pays.
func (c *Client) ConfirmAppointment(ctx context.Context, id int64) (*Appointment, error) {
	return c.UpdateAppointmentStatus(ctx, id, AppointmentAwaitingPayment)
}

func (c *Client) CancelAppointment(ctx context.Context, id int64) (*Appointment, error) {
	return c.UpdateAppointmentStatus(ctx, id, AppointmentCancelled)
}

func (c *Client) CompleteAppointment(ctx context.Context, id int64) (*Appointment, error) {
	return c.UpdateAppointmentStatus(ctx, id, AppointmentCompleted)
}
