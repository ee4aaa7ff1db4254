// Package payments drives the client side of the checkout flow: create a
// payment intent for an appointment awaiting payment, hand off to the hosted
// payment page, and confirm the intent echoed back on the redirect URL.
package payments

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shifalink/portal-client/internal/api"
	"github.com/shifalink/portal-client/internal/store"
	"github.com/shifalink/portal-client/pkg/logging"
)

var tracer = otel.Tracer("shifalink.internal.payments")

// Gateway is the REST surface the flow needs; the api client satisfies it.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, appointmentID int64) (*api.PaymentIntent, error)
	ConfirmPayment(ctx context.Context, paymentIntent string, appointmentID int64) (*api.PaymentConfirmation, error)
}

// Redirect is the provider's return URL, parsed. The intent id and the
// appointment id round-trip through the redirect so Complete can tie the
// confirmation back to the booking.
type Redirect struct {
	PaymentIntent string
	AppointmentID int64
	Status        string
}

// Succeeded reports whether the provider marked the redirect successful.
// An empty status is treated as success; not every provider sends one.
func (r Redirect) Succeeded() bool {
	return r.Status == "" || r.Status == "succeeded"
}

// ParseRedirect extracts the payment intent and appointment id from a
// redirect URL's query string.
func ParseRedirect(rawURL string) (Redirect, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Redirect{}, fmt.Errorf("payments: parse redirect url: %w", err)
	}
	q := u.Query()

	intent := q.Get("payment_intent")
	if intent == "" {
		return Redirect{}, fmt.Errorf("payments: redirect missing payment_intent")
	}
	rawID := q.Get("appointment_id")
	if rawID == "" {
		return Redirect{}, fmt.Errorf("payments: redirect missing appointment_id")
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return Redirect{}, fmt.Errorf("payments: invalid appointment_id %q", rawID)
	}

	return Redirect{
		PaymentIntent: intent,
		AppointmentID: id,
		Status:        q.Get("redirect_status"),
	}, nil
}

// Flow orchestrates intent creation and confirmation against the booking API
// and keeps the local appointment store in step.
type Flow struct {
	gateway      Gateway
	appointments *store.Appointments
	logger       *logging.Logger
}

func NewFlow(gateway Gateway, appointments *store.Appointments, logger *logging.Logger) *Flow {
	if logger == nil {
		logger = logging.Default()
	}
	return &Flow{
		gateway:      gateway,
		appointments: appointments,
		logger:       logger,
	}
}

// Begin creates a payment intent for the appointment. The returned client
// secret is handed to the hosted payment element.
func (f *Flow) Begin(ctx context.Context, appointmentID int64) (*api.PaymentIntent, error) {
	ctx, span := tracer.Start(ctx, "payments.create_intent")
	defer span.End()
	span.SetAttributes(attribute.Int64("shifalink.appointment_id", appointmentID))

	intent, err := f.gateway.CreatePaymentIntent(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("payments: create intent: %w", err)
	}
	if intent.ClientSecret == "" {
		return nil, fmt.Errorf("payments: intent has no client secret")
	}
	f.logger.Info("payments: intent created", "appointment_id", appointmentID)
	return intent, nil
}

// Complete confirms the intent from a redirect and marks the appointment
// confirmed locally. The server's broadcast of the same transition will
// deduplicate against this patch.
func (f *Flow) Complete(ctx context.Context, r Redirect) (*api.PaymentConfirmation, error) {
	ctx, span := tracer.Start(ctx, "payments.confirm")
	defer span.End()
	span.SetAttributes(
		attribute.String("shifalink.payment_intent", r.PaymentIntent),
		attribute.Int64("shifalink.appointment_id", r.AppointmentID),
	)

	if !r.Succeeded() {
		return nil, fmt.Errorf("payments: provider reported status %q", r.Status)
	}

	conf, err := f.gateway.ConfirmPayment(ctx, r.PaymentIntent, r.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("payments: confirm: %w", err)
	}
	if !conf.Success {
		return conf, fmt.Errorf("payments: confirmation rejected: %s", conf.Message)
	}

	if !f.appointments.PatchStatus(r.AppointmentID, api.AppointmentConfirmed) {
		f.logger.Debug("payments: confirmed appointment not in local store", "appointment_id", r.AppointmentID)
	}
	f.logger.Info("payments: payment confirmed", "appointment_id", r.AppointmentID)
	return conf, nil
}
