package api

import "context"

// PaymentIntent is the server-issued client secret for the hosted payment
// element.
type PaymentIntent struct {
	ClientSecret string `json:"clientSecret"`
}

// PaymentConfirmation is the result of echoing the redirect callback back to
// the server.
type PaymentConfirmation struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CreatePaymentIntent asks the server for a payment intent covering the
// appointment's consultation fee.
func (c *Client) CreatePaymentIntent(ctx context.Context, appointmentID int64) (*PaymentIntent, error) {
	var res PaymentIntent
	body := map[string]int64{"appointment_id": appointmentID}
	if err := c.post(ctx, "/payments/intent", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ConfirmPayment reports the processor's redirect outcome to the server,
// which verifies it and confirms the appointment.
func (c *Client) ConfirmPayment(ctx context.Context, paymentIntent string, appointmentID int64) (*PaymentConfirmation, error) {
	var res PaymentConfirmation
	body := map[string]any{
		"payment_intent": paymentIntent,
		"appointment_id": appointmentID,
	}
	if err := c.post(ctx, "/payments/confirm", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
