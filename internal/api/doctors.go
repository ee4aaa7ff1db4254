package api

import (
	"context"
	"fmt"
)

// AvailableDoctors lists doctors open for booking.
func (c *Client) AvailableDoctors(ctx context.Context) ([]Doctor, error) {
	var res []Doctor
	if err := c.get(ctx, "/doctors/available", &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) DoctorByID(ctx context.Context, id int64) (*Doctor, error) {
	var res Doctor
	if err := c.get(ctx, fmt.Sprintf("/doctors/%d", id), &res); err != nil {
		return nil, err
	}
	return &res, nil
}
