package api

import (
	"context"
	"net/url"
)

func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	var res []Notification
	if err := c.get(ctx, "/notifications", &res); err != nil {
		return nil, err
	}
	return res, nil
}

// UnreadNotificationCount is the server-side unread counter, used as a cheap
// cross-check against the local store.
func (c *Client) UnreadNotificationCount(ctx context.Context) (int, error) {
	var res struct {
		Count int `json:"count"`
	}
	if err := c.get(ctx, "/notifications/unread-count", &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.patch(ctx, "/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.post(ctx, "/notifications/mark-all-read", nil, nil)
}
