package api

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/url"
)

// ChatStatus values accepted by PATCH /chats/:uuid/status.
const (
	ChatActive = "active"
	ChatClosed = "closed"
)

func (c *Client) Chats(ctx context.Context) ([]ChatListItem, error) {
	var res []ChatListItem
	if err := c.get(ctx, "/chats", &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) Chat(ctx context.Context, uuid string) (*Chat, error) {
	var res Chat
	if err := c.get(ctx, "/chats/"+url.PathEscape(uuid), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// StartConversation opens (or reuses) a chat with the given user. The server
// returns null when no chat can be created yet, e.g. no shared appointment.
func (c *Client) StartConversation(ctx context.Context, receiverID, appointmentID int64) (*Chat, error) {
	body := map[string]int64{"receiver_id": receiverID}
	if appointmentID != 0 {
		body["appointment_id"] = appointmentID
	}
	var res *Chat
	if err := c.post(ctx, "/chats", body, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) Messages(ctx context.Context, uuid string) ([]Message, error) {
	var res struct {
		Data []Message `json:"data"`
	}
	if err := c.get(ctx, "/chats/"+url.PathEscape(uuid)+"/messages", &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

// SendMessage posts a message to a chat. fileName/file may be empty for a
// plain text message; with a file the request goes out as multipart form
// data, content optional.
func (c *Client) SendMessage(ctx context.Context, uuid, content string, fileName string, file []byte) (*Message, error) {
	path := "/chats/" + url.PathEscape(uuid) + "/messages"
	var res Message

	if len(file) == 0 {
		if content == "" {
			return nil, fmt.Errorf("api: message content or file required")
		}
		if err := c.post(ctx, path, map[string]string{"content": content}, &res); err != nil {
			return nil, err
		}
		return &res, nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if content != "" {
		if err := mw.WriteField("content", content); err != nil {
			return nil, fmt.Errorf("api: write content field: %w", err)
		}
	}
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("api: create file part: %w", err)
	}
	if _, err := fw.Write(file); err != nil {
		return nil, fmt.Errorf("api: write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("api: close multipart body: %w", err)
	}

	if err := c.sendMultipart(ctx, path, buf.Bytes(), mw.FormDataContentType(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) UpdateChatStatus(ctx context.Context, uuid, status string) (*Chat, error) {
	if status != ChatActive && status != ChatClosed {
		return nil, fmt.Errorf("api: unknown chat status %q", status)
	}
	var res Chat
	if err := c.patch(ctx, "/chats/"+url.PathEscape(uuid)+"/status", map[string]string{"status": status}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// MarkMessageRead flags a single message as read.
func (c *Client) MarkMessageRead(ctx context.Context, messageID int64) error {
	return c.patch(ctx, fmt.Sprintf("/messages/%d/read", messageID), nil, nil)
}
