package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/privylock/internal/server/models"
	"github.com/go-resty/resty/v2"
)

type pushPayload struct {
	UserID         string `json:"user_id"`
	NotificationID string `json:"notification_id"`
	Type           string `json:"notification_type"`
	Priority       string `json:"priority"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	ActionURL      string `json:"action_url,omitempty"`
}

// PushTransport posts notifications to an HTTP push gateway which fans
// them out to the user's devices.
type PushTransport struct {
	client *resty.Client
	url    string
}

func NewPushTransport(url, key string, timeout time.Duration) *PushTransport {
	c := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if key != "" {
		c.SetAuthToken(key)
	}
	return &PushTransport{client: c, url: url}
}

func (t *PushTransport) Name() string { return "push" }

func (t *PushTransport) Send(ctx context.Context, n *models.Notification, u *models.User) error {
	if t.url == "" {
		return ErrNotConfigured
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(pushPayload{
			UserID:         u.ID,
			NotificationID: n.ID,
			Type:           string(n.Type),
			Priority:       string(n.Priority),
			Title:          string(n.EncryptedTitle),
			Body:           string(n.EncryptedBody),
			ActionURL:      n.ActionURL,
		}).
		Post(t.url)
	if err != nil {
		return fmt.Errorf("push gateway: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("push gateway: status %d", resp.StatusCode())
	}
	return nil
}
