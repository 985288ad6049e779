package notify

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/privylock/internal/server/models"
)

// EmailTransport delivers notifications through a Mailer. Notification
// title and body are stored as UTF-8 text bytes. A nil Mailer makes every
// Send fail with ErrNotConfigured.
type EmailTransport struct {
	mailer      Mailer
	frontendURL string
}

func NewEmailTransport(m Mailer, frontendURL string) *EmailTransport {
	return &EmailTransport{mailer: m, frontendURL: strings.TrimRight(frontendURL, "/")}
}

func (t *EmailTransport) Name() string { return "email" }

func (t *EmailTransport) Send(ctx context.Context, n *models.Notification, u *models.User) error {
	if t.mailer == nil {
		return ErrNotConfigured
	}
	body := string(n.EncryptedBody)
	if n.ActionURL != "" {
		link := n.ActionURL
		if strings.HasPrefix(link, "/") {
			link = t.frontendURL + link
		}
		body += "\n\n" + link
	}
	return t.mailer.Send(ctx, u.Email, "PrivyLock: "+string(n.EncryptedTitle), body)
}

// SendVerification mails the e-mail verification link for token.
func SendVerification(ctx context.Context, m Mailer, frontendURL, email, token string) error {
	link := strings.TrimRight(frontendURL, "/") + "/verify-email/" + token
	body := "Welcome to PrivyLock.\n\n" +
		"Please confirm your e-mail address by opening the link below:\n\n" +
		link + "\n\n" +
		"If you did not create an account, you can ignore this message."
	return m.Send(ctx, email, "Verify your PrivyLock email", body)
}
