// Package googleauth verifies Google ID tokens through the tokeninfo
// endpoint.
package googleauth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/go-resty/resty/v2"
)

var validIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

// Identity is the verified subset of an ID token.
type Identity struct {
	GoogleID      string
	Email         string
	EmailVerified bool
	Name          string
}

// Verifier checks an ID token and returns the identity it asserts.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (*Identity, error)
}

type tokenInfo struct {
	Iss           string `json:"iss"`
	Aud           string `json:"aud"`
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Exp           string `json:"exp"`
	Name          string `json:"name"`
}

// TokenInfoVerifier calls Google's tokeninfo endpoint, then checks the
// issuer, audience and expiry locally.
type TokenInfoVerifier struct {
	client   *resty.Client
	url      string
	clientID string
	now      func() time.Time
}

func NewTokenInfoVerifier(url, clientID string, timeout time.Duration) *TokenInfoVerifier {
	return &TokenInfoVerifier{
		client:   resty.New().SetTimeout(timeout),
		url:      url,
		clientID: clientID,
		now:      time.Now,
	}
}

func (v *TokenInfoVerifier) Verify(ctx context.Context, idToken string) (*Identity, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, fmt.Errorf("%w: empty token", common.ErrInvalidGoogleToken)
	}

	var info tokenInfo
	resp, err := v.client.R().
		SetContext(ctx).
		SetQueryParam("id_token", idToken).
		SetResult(&info).
		Get(v.url)
	if err != nil {
		return nil, fmt.Errorf("tokeninfo request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: tokeninfo status %d", common.ErrInvalidGoogleToken, resp.StatusCode())
	}

	if !validIssuers[info.Iss] {
		return nil, fmt.Errorf("%w: invalid token issuer", common.ErrInvalidGoogleToken)
	}
	if v.clientID != "" && info.Aud != v.clientID {
		return nil, fmt.Errorf("%w: audience mismatch", common.ErrInvalidGoogleToken)
	}
	if exp, err := strconv.ParseInt(info.Exp, 10, 64); err != nil || v.now().Unix() >= exp {
		return nil, fmt.Errorf("%w: token expired", common.ErrInvalidGoogleToken)
	}
	if info.Sub == "" || info.Email == "" {
		return nil, fmt.Errorf("%w: missing subject or email", common.ErrInvalidGoogleToken)
	}

	return &Identity{
		GoogleID:      info.Sub,
		Email:         strings.ToLower(strings.TrimSpace(info.Email)),
		EmailVerified: info.EmailVerified == "true",
		Name:          info.Name,
	}, nil
}
