// AngelaMos | 2026
// token.go

package channel

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/whisperme/whisper-api/internal/config"
)

const channelClaim = "channel"

var ErrTokenIssue = errors.New("channel token could not be issued")

// Credentials are what a client needs to join the audio channel of one
// session.
type Credentials struct {
	AppID     string    `json:"app_id"`
	Channel   string    `json:"channel"`
	UID       string    `json:"uid"`
	PeerUID   string    `json:"peer_uid"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenIssuer signs short-lived channel join tokens with the app
// certificate shared with the media provider.
type TokenIssuer struct {
	appID string
	key   []byte
	ttl   time.Duration
	now   func() time.Time
}

func NewTokenIssuer(cfg config.ChannelConfig) (*TokenIssuer, error) {
	if cfg.AppID == "" || cfg.AppCertificate == "" {
		return nil, fmt.Errorf("%w: channel app id and certificate are required",
			ErrTokenIssue)
	}

	return &TokenIssuer{
		appID: cfg.AppID,
		key:   []byte(cfg.AppCertificate),
		ttl:   cfg.TokenTTL,
		now:   time.Now,
	}, nil
}

func (t *TokenIssuer) Issue(sessionID, userID, peerID string) (*Credentials, error) {
	now := t.now()
	expiresAt := now.Add(t.ttl)

	token, err := jwt.NewBuilder().
		Issuer(t.appID).
		Subject(userID).
		IssuedAt(now).
		Expiration(expiresAt).
		Claim(channelClaim, sessionID).
		Build()
	if err != nil {
		return nil, fmt.Errorf("%w: build: %w", ErrTokenIssue, err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), t.key))
	if err != nil {
		return nil, fmt.Errorf("%w: sign: %w", ErrTokenIssue, err)
	}

	return &Credentials{
		AppID:     t.appID,
		Channel:   sessionID,
		UID:       userID,
		PeerUID:   peerID,
		Token:     string(signed),
		ExpiresAt: expiresAt,
	}, nil
}
