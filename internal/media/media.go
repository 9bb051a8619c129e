// Package media issues time-boxed credentials for the external audio/video
// transport. The transport verifies them with the shared MEDIA_SECRET.
package media

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential grants one user access to one media channel.
type Credential struct {
	Token      string    `json:"token"`
	ChannelRef string    `json:"channel_ref"`
	UID        int       `json:"uid"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ChannelClaims are the claims carried by a channel token.
type ChannelClaims struct {
	Channel string `json:"channel"`
	UID     int    `json:"uid"`
	jwt.RegisteredClaims
}

// JWTIssuer signs channel tokens with HS256.
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTIssuer creates an issuer whose tokens are valid for ttl.
func NewJWTIssuer(secret string, ttl time.Duration) *JWTIssuer {
	return &JWTIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a credential for userID on channelRef. uid is the numeric
// identity the transport shows to the other participant.
func (i *JWTIssuer) Issue(channelRef string, uid int, userID string) (Credential, error) {
	if len(i.secret) == 0 {
		return Credential{}, errors.New("media: signing secret not configured")
	}
	now := i.now()
	expires := now.Add(i.ttl)
	claims := ChannelClaims{
		Channel: channelRef,
		UID:     uid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Token: token, ChannelRef: channelRef, UID: uid, ExpiresAt: expires}, nil
}
