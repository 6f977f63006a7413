package device

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is the subset of device-token claims the client cares about.
// The token is issued and verified by the backend; the tablet only inspects
// it to warn ahead of expiry, so no signature verification happens here.
type TokenInfo struct {
	DeviceID  string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// InspectToken parses the device token without verifying its signature.
func InspectToken(token string) (*TokenInfo, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse device token: %w", err)
	}

	info := &TokenInfo{}
	if sub, err := claims.GetSubject(); err == nil {
		info.DeviceID = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = iat.Time
	}
	return info, nil
}

// ExpiresWithin reports whether the token expires inside the given window.
// Tokens with no expiry claim never expire.
func (t *TokenInfo) ExpiresWithin(window time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Until(t.ExpiresAt) < window
}
