// Package auth reads session records out of access tokens and talks to the
// backend's login endpoint.
//
// The decoder never verifies signatures. The backend checks them on every
// API call; the client only reads claims to decide routing.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/newsdesk/console/internal/domain"
)

// Decoder turns access tokens into Records and judges their expiry.
type Decoder struct {
	parser *jwt.Parser
	clock  domain.Clock
}

// NewDecoder creates a Decoder that judges expiry against clock.
func NewDecoder(clock domain.Clock) *Decoder {
	return &Decoder{
		parser: jwt.NewParser(jwt.WithJSONNumber()),
		clock:  clock,
	}
}

// Decode parses the token's claims without checking its signature or expiry.
// Any structural problem or missing required claim wraps domain.ErrDecode.
func (d *Decoder) Decode(token string) (*Record, error) {
	if token == "" {
		return nil, fmt.Errorf("empty token: %w", domain.ErrDecode)
	}

	claims := jwt.MapClaims{}
	if _, _, err := d.parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w: %w", domain.ErrDecode, err)
	}

	return recordFromClaims(claims)
}

// IsExpired reports whether rec is expired now. It reads the clock once.
func (d *Decoder) IsExpired(rec *Record) bool {
	return rec.ExpiredAt(d.clock.Now())
}

// DecodeValid decodes token and rejects it when expired, wrapping
// domain.ErrSessionExpired.
func (d *Decoder) DecodeValid(token string) (*Record, error) {
	rec, err := d.Decode(token)
	if err != nil {
		return nil, err
	}
	if d.IsExpired(rec) {
		return nil, fmt.Errorf("token expired at %s: %w", rec.ExpiresAt.Format(time.RFC3339), domain.ErrSessionExpired)
	}
	return rec, nil
}
