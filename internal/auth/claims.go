package auth

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/newsdesk/console/internal/domain"
)

// Claim names read from an access token.
const (
	claimUserID = "userId"
	claimSub    = "sub"
	claimEmail  = "email"
	claimRole   = "role"
	claimExp    = "exp"
)

// Record is the session record decoded from an access token. It is derived
// from the token on every decode and never stored on its own.
type Record struct {
	UserID    string      `json:"userId"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	ExpiresAt time.Time   `json:"exp"`

	// Extra holds every claim not mapped above, unchanged.
	Extra map[string]any `json:"extra,omitempty"`
}

// ExpiredAt reports whether the record is expired at now. A record whose exp
// equals now is expired.
func (r *Record) ExpiredAt(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// recordFromClaims validates the claim set and builds a Record. Missing or
// empty role and missing or non-numeric exp fail with domain.ErrDecode.
func recordFromClaims(claims jwt.MapClaims) (*Record, error) {
	rawRole, ok := claims[claimRole].(string)
	if !ok {
		return nil, fmt.Errorf("role claim missing or not a string: %w", domain.ErrDecode)
	}
	role, ok := domain.ParseRole(rawRole)
	if !ok {
		return nil, fmt.Errorf("role claim empty: %w", domain.ErrDecode)
	}

	exp, err := numericClaim(claims[claimExp])
	if err != nil {
		return nil, fmt.Errorf("exp claim: %w: %w", err, domain.ErrDecode)
	}

	rec := &Record{
		UserID:    stringClaim(claims, claimUserID),
		Email:     stringClaim(claims, claimEmail),
		Role:      role,
		ExpiresAt: domain.FromUnixSeconds(exp),
	}
	if rec.UserID == "" {
		rec.UserID = stringClaim(claims, claimSub)
	}

	extra := maps.Clone(map[string]any(claims))
	for _, k := range []string{claimUserID, claimEmail, claimRole, claimExp} {
		delete(extra, k)
	}
	if len(extra) > 0 {
		rec.Extra = extra
	}

	return rec, nil
}

func stringClaim(claims jwt.MapClaims, name string) string {
	switch v := claims[name].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// numericClaim accepts the JSON number forms a parser can produce. Fractional
// seconds are truncated.
func numericClaim(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, fmt.Errorf("missing")
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("not numeric: %q", n.String())
		}
		return int64(f), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("not numeric: %T", v)
	}
}
