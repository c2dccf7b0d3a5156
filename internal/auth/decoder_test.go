package auth_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsdesk/console/internal/auth"
	"github.com/newsdesk/console/internal/auth/authtest"
	"github.com/newsdesk/console/internal/domain"
	"github.com/newsdesk/console/internal/domain/domaintest"
)

func newTestDecoder() (*auth.Decoder, *domaintest.FakeClock) {
	clock := domaintest.NewFakeClock(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	return auth.NewDecoder(clock), clock
}

func TestDecode_ValidToken(t *testing.T) {
	dec, clock := newTestDecoder()
	exp := clock.Now().Add(time.Hour)
	token := authtest.UserToken(t, "u-42", "ana@newsdesk.example", "editor", exp)

	rec, err := dec.Decode(token)

	require.NoError(t, err)
	assert.Equal(t, "u-42", rec.UserID)
	assert.Equal(t, "ana@newsdesk.example", rec.Email)
	assert.Equal(t, domain.RoleEditor, rec.Role)
	assert.True(t, exp.Truncate(time.Second).Equal(rec.ExpiresAt))
	assert.Contains(t, rec.Extra, "jti")
	assert.False(t, dec.IsExpired(rec))
}

func TestDecode_SubFallsBackForUserID(t *testing.T) {
	dec, clock := newTestDecoder()
	token := authtest.Token(t, authtest.Claims{
		"sub":  "u-7",
		"role": "admin",
		"exp":  clock.Now().Add(time.Minute).Unix(),
	})

	rec, err := dec.Decode(token)

	require.NoError(t, err)
	assert.Equal(t, "u-7", rec.UserID)
	assert.Empty(t, rec.Email)
}

func TestDecode_UnknownRolePassesThrough(t *testing.T) {
	dec, clock := newTestDecoder()
	token := authtest.UserToken(t, "u-1", "x@newsdesk.example", "subscriber", clock.Now().Add(time.Minute))

	rec, err := dec.Decode(token)

	require.NoError(t, err)
	assert.Equal(t, domain.Role("subscriber"), rec.Role)
}

func TestDecode_RoleKeptVerbatim(t *testing.T) {
	dec, clock := newTestDecoder()
	token := authtest.UserToken(t, "u-1", "x@newsdesk.example", " admin ", clock.Now().Add(time.Minute))

	rec, err := dec.Decode(token)

	require.NoError(t, err)
	assert.Equal(t, domain.Role(" admin "), rec.Role)
	assert.NotEqual(t, domain.RoleAdmin, rec.Role)
}

func TestDecode_FailsClosed(t *testing.T) {
	dec, clock := newTestDecoder()
	future := clock.Now().Add(time.Hour).Unix()
	payloadOnly := func(json string) string {
		seg := base64.RawURLEncoding.EncodeToString([]byte(json))
		return "eyJhbGciOiJIUzI1NiJ9." + seg + ".sig"
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty string", ""},
		{"not a jwt", "not-a-jwt"},
		{"two segments", "abc.def"},
		{"payload not base64", "eyJhbGciOiJIUzI1NiJ9.!!!.sig"},
		{"payload not an object", payloadOnly(`["role","admin"]`)},
		{"missing role", authtest.Token(t, authtest.Claims{"exp": future})},
		{"empty role", authtest.Token(t, authtest.Claims{"role": "", "exp": future})},
		{"role not a string", authtest.Token(t, authtest.Claims{"role": 3, "exp": future})},
		{"missing exp", authtest.Token(t, authtest.Claims{"role": "admin"})},
		{"exp not numeric", authtest.Token(t, authtest.Claims{"role": "admin", "exp": "tomorrow"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := dec.Decode(tt.token)

			assert.Nil(t, rec)
			assert.ErrorIs(t, err, domain.ErrDecode)
		})
	}
}

func TestIsExpired(t *testing.T) {
	dec, clock := newTestDecoder()
	now := clock.Now()

	tests := []struct {
		name string
		exp  time.Time
		want bool
	}{
		{"one second in the future", now.Add(time.Second), false},
		{"exactly now", now, true},
		{"in the past", now.Add(-time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := dec.Decode(authtest.UserToken(t, "u", "e", "admin", tt.exp))
			require.NoError(t, err)

			assert.Equal(t, tt.want, dec.IsExpired(rec))
		})
	}
}

func TestIsExpired_FollowsClock(t *testing.T) {
	dec, clock := newTestDecoder()
	rec, err := dec.Decode(authtest.UserToken(t, "u", "e", "admin", clock.Now().Add(time.Minute)))
	require.NoError(t, err)
	require.False(t, dec.IsExpired(rec))

	clock.Advance(time.Minute)

	assert.True(t, dec.IsExpired(rec))
}

func TestDecodeValid(t *testing.T) {
	dec, clock := newTestDecoder()

	_, err := dec.DecodeValid(authtest.UserToken(t, "u", "e", "admin", clock.Now().Add(-time.Second)))
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	_, err = dec.DecodeValid("not-a-jwt")
	assert.ErrorIs(t, err, domain.ErrDecode)

	rec, err := dec.DecodeValid(authtest.UserToken(t, "u", "e", "admin", clock.Now().Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, rec.Role)
}
