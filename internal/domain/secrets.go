package domain

import "log/slog"

// SecretString wraps sensitive string values such as access and refresh
// tokens or passwords. It implements slog.LogValuer and fmt.Stringer so the
// value never reaches a log line or error message by accident.
type SecretString string

// String returns a redacted placeholder, never the actual value.
func (s SecretString) String() string {
	return "[REDACTED]"
}

// LogValue implements slog.LogValuer.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}

// Expose returns the actual secret value. Only the token store, the decoder
// and the authentication client should need it.
func (s SecretString) Expose() string {
	return string(s)
}

// IsEmpty returns true if the secret is empty.
func (s SecretString) IsEmpty() bool {
	return len(s) == 0
}

var _ slog.LogValuer = SecretString("")
