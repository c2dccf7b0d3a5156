package session

import "github.com/newsdesk/console/internal/auth"

// State is a point-in-time copy of the session. Consumers never share it
// with the Session; every change produces a new value.
type State struct {
	User          *auth.Record `json:"user"`
	Authenticated bool         `json:"isAuthenticated"`
	Loading       bool         `json:"loading"`
	Err           string       `json:"error,omitempty"`
}

// initialState is the state before Init completes.
func initialState() State {
	return State{Loading: true}
}

// signedOut is the empty, unauthenticated shape with an optional message.
func signedOut(msg string) State {
	return State{Err: msg}
}

// Role returns the user's role, or "" when there is no user.
func (s State) Role() string {
	if s.User == nil {
		return ""
	}
	return s.User.Role.String()
}

// Human-readable messages stored in State.Err.
const (
	msgInvalidCredentials = "Invalid email or password."
	msgLoginFailed        = "Login failed. Please try again."
	msgUnreadableToken    = "Login returned an unreadable session. Please try again."
	msgExpiredToken       = "Login returned an expired session. Please try again."
	msgSessionExpired     = "session expired"
	msgClearFailed        = "Signed out, but stored credentials could not be removed."
)
