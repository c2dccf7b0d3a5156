// Package guard decides whether a session may see a protected area and acts
// on the answer: redirecting signed-out visitors to the login page, and
// signing out sessions whose role does not belong in the area.
//
// Guards depend only on the Navigator and Notifier interfaces, so the same
// guards drive the web console and the terminal client.
package guard

import (
	"context"

	"github.com/newsdesk/console/internal/domain"
	"github.com/newsdesk/console/internal/session"
)

// Status is the combined route and role guard state.
type Status int

// Guard states. StatusInitializing is the only initial state; StatusOK is the
// only state that lets the area render.
const (
	StatusInitializing Status = iota
	StatusUnauthenticated
	StatusWrongRole
	StatusOK
)

var statusNames = [...]string{
	StatusInitializing:    "initializing",
	StatusUnauthenticated: "unauthenticated",
	StatusWrongRole:       "wrong_role",
	StatusOK:              "ok",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Evaluate maps a session state to a guard status for an area requiring
// role.
func Evaluate(st session.State, role domain.Role) Status {
	switch {
	case st.Loading:
		return StatusInitializing
	case !st.Authenticated || st.User == nil:
		return StatusUnauthenticated
	case st.User.Role != role:
		return StatusWrongRole
	default:
		return StatusOK
	}
}

// Session is the part of *session.Session the guards use.
type Session interface {
	State() session.State
	Revalidate() session.State
	Subscribe(fn func(session.State)) (unsubscribe func())
	Logout(ctx context.Context)
}

var _ Session = (*session.Session)(nil)

// Navigator performs client-side navigation.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

// Navigate calls f(path).
func (f NavigatorFunc) Navigate(path string) { f(path) }

// Level classifies a Notification.
type Level string

// Notification levels.
const (
	LevelError Level = "error"
	LevelInfo  Level = "info"
)

// Notification is a user-visible message.
type Notification struct {
	Level   Level  `json:"level"`
	Area    string `json:"area,omitempty"`
	Message string `json:"message"`
}

// Notifier surfaces notifications to the user.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) { f(n) }
