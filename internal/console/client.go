package console

import (
	"sync"
	"time"

	"github.com/newsdesk/console/internal/domain"
	"github.com/newsdesk/console/internal/guard"
	"github.com/newsdesk/console/internal/session"
)

// Client is one browser client of the console, the server-side equivalent of
// a browser tab: its own session, its own queued notices, and at most one
// mounted area guard.
//
// Client implements guard.Navigator and guard.Notifier. Navigations are kept
// as a pending redirect that the current request turns into a 303; notices
// wait for the next GET /login.
type Client struct {
	ID      string
	Session *session.Session

	mu       sync.Mutex
	lastSeen time.Time
	redirect string
	notices  []guard.Notification
	mounted  *guard.AreaGuard
}

var (
	_ guard.Navigator = (*Client)(nil)
	_ guard.Notifier  = (*Client)(nil)
)

// Navigate records path as the pending redirect.
func (c *Client) Navigate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.redirect = path
}

// Notify queues n, dropping the oldest notice when the queue is full.
func (c *Client) Notify(n guard.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.notices) >= domain.MaxQueuedNotices {
		c.notices = c.notices[1:]
	}
	c.notices = append(c.notices, n)
}

// TakeRedirect returns and clears the pending redirect.
func (c *Client) TakeRedirect() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	path := c.redirect
	c.redirect = ""
	return path
}

// TakeNotices returns and clears the queued notices.
func (c *Client) TakeNotices() []guard.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.notices
	c.notices = nil
	return out
}

// Enter mounts the guard of area, unmounting the guard of any other area
// first, and returns it.
func (c *Client) Enter(area guard.Area, newGuard func() *guard.AreaGuard) *guard.AreaGuard {
	c.mu.Lock()
	prev := c.mounted
	if prev != nil && prev.Area().Name == area.Name {
		c.mu.Unlock()
		return prev
	}
	g := newGuard()
	c.mounted = g
	c.mu.Unlock()

	// Mount and Unmount run outside c.mu: eviction calls back into
	// Navigate and Notify.
	if prev != nil {
		prev.Unmount()
	}
	g.Mount()
	return g
}

// Leave unmounts the current area guard, if any.
func (c *Client) Leave() {
	c.mu.Lock()
	prev := c.mounted
	c.mounted = nil
	c.mu.Unlock()

	if prev != nil {
		prev.Unmount()
	}
}

// MountedArea returns the name of the mounted area, or "".
func (c *Client) MountedArea() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mounted == nil {
		return ""
	}
	return c.mounted.Area().Name
}

func (c *Client) touch(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = now
}

func (c *Client) idleSince(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastSeen)
}
