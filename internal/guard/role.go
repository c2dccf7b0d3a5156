package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/newsdesk/console/internal/domain"
	"github.com/newsdesk/console/internal/session"
)

var violationsTotal metric.Int64Counter

func init() {
	m := otel.Meter("guard")

	violationsTotal, _ = m.Int64Counter("guard_violations_total",
		metric.WithDescription("Total role mismatches that forced a logout"))
}

// defaultLogoutTimeout bounds the forced logout after a role mismatch.
const defaultLogoutTimeout = 5 * time.Second

// RoleGuardConfig holds the collaborators of a RoleGuard.
type RoleGuardConfig struct {
	Area      Area
	Session   Session
	Navigator Navigator
	Notifier  Notifier
	Logger    *slog.Logger
	LoginPath string        // Empty uses domain.LoginPath
	Timeout   time.Duration // Bounds the forced logout; zero uses 5s
}

// RoleGuard watches a session and evicts it from an area whose required role
// it does not hold. Each violation produces exactly one notification, then a
// logout, then a redirect to the login path.
type RoleGuard struct {
	area      Area
	sess      Session
	nav       Navigator
	notifier  Notifier
	logger    *slog.Logger
	loginPath string
	timeout   time.Duration

	mu          sync.Mutex
	violated    bool
	unsubscribe func()
}

// NewRoleGuard creates a RoleGuard. It does nothing until Start.
func NewRoleGuard(cfg RoleGuardConfig) *RoleGuard {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = domain.LoginPath
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultLogoutTimeout
	}
	return &RoleGuard{
		area:      cfg.Area,
		sess:      cfg.Session,
		nav:       cfg.Navigator,
		notifier:  cfg.Notifier,
		logger:    logger.With(slog.String("area", cfg.Area.Name)),
		loginPath: loginPath,
		timeout:   timeout,
	}
}

// Start subscribes to the session and evaluates the current state at once.
// Calling Start on a started guard does nothing.
func (g *RoleGuard) Start() {
	g.mu.Lock()
	if g.unsubscribe != nil {
		g.mu.Unlock()
		return
	}
	g.unsubscribe = g.sess.Subscribe(g.onChange)
	g.mu.Unlock()

	g.onChange(g.sess.State())
}

// Stop unsubscribes. A stopped guard can be started again.
func (g *RoleGuard) Stop() {
	g.mu.Lock()
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	g.violated = false
	g.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (g *RoleGuard) onChange(st session.State) {
	status := Evaluate(st, g.area.Role)

	g.mu.Lock()
	switch status {
	case StatusWrongRole:
		if g.violated {
			g.mu.Unlock()
			return
		}
		g.violated = true
	case StatusInitializing:
		// Loading keeps the previous verdict.
		g.mu.Unlock()
		return
	default:
		// Signed out or allowed: the violation, if any, is over.
		g.violated = false
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	g.evict(st)
}

// evict runs without g.mu: Logout notifies synchronously and re-enters
// onChange.
func (g *RoleGuard) evict(st session.State) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	violationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("area", g.area.Name)))
	g.logger.WarnContext(ctx, "role not permitted in area, signing out",
		slog.String("user_id", st.User.UserID),
		slog.String("role", st.User.Role.String()),
		slog.String("required_role", g.area.Role.String()),
	)

	g.notifier.Notify(Notification{
		Level:   LevelError,
		Area:    g.area.Name,
		Message: fmt.Sprintf("You are not authorized to access the %s area.", g.area.Name),
	})
	g.sess.Logout(ctx)
	g.nav.Navigate(g.loginPath)
}
