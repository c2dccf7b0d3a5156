package guard

import "log/slog"

// AreaGuardConfig holds the collaborators of an AreaGuard.
type AreaGuardConfig struct {
	Area      Area
	Session   Session
	Navigator Navigator
	Notifier  Notifier
	Logger    *slog.Logger
	LoginPath string
}

// AreaGuard is the route guard and role guard of one dashboard area, the way
// an area layout mounts them.
type AreaGuard struct {
	area  Area
	sess  Session
	route *RouteGuard
	role  *RoleGuard
}

// NewAreaGuard creates an AreaGuard. Call Mount before Allow.
func NewAreaGuard(cfg AreaGuardConfig) *AreaGuard {
	return &AreaGuard{
		area:  cfg.Area,
		sess:  cfg.Session,
		route: NewRouteGuard(cfg.Session, cfg.Navigator, cfg.LoginPath),
		role: NewRoleGuard(RoleGuardConfig{
			Area:      cfg.Area,
			Session:   cfg.Session,
			Navigator: cfg.Navigator,
			Notifier:  cfg.Notifier,
			Logger:    cfg.Logger,
			LoginPath: cfg.LoginPath,
		}),
	}
}

// Area returns the guarded area.
func (g *AreaGuard) Area() Area { return g.area }

// Mount starts watching the session for role violations.
func (g *AreaGuard) Mount() { g.role.Start() }

// Unmount stops watching the session.
func (g *AreaGuard) Unmount() { g.role.Stop() }

// Allow reports whether the area may render now. Redirects and notifications
// have already been issued when it returns false.
func (g *AreaGuard) Allow() bool {
	if !g.route.Check() {
		return false
	}
	return Evaluate(g.sess.State(), g.area.Role) == StatusOK
}
