package guard

import "github.com/newsdesk/console/internal/domain"

// RouteGuard keeps signed-out visitors out of a protected tree.
type RouteGuard struct {
	sess      Session
	nav       Navigator
	loginPath string
}

// NewRouteGuard creates a RouteGuard. An empty loginPath uses
// domain.LoginPath.
func NewRouteGuard(sess Session, nav Navigator, loginPath string) *RouteGuard {
	if loginPath == "" {
		loginPath = domain.LoginPath
	}
	return &RouteGuard{sess: sess, nav: nav, loginPath: loginPath}
}

// Check runs before every protected render and reports whether the tree may
// render. It re-checks token expiry first. While the session is still
// loading it renders nothing and does not redirect; once settled and signed
// out it navigates to the login path.
func (g *RouteGuard) Check() bool {
	st := g.sess.Revalidate()

	switch {
	case st.Loading:
		return false
	case !st.Authenticated:
		g.nav.Navigate(g.loginPath)
		return false
	default:
		return true
	}
}
