// Package console serves the newsdesk dashboards to browser clients. Each
// client is identified by a cookie and owns an isolated session; the admin,
// editor and reporter areas are protected by that session's area guards.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/newsdesk/console/internal/auth"
	"github.com/newsdesk/console/internal/domain"
	"github.com/newsdesk/console/internal/errmap"
	"github.com/newsdesk/console/internal/guard"
	"github.com/newsdesk/console/internal/session"
)

var tracer = otel.Tracer("console")

// maxLoginBody bounds POST /login bodies.
const maxLoginBody = 16 << 10

type ctxKey struct{}

// HandlerConfig holds the collaborators of a Handler.
type HandlerConfig struct {
	Registry     *Registry
	Areas        guard.Areas
	Limiter      Limiter
	Logger       *slog.Logger
	SecureCookie bool
	// TrustProxy takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable it only behind a proxy that sets them.
	TrustProxy bool
}

// Handler serves the console routes.
type Handler struct {
	registry     *Registry
	areas        guard.Areas
	limiter      Limiter
	logger       *slog.Logger
	secureCookie bool
	trustProxy   bool
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry:     cfg.Registry,
		areas:        cfg.Areas,
		limiter:      cfg.Limiter,
		logger:       logger,
		secureCookie: cfg.SecureCookie,
		trustProxy:   cfg.TrustProxy,
	}
}

// Routes mounts the console on r.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recoverer)
		if h.trustProxy {
			r.Use(middleware.RealIP)
		}
		r.Use(h.attachClient)

		r.Get(domain.LoginPath, h.loginPage)
		r.Post(domain.LoginPath, h.login)
		r.Post(domain.LogoutPath, h.logout)
		r.Get("/session", h.sessionState)

		for _, area := range h.areas {
			r.Get(area.Prefix, h.areaPage)
			r.Get(area.Prefix+"/*", h.areaPage)
		}
	})
}

// attachClient resolves the client cookie, issuing a new ID to first-time
// visitors and unparseable cookies. Clients the registry does not keep are
// released when the request ends.
func (h *Handler) attachClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if ck, err := r.Cookie(domain.ClientCookieName); err == nil {
			if parsed, perr := uuid.Parse(ck.Value); perr == nil {
				id = parsed.String()
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     domain.ClientCookieName,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				Secure:   h.secureCookie,
				SameSite: http.SameSiteLaxMode,
			})
		}

		c := h.registry.Attach(r.Context(), id)
		defer h.registry.Release(c)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, c)))
	})
}

func clientFrom(ctx context.Context) *Client {
	c, _ := ctx.Value(ctxKey{}).(*Client)
	return c
}

type loginPageResponse struct {
	State   session.State        `json:"state"`
	Notices []guard.Notification `json:"notices"`
}

func (h *Handler) loginPage(w http.ResponseWriter, r *http.Request) {
	c := clientFrom(r.Context())
	c.Leave()

	notices := c.TakeNotices()
	if notices == nil {
		notices = []guard.Notification{}
	}
	errmap.WriteJSON(w, http.StatusOK, loginPageResponse{
		State:   c.Session.State(),
		Notices: notices,
	})
}

type loginForm struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginFailure struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	State   session.State `json:"state"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "console.login")
	defer span.End()
	c := clientFrom(ctx)

	form, err := readLoginForm(w, r)
	if err != nil {
		errmap.WriteError(w, err)
		return
	}

	if !h.allowLogin(ctx, form.Email, r.RemoteAddr) {
		errmap.WriteError(w, fmt.Errorf("too many login attempts: %w", domain.ErrRateLimited))
		return
	}

	// The login screen sits outside every area layout.
	c.Leave()

	if !c.Session.Login(ctx, form.Email, form.Password) {
		st := c.Session.State()
		errmap.WriteJSON(w, http.StatusUnauthorized, loginFailure{
			Code:    "LOGIN_FAILED",
			Message: st.Err,
			State:   st,
		})
		return
	}

	h.registry.Adopt(c)

	st := c.Session.State()
	target := "/session"
	if st.User != nil {
		if area, ok := h.areas.ForRole(st.User.Role); ok {
			target = area.Prefix + "/"
		}
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// allowLogin counts one attempt against the account and one against the
// remote address. Both must be under their limit; a limiter error denies.
func (h *Handler) allowLogin(ctx context.Context, email, remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	keys := []string{
		"account:" + strings.ToLower(email),
		"addr:" + host,
	}

	allowed := true
	for _, key := range keys {
		ok, err := h.limiter.Allow(ctx, key)
		if err != nil {
			h.logger.WarnContext(ctx, "login throttle unavailable, denying attempt",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		allowed = allowed && ok
	}
	return allowed
}

func readLoginForm(w http.ResponseWriter, r *http.Request) (loginForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBody)

	var form loginForm
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
			return form, fmt.Errorf("decode login body: %w", domain.ErrInvalidInput)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return form, fmt.Errorf("parse login form: %w", domain.ErrInvalidInput)
		}
		form.Email = r.PostFormValue("email")
		form.Password = r.PostFormValue("password")
	}

	form.Email = strings.TrimSpace(form.Email)
	if form.Email == "" || form.Password == "" {
		return form, fmt.Errorf("email and password are required: %w", domain.ErrInvalidInput)
	}
	return form, nil
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	c := clientFrom(r.Context())
	c.Leave()
	c.Session.Logout(r.Context())
	http.Redirect(w, r, domain.LoginPath, http.StatusSeeOther)
}

func (h *Handler) sessionState(w http.ResponseWriter, r *http.Request) {
	c := clientFrom(r.Context())
	errmap.WriteJSON(w, http.StatusOK, c.Session.Revalidate())
}

type areaPageResponse struct {
	Area guard.Area   `json:"area"`
	Path string       `json:"path"`
	User *auth.Record `json:"user"`
}

func (h *Handler) areaPage(w http.ResponseWriter, r *http.Request) {
	c := clientFrom(r.Context())

	area, ok := h.areas.Match(r.URL.Path)
	if !ok {
		errmap.WriteError(w, fmt.Errorf("no area serves %s: %w", r.URL.Path, domain.ErrNotFound))
		return
	}

	g := c.Enter(area, func() *guard.AreaGuard {
		return guard.NewAreaGuard(guard.AreaGuardConfig{
			Area:      area,
			Session:   c.Session,
			Navigator: c,
			Notifier:  c,
			Logger:    h.logger.With(slog.String("client_id", c.ID)),
		})
	})

	allowed := g.Allow()
	redirect := c.TakeRedirect()
	switch {
	case redirect != "":
		c.Leave()
		http.Redirect(w, r, redirect, http.StatusSeeOther)
	case !allowed:
		// Still loading: render nothing.
		w.WriteHeader(http.StatusNoContent)
	default:
		errmap.WriteJSON(w, http.StatusOK, areaPageResponse{
			Area: area,
			Path: r.URL.Path,
			User: c.Session.State().User,
		})
	}
}
