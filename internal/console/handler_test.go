package console_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/newsdesk/console/internal/auth"
	"github.com/newsdesk/console/internal/auth/authtest"
	"github.com/newsdesk/console/internal/console"
	"github.com/newsdesk/console/internal/domain"
	"github.com/newsdesk/console/internal/domain/domaintest"
	"github.com/newsdesk/console/internal/guard"
	"github.com/newsdesk/console/internal/observability"
	"github.com/newsdesk/console/internal/tokenstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubAuthenticator struct {
	loginFn func(ctx context.Context, email, password string) (domain.CredentialPair, error)
}

func (s *stubAuthenticator) Login(ctx context.Context, email, password string) (domain.CredentialPair, error) {
	return s.loginFn(ctx, email, password)
}

type stubLimiter struct {
	allowFn func(ctx context.Context, key string) (bool, error)
}

func (s *stubLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return s.allowFn(ctx, key)
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	t        *testing.T
	router   chi.Router
	stores   *tokenstore.MemoryFactory
	clock    *domaintest.FakeClock
	registry *console.Registry
	limiter  *stubLimiter
	cookie   *http.Cookie
}

// roles maps test emails to the role of the token the backend issues.
var roles = map[string]string{
	"admin@newsdesk.example":    "admin",
	"editor@newsdesk.example":   "editor",
	"reporter@newsdesk.example": "reporter",
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		t:      t,
		stores: tokenstore.NewMemoryFactory(),
		clock:  domaintest.NewFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)),
		limiter: &stubLimiter{allowFn: func(context.Context, string) (bool, error) {
			return true, nil
		}},
	}

	authn := &stubAuthenticator{
		loginFn: func(_ context.Context, email, password string) (domain.CredentialPair, error) {
			role, ok := roles[email]
			if !ok || password != "correct-horse" {
				return domain.CredentialPair{}, domain.ErrInvalidCredentials
			}
			return domain.CredentialPair{
				AccessToken:  domain.SecretString(h.token(role, time.Hour)),
				RefreshToken: domain.SecretString("refresh-" + role),
			}, nil
		},
	}

	h.registry = console.NewRegistry(console.RegistryConfig{
		Stores:        h.stores.For,
		Decoder:       auth.NewDecoder(h.clock),
		Authenticator: authn,
		Clock:         h.clock,
		Logger:        observability.DiscardLogger(),
		OnEvict:       h.stores.Forget,
	})

	h.router = chi.NewRouter()
	console.NewHandler(console.HandlerConfig{
		Registry: h.registry,
		Areas:    guard.DefaultAreas(),
		Limiter:  h.limiter,
		Logger:   observability.DiscardLogger(),
	}).Routes(h.router)

	return h
}

func (h *harness) token(role string, ttl time.Duration) string {
	return authtest.UserToken(h.t, "u-"+role, role+"@newsdesk.example", role, h.clock.Now().Add(ttl))
}

// do sends a request carrying the harness cookie and remembers any cookie the
// response sets.
func (h *harness) do(method, path string, body string, contentType string) *httptest.ResponseRecorder {
	h.t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	for _, ck := range rec.Result().Cookies() {
		if ck.Name == domain.ClientCookieName {
			h.cookie = ck
		}
	}
	return rec
}

func (h *harness) get(path string) *httptest.ResponseRecorder {
	return h.do(http.MethodGet, path, "", "")
}

func (h *harness) login(email, password string) *httptest.ResponseRecorder {
	form := url.Values{"email": {email}, "password": {password}}
	return h.do(http.MethodPost, "/login", form.Encode(), "application/x-www-form-urlencoded")
}

func (h *harness) useClient(id string) {
	h.cookie = &http.Cookie{Name: domain.ClientCookieName, Value: id}
}

func (h *harness) store() *tokenstore.MemoryStore {
	h.t.Helper()
	require.NotNil(h.t, h.cookie)
	s, ok := h.stores.For(h.cookie.Value).(*tokenstore.MemoryStore)
	require.True(h.t, ok)
	return s
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

type sessionBody struct {
	User *struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
	} `json:"user"`
	Authenticated bool   `json:"isAuthenticated"`
	Loading       bool   `json:"loading"`
	Err           string `json:"error"`
}

type loginPageBody struct {
	State   sessionBody          `json:"state"`
	Notices []guard.Notification `json:"notices"`
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestFirstVisitSetsClientCookie(t *testing.T) {
	h := newHarness(t)

	rec := h.get("/session")

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, h.cookie)
	_, err := uuid.Parse(h.cookie.Value)
	assert.NoError(t, err)
	assert.True(t, h.cookie.HttpOnly)

	body := decode[sessionBody](t, rec)
	assert.False(t, body.Authenticated)
	assert.False(t, body.Loading)
	assert.Zero(t, h.registry.Len(), "signed-out visitors are not kept")
	assert.Zero(t, h.stores.Len())
}

func TestCookielessRequestsDoNotAccumulate(t *testing.T) {
	h := newHarness(t)

	for range 20 {
		h.cookie = nil
		require.Equal(t, http.StatusSeeOther, h.get("/admin/").Code)
		h.cookie = nil
		require.Equal(t, http.StatusUnauthorized, h.login("editor@newsdesk.example", "wrong").Code)
	}

	assert.Zero(t, h.registry.Len())
	assert.Zero(t, h.stores.Len())
}

func TestInvalidCookieGetsReplaced(t *testing.T) {
	h := newHarness(t)
	h.useClient("../../etc/passwd")

	h.get("/session")

	_, err := uuid.Parse(h.cookie.Value)
	assert.NoError(t, err)
}

func TestUnauthenticatedAreaRedirectsToLogin(t *testing.T) {
	h := newHarness(t)

	rec := h.get("/admin/")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestLoginRedirectsToRoleArea(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"admin@newsdesk.example", "/admin/"},
		{"editor@newsdesk.example", "/editor/"},
		{"reporter@newsdesk.example", "/reporter/"},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			h := newHarness(t)

			rec := h.login(tt.email, "correct-horse")

			require.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("Location"))

			page := h.get(tt.want + "articles")
			require.Equal(t, http.StatusOK, page.Code)
			assert.Contains(t, page.Body.String(), `"path":"`+tt.want+`articles"`)
			assert.NotEmpty(t, h.store().Keys()["accessToken"])
		})
	}
}

func TestLoginWithJSONBody(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/login",
		`{"email":"editor@newsdesk.example","password":"correct-horse"}`, "application/json")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/editor/", rec.Header().Get("Location"))
}

func TestLoginFailure(t *testing.T) {
	h := newHarness(t)
	h.get("/session")
	before := h.store().Keys()

	rec := h.login("editor@newsdesk.example", "wrong")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body struct {
		Code    string      `json:"code"`
		Message string      `json:"message"`
		State   sessionBody `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "LOGIN_FAILED", body.Code)
	assert.NotEmpty(t, body.Message)
	assert.False(t, body.State.Authenticated)
	assert.False(t, body.State.Loading)
	assert.Equal(t, before, h.store().Keys())
}

func TestLoginValidation(t *testing.T) {
	h := newHarness(t)

	rec := h.login("", "correct-horse")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/login", `{"email":`, "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginThrottled(t *testing.T) {
	h := newHarness(t)
	h.limiter.allowFn = console.NewLocalLimiter(2, time.Hour, h.clock).Allow

	assert.Equal(t, http.StatusUnauthorized, h.login("editor@newsdesk.example", "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, h.login("editor@newsdesk.example", "wrong").Code)

	rec := h.login("editor@newsdesk.example", "correct-horse")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
	assert.False(t, decode[sessionBody](t, h.get("/session")).Authenticated)
}

func TestLoginThrottleIgnoresClientCookie(t *testing.T) {
	h := newHarness(t)
	h.limiter.allowFn = console.NewLocalLimiter(2, time.Hour, h.clock).Allow

	codes := map[int]int{}
	for range 10 {
		h.cookie = nil
		codes[h.login("Editor@newsdesk.example", "guess").Code]++
	}

	assert.Equal(t, map[int]int{http.StatusUnauthorized: 2, http.StatusTooManyRequests: 8}, codes)
	assert.Zero(t, h.registry.Len())
}

func TestLoginThrottleKeys(t *testing.T) {
	h := newHarness(t)
	var keys []string
	h.limiter.allowFn = func(_ context.Context, key string) (bool, error) {
		keys = append(keys, key)
		return true, nil
	}

	h.login("Editor@Newsdesk.example", "wrong")

	assert.Equal(t, []string{"account:editor@newsdesk.example", "addr:192.0.2.1"}, keys)
}

func TestLoginThrottleUnavailableDenies(t *testing.T) {
	h := newHarness(t)
	h.limiter.allowFn = func(context.Context, string) (bool, error) {
		return false, errors.New("connection refused")
	}

	rec := h.login("editor@newsdesk.example", "correct-horse")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestWrongRoleIsSignedOutWithNotice(t *testing.T) {
	h := newHarness(t)
	id := uuid.NewString()
	require.NoError(t, h.stores.For(id).Save(context.Background(), domain.CredentialPair{
		AccessToken:  domain.SecretString(h.token("reporter", time.Hour)),
		RefreshToken: "r",
	}))
	h.useClient(id)

	rec := h.get("/admin/")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Empty(t, h.store().Keys(), "forced logout clears the store")

	page := decode[loginPageBody](t, h.get("/login"))
	require.Len(t, page.Notices, 1)
	assert.Equal(t, "admin", page.Notices[0].Area)
	assert.Equal(t, guard.LevelError, page.Notices[0].Level)
	assert.False(t, page.State.Authenticated)

	again := decode[loginPageBody](t, h.get("/login"))
	assert.Empty(t, again.Notices, "notices are shown once")
}

func TestMatchingRoleSeesArea(t *testing.T) {
	h := newHarness(t)
	id := uuid.NewString()
	require.NoError(t, h.stores.For(id).Save(context.Background(), domain.CredentialPair{
		AccessToken: domain.SecretString(h.token("editor", time.Hour)),
	}))
	h.useClient(id)

	rec := h.get("/editor/queue")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Area guard.Area `json:"area"`
		User struct {
			Role string `json:"role"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "editor", body.Area.Name)
	assert.Equal(t, "editor", body.User.Role)
	assert.Empty(t, decode[loginPageBody](t, h.get("/login")).Notices)
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusSeeOther, h.login("admin@newsdesk.example", "correct-horse").Code)

	rec := h.do(http.MethodPost, "/logout", "", "")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Empty(t, h.store().Keys())
	assert.False(t, decode[sessionBody](t, h.get("/session")).Authenticated)
	assert.Equal(t, http.StatusSeeOther, h.get("/admin/").Code)
}

func TestSessionExpiresMidSession(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusSeeOther, h.login("editor@newsdesk.example", "correct-horse").Code)
	require.Equal(t, http.StatusOK, h.get("/editor/").Code)

	h.clock.Advance(time.Hour)

	rec := h.get("/editor/")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.NotEmpty(t, h.store().Keys(), "expiry alone keeps the stored pair")

	body := decode[sessionBody](t, h.get("/session"))
	assert.False(t, body.Authenticated)
	assert.Equal(t, "session expired", body.Err)
}

func TestUnknownPathIsNotAnArea(t *testing.T) {
	h := newHarness(t)

	rec := h.get("/administrator")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSwitchingAreasRemountsGuard(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusSeeOther, h.login("admin@newsdesk.example", "correct-horse").Code)
	require.Equal(t, http.StatusOK, h.get("/admin/").Code)

	rec := h.get("/reporter/")

	assert.Equal(t, http.StatusSeeOther, rec.Code, "an admin is not a reporter")
	c, ok := h.registry.Lookup(h.cookie.Value)
	require.True(t, ok)
	assert.Empty(t, c.MountedArea())
	assert.Empty(t, h.store().Keys())
}
