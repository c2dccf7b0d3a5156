// Package session holds the per-client session state: who is signed in, with
// which role, and whether the initial check is still running. A Session is an
// ordinary value; each browser client or CLI profile owns its own.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/newsdesk/console/internal/auth"
	"github.com/newsdesk/console/internal/domain"
	"github.com/newsdesk/console/internal/tokenstore"
)

var tracer = otel.Tracer("session")

var (
	loginTotal  metric.Int64Counter
	logoutTotal metric.Int64Counter
)

func init() {
	m := otel.Meter("session")

	loginTotal, _ = m.Int64Counter("session_login_total",
		metric.WithDescription("Total login attempts by result"))
	logoutTotal, _ = m.Int64Counter("session_logout_total",
		metric.WithDescription("Total logouts"))
}

// Login results recorded on session_login_total.
const (
	resultSuccess   = "success"
	resultRejected  = "rejected"
	resultError     = "error"
	resultDiscarded = "discarded"
)

// Config holds the collaborators of a Session.
type Config struct {
	Store         tokenstore.Store
	Decoder       *auth.Decoder
	Authenticator auth.Authenticator
	Logger        *slog.Logger
	// StoreTimeout bounds each token store call. Zero uses domain.StoreTimeout.
	StoreTimeout time.Duration
}

type observer struct {
	id int
	fn func(State)
}

// Session owns one client's session state and its token store.
//
// Login calls are serialized. Logout never waits for an in-flight
// authentication request: it starts a new logout epoch, and a Login that began in an earlier epoch
// discards its result. Store I/O runs under storeMu only, so State and
// Revalidate never wait on the backend. Observers run synchronously after each
// change, outside the Session's locks, so they may call Logout or Revalidate
// but must not call Login.
type Session struct {
	store        tokenstore.Store
	decoder      *auth.Decoder
	authn        auth.Authenticator
	logger       *slog.Logger
	storeTimeout time.Duration

	loginMu sync.Mutex

	// storeMu orders Save and Clear so the store ends up matching the
	// state of whichever of Login and Logout committed last.
	storeMu sync.Mutex

	mu    sync.Mutex
	state State
	// gen counts state transitions; Init only applies its result if nothing
	// else has changed the state meanwhile.
	gen uint64
	// epoch counts logouts; only a logout invalidates an in-flight Login.
	epoch     uint64
	observers []observer
	nextID    int
}

// New creates a Session in the initial loading state. Call Init to read the
// store.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = domain.StoreTimeout
	}
	return &Session{
		store:        cfg.Store,
		decoder:      cfg.Decoder,
		authn:        cfg.Authenticator,
		logger:       logger,
		storeTimeout: timeout,
		state:        initialState(),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn to receive every state change, in subscription
// order. The returned function unsubscribes; calling it twice is harmless.
func (s *Session) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.observers = append(s.observers, observer{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// Init reads the stored access token once and derives the state from it.
// An absent, unreadable or expired token, or an unavailable store, yields the
// unauthenticated state. Init never modifies the store.
func (s *Session) Init(ctx context.Context) State {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	next := signedOut("")
	if rec := s.restore(ctx); rec != nil {
		next = State{User: rec, Authenticated: true}
	}

	s.mu.Lock()
	if s.gen != gen {
		// A Login or Logout already settled the state.
		snap := s.state
		s.mu.Unlock()
		return snap
	}
	s.gen++
	s.state = next
	snap, obs := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(obs, snap)
	return snap
}

func (s *Session) restore(ctx context.Context) *auth.Record {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	token, err := s.store.AccessToken(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "token store unavailable, starting signed out",
			slog.String("error", err.Error()))
		return nil
	}
	if token == "" {
		return nil
	}

	rec, err := s.decoder.DecodeValid(token)
	if err != nil {
		s.logger.InfoContext(ctx, "stored session not usable, starting signed out",
			slog.String("error", err.Error()))
		return nil
	}
	return rec
}

// Login exchanges credentials for a token pair, decodes it, persists it and
// marks the session authenticated. It reports whether the session is now
// signed in. On failure the state is unauthenticated with Err set and the
// store is left as it was. Loading is false when Login returns, whatever the
// outcome.
func (s *Session) Login(ctx context.Context, email, password string) (ok bool) {
	ctx, span := tracer.Start(ctx, "session.login")
	defer span.End()

	s.loginMu.Lock()
	defer s.loginMu.Unlock()

	s.mu.Lock()
	epoch := s.epoch
	s.gen++
	s.state.Loading = true
	s.state.Err = ""
	snap, obs := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(obs, snap)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("login panic: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			s.logger.ErrorContext(ctx, "login aborted by panic", slog.Any("panic", r))
			s.failLogin(ctx, epoch, msgLoginFailed, resultError)
			ok = false
		}
	}()

	pair, err := s.authn.Login(ctx, email, password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, domain.ErrInvalidCredentials) {
			s.logger.InfoContext(ctx, "login rejected", slog.String("error", err.Error()))
			s.failLogin(ctx, epoch, msgInvalidCredentials, resultRejected)
			return false
		}
		s.logger.WarnContext(ctx, "login request failed", slog.String("error", err.Error()))
		s.failLogin(ctx, epoch, msgLoginFailed, resultError)
		return false
	}

	rec, err := s.decoder.Decode(pair.AccessToken.Expose())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.WarnContext(ctx, "login returned undecodable token", slog.String("error", err.Error()))
		s.failLogin(ctx, epoch, msgUnreadableToken, resultError)
		return false
	}
	if s.decoder.IsExpired(rec) {
		s.logger.WarnContext(ctx, "login returned expired token",
			slog.Time("expires_at", rec.ExpiresAt))
		s.failLogin(ctx, epoch, msgExpiredToken, resultError)
		return false
	}

	committed, snap, obs := s.commitLogin(ctx, epoch, pair, rec)
	if !committed {
		s.logger.InfoContext(ctx, "login result discarded after logout")
		loginTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", resultDiscarded)))
		return false
	}
	s.notify(obs, snap)

	span.SetAttributes(attribute.String("session.role", rec.Role.String()))
	loginTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", resultSuccess)))
	s.logger.InfoContext(ctx, "login succeeded",
		slog.String("user_id", rec.UserID),
		slog.String("role", rec.Role.String()),
	)
	return true
}

// commitLogin persists the pair and publishes the authenticated state unless
// a Logout has happened since epoch was read. A failed Save is logged and the
// session continues in memory only.
func (s *Session) commitLogin(ctx context.Context, epoch uint64, pair domain.CredentialPair, rec *auth.Record) (bool, State, []observer) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	if !s.inEpoch(epoch) {
		return false, State{}, nil
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.store.Save(storeCtx, pair); err != nil {
		s.logger.WarnContext(ctx, "token store unavailable, session will not survive a restart",
			slog.String("error", err.Error()))
	}

	// Logout takes storeMu before starting an epoch, so none can have
	// started since the check above.
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.state = State{User: rec, Authenticated: true}
	snap, obs := s.snapshotLocked()
	return true, snap, obs
}

func (s *Session) inEpoch(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch == epoch
}

func (s *Session) failLogin(ctx context.Context, epoch uint64, msg, result string) {
	loginTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))

	s.mu.Lock()
	if s.epoch != epoch {
		// Logout already reset the state.
		s.mu.Unlock()
		return
	}
	s.gen++
	s.state = signedOut(msg)
	snap, obs := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(obs, snap)
}

// Logout clears the store and resets the state. It never fails: a store error
// is recorded in State.Err and the in-memory state is reset anyway.
func (s *Session) Logout(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "session.logout")
	defer span.End()

	s.storeMu.Lock()
	s.mu.Lock()
	s.epoch++
	s.gen++
	gen := s.gen
	s.state = signedOut("")
	s.mu.Unlock()

	err := s.clearStore(ctx)
	s.storeMu.Unlock()
	logoutTotal.Add(ctx, 1)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.WarnContext(ctx, "clear stored credentials failed", slog.String("error", err.Error()))
	}

	s.mu.Lock()
	if s.gen != gen {
		// A newer Login already published its own state.
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.state.Err = msgClearFailed
	}
	snap, obs := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(obs, snap)
}

// clearStore converts a panicking store into an error.
func (s *Session) clearStore(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("clear tokens panic: %v: %w", r, domain.ErrStorageUnavailable)
		}
	}()

	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.store.Clear(ctx)
}

// Revalidate re-checks the current user's expiry. An expired session becomes
// unauthenticated with Err "session expired"; the store is not touched, so
// only an explicit Logout removes the tokens.
func (s *Session) Revalidate() State {
	s.mu.Lock()
	if !s.state.Authenticated || s.state.User == nil || !s.decoder.IsExpired(s.state.User) {
		snap := s.state
		s.mu.Unlock()
		return snap
	}
	loading := s.state.Loading
	s.state = signedOut(msgSessionExpired)
	s.state.Loading = loading
	snap, obs := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("session expired")
	s.notify(obs, snap)
	return snap
}

func (s *Session) snapshotLocked() (State, []observer) {
	obs := make([]observer, len(s.observers))
	copy(obs, s.observers)
	return s.state, obs
}

func (s *Session) notify(obs []observer, st State) {
	for _, o := range obs {
		o.fn(st)
	}
}

// storeContext detaches ctx from caller cancellation and bounds the call, so
// a canceled request still finishes persisting or clearing credentials.
func (s *Session) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
}
