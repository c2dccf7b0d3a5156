package console

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/newsdesk/console/internal/auth"
	"github.com/newsdesk/console/internal/domain"
	"github.com/newsdesk/console/internal/session"
	"github.com/newsdesk/console/internal/tokenstore"
)

// RegistryConfig holds the collaborators of a Registry.
type RegistryConfig struct {
	Stores        tokenstore.Factory
	Decoder       *auth.Decoder
	Authenticator auth.Authenticator
	Clock         domain.Clock
	Logger        *slog.Logger

	// IdleTimeout evicts clients unseen for this long. Zero uses
	// domain.ClientIdleTimeout.
	IdleTimeout time.Duration

	// SweepSchedule is a cron spec for the idle sweep. Empty uses
	// domain.ClientSweepSchedule.
	SweepSchedule string

	// OnEvict, when set, is called with the ID of every client the registry
	// drops: idle clients removed by Sweep and signed-out clients released
	// at the end of a request.
	OnEvict func(clientID string)
}

// Registry owns the console's clients, keyed by client ID. Only clients with
// a session worth keeping are registered: those restored signed in from their
// store and those adopted after a successful login. Every other client lives
// for one request.
type Registry struct {
	cfg    RegistryConfig
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*Client

	cron *cron.Cron
}

// NewRegistry creates an empty Registry. Call Start to run the idle sweep.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = domain.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = domain.ClientIdleTimeout
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = domain.ClientSweepSchedule
	}
	return &Registry{
		cfg:     cfg,
		logger:  cfg.Logger,
		clients: make(map[string]*Client),
	}
}

// Attach returns the client with id. An unknown id gets a new client
// initialized from its token store; it is registered only if that restores a
// signed-in session, so clients evicted while idle come back signed in. Pass
// every client to Release when the request ends.
func (r *Registry) Attach(ctx context.Context, id string) *Client {
	now := r.cfg.Clock.Now()

	r.mu.Lock()
	c, ok := r.clients[id]
	r.mu.Unlock()
	if ok {
		c.touch(now)
		return c
	}

	c = &Client{
		ID: id,
		Session: session.New(session.Config{
			Store:         r.cfg.Stores(id),
			Decoder:       r.cfg.Decoder,
			Authenticator: r.cfg.Authenticator,
			Logger:        r.logger.With(slog.String("client_id", id)),
		}),
	}
	c.touch(now)
	if !c.Session.Init(ctx).Authenticated {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.clients[id]; ok {
		// A concurrent request restored the same client first.
		existing.touch(now)
		return existing
	}
	r.clients[id] = c
	r.logger.DebugContext(ctx, "client restored", slog.String("client_id", id))
	return c
}

// Adopt registers c, replacing any other client with its ID. The console
// calls it after a successful login.
func (r *Registry) Adopt(c *Client) {
	r.mu.Lock()
	prev, ok := r.clients[c.ID]
	r.clients[c.ID] = c
	r.mu.Unlock()

	if ok && prev != c {
		prev.Leave()
	}
}

// Release drops c if it is not registered. Registered clients are left to
// the idle sweep.
func (r *Registry) Release(c *Client) {
	r.mu.Lock()
	held := r.clients[c.ID] == c
	r.mu.Unlock()
	if held {
		return
	}

	c.Leave()
	if r.cfg.OnEvict != nil {
		r.cfg.OnEvict(c.ID)
	}
}

// Lookup returns the client with id without creating it.
func (r *Registry) Lookup(id string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	return c, ok
}

// Len returns the number of live clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Sweep evicts idle clients and re-checks token expiry on the rest. Evicted
// clients keep their stored tokens.
func (r *Registry) Sweep(ctx context.Context) {
	now := r.cfg.Clock.Now()

	var evicted, live []*Client
	r.mu.Lock()
	for id, c := range r.clients {
		if c.idleSince(now) >= r.cfg.IdleTimeout {
			delete(r.clients, id)
			evicted = append(evicted, c)
			continue
		}
		live = append(live, c)
	}
	r.mu.Unlock()

	for _, c := range evicted {
		c.Leave()
		if r.cfg.OnEvict != nil {
			r.cfg.OnEvict(c.ID)
		}
	}
	for _, c := range live {
		c.Session.Revalidate()
	}

	if len(evicted) > 0 {
		r.logger.InfoContext(ctx, "evicted idle clients",
			slog.Int("evicted", len(evicted)),
			slog.Int("live", len(live)),
		)
	}
}

// Start schedules Sweep.
func (r *Registry) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(r.cfg.SweepSchedule, func() { r.Sweep(context.Background()) }); err != nil {
		return fmt.Errorf("schedule client sweep %q: %w", r.cfg.SweepSchedule, err)
	}
	r.cron = c
	c.Start()
	return nil
}

// Stop halts the sweep and waits for a running sweep to finish or ctx to
// expire.
func (r *Registry) Stop(ctx context.Context) error {
	if r.cron == nil {
		return nil
	}
	select {
	case <-r.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
