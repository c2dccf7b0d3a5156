package console_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsdesk/console/internal/auth"
	"github.com/newsdesk/console/internal/auth/authtest"
	"github.com/newsdesk/console/internal/console"
	"github.com/newsdesk/console/internal/domain"
	"github.com/newsdesk/console/internal/domain/domaintest"
	"github.com/newsdesk/console/internal/guard"
	"github.com/newsdesk/console/internal/observability"
	"github.com/newsdesk/console/internal/tokenstore"
)

type registryFixture struct {
	registry *console.Registry
	stores   *tokenstore.MemoryFactory
	clock    *domaintest.FakeClock

	mu      sync.Mutex
	evicted []string
}

func newRegistryFixture(t *testing.T, schedule string) *registryFixture {
	t.Helper()
	f := &registryFixture{
		stores: tokenstore.NewMemoryFactory(),
		clock:  domaintest.NewFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)),
	}
	f.registry = console.NewRegistry(console.RegistryConfig{
		Stores:  f.stores.For,
		Decoder: auth.NewDecoder(f.clock),
		Authenticator: &stubAuthenticator{loginFn: func(context.Context, string, string) (domain.CredentialPair, error) {
			return domain.CredentialPair{}, domain.ErrInvalidCredentials
		}},
		Clock:         f.clock,
		Logger:        observability.DiscardLogger(),
		IdleTimeout:   10 * time.Minute,
		SweepSchedule: schedule,
		OnEvict: func(id string) {
			f.stores.Forget(id)
			f.mu.Lock()
			defer f.mu.Unlock()
			f.evicted = append(f.evicted, id)
		},
	})
	return f
}

func (f *registryFixture) seed(t *testing.T, id, role string, ttl time.Duration) {
	t.Helper()
	tok := authtest.UserToken(t, "u-"+id, id+"@newsdesk.example", role, f.clock.Now().Add(ttl))
	require.NoError(t, f.stores.For(id).Save(context.Background(), domain.CredentialPair{
		AccessToken: domain.SecretString(tok),
	}))
}

func (f *registryFixture) evictedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.evicted...)
}

func TestRegistryAttachRestoresFromStore(t *testing.T) {
	f := newRegistryFixture(t, "")
	id := uuid.NewString()
	f.seed(t, id, "editor", time.Hour)

	c := f.registry.Attach(context.Background(), id)

	st := c.Session.State()
	assert.True(t, st.Authenticated)
	assert.False(t, st.Loading)
	assert.Equal(t, "editor", st.Role())

	assert.Same(t, c, f.registry.Attach(context.Background(), id))
	assert.Equal(t, 1, f.registry.Len())
}

func TestRegistrySweepEvictsIdleClients(t *testing.T) {
	ctx := context.Background()
	f := newRegistryFixture(t, "")
	idle, busy := uuid.NewString(), uuid.NewString()
	f.seed(t, idle, "reporter", 24*time.Hour)
	f.seed(t, busy, "editor", 24*time.Hour)

	idleClient := f.registry.Attach(ctx, idle)
	idleClient.Enter(guard.DefaultAreas()[2], func() *guard.AreaGuard {
		return guard.NewAreaGuard(guard.AreaGuardConfig{
			Area:      guard.DefaultAreas()[2],
			Session:   idleClient.Session,
			Navigator: idleClient,
			Notifier:  idleClient,
		})
	})
	require.Equal(t, "reporter", idleClient.MountedArea())

	f.clock.Advance(6 * time.Minute)
	f.registry.Attach(ctx, busy)
	f.clock.Advance(5 * time.Minute)

	f.registry.Sweep(ctx)

	assert.Equal(t, []string{idle}, f.evictedIDs())
	assert.Equal(t, 1, f.registry.Len())
	_, ok := f.registry.Lookup(idle)
	assert.False(t, ok)
	assert.Empty(t, idleClient.MountedArea(), "eviction unmounts the area guard")

	back := f.registry.Attach(ctx, idle)
	assert.NotSame(t, idleClient, back)
	assert.True(t, back.Session.State().Authenticated, "evicted clients keep their stored tokens")
}

func TestRegistryAttachDoesNotKeepSignedOutClients(t *testing.T) {
	ctx := context.Background()
	f := newRegistryFixture(t, "")
	id := uuid.NewString()

	c := f.registry.Attach(ctx, id)

	assert.False(t, c.Session.State().Authenticated)
	assert.Zero(t, f.registry.Len())
	assert.NotSame(t, c, f.registry.Attach(ctx, id))

	f.registry.Release(c)
	assert.Equal(t, []string{id}, f.evictedIDs())
	assert.Zero(t, f.stores.Len(), "empty stores are forgotten on release")
}

func TestRegistryAdoptAndRelease(t *testing.T) {
	ctx := context.Background()
	f := newRegistryFixture(t, "")
	id := uuid.NewString()
	c := f.registry.Attach(ctx, id)

	f.registry.Adopt(c)
	f.registry.Release(c)

	got, ok := f.registry.Lookup(id)
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.Empty(t, f.evictedIDs(), "registered clients are left to the sweep")
}

func TestRegistryRestoredClientIsKept(t *testing.T) {
	ctx := context.Background()
	f := newRegistryFixture(t, "")
	id := uuid.NewString()
	f.seed(t, id, "editor", time.Hour)

	c := f.registry.Attach(ctx, id)
	f.registry.Release(c)

	assert.Equal(t, 1, f.registry.Len())
	assert.Empty(t, f.evictedIDs())
}

func TestRegistrySweepRevalidatesLiveSessions(t *testing.T) {
	ctx := context.Background()
	f := newRegistryFixture(t, "")
	id := uuid.NewString()
	f.seed(t, id, "admin", 2*time.Minute)

	c := f.registry.Attach(ctx, id)
	require.True(t, c.Session.State().Authenticated)

	f.clock.Advance(3 * time.Minute)
	f.registry.Sweep(ctx)

	st := c.Session.State()
	assert.False(t, st.Authenticated)
	assert.Equal(t, "session expired", st.Err)
	assert.Empty(t, f.evictedIDs())

	tok, err := f.stores.For(id).AccessToken(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
}

func TestRegistryStartStop(t *testing.T) {
	f := newRegistryFixture(t, "@every 1h")

	require.NoError(t, f.registry.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, f.registry.Stop(ctx))
}

func TestRegistryStartRejectsBadSchedule(t *testing.T) {
	f := newRegistryFixture(t, "every now and then")

	err := f.registry.Start()

	require.Error(t, err)
	assert.NoError(t, f.registry.Stop(context.Background()))
}

func TestRegistryStopWithoutStart(t *testing.T) {
	f := newRegistryFixture(t, "")

	assert.NoError(t, f.registry.Stop(context.Background()))
}
