package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gymsync/internal/auth"
	"gymsync/internal/docstore"
	"gymsync/internal/metrics"
	"gymsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubProvider struct{}

func (stubProvider) SignIn(_ context.Context, email, _ string) (*auth.Identity, error) {
	return &auth.Identity{UID: "uid-" + email, Email: email}, nil
}

func (stubProvider) SignOut(context.Context) error { return nil }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestGym(t *testing.T, store docstore.Store, session *auth.Session, opts ...GymOption) *Gym {
	t.Helper()
	g := NewGym(store, session, zap.NewNop(), metrics.New(), nil, opts...)
	t.Cleanup(g.Stop)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, g.Start(ctx))
	require.NoError(t, g.WaitReady(ctx))
	return g
}

func seed(t *testing.T, store docstore.Store, collection, id string, doc docstore.Document) {
	t.Helper()
	require.NoError(t, store.Set(context.Background(), collection, id, doc))
}

func TestGym_StartWithoutStore(t *testing.T) {
	g := NewGym(nil, nil, zap.NewNop(), nil, nil)
	assert.ErrorIs(t, g.Start(context.Background()), ErrNotConfigured)
	assert.Len(t, g.Statuses(), 8)
}

// watchFailStore refuses to watch one collection and records the watch
// context of the others.
type watchFailStore struct {
	docstore.Store
	fail string

	mu      sync.Mutex
	watched map[string]context.Context
}

func (s *watchFailStore) WatchCollection(ctx context.Context, collection string, fn docstore.SnapshotFunc, onErr docstore.ErrorFunc) error {
	if collection == s.fail {
		return errors.New("permission denied")
	}
	s.mu.Lock()
	s.watched[collection] = ctx
	s.mu.Unlock()
	return s.Store.WatchCollection(ctx, collection, fn, onErr)
}

func TestGym_StartFailureStopsStartedServices(t *testing.T) {
	store := &watchFailStore{Store: docstore.NewMemoryStore(), fail: "rutinas", watched: map[string]context.Context{}}
	g := NewGym(store, nil, zap.NewNop(), nil, nil)

	err := g.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rutinas")

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.watched, 3)
	for _, name := range []string{"usuarios", "clientes", "ejercicios"} {
		ctx, ok := store.watched[name]
		require.True(t, ok, name)
		assert.Error(t, ctx.Err(), name)
	}
	assert.NotContains(t, store.watched, "sesiones")
}

func TestGym_AddUserDefaults(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
	g := newTestGym(t, docstore.NewMemoryStore(), nil, WithClock(clock.Now))

	u, err := g.AddUser(context.Background(), models.User{
		ID:    "uid-ana",
		Email: models.Ptr("ana@example.com"),
		Role:  models.Ptr(models.RoleCoach),
	})
	require.NoError(t, err)
	assert.Equal(t, "uid-ana", u.ID)
	assert.True(t, *u.Active)
	assert.True(t, u.CreatedAt.Equal(clock.Now()))

	require.Eventually(t, func() bool {
		_, ok := g.Users.Find("uid-ana")
		return ok
	}, waitFor, tick)
}

func TestGym_AssignRoutine(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	seed(t, store, "usuarios", "uid-coach@example.com", docstore.Document{"rol": "COACH"})
	seed(t, store, "usuarios", "uid-client@example.com", docstore.Document{"rol": "CLIENT"})
	session := auth.NewSession(stubProvider{}, zap.NewNop())
	g := newTestGym(t, store, session)
	require.Eventually(t, func() bool { return len(g.Users.List().Get()) == 2 }, waitFor, tick)

	_, err := g.AssignRoutine(ctx, "r1", "c1", models.RoleClient)
	assert.ErrorIs(t, err, auth.ErrNotSignedIn)

	_, err = session.SignIn(ctx, "client@example.com", "pw")
	require.NoError(t, err)
	_, err = g.AssignRoutine(ctx, "r1", "c1", models.RoleClient)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = session.SignIn(ctx, "coach@example.com", "pw")
	require.NoError(t, err)
	_, err = g.AssignRoutine(ctx, "r1", "c1", models.Role("ADMIN"))
	assert.Error(t, err)

	a, err := g.AssignRoutine(ctx, "r1", "c1", models.RoleClient)
	require.NoError(t, err)
	assert.Equal(t, "uid-coach@example.com", *a.AssignedBy)

	view := g.AssignmentsFor("c1", models.RoleClient)
	require.Eventually(t, func() bool { return len(view.Get()) == 1 }, waitFor, tick)
	assert.Equal(t, "r1", *view.Get()[0].RoutineID)
	assert.Empty(t, g.AssignmentsFor("c1", models.RoleCoach).Get())
}

func TestGym_SessionLifecycleFeedsStreak(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2026, 10, 15, 18, 30, 0, 0, time.UTC)}
	g := newTestGym(t, docstore.NewMemoryStore(), nil, WithClock(clock.Now))

	streak := g.StreakFor("c1")
	assert.Equal(t, 0, streak.Get())

	s, err := g.StartSession(ctx, "c1", "r1", 6)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := g.Sessions.Find(s.ID)
		return ok
	}, waitFor, tick)
	require.NoError(t, g.CompleteSession(ctx, s.ID))

	require.Eventually(t, func() bool {
		got, _ := g.Sessions.Find(s.ID)
		return got.Completed != nil && *got.Completed
	}, waitFor, tick)
	got, _ := g.Sessions.Find(s.ID)
	assert.Equal(t, 6, *got.ExercisesCompleted)
	assert.Equal(t, 1, streak.Get())

	// a day later the streak still holds; two days later it is broken
	clock.Advance(24 * time.Hour)
	assert.Equal(t, 1, streak.Get())
	clock.Advance(24 * time.Hour)
	assert.Equal(t, 0, streak.Get())
}

func TestGym_ViewsAreMemoized(t *testing.T) {
	store := docstore.NewMemoryStore()
	seed(t, store, "conversaciones", "k1", docstore.Document{"entrenadorId": "coach", "noLeidosEntrenador": 2, "activa": true})
	seed(t, store, "conversaciones", "k2", docstore.Document{"entrenadorId": "coach", "noLeidosEntrenador": 3})
	g := newTestGym(t, store, nil)

	unread := g.UnreadForCoach("coach")
	assert.Same(t, unread, g.UnreadForCoach("coach"))
	require.Eventually(t, func() bool { return unread.Get() == 5 }, waitFor, tick)

	computes := unread.Computations()
	for i := 0; i < 3; i++ {
		assert.Equal(t, 5, unread.Get())
	}
	assert.Equal(t, computes, unread.Computations())

	active := g.ActiveConversationsForCoach("coach").Get()
	require.Len(t, active, 1)
	assert.Equal(t, "k1", active[0].ID)

	require.NoError(t, g.MarkConversationRead(context.Background(), "k2", models.RoleCoach))
	require.Eventually(t, func() bool { return unread.Get() == 2 }, waitFor, tick)
	assert.Greater(t, unread.Computations(), computes)
}

func TestGym_MarkConversationReadBySide(t *testing.T) {
	store := docstore.NewMemoryStore()
	seed(t, store, "conversaciones", "k1", docstore.Document{
		"entrenadorId": "coach", "clienteId": "c1", "noLeidosEntrenador": 2, "noLeidosCliente": 4,
	})
	g := newTestGym(t, store, nil)
	require.Eventually(t, func() bool { return g.UnreadForClient("c1").Get() == 4 }, waitFor, tick)

	require.NoError(t, g.MarkConversationRead(context.Background(), "k1", models.RoleClient))
	require.Eventually(t, func() bool { return g.UnreadForClient("c1").Get() == 0 }, waitFor, tick)
	assert.Equal(t, 2, g.UnreadForCoach("coach").Get())
}

func TestGym_MyUnreadNotificationsFollowsSession(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	seed(t, store, "notificaciones", "n1", docstore.Document{"usuarioId": "uid-ana", "titulo": "Hola", "leida": false})
	seed(t, store, "notificaciones", "n2", docstore.Document{"usuarioId": "uid-bea", "titulo": "Hola"})
	session := auth.NewSession(stubProvider{}, zap.NewNop())
	g := newTestGym(t, store, session)
	require.Eventually(t, func() bool { return len(g.Notifications.List().Get()) == 2 }, waitFor, tick)

	mine := g.MyUnreadNotifications()
	assert.Empty(t, mine.Get())

	_, err := session.SignIn(ctx, "ana", "pw")
	require.NoError(t, err)
	require.Len(t, mine.Get(), 1)
	assert.Equal(t, "n1", mine.Get()[0].ID)

	require.NoError(t, g.MarkNotificationRead(ctx, "n1"))
	require.Eventually(t, func() bool { return len(mine.Get()) == 0 }, waitFor, tick)

	require.NoError(t, session.SignOut(ctx))
	assert.Empty(t, mine.Get())
}

func TestGym_ExportClients(t *testing.T) {
	store := docstore.NewMemoryStore()
	seed(t, store, "clientes", "c1", docstore.Document{"nombre": "Ana", "activo": true})
	g := newTestGym(t, store, nil)
	require.Eventually(t, func() bool { return len(g.Clients.List().Get()) == 1 }, waitFor, tick)

	data, err := g.ExportClients()
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))
}
