package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gymsync/internal/aggregator"
	"gymsync/internal/auth"
	"gymsync/internal/docstore"
	"gymsync/internal/export"
	"gymsync/internal/metrics"
	"gymsync/internal/models"
	"gymsync/internal/reactive"
	"gymsync/internal/repository"

	"go.uber.org/zap"
)

// ErrForbidden is returned when the signed-in user's role lacks a capability.
var ErrForbidden = errors.New("operation not allowed for this role")

// Gym is the composition root: one EntityService per entity type plus the
// derived views over them. Build one per process and pass it down.
type Gym struct {
	Users            *EntityService[models.User]
	Clients          *EntityService[models.Client]
	Exercises        *EntityService[models.Exercise]
	Routines         *EntityService[models.Routine]
	AssignedRoutines *EntityService[models.AssignedRoutine]
	Sessions         *EntityService[models.Session]
	Conversations    *EntityService[models.Conversation]
	Notifications    *EntityService[models.Notification]

	session *auth.Session
	logger  *zap.Logger
	now     func() time.Time
	today   *dayClock
	views   *viewCache
}

// GymOption tweaks a Gym at construction.
type GymOption func(*Gym)

// WithClock replaces time.Now, for views that depend on the date.
func WithClock(now func() time.Time) GymOption {
	return func(g *Gym) {
		g.now = now
		g.today = &dayClock{now: now}
	}
}

// NewGym wires every entity type to store. session may be nil when no one
// signs in (CLI use).
func NewGym(store docstore.Store, session *auth.Session, logger *zap.Logger, m *metrics.Sync, opts []Option, gymOpts ...GymOption) *Gym {
	g := &Gym{
		Users:            newEntity(store, models.UserSchema, logger, m, opts),
		Clients:          newEntity(store, models.ClientSchema, logger, m, opts),
		Exercises:        newEntity(store, models.ExerciseSchema, logger, m, opts),
		Routines:         newEntity(store, models.RoutineSchema, logger, m, opts),
		AssignedRoutines: newEntity(store, models.AssignedRoutineSchema, logger, m, opts),
		Sessions:         newEntity(store, models.SessionSchema, logger, m, opts),
		Conversations:    newEntity(store, models.ConversationSchema, logger, m, opts),
		Notifications:    newEntity(store, models.NotificationSchema, logger, m, opts),
		session:          session,
		logger:           logger,
		now:              time.Now,
		views:            newViewCache(),
	}
	g.today = &dayClock{now: g.now}
	for _, opt := range gymOpts {
		opt(g)
	}
	return g
}

func newEntity[T any](store docstore.Store, schema models.Schema[T], logger *zap.Logger, m *metrics.Sync, opts []Option) *EntityService[T] {
	var adapter repository.Adapter[T]
	if store != nil {
		adapter = repository.NewDocumentRepository(store, schema, logger, m)
	}
	return NewEntityService(adapter, schema, logger, opts...)
}

type starter interface {
	Start(ctx context.Context) error
	Stop()
}

type namedService struct {
	name string
	svc  starter
}

// services lists every entity service in start order.
func (g *Gym) services() []namedService {
	return []namedService{
		{models.UserSchema.Collection, g.Users},
		{models.ClientSchema.Collection, g.Clients},
		{models.ExerciseSchema.Collection, g.Exercises},
		{models.RoutineSchema.Collection, g.Routines},
		{models.AssignedRoutineSchema.Collection, g.AssignedRoutines},
		{models.SessionSchema.Collection, g.Sessions},
		{models.ConversationSchema.Collection, g.Conversations},
		{models.NotificationSchema.Collection, g.Notifications},
	}
}

// Start begins syncing every collection. If one fails, the ones already
// started are stopped again.
func (g *Gym) Start(ctx context.Context) error {
	services := g.services()
	for i, s := range services {
		if err := s.svc.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				services[j].svc.Stop()
			}
			return fmt.Errorf("failed to start %s sync: %w", s.name, err)
		}
	}
	g.logger.Info("Gym sync started")
	return nil
}

func (g *Gym) Stop() {
	services := g.services()
	for i := len(services) - 1; i >= 0; i-- {
		services[i].svc.Stop()
	}
}

// Statuses reports each collection's sync status.
func (g *Gym) Statuses() map[string]Status {
	return map[string]Status{
		models.UserSchema.Collection:            g.Users.Status().Get(),
		models.ClientSchema.Collection:          g.Clients.Status().Get(),
		models.ExerciseSchema.Collection:        g.Exercises.Status().Get(),
		models.RoutineSchema.Collection:         g.Routines.Status().Get(),
		models.AssignedRoutineSchema.Collection: g.AssignedRoutines.Status().Get(),
		models.SessionSchema.Collection:         g.Sessions.Status().Get(),
		models.ConversationSchema.Collection:    g.Conversations.Status().Get(),
		models.NotificationSchema.Collection:    g.Notifications.Status().Get(),
	}
}

// WaitReady blocks until no collection is loading or ctx ends.
func (g *Gym) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		loading := false
		for _, st := range g.Statuses() {
			loading = loading || st.Loading
		}
		if !loading {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// AddUser creates a profile. The id is normally the auth uid; without one
// the store assigns it.
func (g *Gym) AddUser(ctx context.Context, u models.User) (models.User, error) {
	if u.CreatedAt == nil {
		u.CreatedAt = models.Ptr(g.now().UTC())
	}
	if u.Active == nil {
		u.Active = models.Ptr(true)
	}
	return g.Users.Add(ctx, u)
}

// AssignRoutine records that the signed-in user assigned routineID to
// assigneeID in the given role.
func (g *Gym) AssignRoutine(ctx context.Context, routineID, assigneeID string, role models.Role) (models.AssignedRoutine, error) {
	uid := g.currentUID()
	if uid == "" {
		return models.AssignedRoutine{}, auth.ErrNotSignedIn
	}
	if !role.Valid() {
		return models.AssignedRoutine{}, fmt.Errorf("invalid assignee role %q", role)
	}
	if me, ok := g.Users.Find(uid); ok && me.Role != nil && !me.Role.CanAssignRoutines() {
		return models.AssignedRoutine{}, ErrForbidden
	}

	now := g.now().UTC()
	return g.AssignedRoutines.Add(ctx, models.AssignedRoutine{
		RoutineID:    models.Ptr(routineID),
		AssigneeID:   models.Ptr(assigneeID),
		AssigneeRole: models.Ptr(role),
		AssignedBy:   models.Ptr(uid),
		AssignedAt:   &now,
		StartDate:    &now,
		Progress:     models.Ptr(0.0),
		Completed:    models.Ptr(false),
	})
}

// StartSession opens a workout session for a client.
func (g *Gym) StartSession(ctx context.Context, clientID, routineID string, exercises int) (models.Session, error) {
	now := g.now().UTC()
	return g.Sessions.Add(ctx, models.Session{
		ClientID:           models.Ptr(clientID),
		RoutineID:          models.Ptr(routineID),
		StartedAt:          &now,
		ExercisesCompleted: models.Ptr(0),
		ExercisesTotal:     models.Ptr(exercises),
		Completed:          models.Ptr(false),
	})
}

// CompleteSession marks a session done now and counts all its exercises.
func (g *Gym) CompleteSession(ctx context.Context, sessionID string) error {
	fields := docstore.Document{
		"completada": true,
		"fechaFin":   docstore.FromTime(g.now()),
	}
	if s, ok := g.Sessions.Find(sessionID); ok && s.ExercisesTotal != nil {
		fields["ejerciciosCompletados"] = *s.ExercisesTotal
	}
	return g.Sessions.Patch(ctx, sessionID, fields)
}

// MarkConversationRead zeroes the unread counter of the reader's side.
func (g *Gym) MarkConversationRead(ctx context.Context, conversationID string, reader models.Role) error {
	field := "noLeidosCliente"
	if reader != models.RoleClient {
		field = "noLeidosEntrenador"
	}
	return g.Conversations.Patch(ctx, conversationID, docstore.Document{field: 0})
}

func (g *Gym) MarkNotificationRead(ctx context.Context, notificationID string) error {
	return g.Notifications.Patch(ctx, notificationID, docstore.Document{"leida": true})
}

// ExportClients renders the current clients as an xlsx workbook.
func (g *Gym) ExportClients() ([]byte, error) {
	rows := export.BuildClientRows(
		g.Clients.List().Get(),
		g.AssignedRoutines.List().Get(),
		g.Sessions.List().Get(),
		g.now(),
	)
	return export.ClientsWorkbook(rows)
}

// RoutinesAssignedTo lists routines assigned to subjectID in role; routines
// without a role tag match any role.
func (g *Gym) RoutinesAssignedTo(subjectID string, role models.Role) *reactive.Computed[[]models.Routine] {
	routines := g.Routines.List()
	return memo(g.views, "routines-assigned:"+subjectID+":"+string(role), func() *reactive.Computed[[]models.Routine] {
		return reactive.NewComputed(func() []models.Routine {
			return aggregator.RoutinesAssignedTo(routines.Get(), subjectID, role)
		}, routines)
	})
}

func (g *Gym) AssignmentsFor(subjectID string, role models.Role) *reactive.Computed[[]models.AssignedRoutine] {
	assigned := g.AssignedRoutines.List()
	return memo(g.views, "assignments:"+subjectID+":"+string(role), func() *reactive.Computed[[]models.AssignedRoutine] {
		return reactive.NewComputed(func() []models.AssignedRoutine {
			return aggregator.AssignmentsFor(assigned.Get(), subjectID, role)
		}, assigned)
	})
}

// StreakFor is the client's current streak of days with a completed session.
func (g *Gym) StreakFor(clientID string) *reactive.Computed[int] {
	sessions := g.Sessions.List()
	return memo(g.views, "streak:"+clientID, func() *reactive.Computed[int] {
		return reactive.NewComputed(func() int {
			return aggregator.Streak(aggregator.CompletedSessions(sessions.Get(), clientID), g.now())
		}, sessions, g.today)
	})
}

func (g *Gym) ProgressFor(subjectID string, role models.Role) *reactive.Computed[float64] {
	assignments := g.AssignmentsFor(subjectID, role)
	return memo(g.views, "progress:"+subjectID+":"+string(role), func() *reactive.Computed[float64] {
		return reactive.NewComputed(func() float64 {
			return aggregator.AverageProgress(assignments.Get())
		}, assignments)
	})
}

// SessionsThisWeek counts the client's sessions per weekday of the current week.
func (g *Gym) SessionsThisWeek(clientID string) *reactive.Computed[[7]int] {
	sessions := g.Sessions.List()
	return memo(g.views, "week:"+clientID, func() *reactive.Computed[[7]int] {
		return reactive.NewComputed(func() [7]int {
			var own []models.Session
			for _, s := range sessions.Get() {
				if s.ClientID != nil && *s.ClientID == clientID {
					own = append(own, s)
				}
			}
			return aggregator.SessionsPerWeekday(own, g.now())
		}, sessions, g.today)
	})
}

// UnreadForCoach sums unread messages over all of the coach's
// conversations, active or not.
func (g *Gym) UnreadForCoach(coachID string) *reactive.Computed[int] {
	conversations := g.Conversations.List()
	return memo(g.views, "unread-coach:"+coachID, func() *reactive.Computed[int] {
		return reactive.NewComputed(func() int {
			return aggregator.UnreadForCoach(conversations.Get(), coachID)
		}, conversations)
	})
}

// ActiveConversationsForCoach lists only conversations marked activa.
func (g *Gym) ActiveConversationsForCoach(coachID string) *reactive.Computed[[]models.Conversation] {
	conversations := g.Conversations.List()
	return memo(g.views, "active-coach:"+coachID, func() *reactive.Computed[[]models.Conversation] {
		return reactive.NewComputed(func() []models.Conversation {
			return aggregator.ActiveConversationsForCoach(conversations.Get(), coachID)
		}, conversations)
	})
}

func (g *Gym) UnreadForClient(clientID string) *reactive.Computed[int] {
	conversations := g.Conversations.List()
	return memo(g.views, "unread-client:"+clientID, func() *reactive.Computed[int] {
		return reactive.NewComputed(func() int {
			return aggregator.UnreadForClient(conversations.Get(), clientID)
		}, conversations)
	})
}

func (g *Gym) ClientsOfCoach(coachID string, onlyActive bool) *reactive.Computed[[]models.Client] {
	clients := g.Clients.List()
	return memo(g.views, fmt.Sprintf("clients:%s:%t", coachID, onlyActive), func() *reactive.Computed[[]models.Client] {
		return reactive.NewComputed(func() []models.Client {
			return aggregator.ClientsOfCoach(clients.Get(), coachID, onlyActive)
		}, clients)
	})
}

// MyUnreadNotifications follows both the notifications and who is signed in.
func (g *Gym) MyUnreadNotifications() *reactive.Computed[[]models.Notification] {
	notifications := g.Notifications.List()
	deps := []reactive.Versioned{notifications}
	if g.session != nil {
		deps = append(deps, g.session.State())
	}
	return memo(g.views, "my-notifications", func() *reactive.Computed[[]models.Notification] {
		return reactive.NewComputed(func() []models.Notification {
			uid := g.currentUID()
			if uid == "" {
				return []models.Notification{}
			}
			return aggregator.UnreadNotifications(notifications.Get(), uid)
		}, deps...)
	})
}

func (g *Gym) currentUID() string {
	if g.session == nil {
		return ""
	}
	return g.session.CurrentUID()
}
