package models

import (
	"testing"
	"time"

	"gymsync/internal/docstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTrip encodes through the JSON codec so the check covers what a backend stores.
func roundTrip[T any](t *testing.T, s Schema[T], rec T) T {
	t.Helper()
	raw, err := docstore.MarshalDocument(s.Encode(rec))
	require.NoError(t, err)
	doc, err := docstore.UnmarshalDocument(raw)
	require.NoError(t, err)
	out, err := s.Decode(s.ID(rec), doc)
	require.NoError(t, err)
	return out
}

func TestSchemas_RoundTrip(t *testing.T) {
	when := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)

	t.Run("user", func(t *testing.T) {
		u := User{ID: "uid-1", Email: Ptr("a@b.c"), Role: Ptr(RoleCoach), Active: Ptr(true), CreatedAt: &when}
		assert.Equal(t, u, roundTrip(t, UserSchema, u))
	})
	t.Run("client", func(t *testing.T) {
		c := Client{ID: "c1", Name: Ptr("Ana"), Goal: Ptr("lose_weight"), WeightKg: Ptr(61.5), HeightCm: Ptr(170.0), BirthDate: &when}
		assert.Equal(t, c, roundTrip(t, ClientSchema, c))
	})
	t.Run("exercise", func(t *testing.T) {
		e := Exercise{ID: "e1", Name: Ptr("Sentadilla"), Sets: Ptr(4), Reps: Ptr(12), RestSeconds: Ptr(90)}
		assert.Equal(t, e, roundTrip(t, ExerciseSchema, e))
	})
	t.Run("routine", func(t *testing.T) {
		r := Routine{
			ID:           "r1",
			Name:         Ptr("Full body"),
			AssigneeID:   Ptr("U1"),
			AssigneeRole: Ptr(RoleClient),
			ExerciseIDs:  []string{"e1", "e2"},
			Weekdays:     []int{1, 3, 5},
			Active:       Ptr(false),
		}
		assert.Equal(t, r, roundTrip(t, RoutineSchema, r))
	})
	t.Run("assigned routine", func(t *testing.T) {
		a := AssignedRoutine{ID: "a1", RoutineID: Ptr("r1"), Progress: Ptr(42.0), Completed: Ptr(false), StartDate: &when}
		assert.Equal(t, a, roundTrip(t, AssignedRoutineSchema, a))
	})
	t.Run("session", func(t *testing.T) {
		s := Session{ID: "s1", ClientID: Ptr("c1"), FinishedAt: &when, ExercisesCompleted: Ptr(3), ExercisesTotal: Ptr(5)}
		assert.Equal(t, s, roundTrip(t, SessionSchema, s))
	})
	t.Run("conversation", func(t *testing.T) {
		c := Conversation{ID: "cv1", CoachID: Ptr("k1"), UnreadCoach: Ptr(0), Active: Ptr(true)}
		assert.Equal(t, c, roundTrip(t, ConversationSchema, c))
	})
	t.Run("notification", func(t *testing.T) {
		n := Notification{ID: "n1", UserID: Ptr("u1"), Title: Ptr("Hola"), Read: Ptr(false), Date: &when}
		assert.Equal(t, n, roundTrip(t, NotificationSchema, n))
	})
}

func TestSchema_TimesDecodeInUTC(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	registered := time.Date(2026, 1, 5, 7, 30, 0, 0, cet)
	c := Client{ID: "c1", RegisteredAt: &registered}

	got := roundTrip(t, ClientSchema, c)
	require.NotNil(t, got.RegisteredAt)
	assert.True(t, got.RegisteredAt.Equal(registered))
	assert.Equal(t, time.UTC, got.RegisteredAt.Location())
	assert.Equal(t, 6, got.RegisteredAt.Hour())
}

func TestSchema_EncodeOmitsAbsentFields(t *testing.T) {
	doc := ClientSchema.Encode(Client{ID: "x", Active: Ptr(false)})
	assert.Equal(t, docstore.Document{"activo": false}, doc)
}

func TestSchema_NullDecodesAsAbsent(t *testing.T) {
	c, err := ClientSchema.Decode("x", docstore.Document{"objetivo": nil, "activo": true})
	require.NoError(t, err)
	assert.Nil(t, c.Goal)
	assert.Equal(t, Ptr(true), c.Active)
	assert.NotContains(t, ClientSchema.Encode(c), "objetivo")
}

func TestSchema_DecodeRejectsWrongTypes(t *testing.T) {
	_, err := ClientSchema.Decode("x", docstore.Document{"activo": "yes"})
	assert.Error(t, err)

	_, err = RoutineSchema.Decode("r", docstore.Document{"asignadoTipo": "ADMIN"})
	assert.Error(t, err)

	var fe *docstore.FieldError
	_, err = SessionSchema.Decode("s", docstore.Document{"fechaFin": "2026-01-01"})
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "fechaFin", fe.Field)
}

func TestSchema_Unknown(t *testing.T) {
	doc := docstore.Document{"nombre": "A", "zeta": 1, "legacy": true}
	assert.Equal(t, []string{"legacy", "zeta"}, ExerciseSchema.Unknown(doc))
}

func TestSchema_WithID(t *testing.T) {
	n := Notification{Title: Ptr("t")}
	got := NotificationSchema.WithID(n, "n9")
	assert.Equal(t, "n9", NotificationSchema.ID(got))
	assert.Empty(t, n.ID)
}
