package models

import (
	"time"

	"gymsync/internal/docstore"
)

// User is an account profile (usuarios). The id is the auth provider uid.
type User struct {
	ID string

	Email      *string
	Name       *string
	Role       *Role
	GymID      *string
	Active     *bool
	CreatedAt  *time.Time
	LastAccess *time.Time
}

var UserSchema = Schema[User]{
	Collection: "usuarios",
	Fields:     []string{"email", "nombre", "rol", "gimnasioId", "activo", "fechaCreacion", "ultimoAcceso"},
	decode: func(id string, doc docstore.Document) (User, error) {
		r := &reader{doc: doc}
		u := User{
			ID:         id,
			Email:      r.str("email"),
			Name:       r.str("nombre"),
			Role:       r.role("rol"),
			GymID:      r.str("gimnasioId"),
			Active:     r.boolean("activo"),
			CreatedAt:  r.time("fechaCreacion"),
			LastAccess: r.time("ultimoAcceso"),
		}
		return u, r.err
	},
	encode: func(u User) docstore.Document {
		doc := docstore.Document{}
		doc.PutString("email", u.Email)
		doc.PutString("nombre", u.Name)
		putRole(doc, "rol", u.Role)
		doc.PutString("gimnasioId", u.GymID)
		doc.PutBool("activo", u.Active)
		doc.PutTime("fechaCreacion", u.CreatedAt)
		doc.PutTime("ultimoAcceso", u.LastAccess)
		return doc
	},
	getID: func(u User) string { return u.ID },
	setID: func(u *User, id string) { u.ID = id },
}

// Client is a trainee profile managed by a coach or gym (clientes).
type Client struct {
	ID string

	Name         *string
	Email        *string
	Phone        *string
	Goal         *string
	Active       *bool
	CoachID      *string
	GymID        *string
	RegisteredAt *time.Time
	BirthDate    *time.Time
	WeightKg     *float64
	HeightCm     *float64
}

var ClientSchema = Schema[Client]{
	Collection: "clientes",
	Fields: []string{"nombre", "email", "telefono", "objetivo", "activo", "entrenadorId", "gimnasioId",
		"fechaRegistro", "fechaNacimiento", "peso", "altura"},
	decode: func(id string, doc docstore.Document) (Client, error) {
		r := &reader{doc: doc}
		c := Client{
			ID:           id,
			Name:         r.str("nombre"),
			Email:        r.str("email"),
			Phone:        r.str("telefono"),
			Goal:         r.str("objetivo"),
			Active:       r.boolean("activo"),
			CoachID:      r.str("entrenadorId"),
			GymID:        r.str("gimnasioId"),
			RegisteredAt: r.time("fechaRegistro"),
			BirthDate:    r.time("fechaNacimiento"),
			WeightKg:     r.float("peso"),
			HeightCm:     r.float("altura"),
		}
		return c, r.err
	},
	encode: func(c Client) docstore.Document {
		doc := docstore.Document{}
		doc.PutString("nombre", c.Name)
		doc.PutString("email", c.Email)
		doc.PutString("telefono", c.Phone)
		doc.PutString("objetivo", c.Goal)
		doc.PutBool("activo", c.Active)
		doc.PutString("entrenadorId", c.CoachID)
		doc.PutString("gimnasioId", c.GymID)
		doc.PutTime("fechaRegistro", c.RegisteredAt)
		doc.PutTime("fechaNacimiento", c.BirthDate)
		doc.PutFloat("peso", c.WeightKg)
		doc.PutFloat("altura", c.HeightCm)
		return doc
	},
	getID: func(c Client) string { return c.ID },
	setID: func(c *Client, id string) { c.ID = id },
}

// Exercise is a catalogue entry (ejercicios).
type Exercise struct {
	ID string

	Name        *string
	Description *string
	MuscleGroup *string
	Sets        *int
	Reps        *int
	RestSeconds *int
	VideoURL    *string
	CreatorID   *string
}

var ExerciseSchema = Schema[Exercise]{
	Collection: "ejercicios",
	Fields: []string{"nombre", "descripcion", "grupoMuscular", "series", "repeticiones",
		"descansoSegundos", "videoUrl", "creadorId"},
	decode: func(id string, doc docstore.Document) (Exercise, error) {
		r := &reader{doc: doc}
		e := Exercise{
			ID:          id,
			Name:        r.str("nombre"),
			Description: r.str("descripcion"),
			MuscleGroup: r.str("grupoMuscular"),
			Sets:        r.integer("series"),
			Reps:        r.integer("repeticiones"),
			RestSeconds: r.integer("descansoSegundos"),
			VideoURL:    r.str("videoUrl"),
			CreatorID:   r.str("creadorId"),
		}
		return e, r.err
	},
	encode: func(e Exercise) docstore.Document {
		doc := docstore.Document{}
		doc.PutString("nombre", e.Name)
		doc.PutString("descripcion", e.Description)
		doc.PutString("grupoMuscular", e.MuscleGroup)
		doc.PutInt("series", e.Sets)
		doc.PutInt("repeticiones", e.Reps)
		doc.PutInt("descansoSegundos", e.RestSeconds)
		doc.PutString("videoUrl", e.VideoURL)
		doc.PutString("creadorId", e.CreatorID)
		return doc
	},
	getID: func(e Exercise) string { return e.ID },
	setID: func(e *Exercise, id string) { e.ID = id },
}

// Routine is a workout plan (rutinas). AssigneeRole absent means any role.
type Routine struct {
	ID string

	Name            *string
	Description     *string
	CreatorID       *string
	CreatorRole     *Role
	AssigneeID      *string
	AssigneeRole    *Role
	ExerciseIDs     []string
	Weekdays        []int // 0 = Sunday
	Level           *string
	DurationMinutes *int
	CreatedAt       *time.Time
	Active          *bool
}

var RoutineSchema = Schema[Routine]{
	Collection: "rutinas",
	Fields: []string{"nombre", "descripcion", "creadorId", "creadorTipo", "asignadoId", "asignadoTipo",
		"ejercicios", "diasSemana", "nivel", "duracionMinutos", "fechaCreacion", "activa"},
	decode: func(id string, doc docstore.Document) (Routine, error) {
		r := &reader{doc: doc}
		rt := Routine{
			ID:              id,
			Name:            r.str("nombre"),
			Description:     r.str("descripcion"),
			CreatorID:       r.str("creadorId"),
			CreatorRole:     r.role("creadorTipo"),
			AssigneeID:      r.str("asignadoId"),
			AssigneeRole:    r.role("asignadoTipo"),
			ExerciseIDs:     r.strings("ejercicios"),
			Weekdays:        r.ints("diasSemana"),
			Level:           r.str("nivel"),
			DurationMinutes: r.integer("duracionMinutos"),
			CreatedAt:       r.time("fechaCreacion"),
			Active:          r.boolean("activa"),
		}
		return rt, r.err
	},
	encode: func(rt Routine) docstore.Document {
		doc := docstore.Document{}
		doc.PutString("nombre", rt.Name)
		doc.PutString("descripcion", rt.Description)
		doc.PutString("creadorId", rt.CreatorID)
		putRole(doc, "creadorTipo", rt.CreatorRole)
		doc.PutString("asignadoId", rt.AssigneeID)
		putRole(doc, "asignadoTipo", rt.AssigneeRole)
		doc.PutStrings("ejercicios", rt.ExerciseIDs)
		doc.PutInts("diasSemana", rt.Weekdays)
		doc.PutString("nivel", rt.Level)
		doc.PutInt("duracionMinutos", rt.DurationMinutes)
		doc.PutTime("fechaCreacion", rt.CreatedAt)
		doc.PutBool("activa", rt.Active)
		return doc
	},
	getID: func(rt Routine) string { return rt.ID },
	setID: func(rt *Routine, id string) { rt.ID = id },
}

// AssignedRoutine links a routine to an assignee with progress (rutinasAsignadas).
type AssignedRoutine struct {
	ID string

	RoutineID    *string
	AssigneeID   *string
	AssigneeRole *Role
	AssignedBy   *string
	AssignedAt   *time.Time
	StartDate    *time.Time
	EndDate      *time.Time
	Progress     *float64 // percent, 0..100
	Completed    *bool
}

var AssignedRoutineSchema = Schema[AssignedRoutine]{
	Collection: "rutinasAsignadas",
	Fields: []string{"rutinaId", "asignadoId", "asignadoTipo", "asignadoPor", "fechaAsignacion",
		"fechaInicio", "fechaFin", "progreso", "completada"},
	decode: func(id string, doc docstore.Document) (AssignedRoutine, error) {
		r := &reader{doc: doc}
		a := AssignedRoutine{
			ID:           id,
			RoutineID:    r.str("rutinaId"),
			AssigneeID:   r.str("asignadoId"),
			AssigneeRole: r.role("asignadoTipo"),
			AssignedBy:   r.str("asignadoPor"),
			AssignedAt:   r.time("fechaAsignacion"),
			StartDate:    r.time("fechaInicio"),
			EndDate:      r.time("fechaFin"),
			Progress:     r.float("progreso"),
			Completed:    r.boolean("completada"),
		}
		return a, r.err
	},
	encode: func(a AssignedRoutine) docstore.Document {
		doc := docstore.Document{}
		doc.PutString("rutinaId", a.RoutineID)
		doc.PutString("asignadoId", a.AssigneeID)
		putRole(doc, "asignadoTipo", a.AssigneeRole)
		doc.PutString("asignadoPor", a.AssignedBy)
		doc.PutTime("fechaAsignacion", a.AssignedAt)
		doc.PutTime("fechaInicio", a.StartDate)
		doc.PutTime("fechaFin", a.EndDate)
		doc.PutFloat("progreso", a.Progress)
		doc.PutBool("completada", a.Completed)
		return doc
	},
	getID: func(a AssignedRoutine) string { return a.ID },
	setID: func(a *AssignedRoutine, id string) { a.ID = id },
}

// Session is one workout performed by a client (sesiones).
type Session struct {
	ID string

	ClientID           *string
	RoutineID          *string
	StartedAt          *time.Time
	FinishedAt         *time.Time
	ExercisesCompleted *int
	ExercisesTotal     *int
	Completed          *bool
}

var SessionSchema = Schema[Session]{
	Collection: "sesiones",
	Fields: []string{"clienteId", "rutinaId", "fechaInicio", "fechaFin", "ejerciciosCompletados",
		"ejerciciosTotales", "completada"},
	decode: func(id string, doc docstore.Document) (Session, error) {
		r := &reader{doc: doc}
		s := Session{
			ID:                 id,
			ClientID:           r.str("clienteId"),
			RoutineID:          r.str("rutinaId"),
			StartedAt:          r.time("fechaInicio"),
			FinishedAt:         r.time("fechaFin"),
			ExercisesCompleted: r.integer("ejerciciosCompletados"),
			ExercisesTotal:     r.integer("ejerciciosTotales"),
			Completed:          r.boolean("completada"),
		}
		return s, r.err
	},
	encode: func(s Session) docstore.Document {
		doc := docstore.Document{}
		doc.PutString("clienteId", s.ClientID)
		doc.PutString("rutinaId", s.RoutineID)
		doc.PutTime("fechaInicio", s.StartedAt)
		doc.PutTime("fechaFin", s.FinishedAt)
		doc.PutInt("ejerciciosCompletados", s.ExercisesCompleted)
		doc.PutInt("ejerciciosTotales", s.ExercisesTotal)
		doc.PutBool("completada", s.Completed)
		return doc
	},
	getID: func(s Session) string { return s.ID },
	setID: func(s *Session, id string) { s.ID = id },
}

// Conversation is a coach/client chat thread with per-side unread counters (conversaciones).
type Conversation struct {
	ID string

	CoachID       *string
	ClientID      *string
	LastMessage   *string
	LastMessageAt *time.Time
	UnreadCoach   *int
	UnreadClient  *int
	Active        *bool
}

var ConversationSchema = Schema[Conversation]{
	Collection: "conversaciones",
	Fields: []string{"entrenadorId", "clienteId", "ultimoMensaje", "fechaUltimoMensaje",
		"noLeidosEntrenador", "noLeidosCliente", "activa"},
	decode: func(id string, doc docstore.Document) (Conversation, error) {
		r := &reader{doc: doc}
		c := Conversation{
			ID:            id,
			CoachID:       r.str("entrenadorId"),
			ClientID:      r.str("clienteId"),
			LastMessage:   r.str("ultimoMensaje"),
			LastMessageAt: r.time("fechaUltimoMensaje"),
			UnreadCoach:   r.integer("noLeidosEntrenador"),
			UnreadClient:  r.integer("noLeidosCliente"),
			Active:        r.boolean("activa"),
		}
		return c, r.err
	},
	encode: func(c Conversation) docstore.Document {
		doc := docstore.Document{}
		doc.PutString("entrenadorId", c.CoachID)
		doc.PutString("clienteId", c.ClientID)
		doc.PutString("ultimoMensaje", c.LastMessage)
		doc.PutTime("fechaUltimoMensaje", c.LastMessageAt)
		doc.PutInt("noLeidosEntrenador", c.UnreadCoach)
		doc.PutInt("noLeidosCliente", c.UnreadClient)
		doc.PutBool("activa", c.Active)
		return doc
	},
	getID: func(c Conversation) string { return c.ID },
	setID: func(c *Conversation, id string) { c.ID = id },
}

// Notification is an in-app message to one user (notificaciones).
type Notification struct {
	ID string

	UserID  *string
	Title   *string
	Message *string
	Kind    *string
	Read    *bool
	Date    *time.Time
}

var NotificationSchema = Schema[Notification]{
	Collection: "notificaciones",
	Fields:     []string{"usuarioId", "titulo", "mensaje", "tipo", "leida", "fecha"},
	decode: func(id string, doc docstore.Document) (Notification, error) {
		r := &reader{doc: doc}
		n := Notification{
			ID:      id,
			UserID:  r.str("usuarioId"),
			Title:   r.str("titulo"),
			Message: r.str("mensaje"),
			Kind:    r.str("tipo"),
			Read:    r.boolean("leida"),
			Date:    r.time("fecha"),
		}
		return n, r.err
	},
	encode: func(n Notification) docstore.Document {
		doc := docstore.Document{}
		doc.PutString("usuarioId", n.UserID)
		doc.PutString("titulo", n.Title)
		doc.PutString("mensaje", n.Message)
		doc.PutString("tipo", n.Kind)
		doc.PutBool("leida", n.Read)
		doc.PutTime("fecha", n.Date)
		return doc
	},
	getID: func(n Notification) string { return n.ID },
	setID: func(n *Notification, id string) { n.ID = id },
}
