package models

import "fmt"

// Role is the closed set of account and assignee kinds.
type Role string

const (
	RoleClient          Role = "CLIENT"
	RoleCoach           Role = "COACH"
	RoleGym             Role = "GYM"
	RolePersonalTrainer Role = "PERSONAL_TRAINER"
)

// RoleInfo holds everything role-dependent in one place.
type RoleInfo struct {
	Label             string
	Plural            string
	CanCreateRoutines bool
	CanAssignRoutines bool
	HasClients        bool
}

var roleTable = map[Role]RoleInfo{
	RoleClient: {
		Label:  "Cliente",
		Plural: "Clientes",
	},
	RoleCoach: {
		Label:             "Entrenador",
		Plural:            "Entrenadores",
		CanCreateRoutines: true,
		CanAssignRoutines: true,
		HasClients:        true,
	},
	RoleGym: {
		Label:             "Gimnasio",
		Plural:            "Gimnasios",
		CanCreateRoutines: true,
		CanAssignRoutines: true,
		HasClients:        true,
	},
	RolePersonalTrainer: {
		Label:             "Entrenador personal",
		Plural:            "Entrenadores personales",
		CanCreateRoutines: true,
		CanAssignRoutines: true,
		HasClients:        true,
	},
}

// Roles lists every role in display order.
func Roles() []Role {
	return []Role{RoleClient, RoleCoach, RoleGym, RolePersonalTrainer}
}

// ParseRole accepts exactly the stored role names.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleTable[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Info returns the table entry; unknown roles get a zero entry labelled with the raw value.
func (r Role) Info() RoleInfo {
	if info, ok := roleTable[r]; ok {
		return info
	}
	return RoleInfo{Label: string(r), Plural: string(r)}
}

func (r Role) Label() string { return r.Info().Label }

func (r Role) Plural() string { return r.Info().Plural }

func (r Role) CanCreateRoutines() bool { return r.Info().CanCreateRoutines }

func (r Role) CanAssignRoutines() bool { return r.Info().CanAssignRoutines }

func (r Role) HasClients() bool { return r.Info().HasClients }

func (r Role) Valid() bool {
	_, ok := roleTable[r]
	return ok
}
