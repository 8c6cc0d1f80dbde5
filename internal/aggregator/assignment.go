// Package aggregator holds the pure derivations behind the gym views. Every
// function reads its inputs and returns fresh slices; none mutate.
package aggregator

import "gymsync/internal/models"

// AssignedTo keeps records whose assignee is subjectID and whose assignee
// role is absent or equal to role. An absent role matches any role.
func AssignedTo[T any](records []T, subjectID string, role models.Role, assignee func(T) (id *string, role *models.Role)) []T {
	out := make([]T, 0)
	for _, rec := range records {
		id, r := assignee(rec)
		if id == nil || *id != subjectID {
			continue
		}
		if r != nil && *r != role {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func RoutinesAssignedTo(routines []models.Routine, subjectID string, role models.Role) []models.Routine {
	return AssignedTo(routines, subjectID, role, func(r models.Routine) (*string, *models.Role) {
		return r.AssigneeID, r.AssigneeRole
	})
}

func AssignmentsFor(assigned []models.AssignedRoutine, subjectID string, role models.Role) []models.AssignedRoutine {
	return AssignedTo(assigned, subjectID, role, func(a models.AssignedRoutine) (*string, *models.Role) {
		return a.AssigneeID, a.AssigneeRole
	})
}

// RoutinesCreatedBy lists routines whose creator is creatorID.
func RoutinesCreatedBy(routines []models.Routine, creatorID string) []models.Routine {
	out := make([]models.Routine, 0)
	for _, r := range routines {
		if r.CreatorID != nil && *r.CreatorID == creatorID {
			out = append(out, r)
		}
	}
	return out
}

// ClientsOfCoach lists the coach's clients. With onlyActive, a client
// without the activo field is left out.
func ClientsOfCoach(clients []models.Client, coachID string, onlyActive bool) []models.Client {
	out := make([]models.Client, 0)
	for _, c := range clients {
		if c.CoachID == nil || *c.CoachID != coachID {
			continue
		}
		if onlyActive && !isTrue(c.Active) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func isTrue(b *bool) bool {
	return b != nil && *b
}
