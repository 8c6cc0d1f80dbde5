package aggregator

import (
	"sort"
	"time"

	"gymsync/internal/models"
)

// UnreadForCoach sums the coach-side unread counter over every conversation
// of the coach, active or not.
func UnreadForCoach(conversations []models.Conversation, coachID string) int {
	total := 0
	for _, c := range conversations {
		if c.CoachID != nil && *c.CoachID == coachID && c.UnreadCoach != nil {
			total += *c.UnreadCoach
		}
	}
	return total
}

// ActiveConversationsForCoach lists only conversations with activa set true.
func ActiveConversationsForCoach(conversations []models.Conversation, coachID string) []models.Conversation {
	out := make([]models.Conversation, 0)
	for _, c := range conversations {
		if c.CoachID != nil && *c.CoachID == coachID && isTrue(c.Active) {
			out = append(out, c)
		}
	}
	return out
}

func UnreadForClient(conversations []models.Conversation, clientID string) int {
	total := 0
	for _, c := range conversations {
		if c.ClientID != nil && *c.ClientID == clientID && c.UnreadClient != nil {
			total += *c.UnreadClient
		}
	}
	return total
}

func ActiveConversationsForClient(conversations []models.Conversation, clientID string) []models.Conversation {
	out := make([]models.Conversation, 0)
	for _, c := range conversations {
		if c.ClientID != nil && *c.ClientID == clientID && isTrue(c.Active) {
			out = append(out, c)
		}
	}
	return out
}

// UnreadNotifications lists the user's notifications not marked leida,
// newest first; undated ones go last.
func UnreadNotifications(notifications []models.Notification, userID string) []models.Notification {
	out := make([]models.Notification, 0)
	for _, n := range notifications {
		if n.UserID != nil && *n.UserID == userID && !isTrue(n.Read) {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Date, out[j].Date
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})
	return out
}

// RoutinesByWeekday buckets routines by the days in diasSemana (0 = Sunday).
// Out-of-range days are ignored.
func RoutinesByWeekday(routines []models.Routine) map[time.Weekday][]models.Routine {
	out := make(map[time.Weekday][]models.Routine)
	for _, r := range routines {
		seen := map[int]bool{}
		for _, d := range r.Weekdays {
			if d < 0 || d > 6 || seen[d] {
				continue
			}
			seen[d] = true
			out[time.Weekday(d)] = append(out[time.Weekday(d)], r)
		}
	}
	return out
}

// SessionsPerWeekday counts sessions finished in now's ISO week (Monday
// through Sunday), indexed by time.Weekday.
func SessionsPerWeekday(sessions []models.Session, now time.Time) [7]int {
	loc := now.Location()
	today := midnight(now, loc)
	offset := (int(today.Weekday()) + 6) % 7
	monday := today.AddDate(0, 0, -offset)
	nextMonday := monday.AddDate(0, 0, 7)

	var counts [7]int
	for _, s := range sessions {
		if s.FinishedAt == nil {
			continue
		}
		t := s.FinishedAt.In(loc)
		if t.Before(monday) || !t.Before(nextMonday) {
			continue
		}
		counts[t.Weekday()]++
	}
	return counts
}
