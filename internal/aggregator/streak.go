package aggregator

import (
	"math"
	"sort"
	"time"

	"gymsync/internal/models"
)

// Streak counts consecutive calendar days with a finished session, ending
// today or yesterday in now's location. Sessions without an end time are
// ignored and several sessions on one day count once.
func Streak(sessions []models.Session, now time.Time) int {
	loc := now.Location()
	days := make([]time.Time, 0, len(sessions))
	for _, s := range sessions {
		if s.FinishedAt != nil {
			days = append(days, midnight(*s.FinishedAt, loc))
		}
	}
	if len(days) == 0 {
		return 0
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	today := midnight(now, loc)
	yesterday := today.AddDate(0, 0, -1)
	if !days[0].Equal(today) && !days[0].Equal(yesterday) {
		return 0
	}

	streak := 1
	prev := days[0]
	for _, d := range days[1:] {
		if d.Equal(prev) {
			continue
		}
		if !d.Equal(prev.AddDate(0, 0, -1)) {
			break
		}
		streak++
		prev = d
	}
	return streak
}

// CompletedSessions keeps sessions of clientID marked completada.
func CompletedSessions(sessions []models.Session, clientID string) []models.Session {
	out := make([]models.Session, 0)
	for _, s := range sessions {
		if s.ClientID != nil && *s.ClientID == clientID && isTrue(s.Completed) {
			out = append(out, s)
		}
	}
	return out
}

// CompletionPercent is the share of sessions marked completada, rounded to
// a whole percent. No sessions is 0.
func CompletionPercent(sessions []models.Session) int {
	if len(sessions) == 0 {
		return 0
	}
	done := 0
	for _, s := range sessions {
		if isTrue(s.Completed) {
			done++
		}
	}
	return int(math.Round(float64(done) * 100 / float64(len(sessions))))
}

// AverageProgress averages progreso over assignments that carry it.
func AverageProgress(assigned []models.AssignedRoutine) float64 {
	var (
		sum float64
		n   int
	)
	for _, a := range assigned {
		if a.Progress != nil {
			sum += *a.Progress
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
