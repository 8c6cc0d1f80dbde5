package export

import (
	"bytes"
	"testing"
	"time"

	"gymsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestBuildClientRows(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	today := now.Add(-time.Hour)
	yesterday := now.AddDate(0, 0, -1)

	clients := []models.Client{
		{ID: "c1", Name: models.Ptr("Ana"), Active: models.Ptr(true)},
		{ID: "c2", Name: models.Ptr("Luis")},
	}
	assigned := []models.AssignedRoutine{
		{AssigneeID: models.Ptr("c1")},
		{AssigneeID: models.Ptr("c1"), AssigneeRole: models.Ptr(models.RoleCoach)},
		{AssigneeID: models.Ptr("c2"), AssigneeRole: models.Ptr(models.RoleClient)},
	}
	sessions := []models.Session{
		{ClientID: models.Ptr("c1"), Completed: models.Ptr(true), FinishedAt: &today},
		{ClientID: models.Ptr("c1"), Completed: models.Ptr(true), FinishedAt: &yesterday},
		{ClientID: models.Ptr("c1"), Completed: models.Ptr(false)},
		{ClientID: models.Ptr("c1"), Completed: models.Ptr(false)},
	}

	rows := BuildClientRows(clients, assigned, sessions, now)
	require.Len(t, rows, 2)
	assert.Equal(t, ClientRow{ID: "c1", Name: "Ana", Active: true, AssignedRoutines: 1, Streak: 2, CompletionPercent: 50}, rows[0])
	assert.Equal(t, ClientRow{ID: "c2", Name: "Luis", AssignedRoutines: 1}, rows[1])
}

func TestClientsWorkbook(t *testing.T) {
	data, err := ClientsWorkbook([]ClientRow{
		{Name: "Ana", Email: "ana@gym.test", Goal: "lose_weight", Active: true, AssignedRoutines: 2, Streak: 3, CompletionPercent: 80},
		{Name: "Luis"},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{clientsSheet}, f.GetSheetList())
	rows, err := f.GetRows(clientsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, clientHeaders, rows[0])
	assert.Equal(t, []string{"Ana", "ana@gym.test", "lose_weight", "Sí", "2", "3", "80"}, rows[1])
	assert.Equal(t, "Luis", rows[2][0])
	assert.Equal(t, "No", rows[2][3])
}
