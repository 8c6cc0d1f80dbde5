package export

import (
	"bytes"
	"fmt"
	"time"

	"gymsync/internal/aggregator"
	"gymsync/internal/models"

	"github.com/xuri/excelize/v2"
)

const clientsSheet = "Clientes"

var clientHeaders = []string{"Nombre", "Email", "Objetivo", "Activo", "Rutinas asignadas", "Racha (días)", "Sesiones completadas (%)"}

var clientColumnWidths = []float64{24, 30, 20, 10, 18, 14, 24}

// ClientRow is one line of the clients export.
type ClientRow struct {
	ID                string
	Name              string
	Email             string
	Goal              string
	Active            bool
	AssignedRoutines  int
	Streak            int
	CompletionPercent int
}

// BuildClientRows joins each client with its assignments and sessions.
func BuildClientRows(clients []models.Client, assigned []models.AssignedRoutine, sessions []models.Session, now time.Time) []ClientRow {
	rows := make([]ClientRow, 0, len(clients))
	for _, c := range clients {
		var own []models.Session
		for _, s := range sessions {
			if s.ClientID != nil && *s.ClientID == c.ID {
				own = append(own, s)
			}
		}
		rows = append(rows, ClientRow{
			ID:                c.ID,
			Name:              str(c.Name),
			Email:             str(c.Email),
			Goal:              str(c.Goal),
			Active:            c.Active != nil && *c.Active,
			AssignedRoutines:  len(aggregator.AssignmentsFor(assigned, c.ID, models.RoleClient)),
			Streak:            aggregator.Streak(aggregator.CompletedSessions(sessions, c.ID), now),
			CompletionPercent: aggregator.CompletionPercent(own),
		})
	}
	return rows
}

// ClientsWorkbook renders rows as an xlsx file with a frozen header.
func ClientsWorkbook(rows []ClientRow) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(clientsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, header := range clientHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetCellValue(clientsSheet, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(clientsSheet, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetColWidth(clientsSheet, col, col, clientColumnWidths[i]); err != nil {
			f.Close()
			return nil, err
		}
	}

	for r, row := range rows {
		active := "No"
		if row.Active {
			active = "Sí"
		}
		values := []any{row.Name, row.Email, row.Goal, active, row.AssignedRoutines, row.Streak, row.CompletionPercent}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(clientsSheet, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", r+2, err)
		}
	}

	if err := f.SetPanes(clientsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
