package httpapi

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-progress/internal/dashboard"
)

const progressSheet = "Progreso"

var progressHeader = []string{"Código", "Curso", "Ciclo", "Créditos", "Temas", "Dominados", "Progreso (%)", "Siguiente tema"}

// progressWorkbook renders enrolled courses as a one-sheet workbook with a
// bold header row.
func progressWorkbook(courses []dashboard.CourseWithProgress) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", progressSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	if err := setRow(f, 1, toAny(progressHeader)); err != nil {
		f.Close()
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(progressHeader), 1)
	if err := f.SetCellStyle(progressSheet, "A1", last, bold); err != nil {
		f.Close()
		return nil, fmt.Errorf("style header: %w", err)
	}

	for i, c := range courses {
		row := []any{c.Code, c.Name, c.Cycle, c.Credits, c.TotalTopics, c.CompletedTopics, c.ProgressPercentage, c.NextTopic}
		if err := setRow(f, i+2, row); err != nil {
			f.Close()
			return nil, err
		}
	}
	if err := f.SetColWidth(progressSheet, "B", "B", 40); err != nil {
		f.Close()
		return nil, fmt.Errorf("size columns: %w", err)
	}
	return f, nil
}

func setRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("row %d: %w", row, err)
	}
	if err := f.SetSheetRow(progressSheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
