// Package export writes study sessions to an .xlsx workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sakif/estudogame/internal/model"
)

const (
	// SheetName is the single worksheet of the workbook.
	SheetName = "Sessions"
	// ContentType is the MIME type of the produced file.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	dateLayout = "2006-01-02 15:04:05"
)

// Header is the first row of the sheet.
var Header = []string{"Date (UTC)", "Subject", "Notes", "Duration (min)", "Duration (s)", "Points"}

// Filename returns the download name for an export taken at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("study-sessions-%s.xlsx", t.UTC().Format("20060102"))
}

// WriteSessions writes sessions, in the order given, as a workbook to w.
// A totals row follows the data.
func WriteSessions(w io.Writer, sessions []model.StudySession) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("export: naming sheet: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &Header); err != nil {
		return fmt.Errorf("export: writing header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("export: creating style: %w", err)
	}
	lastCol, _ := excelize.CoordinatesToCellName(len(Header), 1)
	if err := f.SetCellStyle(SheetName, "A1", lastCol, bold); err != nil {
		return fmt.Errorf("export: styling header: %w", err)
	}

	var totalSeconds, totalPoints int64
	for i, s := range sessions {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			s.CreatedAt.UTC().Format(dateLayout),
			s.Subject,
			s.Notes,
			float64(s.DurationSeconds) / 60,
			s.DurationSeconds,
			s.PointsEarned,
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("export: writing row %d: %w", i+2, err)
		}
		totalSeconds += s.DurationSeconds
		totalPoints += s.PointsEarned
	}

	totalRow := len(sessions) + 2
	cell, _ := excelize.CoordinatesToCellName(1, totalRow)
	totals := []any{"Total", "", "", float64(totalSeconds) / 60, totalSeconds, totalPoints}
	if err := f.SetSheetRow(SheetName, cell, &totals); err != nil {
		return fmt.Errorf("export: writing totals: %w", err)
	}
	lastTotal, _ := excelize.CoordinatesToCellName(len(Header), totalRow)
	if err := f.SetCellStyle(SheetName, cell, lastTotal, bold); err != nil {
		return fmt.Errorf("export: styling totals: %w", err)
	}

	_ = f.SetColWidth(SheetName, "A", "A", 20)
	_ = f.SetColWidth(SheetName, "B", "C", 30)
	_ = f.SetColWidth(SheetName, "D", "F", 14)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: writing workbook: %w", err)
	}
	return nil
}
