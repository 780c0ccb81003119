// Package report renders tutor earnings statements as spreadsheets.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/Eursukkul/tutor-booking/internal/service"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Statement"

// FileName is the download name for a statement.
func FileName(st *service.Statement) string {
	return fmt.Sprintf("statement_%s_%s.xlsx", st.Tutor.ID, st.Month.Format("2006-01"))
}

// WriteStatement writes one row per completed session followed by a totals
// row. Amounts are whole currency units.
func WriteStatement(w io.Writer, st *service.Statement) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	title := []interface{}{
		fmt.Sprintf("%s - %s", st.Tutor.DisplayName, st.Month.Format("January 2006")),
	}
	if err := f.SetSheetRow(sheetName, "A1", &title); err != nil {
		return fmt.Errorf("write title: %w", err)
	}

	header := []interface{}{
		"booking_id",
		"order_id",
		"scheduled_at",
		"duration_minutes",
		"total_amount",
		"platform_fee",
		"earnings",
	}
	if err := f.SetSheetRow(sheetName, "A3", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := 4
	var gross, fees int64
	for _, b := range st.Bookings {
		excelRow := []interface{}{
			b.ID,
			b.OrderID,
			b.ScheduledAt.In(st.Month.Location()).Format(time.DateTime),
			b.DurationMinutes,
			b.TotalAmount,
			b.PlatformFee,
			b.TutorEarnings(),
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &excelRow); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
		gross += b.TotalAmount
		fees += b.PlatformFee
		row++
	}

	totals := []interface{}{"TOTAL", "", "", len(st.Bookings), gross, fees, gross - fees}
	cell, err := excelize.CoordinatesToCellName(1, row+1)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheetName, cell, &totals); err != nil {
		return fmt.Errorf("write totals: %w", err)
	}

	return f.Write(w)
}
