// Package report renders allocation and attendance tables as PDF and XLSX.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"

	"invigilation/internal/model"
)

const (
	marginX     = 14.0
	tableRight  = 194.0
	tableTop    = 30.0
	rowHeight   = 10.0
	pageBottom  = 280.0
	maxCellRune = 20
)

// Truncate cuts s to the first 20 characters.
func Truncate(s string) string {
	r := []rune(s)
	if len(r) > maxCellRune {
		return string(r[:maxCellRune])
	}
	return s
}

func or(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func presence(present bool) string {
	if present {
		return "Present"
	}
	return "Absent"
}

type table struct {
	title   string
	headers []string
	rows    [][]string
}

func (t table) pdf(w io.Writer) error {
	doc := fpdf.New("P", "mm", "A4", "")
	colWidth := (tableRight - marginX) / float64(len(t.headers))
	if colWidth > 35 {
		colWidth = 35
	}

	y := 0.0
	header := func() {
		doc.AddPage()
		doc.SetFont("Helvetica", "", 18)
		doc.Text(marginX, 20, t.title)
		doc.SetFont("Helvetica", "", 11)
		for i, h := range t.headers {
			doc.Text(marginX+float64(i)*colWidth, tableTop, h)
		}
		doc.Line(marginX, tableTop+2, tableRight, tableTop+2)
		y = tableTop + rowHeight
	}

	header()
	for _, row := range t.rows {
		if y > pageBottom {
			header()
		}
		for i, cell := range row {
			doc.Text(marginX+float64(i)*colWidth, y, Truncate(cell))
		}
		doc.Line(marginX, y+2, tableRight, y+2)
		y += rowHeight
	}
	return doc.Output(w)
}

// AllocationsPDF renders the allocation table (ID, Faculty, Venue, Date, Time).
func AllocationsPDF(w io.Writer, rows []model.Allocation) error {
	t := table{title: "Venue Allocations", headers: []string{"ID", "Faculty", "Venue", "Date", "Time"}}
	for _, a := range rows {
		id := "N/A"
		if a.ID != 0 {
			id = strconv.FormatInt(a.ID, 10)
		}
		t.rows = append(t.rows, []string{
			id,
			or(a.FacultyName, "Unknown"),
			or(a.VenueName, "Unknown"),
			or(a.Date, "N/A"),
			or(string(a.TimeSlot), "N/A"),
		})
	}
	return t.pdf(w)
}

func attendanceRows(records []model.AttendanceRecord) [][]string {
	out := make([][]string, 0, len(records))
	for _, r := range records {
		out = append(out, []string{
			or(r.FacultyName, "Unknown"),
			or(r.RFIDTag, "-"),
			or(r.VenueName, "Unknown"),
			r.Date,
			string(r.TimeSlot),
			presence(r.IsPresent),
		})
	}
	return out
}

var attendanceHeaders = []string{"Faculty", "RFID Tag", "Venue", "Date", "Time Slot", "Status"}

// AttendancePDF renders the attendance view of one date (or all dates).
func AttendancePDF(w io.Writer, date string, records []model.AttendanceRecord) error {
	t := table{
		title:   fmt.Sprintf("Attendance Report (%s)", date),
		headers: attendanceHeaders,
		rows:    attendanceRows(records),
	}
	return t.pdf(w)
}

// AttendanceXLSX writes the attendance view as a single-sheet workbook.
func AttendanceXLSX(w io.Writer, records []model.AttendanceRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Attendance"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	header := make([]interface{}, len(attendanceHeaders))
	for i, h := range attendanceHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, row := range attendanceRows(records) {
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cellName, &values); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheet, "A", "F", 18); err != nil {
		return err
	}
	return f.Write(w)
}

// ExportFilename is the download name for a view and a filter.
func ExportFilename(view, filter, ext string) string {
	return fmt.Sprintf("%s_%s.%s", view, filter, ext)
}
