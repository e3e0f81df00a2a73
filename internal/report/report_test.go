package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"invigilation/internal/model"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short"))
	assert.Equal(t, "Dr. Venkataraman Sub", Truncate("Dr. Venkataraman Subramanian"))
	assert.Len(t, []rune(Truncate(strings.Repeat("é", 30))), 20)
}

func TestAllocationsPDF(t *testing.T) {
	rows := make([]model.Allocation, 0, 40)
	for i := 0; i < 40; i++ {
		rows = append(rows, model.Allocation{ID: int64(i + 1), FacultyName: "Asha", VenueName: "Hall", Date: "2025-06-01", TimeSlot: model.SlotMorning})
	}
	var buf bytes.Buffer
	require.NoError(t, AllocationsPDF(&buf, rows))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestAttendanceXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, AttendanceXLSX(&buf, []model.AttendanceRecord{
		{FacultyName: "Asha", RFIDTag: "1111111111", VenueName: "Hall", Date: "2025-06-01", TimeSlot: model.SlotMorning, IsPresent: true},
	}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Attendance")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "RFID Tag", rows[0][1])
	assert.Equal(t, []string{"Asha", "1111111111", "Hall", "2025-06-01", "08:00-12:00", "Present"}, rows[1])
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "allocations_all.pdf", ExportFilename("allocations", "all", "pdf"))
	assert.Equal(t, "attendance_2025-06-01.xlsx", ExportFilename("attendance", "2025-06-01", "xlsx"))
}
