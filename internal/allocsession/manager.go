// Package allocsession caches the allocation and attendance views the
// console shows and funnels every mutation through the REST client.
package allocsession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"invigilation/internal/apperrors"
	"invigilation/internal/logger"
	"invigilation/internal/model"
	"invigilation/internal/report"
)

// ErrGenerationInProgress is returned when Generate is called while another
// generation request from the same manager is still in flight.
var ErrGenerationInProgress = errors.New("allocation generation already in progress")

// API is the subset of the REST client the manager needs.
type API interface {
	ListAllocations(ctx context.Context) ([]model.Allocation, error)
	GenerateAllocations(ctx context.Context, req model.GenerateRequest) (string, error)
	AttendanceRecords(ctx context.Context, date string) ([]model.AttendanceRecord, error)
	MarkAttendance(ctx context.Context, req model.MarkRequest) (string, error)
	ExportAttendance(ctx context.Context, date, format string, w io.Writer) (string, error)
}

// Notice is the outcome of the last mutation, shown for a limited time.
type Notice struct {
	Message string
	Err     bool
	At      time.Time
}

// Manager holds the last fetched allocations and attendance records.
type Manager struct {
	api        API
	generating atomic.Bool
	noticeTTL  time.Duration
	now        func() time.Time

	mu             sync.RWMutex
	allocations    []model.Allocation
	version        uint64
	attendance     []model.AttendanceRecord
	attendanceDate string
	attVersion     uint64
	notice         Notice
}

// New creates a manager. noticeTTL bounds how long Notice reports the last
// outcome.
func New(api API, noticeTTL time.Duration) *Manager {
	return &Manager{api: api, noticeTTL: noticeTTL, now: time.Now}
}

// Refresh re-fetches the full allocation list.
func (m *Manager) Refresh(ctx context.Context) error {
	rows, err := m.api.ListAllocations(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.allocations = rows
	m.version++
	m.mu.Unlock()
	return nil
}

// Version increases on every successful allocation refetch.
func (m *Manager) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Generating reports whether a generation request is in flight.
func (m *Manager) Generating() bool {
	return m.generating.Load()
}

// Generate asks the service to rebuild the allocations of date and slot and
// then re-fetches the whole list.
func (m *Manager) Generate(ctx context.Context, date string, slot model.TimeSlot, perVenue int) error {
	if err := validateGenerate(date, slot, perVenue); err != nil {
		return err
	}
	if !m.generating.CompareAndSwap(false, true) {
		return ErrGenerationInProgress
	}
	defer m.generating.Store(false)

	msg, err := m.api.GenerateAllocations(ctx, model.GenerateRequest{Date: date, TimeSlot: slot, FacultyPerVenue: perVenue})
	if err != nil {
		m.setNotice(apperrors.Message(err), true)
		return err
	}
	if err := m.Refresh(ctx); err != nil {
		m.setNotice(apperrors.Message(err), true)
		return err
	}
	if msg == "" {
		msg = "Allocations generated successfully"
	}
	m.setNotice(msg, false)
	logger.Debug().Str("date", date).Str("slot", string(slot)).Msg("allocations regenerated")
	return nil
}

func validateGenerate(date string, slot model.TimeSlot, perVenue int) error {
	if date == "" {
		return apperrors.Validation("Date is required")
	}
	if _, err := model.ParseDate(date); err != nil {
		return apperrors.Validation("Date must be a valid YYYY-MM-DD day")
	}
	if !slot.Valid() {
		return apperrors.Validation(fmt.Sprintf("Time slot must be %s or %s", model.SlotMorning, model.SlotAfternoon))
	}
	if perVenue <= 0 {
		return apperrors.Validation("Faculty per venue must be a positive number")
	}
	return nil
}

// List projects the cached allocations onto filter, which is "all" or a date.
func (m *Manager) List(filter string) []model.Allocation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Allocation, 0, len(m.allocations))
	for _, a := range m.allocations {
		if filter == model.FilterAll || filter == "" || a.Date == filter {
			out = append(out, a)
		}
	}
	return out
}

// Dates returns the distinct allocation dates, ascending.
func (m *Manager) Dates() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]struct{}{}
	var dates []string
	for _, a := range m.allocations {
		if _, ok := seen[a.Date]; ok {
			continue
		}
		seen[a.Date] = struct{}{}
		dates = append(dates, a.Date)
	}
	sort.Strings(dates)
	return dates
}

// ExportPDF renders the filtered allocations locally and returns the file
// name to save them under.
func (m *Manager) ExportPDF(w io.Writer, filter string) (string, error) {
	if filter == "" {
		filter = model.FilterAll
	}
	if err := report.AllocationsPDF(w, m.List(filter)); err != nil {
		return "", err
	}
	return report.ExportFilename("allocations", filter, "pdf"), nil
}

// RefreshAttendance re-fetches the attendance view of date ("all" or a day).
func (m *Manager) RefreshAttendance(ctx context.Context, date string) error {
	if date == "" {
		date = model.FilterAll
	}
	rows, err := m.api.AttendanceRecords(ctx, date)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.attendance = rows
	m.attendanceDate = date
	m.attVersion++
	m.mu.Unlock()
	return nil
}

// Attendance returns the last fetched attendance view and its date.
func (m *Manager) Attendance() ([]model.AttendanceRecord, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.AttendanceRecord(nil), m.attendance...), m.attendanceDate
}

// AttendanceVersion increases on every successful attendance refetch.
func (m *Manager) AttendanceVersion() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attVersion
}

// MarkAttendance posts an RFID scan or a manual override, then re-fetches
// the attendance view of req.Date.
func (m *Manager) MarkAttendance(ctx context.Context, req model.MarkRequest) (string, error) {
	switch {
	case req.RFIDTag != "" && req.AllocationID != 0:
		return "", apperrors.Validation("Provide either an RFID tag or an allocation, not both")
	case req.RFIDTag == "" && req.AllocationID == 0:
		return "", apperrors.Validation("Please enter a valid RFID tag")
	case req.RFIDTag != "" && !model.ValidRFIDTag(req.RFIDTag):
		return "", apperrors.Validation("RFID tag must be exactly 10 digits")
	}
	if req.Date != "" {
		if _, err := model.ParseDate(req.Date); err != nil {
			return "", apperrors.Validation("Date must be a valid YYYY-MM-DD day")
		}
	}

	msg, err := m.api.MarkAttendance(ctx, req)
	if err != nil {
		m.setNotice(apperrors.Message(err), true)
		return "", err
	}
	m.setNotice(msg, false)
	if err := m.RefreshAttendance(ctx, req.Date); err != nil {
		return msg, err
	}
	return msg, nil
}

// ExportAttendance streams the service-rendered attendance export to w.
func (m *Manager) ExportAttendance(ctx context.Context, date, format string, w io.Writer) (string, error) {
	if date == "" {
		date = model.FilterAll
	}
	return m.api.ExportAttendance(ctx, date, format, w)
}

func (m *Manager) setNotice(msg string, isErr bool) {
	m.mu.Lock()
	m.notice = Notice{Message: msg, Err: isErr, At: m.now()}
	m.mu.Unlock()
}

// Notice returns the last outcome while it is still fresh.
func (m *Manager) Notice() (Notice, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.notice.Message == "" || m.now().Sub(m.notice.At) >= m.noticeTTL {
		return Notice{}, false
	}
	return m.notice, true
}
