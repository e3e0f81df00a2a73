package attendance

import (
	"context"
	"fmt"
	"time"

	"invigilation/internal/apperrors"
	"invigilation/internal/logger"
	"invigilation/internal/metrics"
	"invigilation/internal/model"
)

// Directory resolves faculty by RFID tag.
type Directory interface {
	FacultyByRFID(ctx context.Context, tag string) (*model.Faculty, error)
}

// Allocations is the read side of the allocation store.
type Allocations interface {
	AllocationsOf(ctx context.Context, facultyID int64, date string) ([]model.Allocation, error)
	GetAllocation(ctx context.Context, id int64) (*model.Allocation, error)
}

// Service marks and reports attendance.
type Service struct {
	repo        Repository
	directory   Directory
	allocations Allocations
	now         func() time.Time
}

// NewService wires the attendance service.
func NewService(repo Repository, directory Directory, allocations Allocations) *Service {
	return &Service{repo: repo, directory: directory, allocations: allocations, now: time.Now}
}

// Records returns the attendance view for a date or model.FilterAll.
func (s *Service) Records(ctx context.Context, date string) ([]model.AttendanceRecord, error) {
	if date == "" {
		date = model.FilterAll
	}
	if date != model.FilterAll {
		if _, err := model.ParseDate(date); err != nil {
			return nil, apperrors.Validation(err.Error())
		}
	}
	return s.repo.Records(ctx, date)
}

// Mark records presence for caller. The request selects the mode: an RFID
// scan (admins only), a single allocation, or the caller's own duties.
func (s *Service) Mark(ctx context.Context, caller model.Faculty, req model.MarkRequest) (string, error) {
	if req.Date == "" {
		req.Date = model.Today(s.now())
	}
	if _, err := model.ParseDate(req.Date); err != nil {
		return "", apperrors.Validation(err.Error())
	}

	switch {
	case req.RFIDTag != "":
		return s.markByTag(ctx, caller, req)
	case req.AllocationID != 0:
		return s.markAllocation(ctx, caller, req)
	default:
		return s.markSelf(ctx, caller, req.Date)
	}
}

func (s *Service) markByTag(ctx context.Context, caller model.Faculty, req model.MarkRequest) (string, error) {
	if !caller.IsAdmin {
		return "", apperrors.Forbidden("Unauthorized")
	}
	if !model.ValidRFIDTag(req.RFIDTag) {
		return "", apperrors.Validation("RFID tag must be exactly 10 digits")
	}
	f, err := s.directory.FacultyByRFID(ctx, req.RFIDTag)
	if err != nil {
		return "", err
	}
	if f == nil {
		return "", apperrors.NotFound("Faculty not found")
	}
	allocs, err := s.allocations.AllocationsOf(ctx, f.ID, req.Date)
	if err != nil {
		return "", err
	}
	if len(allocs) == 0 {
		return "", apperrors.NotFound(fmt.Sprintf("No allocation found for %s on %s", f.Name, req.Date))
	}
	if err := s.mark(ctx, "rfid", allocs); err != nil {
		return "", err
	}
	return fmt.Sprintf("Attendance marked for %s", f.Name), nil
}

func (s *Service) markAllocation(ctx context.Context, caller model.Faculty, req model.MarkRequest) (string, error) {
	a, err := s.allocations.GetAllocation(ctx, req.AllocationID)
	if err != nil {
		return "", err
	}
	if a == nil {
		return "", apperrors.NotFound("Allocation not found")
	}
	if !caller.IsAdmin && a.FacultyID != caller.ID {
		return "", apperrors.Forbidden("Unauthorized")
	}
	if a.Date != req.Date {
		return "", apperrors.Validation(fmt.Sprintf("Allocation %d is scheduled on %s, not %s", a.ID, a.Date, req.Date))
	}
	if err := s.mark(ctx, "manual", []model.Allocation{*a}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Attendance marked for %s", a.FacultyName), nil
}

func (s *Service) markSelf(ctx context.Context, caller model.Faculty, date string) (string, error) {
	allocs, err := s.allocations.AllocationsOf(ctx, caller.ID, date)
	if err != nil {
		return "", err
	}
	if len(allocs) == 0 {
		return "", apperrors.NotFound(fmt.Sprintf("No allocation found for %s on %s", caller.Name, date))
	}
	if err := s.mark(ctx, "self", allocs); err != nil {
		return "", err
	}
	return "Attendance marked successfully", nil
}

func (s *Service) mark(ctx context.Context, mode string, allocs []model.Allocation) error {
	ids := make([]int64, 0, len(allocs))
	for _, a := range allocs {
		ids = append(ids, a.ID)
	}
	if err := s.repo.MarkPresent(ctx, ids, s.now()); err != nil {
		return err
	}
	metrics.AttendanceMarks.WithLabelValues(mode).Inc()
	logger.Info().Str("mode", mode).Ints64("allocation_ids", ids).Msg("attendance marked")
	return nil
}
