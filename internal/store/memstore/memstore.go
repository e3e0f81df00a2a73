// Package memstore keeps faculty, venues, allocations and attendance in
// process memory. It backs STORE_BACKEND=memory and the service tests.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"invigilation/internal/apperrors"
	"invigilation/internal/model"
)

type allocationRow struct {
	id        int64
	facultyID int64
	venueID   int64
	date      string
	slot      model.TimeSlot
}

type attendanceRow struct {
	id       int64
	present  bool
	markedAt time.Time
}

// Store is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	faculty     map[int64]model.Faculty
	venues      map[int64]model.Venue
	allocations map[int64]allocationRow
	attendance  map[int64]attendanceRow // by allocation id
	seq         struct{ faculty, venue, allocation, attendance int64 }
}

func New() *Store {
	return &Store{
		faculty:     make(map[int64]model.Faculty),
		venues:      make(map[int64]model.Venue),
		allocations: make(map[int64]allocationRow),
		attendance:  make(map[int64]attendanceRow),
	}
}

func errDuplicate(f model.Faculty) error {
	return apperrors.Conflict(fmt.Sprintf("Duplicate email, mobile number or RFID tag for %s", f.Email))
}

// clash reports whether f collides with a unique column of another faculty.
func (s *Store) clash(f model.Faculty) bool {
	for id, other := range s.faculty {
		if id == f.ID {
			continue
		}
		if other.Email == f.Email || other.MobileNumber == f.MobileNumber ||
			(f.RFIDTag != "" && other.RFIDTag == f.RFIDTag) {
			return true
		}
	}
	return false
}

func (s *Store) ListFaculty(context.Context) ([]model.Faculty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Faculty, 0, len(s.faculty))
	for _, f := range s.faculty {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetFaculty(_ context.Context, id int64) (*model.Faculty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.faculty[id]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (s *Store) findFaculty(match func(model.Faculty) bool) *model.Faculty {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.faculty {
		if match(f) {
			return &f
		}
	}
	return nil
}

func (s *Store) FacultyByEmail(_ context.Context, email string) (*model.Faculty, error) {
	return s.findFaculty(func(f model.Faculty) bool { return f.Email == email }), nil
}

func (s *Store) FacultyByRFID(_ context.Context, tag string) (*model.Faculty, error) {
	if tag == "" {
		return nil, nil
	}
	return s.findFaculty(func(f model.Faculty) bool { return f.RFIDTag == tag }), nil
}

func (s *Store) CreateFaculty(_ context.Context, f model.Faculty) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.ID = 0
	if s.clash(f) {
		return 0, apperrors.Conflict("Faculty with this email, mobile number or RFID tag already exists")
	}
	s.seq.faculty++
	f.ID = s.seq.faculty
	s.faculty[f.ID] = f
	return f.ID, nil
}

func (s *Store) DeleteFaculty(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.faculty[id]; !ok {
		return false, nil
	}
	delete(s.faculty, id)
	s.dropAllocations(func(a allocationRow) bool { return a.facultyID == id })
	return true, nil
}

func (s *Store) dropAllocations(match func(allocationRow) bool) {
	for id, a := range s.allocations {
		if match(a) {
			delete(s.allocations, id)
			delete(s.attendance, id)
		}
	}
}

func (s *Store) UpsertFaculty(_ context.Context, rows []model.Faculty) (model.ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[int64]model.Faculty, len(s.faculty))
	for id, f := range s.faculty {
		staged[id] = f
	}
	seq := s.seq.faculty
	live := s.faculty
	s.faculty = staged

	var res model.ImportResult
	for _, f := range rows {
		if _, ok := staged[f.ID]; ok && f.ID > 0 {
			res.Updated++
		} else {
			if f.ID <= 0 {
				seq++
				f.ID = seq
			}
			res.Imported++
		}
		if s.clash(f) {
			s.faculty = live
			return model.ImportResult{}, errDuplicate(f)
		}
		staged[f.ID] = f
		if f.ID > seq {
			seq = f.ID
		}
	}
	s.seq.faculty = seq
	return res, nil
}

func (s *Store) ListVenues(context.Context) ([]model.Venue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Venue, 0, len(s.venues))
	for _, v := range s.venues {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateVenue(_ context.Context, v model.Venue) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq.venue++
	v.ID = s.seq.venue
	s.venues[v.ID] = v
	return v.ID, nil
}

func (s *Store) DeleteVenue(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.venues[id]; !ok {
		return false, nil
	}
	delete(s.venues, id)
	s.dropAllocations(func(a allocationRow) bool { return a.venueID == id })
	return true, nil
}

func (s *Store) UpsertVenues(_ context.Context, rows []model.Venue) (model.ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res model.ImportResult
	for _, v := range rows {
		if _, ok := s.venues[v.ID]; ok && v.ID > 0 {
			res.Updated++
		} else {
			if v.ID <= 0 {
				s.seq.venue++
				v.ID = s.seq.venue
			}
			res.Imported++
		}
		s.venues[v.ID] = v
		if v.ID > s.seq.venue {
			s.seq.venue = v.ID
		}
	}
	return res, nil
}

func (s *Store) view(a allocationRow) model.Allocation {
	f := s.faculty[a.facultyID]
	v := s.venues[a.venueID]
	return model.Allocation{
		ID:            a.id,
		FacultyID:     a.facultyID,
		FacultyName:   f.Name,
		VenueID:       a.venueID,
		VenueName:     v.Name,
		VenueLocation: v.Location,
		Date:          a.date,
		TimeSlot:      a.slot,
		IsPresent:     s.attendance[a.id].present,
	}
}

func (s *Store) selectAllocations(match func(allocationRow) bool) []model.Allocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Allocation{}
	for _, a := range s.allocations {
		if match(a) {
			out = append(out, s.view(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.TimeSlot != b.TimeSlot {
			return a.TimeSlot < b.TimeSlot
		}
		if a.VenueName != b.VenueName {
			return a.VenueName < b.VenueName
		}
		return a.FacultyName < b.FacultyName
	})
	return out
}

func (s *Store) ListAllocations(context.Context) ([]model.Allocation, error) {
	return s.selectAllocations(func(allocationRow) bool { return true }), nil
}

func (s *Store) AllocationsFor(_ context.Context, date string, slot model.TimeSlot) ([]model.Allocation, error) {
	return s.selectAllocations(func(a allocationRow) bool { return a.date == date && a.slot == slot }), nil
}

func (s *Store) AllocationsOf(_ context.Context, facultyID int64, date string) ([]model.Allocation, error) {
	return s.selectAllocations(func(a allocationRow) bool { return a.facultyID == facultyID && a.date == date }), nil
}

func (s *Store) GetAllocation(_ context.Context, id int64) (*model.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.allocations[id]
	if !ok {
		return nil, nil
	}
	v := s.view(a)
	return &v, nil
}

func (s *Store) ReplaceAllocations(_ context.Context, date string, slot model.TimeSlot, rows []model.Allocation) (int, error) {
	if len(rows) == 0 {
		return 0, errors.New("no allocations to store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int64]bool, len(rows))
	for _, r := range rows {
		if _, ok := s.faculty[r.FacultyID]; !ok {
			return 0, fmt.Errorf("faculty %d does not exist", r.FacultyID)
		}
		if _, ok := s.venues[r.VenueID]; !ok {
			return 0, fmt.Errorf("venue %d does not exist", r.VenueID)
		}
		if seen[r.FacultyID] {
			return 0, fmt.Errorf("faculty %d allocated twice on %s %s", r.FacultyID, date, slot)
		}
		seen[r.FacultyID] = true
	}

	s.dropAllocations(func(a allocationRow) bool { return a.date == date && a.slot == slot })
	for _, r := range rows {
		s.seq.allocation++
		s.allocations[s.seq.allocation] = allocationRow{
			id:        s.seq.allocation,
			facultyID: r.FacultyID,
			venueID:   r.VenueID,
			date:      date,
			slot:      slot,
		}
	}
	return len(rows), nil
}

func (s *Store) Records(_ context.Context, date string) ([]model.AttendanceRecord, error) {
	allocs := s.selectAllocations(func(a allocationRow) bool {
		return date == model.FilterAll || a.date == date
	})

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AttendanceRecord, 0, len(allocs))
	for _, a := range allocs {
		out = append(out, model.AttendanceRecord{
			ID:           s.attendance[a.ID].id,
			AllocationID: a.ID,
			FacultyID:    a.FacultyID,
			FacultyName:  a.FacultyName,
			RFIDTag:      s.faculty[a.FacultyID].RFIDTag,
			VenueName:    a.VenueName,
			Date:         a.Date,
			TimeSlot:     a.TimeSlot,
			IsPresent:    a.IsPresent,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.TimeSlot != b.TimeSlot {
			return a.TimeSlot < b.TimeSlot
		}
		return a.FacultyName < b.FacultyName
	})
	return out, nil
}

func (s *Store) MarkPresent(_ context.Context, allocationIDs []int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range allocationIDs {
		if _, ok := s.allocations[id]; !ok {
			return fmt.Errorf("allocation %d does not exist", id)
		}
	}
	for _, id := range allocationIDs {
		row, ok := s.attendance[id]
		if ok && row.present {
			continue
		}
		if !ok {
			s.seq.attendance++
			row.id = s.seq.attendance
		}
		row.present = true
		row.markedAt = at
		s.attendance[id] = row
	}
	return nil
}
