// Package duty derives the faculty-facing status of each allocation.
package duty

import (
	"context"
	"sort"
	"sync"
	"time"

	"invigilation/internal/apperrors"
	"invigilation/internal/model"
)

type State string

const (
	Completed State = "Completed"
	YetToDo   State = "Yet to Do"
	Ongoing   State = "Ongoing"
	Missed    State = "Missed"
)

// Status classifies one allocation. Dates are YYYY-MM-DD and compare
// lexically.
func Status(today, date string, present bool) State {
	switch {
	case present:
		return Completed
	case date > today:
		return YetToDo
	case date == today:
		return Ongoing
	default:
		return Missed
	}
}

// Row is one duty with its derived status.
type Row struct {
	Allocation model.Allocation
	State      State
	CanMark    bool
}

// API is what the board needs from the REST client.
type API interface {
	CurrentUser(ctx context.Context) (model.User, error)
	ListAllocations(ctx context.Context) ([]model.Allocation, error)
	MarkAttendance(ctx context.Context, req model.MarkRequest) (string, error)
}

// Board lists the signed-in faculty's own duties.
type Board struct {
	api API
	now func() time.Time

	mu     sync.RWMutex
	user   model.User
	duties []model.Allocation
}

func NewBoard(api API) *Board {
	return &Board{api: api, now: time.Now}
}

// Load fetches the user and their allocations.
func (b *Board) Load(ctx context.Context) error {
	user, err := b.api.CurrentUser(ctx)
	if err != nil {
		return err
	}
	all, err := b.api.ListAllocations(ctx)
	if err != nil {
		return err
	}
	own := make([]model.Allocation, 0)
	for _, a := range all {
		if a.FacultyID == user.ID {
			own = append(own, a)
		}
	}
	sort.SliceStable(own, func(i, j int) bool {
		if own[i].Date != own[j].Date {
			return own[i].Date < own[j].Date
		}
		return own[i].TimeSlot < own[j].TimeSlot
	})

	b.mu.Lock()
	b.user = user
	b.duties = own
	b.mu.Unlock()
	return nil
}

func (b *Board) User() model.User {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.user
}

// Rows returns the duties with their status as of today.
func (b *Board) Rows() []Row {
	today := model.Today(b.now())
	b.mu.RLock()
	defer b.mu.RUnlock()
	rows := make([]Row, 0, len(b.duties))
	for _, a := range b.duties {
		st := Status(today, a.Date, a.IsPresent)
		rows = append(rows, Row{Allocation: a, State: st, CanMark: st == Ongoing})
	}
	return rows
}

// Mark records presence for one of today's duties and reloads the board.
func (b *Board) Mark(ctx context.Context, allocationID int64) (string, error) {
	var row *Row
	for _, r := range b.Rows() {
		if r.Allocation.ID == allocationID {
			r := r
			row = &r
			break
		}
	}
	if row == nil {
		return "", apperrors.NotFound("Allocation not found")
	}
	if !row.CanMark {
		return "", apperrors.Validation("Attendance can only be marked for an ongoing duty")
	}
	msg, err := b.api.MarkAttendance(ctx, model.MarkRequest{AllocationID: allocationID, Date: row.Allocation.Date})
	if err != nil {
		return "", err
	}
	return msg, b.Load(ctx)
}
