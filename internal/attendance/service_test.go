package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invigilation/internal/apperrors"
	"invigilation/internal/model"
	"invigilation/internal/store/memstore"
)

type fixture struct {
	st    *memstore.Store
	svc   *Service
	admin model.Faculty
	asha  model.Faculty
	ravi  model.Faculty
	alloc map[int64]model.Allocation // by faculty
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	fx := &fixture{st: st, alloc: map[int64]model.Allocation{}}

	add := func(f model.Faculty) model.Faculty {
		id, err := st.CreateFaculty(ctx, f)
		require.NoError(t, err)
		f.ID = id
		return f
	}
	fx.admin = add(model.Faculty{Name: "Admin", MobileNumber: "1", Email: "admin@x.edu", IsAdmin: true})
	fx.asha = add(model.Faculty{Name: "Asha", MobileNumber: "2", Email: "asha@x.edu", RFIDTag: "1111111111"})
	fx.ravi = add(model.Faculty{Name: "Ravi", MobileNumber: "3", Email: "ravi@x.edu", RFIDTag: "2222222222"})
	venue, err := st.CreateVenue(ctx, model.Venue{Name: "Hall", Location: "B1", Capacity: 30})
	require.NoError(t, err)

	_, err = st.ReplaceAllocations(ctx, "2025-06-01", model.SlotMorning, []model.Allocation{
		{FacultyID: fx.asha.ID, VenueID: venue},
		{FacultyID: fx.ravi.ID, VenueID: venue},
	})
	require.NoError(t, err)
	all, err := st.ListAllocations(ctx)
	require.NoError(t, err)
	for _, a := range all {
		fx.alloc[a.FacultyID] = a
	}

	fx.svc = NewService(st, st, st)
	fx.svc.now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.Local) }
	return fx
}

func (fx *fixture) present(t *testing.T, facultyID int64) bool {
	a, err := fx.st.GetAllocation(context.Background(), fx.alloc[facultyID].ID)
	require.NoError(t, err)
	return a.IsPresent
}

func TestMarkByTag(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	msg, err := fx.svc.Mark(ctx, fx.admin, model.MarkRequest{RFIDTag: "1111111111", Date: "2025-06-01"})
	require.NoError(t, err)
	assert.Equal(t, "Attendance marked for Asha", msg)
	assert.True(t, fx.present(t, fx.asha.ID))
	assert.False(t, fx.present(t, fx.ravi.ID))

	msg, err = fx.svc.Mark(ctx, fx.admin, model.MarkRequest{RFIDTag: "1111111111", Date: "2025-06-01"})
	require.NoError(t, err, "marking twice is a no-op success")
	assert.NotEmpty(t, msg)
}

func TestMarkByTagErrors(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		caller  model.Faculty
		req     model.MarkRequest
		kind    error
		message string
	}{
		{"non admin", fx.asha, model.MarkRequest{RFIDTag: "1111111111", Date: "2025-06-01"}, apperrors.ErrForbidden, "Unauthorized"},
		{"malformed", fx.admin, model.MarkRequest{RFIDTag: "12ab", Date: "2025-06-01"}, apperrors.ErrValidation, "RFID tag must be exactly 10 digits"},
		{"unknown tag", fx.admin, model.MarkRequest{RFIDTag: "1234567890", Date: "2025-06-01"}, apperrors.ErrNotFound, "Faculty not found"},
		{"no duty that day", fx.admin, model.MarkRequest{RFIDTag: "2222222222", Date: "2025-06-02"}, apperrors.ErrNotFound, "No allocation found for Ravi on 2025-06-02"},
		{"bad date", fx.admin, model.MarkRequest{RFIDTag: "2222222222", Date: "June 1"}, apperrors.ErrValidation, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.svc.Mark(ctx, tt.caller, tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
			if tt.message != "" {
				assert.Equal(t, tt.message, apperrors.Message(err))
			}
		})
	}
}

func TestMarkAllocation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	ravis := fx.alloc[fx.ravi.ID]

	_, err := fx.svc.Mark(ctx, fx.asha, model.MarkRequest{AllocationID: ravis.ID, Date: "2025-06-01"})
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))

	_, err = fx.svc.Mark(ctx, fx.admin, model.MarkRequest{AllocationID: ravis.ID, Date: "2025-06-02"})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = fx.svc.Mark(ctx, fx.ravi, model.MarkRequest{AllocationID: ravis.ID, Date: "2025-06-01"})
	require.NoError(t, err)
	assert.True(t, fx.present(t, fx.ravi.ID))

	_, err = fx.svc.Mark(ctx, fx.admin, model.MarkRequest{AllocationID: 999, Date: "2025-06-01"})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestMarkSelfDefaultsToToday(t *testing.T) {
	fx := newFixture(t)
	msg, err := fx.svc.Mark(context.Background(), fx.asha, model.MarkRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Attendance marked successfully", msg)
	assert.True(t, fx.present(t, fx.asha.ID))
}

func TestRecords(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, err := fx.svc.Mark(ctx, fx.admin, model.MarkRequest{RFIDTag: "2222222222", Date: "2025-06-01"})
	require.NoError(t, err)

	recs, err := fx.svc.Records(ctx, "")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Asha", recs[0].FacultyName)
	assert.Equal(t, "1111111111", recs[0].RFIDTag)
	assert.False(t, recs[0].IsPresent)
	assert.True(t, recs[1].IsPresent)

	recs, err = fx.svc.Records(ctx, "2025-06-02")
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = fx.svc.Records(ctx, "01/06/2025")
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}
