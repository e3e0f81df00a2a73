package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invigilation/internal/allocation"
	"invigilation/internal/model"
	"invigilation/internal/queue"
	"invigilation/internal/store/memstore"
)

type mockMailer struct {
	mu   sync.Mutex
	sent []Message
	fail string
}

func (m *mockMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.To.Address == m.fail {
		return errors.New("mailbox unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func setup(t *testing.T) (*memstore.Store, queue.Message) {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	a, err := st.CreateFaculty(ctx, model.Faculty{Name: "Asha", MobileNumber: "1", Email: "asha@x.edu"})
	require.NoError(t, err)
	b, err := st.CreateFaculty(ctx, model.Faculty{Name: "Ravi", MobileNumber: "2", Email: "ravi@x.edu"})
	require.NoError(t, err)
	v, err := st.CreateVenue(ctx, model.Venue{Name: "Hall A", Location: "Block 1", Capacity: 10})
	require.NoError(t, err)
	_, err = st.ReplaceAllocations(ctx, "2025-06-01", model.SlotMorning, []model.Allocation{
		{FacultyID: a, VenueID: v}, {FacultyID: b, VenueID: v},
	})
	require.NoError(t, err)

	msg, err := queue.NewMessage(allocation.TopicGenerated, allocation.GeneratedEvent{Date: "2025-06-01", TimeSlot: model.SlotMorning, Count: 2})
	require.NoError(t, err)
	return st, msg
}

func TestHandleSendsOneMailPerAllocation(t *testing.T) {
	st, msg := setup(t)
	mailer := &mockMailer{}
	require.NoError(t, NewDispatcher(st, st, mailer).Handle(context.Background(), msg))

	require.Len(t, mailer.sent, 2)
	assert.Equal(t, "asha@x.edu", mailer.sent[0].To.Address)
	assert.Equal(t, "Invigilation duty on 2025-06-01 (08:00-12:00)", mailer.sent[0].Subject)
	assert.Contains(t, mailer.sent[0].Text, "Hall A (Block 1)")
}

func TestHandleContinuesAfterFailure(t *testing.T) {
	st, msg := setup(t)
	mailer := &mockMailer{fail: "asha@x.edu"}
	err := NewDispatcher(st, st, mailer).Handle(context.Background(), msg)
	assert.Error(t, err)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "ravi@x.edu", mailer.sent[0].To.Address)
}

func TestHandleIgnoresOtherTopics(t *testing.T) {
	st, _ := setup(t)
	mailer := &mockMailer{}
	err := NewDispatcher(st, st, mailer).Handle(context.Background(), queue.Message{Type: "other"})
	assert.NoError(t, err)
	assert.Empty(t, mailer.sent)
}

func TestNewMailer(t *testing.T) {
	m, err := NewMailer("console", "", "", "Invigilation")
	require.NoError(t, err)
	assert.IsType(t, &ConsoleMailer{}, m)

	_, err = NewMailer("sendgrid", "", "noreply@x.edu", "Invigilation")
	assert.Error(t, err)

	m, err = NewMailer("sendgrid", "key", "Exams <noreply@x.edu>", "Invigilation")
	require.NoError(t, err)
	assert.IsType(t, &SendgridMailer{}, m)
}
