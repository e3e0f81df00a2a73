package allocation

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"invigilation/internal/apperrors"
	"invigilation/internal/logger"
	"invigilation/internal/metrics"
	"invigilation/internal/model"
	"invigilation/internal/queue"
)

// TopicGenerated is published after every successful generation run.
const TopicGenerated = "allocations.generated"

// GeneratedEvent is the body of a TopicGenerated message.
type GeneratedEvent struct {
	Date     string         `json:"date"`
	TimeSlot model.TimeSlot `json:"time_slot"`
	Count    int            `json:"count"`
}

// Roster is the read side of the faculty and venue registry.
type Roster interface {
	ListFaculty(ctx context.Context) ([]model.Faculty, error)
	ListVenues(ctx context.Context) ([]model.Venue, error)
}

// Service generates and lists allocations.
type Service struct {
	repo      Repository
	roster    Roster
	locker    Locker
	publisher queue.Publisher
	lockTTL   time.Duration
	shuffle   func([]model.Faculty)
}

// NewService wires the allocation service. publisher may be nil.
func NewService(repo Repository, roster Roster, locker Locker, publisher queue.Publisher) *Service {
	return &Service{
		repo:      repo,
		roster:    roster,
		locker:    locker,
		publisher: publisher,
		lockTTL:   30 * time.Second,
		shuffle: func(f []model.Faculty) {
			rand.Shuffle(len(f), func(i, j int) { f[i], f[j] = f[j], f[i] })
		},
	}
}

func (s *Service) List(ctx context.Context) ([]model.Allocation, error) {
	return s.repo.ListAllocations(ctx)
}

func validateRequest(req model.GenerateRequest) error {
	if req.Date == "" {
		return apperrors.Validation("Date is required")
	}
	if _, err := model.ParseDate(req.Date); err != nil {
		return apperrors.Validation(err.Error())
	}
	if !req.TimeSlot.Valid() {
		return apperrors.Validation(fmt.Sprintf("Invalid time slot %q", req.TimeSlot))
	}
	if req.FacultyPerVenue < 1 {
		return apperrors.Validation("Faculty per venue must be a positive number")
	}
	return nil
}

// Generate replaces the allocations of (date, slot) with a fresh random
// assignment of non-admin faculty, facultyPerVenue to each venue.
func (s *Service) Generate(ctx context.Context, req model.GenerateRequest) (int, error) {
	if err := validateRequest(req); err != nil {
		metrics.GenerationFailures.WithLabelValues("validation").Inc()
		return 0, err
	}

	release, ok, err := s.locker.Acquire(ctx, "generate:"+req.Date+":"+string(req.TimeSlot), s.lockTTL)
	if err != nil {
		return 0, fmt.Errorf("acquire generation lock: %w", err)
	}
	if !ok {
		metrics.GenerationFailures.WithLabelValues("busy").Inc()
		return 0, apperrors.Conflict("Allocation generation already in progress")
	}
	defer release()

	venues, err := s.roster.ListVenues(ctx)
	if err != nil {
		return 0, err
	}
	if len(venues) == 0 {
		metrics.GenerationFailures.WithLabelValues("no_venues").Inc()
		return 0, apperrors.Validation("No venues available for allocation")
	}

	all, err := s.roster.ListFaculty(ctx)
	if err != nil {
		return 0, err
	}
	pool := make([]model.Faculty, 0, len(all))
	for _, f := range all {
		if !f.IsAdmin {
			pool = append(pool, f)
		}
	}

	needed := len(venues) * req.FacultyPerVenue
	if len(pool) < needed {
		metrics.GenerationFailures.WithLabelValues("shortage").Inc()
		return 0, apperrors.Validation(fmt.Sprintf("Not enough faculty available: %d needed, but only %d available", needed, len(pool)))
	}

	s.shuffle(pool)
	rows := make([]model.Allocation, 0, needed)
	next := 0
	for _, v := range venues {
		for i := 0; i < req.FacultyPerVenue; i++ {
			f := pool[next]
			next++
			rows = append(rows, model.Allocation{
				FacultyID:     f.ID,
				FacultyName:   f.Name,
				VenueID:       v.ID,
				VenueName:     v.Name,
				VenueLocation: v.Location,
				Date:          req.Date,
				TimeSlot:      req.TimeSlot,
			})
		}
	}

	count, err := s.repo.ReplaceAllocations(ctx, req.Date, req.TimeSlot, rows)
	if err != nil {
		metrics.GenerationFailures.WithLabelValues("store").Inc()
		return 0, err
	}
	metrics.AllocationsGenerated.Add(float64(count))
	logger.Info().Str("date", req.Date).Str("slot", string(req.TimeSlot)).Int("count", count).Msg("allocations generated")

	s.announce(ctx, GeneratedEvent{Date: req.Date, TimeSlot: req.TimeSlot, Count: count})
	return count, nil
}

func (s *Service) announce(ctx context.Context, evt GeneratedEvent) {
	if s.publisher == nil {
		return
	}
	msg, err := queue.NewMessage(TopicGenerated, evt)
	if err == nil {
		err = s.publisher.Publish(ctx, msg)
	}
	if err != nil {
		logger.Warn().Err(err).Str("date", evt.Date).Msg("publish allocations.generated failed")
	}
}
