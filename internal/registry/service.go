package registry

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"invigilation/internal/apperrors"
	"invigilation/internal/logger"
	"invigilation/internal/model"
)

// Service owns faculty and venue bookkeeping.
type Service struct {
	repo Repository
}

// NewService wires a registry service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate checks an email / mobile-number pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.Faculty, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperrors.New(apperrors.ErrUnauthenticated, "Invalid credentials")
	}
	f, err := s.repo.FacultyByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if f == nil || f.MobileNumber != password {
		logger.Info().Str("email", email).Msg("login rejected")
		return nil, apperrors.New(apperrors.ErrUnauthenticated, "Invalid credentials")
	}
	return f, nil
}

// Faculty returns one faculty or a not-found error.
func (s *Service) Faculty(ctx context.Context, id int64) (*model.Faculty, error) {
	f, err := s.repo.GetFaculty(ctx, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, apperrors.NotFound("Faculty not found")
	}
	return f, nil
}

func (s *Service) ListFaculty(ctx context.Context) ([]model.Faculty, error) {
	return s.repo.ListFaculty(ctx)
}

// AddFaculty validates and stores a new faculty.
func (s *Service) AddFaculty(ctx context.Context, f model.Faculty) (int64, error) {
	f = normalizeFaculty(f)
	if err := validateFaculty(f); err != nil {
		return 0, err
	}
	if f.RFIDTag != "" {
		holder, err := s.repo.FacultyByRFID(ctx, f.RFIDTag)
		if err != nil {
			return 0, err
		}
		if holder != nil {
			return 0, apperrors.Conflict(fmt.Sprintf("RFID tag %s is already assigned to %s", f.RFIDTag, holder.Name))
		}
	}
	id, err := s.repo.CreateFaculty(ctx, f)
	if err != nil {
		return 0, err
	}
	logger.Info().Int64("faculty_id", id).Msg("faculty added")
	return id, nil
}

func (s *Service) DeleteFaculty(ctx context.Context, id int64) error {
	ok, err := s.repo.DeleteFaculty(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NotFound("Faculty not found")
	}
	logger.Info().Int64("faculty_id", id).Msg("faculty deleted")
	return nil
}

func (s *Service) ListVenues(ctx context.Context) ([]model.Venue, error) {
	return s.repo.ListVenues(ctx)
}

func (s *Service) AddVenue(ctx context.Context, v model.Venue) (int64, error) {
	v.Name = strings.TrimSpace(v.Name)
	v.Location = strings.TrimSpace(v.Location)
	if err := validateVenue(v); err != nil {
		return 0, err
	}
	return s.repo.CreateVenue(ctx, v)
}

func (s *Service) DeleteVenue(ctx context.Context, id int64) error {
	ok, err := s.repo.DeleteVenue(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NotFound("Venue not found")
	}
	return nil
}

func normalizeFaculty(f model.Faculty) model.Faculty {
	f.Name = strings.TrimSpace(f.Name)
	f.MobileNumber = strings.TrimSpace(f.MobileNumber)
	f.Email = strings.TrimSpace(f.Email)
	f.RFIDTag = strings.TrimSpace(f.RFIDTag)
	return f
}

func validateFaculty(f model.Faculty) error {
	if f.Name == "" || f.MobileNumber == "" || f.Email == "" {
		return apperrors.Validation("Name, mobile number and email are required")
	}
	if _, err := mail.ParseAddress(f.Email); err != nil {
		return apperrors.Validation(fmt.Sprintf("Invalid email address %q", f.Email))
	}
	if f.RFIDTag != "" && !model.ValidRFIDTag(f.RFIDTag) {
		return apperrors.Validation("RFID tag must be exactly 10 digits")
	}
	return nil
}

func validateVenue(v model.Venue) error {
	if v.Name == "" || v.Location == "" {
		return apperrors.Validation("Venue name and location are required")
	}
	if v.Capacity <= 0 {
		return apperrors.Validation("Capacity must be a positive number")
	}
	return nil
}

// EnsureAdmin creates an admin account for email unless one already exists.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, mobile string) (bool, error) {
	existing, err := s.repo.FacultyByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return false, err
	}
	if existing != nil {
		if !existing.IsAdmin {
			logger.Warn().Str("email", email).Msg("bootstrap admin email belongs to a non-admin faculty")
		}
		return false, nil
	}
	_, err = s.AddFaculty(ctx, model.Faculty{Name: name, Email: email, MobileNumber: mobile, IsAdmin: true})
	return err == nil, err
}
