// Package kiosk drives the RFID attendance terminal: one scan at a time,
// a status that resets itself, and a background poll of today's records.
package kiosk

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"invigilation/internal/apperrors"
	"invigilation/internal/client"
	"invigilation/internal/logger"
	"invigilation/internal/model"
)

// Status is the scan state shown to the operator.
type Status int

const (
	Idle Status = iota
	Pending
	Success
	Error
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "idle"
	}
}

// ErrBusy is returned by Submit while a scan is still pending.
var ErrBusy = errors.New("a scan is already being processed")

const failedMark = "Failed to mark attendance"

// API is what the kiosk needs from the REST client.
type API interface {
	MarkAttendance(ctx context.Context, req model.MarkRequest) (string, error)
	AttendanceRecords(ctx context.Context, date string) ([]model.AttendanceRecord, error)
}

// Options tune the kiosk timers.
type Options struct {
	PollInterval time.Duration
	StatusReset  time.Duration
	Now          func() time.Time
}

// Snapshot is a consistent copy of the kiosk state.
type Snapshot struct {
	Status     Status
	Input      string
	Message    string
	Records    []model.AttendanceRecord
	FetchError string
	FetchedAt  time.Time
	// Redirect is set once the session was rejected.
	Redirect string
}

type Kiosk struct {
	api  API
	opts Options

	mu       sync.Mutex
	state    Snapshot
	epoch    uint64
	timer    *time.Timer
	closed   bool
	onChange []func(Snapshot)
}

// New creates an idle kiosk.
func New(api API, opts Options) *Kiosk {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.StatusReset <= 0 {
		opts.StatusReset = 3 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Kiosk{api: api, opts: opts}
}

// OnChange registers fn to receive every new state.
func (k *Kiosk) OnChange(fn func(Snapshot)) {
	k.mu.Lock()
	k.onChange = append(k.onChange, fn)
	k.mu.Unlock()
}

func (k *Kiosk) Snapshot() Snapshot {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.snapshotLocked()
}

func (k *Kiosk) snapshotLocked() Snapshot {
	s := k.state
	s.Records = append([]model.AttendanceRecord(nil), k.state.Records...)
	return s
}

// update applies fn under the lock and notifies listeners afterwards.
func (k *Kiosk) update(fn func(s *Snapshot)) {
	k.mu.Lock()
	fn(&k.state)
	snap := k.snapshotLocked()
	hooks := append([]func(Snapshot){}, k.onChange...)
	k.mu.Unlock()
	for _, h := range hooks {
		h(snap)
	}
}

// SetInput replaces the scanned text. Ignored while a scan is pending.
func (k *Kiosk) SetInput(v string) {
	k.update(func(s *Snapshot) {
		if s.Status != Pending {
			s.Input = v
		}
	})
}

// Submit marks today's attendance for the current input.
func (k *Kiosk) Submit(ctx context.Context) error {
	k.mu.Lock()
	if k.state.Status == Pending {
		k.mu.Unlock()
		return ErrBusy
	}
	tag := strings.TrimSpace(k.state.Input)
	k.mu.Unlock()

	if tag == "" {
		return k.fail(apperrors.Validation("Please enter a valid RFID tag"))
	}
	if !model.ValidRFIDTag(tag) {
		return k.fail(apperrors.Validation("RFID tag must be exactly 10 digits"))
	}

	k.update(func(s *Snapshot) {
		s.Status = Pending
		s.Message = ""
	})
	today := model.Today(k.opts.Now())
	msg, err := k.api.MarkAttendance(ctx, model.MarkRequest{RFIDTag: tag, Date: today})
	if err != nil {
		return k.fail(err)
	}
	if msg == "" {
		msg = "Attendance marked successfully"
	}
	k.settle(Success, msg, "")
	logger.Info().Str("rfid_tag", tag).Msg("attendance marked")
	_ = k.Refresh(ctx)
	return nil
}

func (k *Kiosk) fail(err error) error {
	msg := failedMark
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		msg = appErr.Message
	}
	redirect, _ := client.IsRedirect(err)
	k.settle(Error, msg, redirect)
	return err
}

// settle moves to a terminal status and schedules the reset to idle.
func (k *Kiosk) settle(st Status, msg, redirect string) {
	k.update(func(s *Snapshot) {
		s.Status = st
		s.Message = msg
		if redirect != "" {
			s.Redirect = redirect
		}
		k.epoch++
		epoch := k.epoch
		if k.timer != nil {
			k.timer.Stop()
		}
		if k.closed {
			return
		}
		k.timer = time.AfterFunc(k.opts.StatusReset, func() { k.reset(epoch) })
	})
}

func (k *Kiosk) reset(epoch uint64) {
	k.mu.Lock()
	stale := epoch != k.epoch || k.closed
	k.mu.Unlock()
	if stale {
		return
	}
	k.update(func(s *Snapshot) {
		if k.epoch != epoch {
			return
		}
		s.Status = Idle
		s.Message = ""
		s.Input = ""
	})
}

// Refresh fetches today's attendance records. Failures are kept apart from
// the scan status.
func (k *Kiosk) Refresh(ctx context.Context) error {
	rows, err := k.api.AttendanceRecords(ctx, model.Today(k.opts.Now()))
	if err != nil {
		redirect, _ := client.IsRedirect(err)
		k.update(func(s *Snapshot) {
			s.FetchError = apperrors.Message(err)
			if redirect != "" {
				s.Redirect = redirect
			}
		})
		return err
	}
	now := k.opts.Now()
	k.update(func(s *Snapshot) {
		s.Records = rows
		s.FetchError = ""
		s.FetchedAt = now
	})
	return nil
}

// Run polls today's records until ctx ends or the session is rejected.
func (k *Kiosk) Run(ctx context.Context) error {
	ticker := time.NewTicker(k.opts.PollInterval)
	defer ticker.Stop()
	for {
		if err := k.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if _, ok := client.IsRedirect(err); ok {
				return err
			}
			logger.Warn().Err(err).Msg("attendance poll failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Close stops the pending reset timer.
func (k *Kiosk) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.closed = true
	if k.timer != nil {
		k.timer.Stop()
	}
}
