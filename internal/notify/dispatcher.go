package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"text/template"

	"invigilation/internal/allocation"
	"invigilation/internal/logger"
	"invigilation/internal/metrics"
	"invigilation/internal/model"
	"invigilation/internal/queue"
)

// Allocations loads the rows of one generation run.
type Allocations interface {
	AllocationsFor(ctx context.Context, date string, slot model.TimeSlot) ([]model.Allocation, error)
}

// Directory resolves a faculty's mailbox.
type Directory interface {
	GetFaculty(ctx context.Context, id int64) (*model.Faculty, error)
}

var dutyText = template.Must(template.New("duty").Parse(`Dear {{.Name}},

You have been allocated invigilation duty.

Venue:    {{.Venue}} ({{.Location}})
Date:     {{.Date}}
Time:     {{.Slot}}

Please scan your RFID tag at the venue kiosk when you arrive.
`))

// Dispatcher turns allocations.generated events into duty e-mails.
type Dispatcher struct {
	allocations Allocations
	directory   Directory
	mailer      Mailer
}

func NewDispatcher(allocations Allocations, directory Directory, mailer Mailer) *Dispatcher {
	return &Dispatcher{allocations: allocations, directory: directory, mailer: mailer}
}

// Run consumes q until ctx ends. Failed messages are logged and dropped.
func (d *Dispatcher) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	logger.Info().Msg("notification dispatcher started")
	for msg := range messages {
		if err := d.Handle(ctx, msg); err != nil {
			logger.Error().Err(err).Str("message_id", msg.ID).Msg("notification failed")
		}
	}
	logger.Info().Msg("notification dispatcher stopped")
	return nil
}

// Handle sends one e-mail per allocated faculty. It returns the first
// delivery error after trying every recipient.
func (d *Dispatcher) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != allocation.TopicGenerated {
		return nil
	}
	var evt allocation.GeneratedEvent
	if err := msg.Decode(&evt); err != nil {
		return fmt.Errorf("decode %s: %w", msg.Type, err)
	}

	rows, err := d.allocations.AllocationsFor(ctx, evt.Date, evt.TimeSlot)
	if err != nil {
		return fmt.Errorf("load allocations: %w", err)
	}

	var firstErr error
	sent := 0
	for _, a := range rows {
		if err := d.notify(ctx, a); err != nil {
			metrics.Notifications.WithLabelValues("failed").Inc()
			logger.Warn().Err(err).Int64("allocation_id", a.ID).Msg("duty e-mail not sent")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.Notifications.WithLabelValues("sent").Inc()
		sent++
	}
	logger.Info().Str("date", evt.Date).Str("slot", string(evt.TimeSlot)).Int("sent", sent).Int("total", len(rows)).Msg("duty e-mails dispatched")
	return firstErr
}

func (d *Dispatcher) notify(ctx context.Context, a model.Allocation) error {
	f, err := d.directory.GetFaculty(ctx, a.FacultyID)
	if err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("faculty %d no longer exists", a.FacultyID)
	}

	var body bytes.Buffer
	err = dutyText.Execute(&body, map[string]string{
		"Name":     f.Name,
		"Venue":    a.VenueName,
		"Location": a.VenueLocation,
		"Date":     a.Date,
		"Slot":     string(a.TimeSlot),
	})
	if err != nil {
		return err
	}
	return d.mailer.Send(ctx, Message{
		To:      mail.Address{Name: f.Name, Address: f.Email},
		Subject: fmt.Sprintf("Invigilation duty on %s (%s)", a.Date, a.TimeSlot),
		Text:    body.String(),
	})
}
