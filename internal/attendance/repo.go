package attendance

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"invigilation/internal/model"
	"invigilation/internal/store"
)

// Repository reads the attendance view and records presence.
type Repository interface {
	// Records lists every allocation of date, or of all dates for model.FilterAll.
	Records(ctx context.Context, date string) ([]model.AttendanceRecord, error)
	// MarkPresent flags the allocations present. Already-present rows are left as is.
	MarkPresent(ctx context.Context, allocationIDs []int64, at time.Time) error
}

// PostgresRepository is the pgx-backed Repository.
type PostgresRepository struct {
	db *sql.DB
	sb squirrel.StatementBuilderType
}

// NewRepository builds a Postgres repository.
func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *PostgresRepository) Records(ctx context.Context, date string) ([]model.AttendanceRecord, error) {
	b := r.sb.Select(
		"COALESCE(t.id, 0)", "a.allocation_id", "a.faculty_id", "f.name", "COALESCE(f.rfid_tag, '')",
		"v.name", "to_char(a.date, 'YYYY-MM-DD')", "a.time_slot", "COALESCE(t.is_present, FALSE)",
	).
		From("venue_allocations a").
		Join("faculty f ON f.faculty_id = a.faculty_id").
		Join("venues v ON v.venue_id = a.venue_id").
		LeftJoin("attendance t ON t.allocation_id = a.allocation_id").
		OrderBy("a.date", "a.time_slot", "f.name")
	if date != model.FilterAll {
		b = b.Where(squirrel.Eq{"a.date": date})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build attendance query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	out := []model.AttendanceRecord{}
	for rows.Next() {
		var rec model.AttendanceRecord
		var slot string
		if err := rows.Scan(&rec.ID, &rec.AllocationID, &rec.FacultyID, &rec.FacultyName, &rec.RFIDTag,
			&rec.VenueName, &rec.Date, &slot, &rec.IsPresent); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		rec.TimeSlot = model.TimeSlot(slot)
		out = append(out, rec)
	}
	return out, rows.Err()
}

const markPresent = `
INSERT INTO attendance (faculty_id, allocation_id, date, is_present, marked_at)
SELECT a.faculty_id, a.allocation_id, a.date, TRUE, $2
FROM venue_allocations a
WHERE a.allocation_id = $1
ON CONFLICT (allocation_id) DO UPDATE
SET is_present = TRUE,
    marked_at  = COALESCE(attendance.marked_at, EXCLUDED.marked_at)`

func (r *PostgresRepository) MarkPresent(ctx context.Context, allocationIDs []int64, at time.Time) error {
	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, id := range allocationIDs {
			if _, err := tx.ExecContext(ctx, markPresent, id, at); err != nil {
				return fmt.Errorf("mark allocation %d: %w", id, err)
			}
		}
		return nil
	})
}
