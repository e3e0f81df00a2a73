package allocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"

	"invigilation/internal/model"
	"invigilation/internal/store"
)

// Repository persists allocations.
type Repository interface {
	ListAllocations(ctx context.Context) ([]model.Allocation, error)
	AllocationsFor(ctx context.Context, date string, slot model.TimeSlot) ([]model.Allocation, error)
	AllocationsOf(ctx context.Context, facultyID int64, date string) ([]model.Allocation, error)
	GetAllocation(ctx context.Context, id int64) (*model.Allocation, error)
	// ReplaceAllocations drops every allocation of (date, slot), with its
	// attendance, and stores rows in their place atomically.
	ReplaceAllocations(ctx context.Context, date string, slot model.TimeSlot, rows []model.Allocation) (int, error)
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

func (r *PostgresRepository) selectAllocations() squirrel.SelectBuilder {
	return r.sb.Select(
		"a.allocation_id", "a.faculty_id", "f.name", "a.venue_id", "v.name", "v.location",
		"to_char(a.date, 'YYYY-MM-DD')", "a.time_slot", "COALESCE(t.is_present, FALSE)",
	).
		From("venue_allocations a").
		Join("faculty f ON f.faculty_id = a.faculty_id").
		Join("venues v ON v.venue_id = a.venue_id").
		LeftJoin("attendance t ON t.allocation_id = a.allocation_id").
		OrderBy("a.date", "a.time_slot", "v.name", "f.name")
}

func (r *PostgresRepository) query(ctx context.Context, b squirrel.SelectBuilder) ([]model.Allocation, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build allocation query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query allocations: %w", err)
	}
	defer rows.Close()

	out := []model.Allocation{}
	for rows.Next() {
		var a model.Allocation
		var slot string
		if err := rows.Scan(&a.ID, &a.FacultyID, &a.FacultyName, &a.VenueID, &a.VenueName, &a.VenueLocation, &a.Date, &slot, &a.IsPresent); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		a.TimeSlot = model.TimeSlot(slot)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListAllocations(ctx context.Context) ([]model.Allocation, error) {
	return r.query(ctx, r.selectAllocations())
}

func (r *PostgresRepository) AllocationsFor(ctx context.Context, date string, slot model.TimeSlot) ([]model.Allocation, error) {
	return r.query(ctx, r.selectAllocations().Where(squirrel.Eq{"a.date": date, "a.time_slot": string(slot)}))
}

func (r *PostgresRepository) AllocationsOf(ctx context.Context, facultyID int64, date string) ([]model.Allocation, error) {
	return r.query(ctx, r.selectAllocations().Where(squirrel.Eq{"a.faculty_id": facultyID, "a.date": date}))
}

// GetAllocation returns nil, nil when the allocation does not exist.
func (r *PostgresRepository) GetAllocation(ctx context.Context, id int64) (*model.Allocation, error) {
	rows, err := r.query(ctx, r.selectAllocations().Where(squirrel.Eq{"a.allocation_id": id}).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *PostgresRepository) ReplaceAllocations(ctx context.Context, date string, slot model.TimeSlot, rows []model.Allocation) (int, error) {
	if len(rows) == 0 {
		return 0, errors.New("no allocations to store")
	}
	err := store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		del, args, err := r.sb.Delete("venue_allocations").
			Where(squirrel.Eq{"date": date, "time_slot": string(slot)}).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, del, args...); err != nil {
			return fmt.Errorf("clear allocations: %w", err)
		}

		insert := r.sb.Insert("venue_allocations").Columns("faculty_id", "venue_id", "date", "time_slot")
		for _, a := range rows {
			insert = insert.Values(a.FacultyID, a.VenueID, date, string(slot))
		}
		ins, args, err := insert.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, ins, args...); err != nil {
			return fmt.Errorf("insert allocations: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
