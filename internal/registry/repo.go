package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"invigilation/internal/apperrors"
	"invigilation/internal/logger"
	"invigilation/internal/model"
	"invigilation/internal/store"
)

// Repository persists faculty and venues.
type Repository interface {
	ListFaculty(ctx context.Context) ([]model.Faculty, error)
	GetFaculty(ctx context.Context, id int64) (*model.Faculty, error)
	FacultyByEmail(ctx context.Context, email string) (*model.Faculty, error)
	FacultyByRFID(ctx context.Context, tag string) (*model.Faculty, error)
	CreateFaculty(ctx context.Context, f model.Faculty) (int64, error)
	DeleteFaculty(ctx context.Context, id int64) (bool, error)
	UpsertFaculty(ctx context.Context, rows []model.Faculty) (model.ImportResult, error)

	ListVenues(ctx context.Context) ([]model.Venue, error)
	CreateVenue(ctx context.Context, v model.Venue) (int64, error)
	DeleteVenue(ctx context.Context, id int64) (bool, error)
	UpsertVenues(ctx context.Context, rows []model.Venue) (model.ImportResult, error)
}

var facultyColumns = []string{"faculty_id", "name", "mobile_number", "email_id", "COALESCE(rfid_tag, '')", "is_admin"}

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

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanFaculty(row interface{ Scan(...any) error }) (model.Faculty, error) {
	var f model.Faculty
	err := row.Scan(&f.ID, &f.Name, &f.MobileNumber, &f.Email, &f.RFIDTag, &f.IsAdmin)
	return f, err
}

func (r *PostgresRepository) ListFaculty(ctx context.Context) ([]model.Faculty, error) {
	query, args, err := r.sb.Select(facultyColumns...).From("faculty").OrderBy("faculty_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list faculty query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query faculty: %w", err)
	}
	defer rows.Close()

	out := []model.Faculty{}
	for rows.Next() {
		f, err := scanFaculty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan faculty: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) getFacultyWhere(ctx context.Context, pred squirrel.Eq) (*model.Faculty, error) {
	query, args, err := r.sb.Select(facultyColumns...).From("faculty").Where(pred).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get faculty query: %w", err)
	}
	f, err := scanFaculty(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get faculty: %w", err)
	}
	return &f, nil
}

// GetFaculty returns nil, nil when the faculty does not exist.
func (r *PostgresRepository) GetFaculty(ctx context.Context, id int64) (*model.Faculty, error) {
	return r.getFacultyWhere(ctx, squirrel.Eq{"faculty_id": id})
}

func (r *PostgresRepository) FacultyByEmail(ctx context.Context, email string) (*model.Faculty, error) {
	return r.getFacultyWhere(ctx, squirrel.Eq{"email_id": email})
}

func (r *PostgresRepository) FacultyByRFID(ctx context.Context, tag string) (*model.Faculty, error) {
	return r.getFacultyWhere(ctx, squirrel.Eq{"rfid_tag": tag})
}

func nullableTag(tag string) any {
	if tag == "" {
		return nil
	}
	return tag
}

func (r *PostgresRepository) CreateFaculty(ctx context.Context, f model.Faculty) (int64, error) {
	query, args, err := r.sb.Insert("faculty").
		Columns("name", "mobile_number", "email_id", "rfid_tag", "is_admin").
		Values(f.Name, f.MobileNumber, f.Email, nullableTag(f.RFIDTag), f.IsAdmin).
		Suffix("RETURNING faculty_id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build create faculty query: %w", err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if isDuplicateKeyError(err) {
			return 0, apperrors.Conflict("Faculty with this email, mobile number or RFID tag already exists")
		}
		logger.Error().Err(err).Msg("create faculty failed")
		return 0, fmt.Errorf("create faculty: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) deleteWhere(ctx context.Context, table string, pred squirrel.Eq) (bool, error) {
	query, args, err := r.sb.Delete(table).Where(pred).ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteFaculty removes a faculty; allocations and attendance cascade.
func (r *PostgresRepository) DeleteFaculty(ctx context.Context, id int64) (bool, error) {
	return r.deleteWhere(ctx, "faculty", squirrel.Eq{"faculty_id": id})
}

// UpsertFaculty inserts rows without an existing id and updates the rest, in
// one transaction.
func (r *PostgresRepository) UpsertFaculty(ctx context.Context, rows []model.Faculty) (model.ImportResult, error) {
	var res model.ImportResult
	err := store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, f := range rows {
			updated, err := r.updateFacultyTx(ctx, tx, f)
			if err != nil {
				return err
			}
			if updated {
				res.Updated++
				continue
			}
			insert := r.sb.Insert("faculty").
				Columns("name", "mobile_number", "email_id", "rfid_tag", "is_admin").
				Values(f.Name, f.MobileNumber, f.Email, nullableTag(f.RFIDTag), f.IsAdmin)
			if f.ID > 0 {
				insert = r.sb.Insert("faculty").
					Columns("faculty_id", "name", "mobile_number", "email_id", "rfid_tag", "is_admin").
					Values(f.ID, f.Name, f.MobileNumber, f.Email, nullableTag(f.RFIDTag), f.IsAdmin)
			}
			query, args, err := insert.ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				if isDuplicateKeyError(err) {
					return apperrors.Conflict(fmt.Sprintf("Duplicate email, mobile number or RFID tag for %s", f.Email))
				}
				return fmt.Errorf("insert faculty: %w", err)
			}
			res.Imported++
		}
		return r.resyncSequence(ctx, tx, "faculty", "faculty_id")
	})
	return res, err
}

func (r *PostgresRepository) updateFacultyTx(ctx context.Context, tx *sql.Tx, f model.Faculty) (bool, error) {
	if f.ID <= 0 {
		return false, nil
	}
	query, args, err := r.sb.Update("faculty").
		SetMap(map[string]interface{}{
			"name":          f.Name,
			"mobile_number": f.MobileNumber,
			"email_id":      f.Email,
			"rfid_tag":      nullableTag(f.RFIDTag),
			"is_admin":      f.IsAdmin,
		}).
		Where(squirrel.Eq{"faculty_id": f.ID}).
		ToSql()
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return false, apperrors.Conflict(fmt.Sprintf("Duplicate email, mobile number or RFID tag for %s", f.Email))
		}
		return false, fmt.Errorf("update faculty %d: %w", f.ID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// resyncSequence moves a serial past explicitly imported ids.
func (r *PostgresRepository) resyncSequence(ctx context.Context, tx *sql.Tx, table, column string) error {
	stmt := fmt.Sprintf(
		"SELECT setval(pg_get_serial_sequence('%s', '%s'), COALESCE((SELECT MAX(%s) FROM %s), 0) + 1, false)",
		table, column, column, table)
	_, err := tx.ExecContext(ctx, stmt)
	return err
}

func (r *PostgresRepository) ListVenues(ctx context.Context) ([]model.Venue, error) {
	query, args, err := r.sb.Select("venue_id", "name", "location", "capacity").From("venues").OrderBy("venue_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list venues query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query venues: %w", err)
	}
	defer rows.Close()

	out := []model.Venue{}
	for rows.Next() {
		var v model.Venue
		if err := rows.Scan(&v.ID, &v.Name, &v.Location, &v.Capacity); err != nil {
			return nil, fmt.Errorf("scan venue: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateVenue(ctx context.Context, v model.Venue) (int64, error) {
	query, args, err := r.sb.Insert("venues").
		Columns("name", "location", "capacity").
		Values(v.Name, v.Location, v.Capacity).
		Suffix("RETURNING venue_id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build create venue query: %w", err)
	}
	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("create venue: %w", err)
	}
	return id, nil
}

// DeleteVenue removes a venue; its allocations cascade.
func (r *PostgresRepository) DeleteVenue(ctx context.Context, id int64) (bool, error) {
	return r.deleteWhere(ctx, "venues", squirrel.Eq{"venue_id": id})
}

func (r *PostgresRepository) UpsertVenues(ctx context.Context, rows []model.Venue) (model.ImportResult, error) {
	var res model.ImportResult
	err := store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, v := range rows {
			if v.ID > 0 {
				query, args, err := r.sb.Update("venues").
					SetMap(map[string]interface{}{"name": v.Name, "location": v.Location, "capacity": v.Capacity}).
					Where(squirrel.Eq{"venue_id": v.ID}).
					ToSql()
				if err != nil {
					return err
				}
				out, err := tx.ExecContext(ctx, query, args...)
				if err != nil {
					return fmt.Errorf("update venue %d: %w", v.ID, err)
				}
				if n, _ := out.RowsAffected(); n > 0 {
					res.Updated++
					continue
				}
			}
			insert := r.sb.Insert("venues").Columns("name", "location", "capacity").Values(v.Name, v.Location, v.Capacity)
			if v.ID > 0 {
				insert = r.sb.Insert("venues").Columns("venue_id", "name", "location", "capacity").Values(v.ID, v.Name, v.Location, v.Capacity)
			}
			query, args, err := insert.ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("insert venue: %w", err)
			}
			res.Imported++
		}
		return r.resyncSequence(ctx, tx, "venues", "venue_id")
	})
	return res, err
}
