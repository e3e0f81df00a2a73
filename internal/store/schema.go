package store

import (
	"context"
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS faculty (
	faculty_id    BIGSERIAL PRIMARY KEY,
	name          VARCHAR(255) NOT NULL,
	mobile_number VARCHAR(15)  NOT NULL UNIQUE,
	email_id      VARCHAR(255) NOT NULL UNIQUE,
	rfid_tag      VARCHAR(10)  UNIQUE,
	is_admin      BOOLEAN      NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS venues (
	venue_id BIGSERIAL PRIMARY KEY,
	name     VARCHAR(255) NOT NULL,
	location VARCHAR(255) NOT NULL,
	capacity INTEGER      NOT NULL CHECK (capacity > 0)
);

CREATE TABLE IF NOT EXISTS venue_allocations (
	allocation_id BIGSERIAL PRIMARY KEY,
	faculty_id    BIGINT      NOT NULL REFERENCES faculty(faculty_id) ON DELETE CASCADE,
	venue_id      BIGINT      NOT NULL REFERENCES venues(venue_id) ON DELETE CASCADE,
	date          DATE        NOT NULL,
	time_slot     VARCHAR(11) NOT NULL CHECK (time_slot IN ('08:00-12:00', '12:00-15:00')),
	UNIQUE (faculty_id, date, time_slot)
);

CREATE TABLE IF NOT EXISTS attendance (
	id            BIGSERIAL PRIMARY KEY,
	faculty_id    BIGINT  NOT NULL REFERENCES faculty(faculty_id) ON DELETE CASCADE,
	allocation_id BIGINT  NOT NULL UNIQUE REFERENCES venue_allocations(allocation_id) ON DELETE CASCADE,
	date          DATE    NOT NULL,
	is_present    BOOLEAN NOT NULL DEFAULT FALSE,
	marked_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_allocations_date ON venue_allocations(date, time_slot);
CREATE INDEX IF NOT EXISTS idx_attendance_date  ON attendance(date);
`

// Migrate creates the tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
