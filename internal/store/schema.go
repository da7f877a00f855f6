package store

import "context"

// schema holds idempotent DDL applied at startup. Statements run in
// order; each must be safe to re-run against an existing database.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'frontdesk',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id BIGSERIAL PRIMARY KEY,
		user_id UUID NOT NULL,
		token TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		revoked BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS visitors (
		id UUID PRIMARY KEY,
		first_name TEXT NOT NULL,
		middle_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL,
		full_name TEXT NOT NULL,
		access_code TEXT NOT NULL UNIQUE,
		contact TEXT,
		address TEXT,
		photo_url TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS personnel (
		id UUID PRIMARY KEY,
		full_name TEXT NOT NULL,
		position TEXT,
		access_code TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS visit_logs (
		id UUID PRIMARY KEY,
		visitor_id UUID REFERENCES visitors(id),
		personnel_id UUID REFERENCES personnel(id),
		time_in TIMESTAMPTZ NOT NULL,
		time_out TIMESTAMPTZ,
		duration_seconds BIGINT,
		handled_by_user_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK ((visitor_id IS NULL) <> (personnel_id IS NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS violations (
		id UUID PRIMARY KEY,
		visitor_id UUID NOT NULL REFERENCES visitors(id),
		details TEXT NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_visit_logs_visitor_open ON visit_logs (visitor_id, time_in DESC) WHERE time_out IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_visit_logs_personnel_open ON visit_logs (personnel_id, time_in DESC) WHERE time_out IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_visit_logs_time_in ON visit_logs (time_in)`,
	`CREATE INDEX IF NOT EXISTS idx_violations_visitor ON violations (visitor_id, recorded_at DESC)`,
}

// EnsureSchema applies the bootstrap DDL.
func (d *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
