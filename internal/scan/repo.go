package scan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository persists gatelog data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// User is an operator account (front desk or admin).
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserByUsername returns an operator account, or nil when unknown.
func (r *Repository) UserByUsername(ctx context.Context, username string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, created_at
		FROM users WHERE username = $1
	`, username)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (user_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, userID, token, expiresAt)
	return err
}

// RefreshTokenUser returns the owner of a live (unrevoked, unexpired)
// refresh token, or "" when the token is not usable.
func (r *Repository) RefreshTokenUser(ctx context.Context, token string) (string, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id FROM refresh_tokens
		WHERE token = $1 AND NOT revoked AND expires_at > NOW()
	`, token)
	var userID string
	if err := row.Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return userID, nil
}

// RevokeRefreshToken marks a token revoked.
func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	return err
}

// InsertVisitor registers a visitor, generating the id and access code
// when absent. FullName is derived from the name parts.
func (r *Repository) InsertVisitor(ctx context.Context, v Visitor) (Visitor, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.AccessCode == "" {
		v.AccessCode = uuid.NewString()
	}
	v.FullName = FullName(v.FirstName, v.MiddleName, v.LastName)
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO visitors (id, first_name, middle_name, last_name, full_name, access_code, contact, address)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at
	`, v.ID, v.FirstName, v.MiddleName, v.LastName, v.FullName, v.AccessCode, v.Contact, v.Address)
	if err := row.Scan(&v.CreatedAt); err != nil {
		return Visitor{}, err
	}
	return v, nil
}

// InsertPersonnel registers a staff member with a generated access code.
func (r *Repository) InsertPersonnel(ctx context.Context, p Personnel) (Personnel, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.AccessCode == "" {
		p.AccessCode = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO personnel (id, full_name, position, access_code)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, p.ID, p.FullName, p.Position, p.AccessCode)
	if err := row.Scan(&p.CreatedAt); err != nil {
		return Personnel{}, err
	}
	return p, nil
}

// SetVisitorPhoto stores the uploaded pass photo URL.
func (r *Repository) SetVisitorPhoto(ctx context.Context, visitorID, url string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE visitors SET photo_url = $2 WHERE id = $1`, visitorID, url)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound("visitor not found")
	}
	return nil
}

// VisitorByCode returns the visitor holding an access code, or nil.
func (r *Repository) VisitorByCode(ctx context.Context, code string) (*Visitor, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, first_name, middle_name, last_name, full_name, access_code, contact, address, photo_url, created_at
		FROM visitors WHERE access_code = $1
	`, code)
	var v Visitor
	if err := row.Scan(&v.ID, &v.FirstName, &v.MiddleName, &v.LastName, &v.FullName, &v.AccessCode, &v.Contact, &v.Address, &v.PhotoURL, &v.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// VisitorByID returns a visitor by id, or nil.
func (r *Repository) VisitorByID(ctx context.Context, id string) (*Visitor, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, first_name, middle_name, last_name, full_name, access_code, contact, address, photo_url, created_at
		FROM visitors WHERE id = $1
	`, id)
	var v Visitor
	if err := row.Scan(&v.ID, &v.FirstName, &v.MiddleName, &v.LastName, &v.FullName, &v.AccessCode, &v.Contact, &v.Address, &v.PhotoURL, &v.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// PersonnelByCode returns the staff member holding an access code, or nil.
func (r *Repository) PersonnelByCode(ctx context.Context, code string) (*Personnel, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, full_name, position, access_code, created_at
		FROM personnel WHERE access_code = $1
	`, code)
	var p Personnel
	if err := row.Scan(&p.ID, &p.FullName, &p.Position, &p.AccessCode, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// InsertViolation records an advisory violation for a visitor.
func (r *Repository) InsertViolation(ctx context.Context, v Violation) (Violation, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.RecordedAt.IsZero() {
		v.RecordedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO violations (id, visitor_id, details, recorded_at)
		VALUES ($1,$2,$3,$4)
	`, v.ID, v.VisitorID, v.Details, v.RecordedAt)
	if err != nil {
		return Violation{}, err
	}
	return v, nil
}

// RecentViolations returns the newest violations for a visitor.
func (r *Repository) RecentViolations(ctx context.Context, visitorID string, limit int) ([]Violation, error) {
	if limit <= 0 {
		limit = maxAlerts
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, visitor_id, details, recorded_at
		FROM violations
		WHERE visitor_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`, visitorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Violation
	for rows.Next() {
		var v Violation
		if err := rows.Scan(&v.ID, &v.VisitorID, &v.Details, &v.RecordedAt); err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// InsertEntry opens a new ledger entry.
func (r *Repository) InsertEntry(ctx context.Context, e LogEntry) (LogEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.TimeIn.IsZero() {
		e.TimeIn = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO visit_logs (id, visitor_id, personnel_id, time_in, handled_by_user_id)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, e.ID, e.VisitorID, e.PersonnelID, e.TimeIn, e.HandledBy)
	if err := row.Scan(&e.CreatedAt); err != nil {
		return LogEntry{}, err
	}
	return e, nil
}

// LatestOpenEntry returns the most recent open entry for a subject, or nil.
// With duplicate open entries the newest check-in is closed first.
func (r *Repository) LatestOpenEntry(ctx context.Context, subjectType SubjectType, subjectID string) (*LogEntry, error) {
	column := "visitor_id"
	if subjectType == SubjectPersonnel {
		column = "personnel_id"
	}
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, visitor_id, personnel_id, time_in, time_out, duration_seconds, handled_by_user_id, created_at
		FROM visit_logs
		WHERE %s = $1 AND time_out IS NULL
		ORDER BY time_in DESC
		LIMIT 1
	`, column), subjectID)
	var e LogEntry
	if err := row.Scan(&e.ID, &e.VisitorID, &e.PersonnelID, &e.TimeIn, &e.TimeOut, &e.DurationSeconds, &e.HandledBy, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// CloseEntry sets the checkout time and derives the stay duration.
func (r *Repository) CloseEntry(ctx context.Context, id string, at time.Time) (LogEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE visit_logs
		SET time_out = $2,
		    duration_seconds = EXTRACT(EPOCH FROM ($2 - time_in))::bigint
		WHERE id = $1 AND time_out IS NULL
		RETURNING id, visitor_id, personnel_id, time_in, time_out, duration_seconds, handled_by_user_id, created_at
	`, id, at)
	var e LogEntry
	if err := row.Scan(&e.ID, &e.VisitorID, &e.PersonnelID, &e.TimeIn, &e.TimeOut, &e.DurationSeconds, &e.HandledBy, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LogEntry{}, ErrConflict("No open check-in found for this QR code")
		}
		return LogEntry{}, err
	}
	return e, nil
}

// ListEntries returns ledger entries, newest first, with basic filters.
func (r *Repository) ListEntries(ctx context.Context, subjectType SubjectType, openOnly bool, limit, offset int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT id, visitor_id, personnel_id, time_in, time_out, duration_seconds, handled_by_user_id, created_at FROM visit_logs`
	args := []any{}
	clauses := []string{}
	switch subjectType {
	case SubjectVisitor:
		clauses = append(clauses, "visitor_id IS NOT NULL")
	case SubjectPersonnel:
		clauses = append(clauses, "personnel_id IS NOT NULL")
	}
	if openOnly {
		clauses = append(clauses, "time_out IS NULL")
	}
	if len(clauses) > 0 {
		query += " WHERE " + joinClauses(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY time_in DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.VisitorID, &e.PersonnelID, &e.TimeIn, &e.TimeOut, &e.DurationSeconds, &e.HandledBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// DailyCheckinCounts aggregates check-ins per UTC calendar day since
// the given instant. Days with no check-ins are absent; callers
// zero-fill before forecasting.
func (r *Repository) DailyCheckinCounts(ctx context.Context, subjectType SubjectType, since time.Time) (map[string]int, error) {
	column := "visitor_id"
	if subjectType == SubjectPersonnel {
		column = "personnel_id"
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT to_char(time_in AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM visit_logs
		WHERE %s IS NOT NULL AND time_in >= $1
		GROUP BY day
	`, column), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var day string
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		counts[day] = n
	}
	return counts, rows.Err()
}

func joinClauses(parts []string, sep string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for i := 1; i < len(parts); i++ {
		out += sep + parts[i]
	}
	return out
}
