package scan

import (
	"strings"
	"time"
)

// SubjectType discriminates who a ledger entry belongs to.
type SubjectType string

const (
	SubjectVisitor   SubjectType = "visitor"
	SubjectPersonnel SubjectType = "personnel"
)

// Visitor is a registered visitor. The access code is the QR payload
// printed on the issued pass.
type Visitor struct {
	ID         string    `json:"id"`
	FirstName  string    `json:"first_name"`
	MiddleName string    `json:"middle_name,omitempty"`
	LastName   string    `json:"last_name"`
	FullName   string    `json:"full_name"`
	AccessCode string    `json:"access_code"`
	Contact    *string   `json:"contact,omitempty"`
	Address    *string   `json:"address,omitempty"`
	PhotoURL   *string   `json:"photo_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Personnel is a staff member carrying a QR pass.
type Personnel struct {
	ID         string    `json:"id"`
	FullName   string    `json:"full_name"`
	Position   *string   `json:"position,omitempty"`
	AccessCode string    `json:"access_code"`
	CreatedAt  time.Time `json:"created_at"`
}

// Violation is an advisory record attached to a visitor. It is
// surfaced alongside scans as context and never blocks them.
type Violation struct {
	ID         string    `json:"id"`
	VisitorID  string    `json:"visitor_id"`
	Details    string    `json:"details"`
	RecordedAt time.Time `json:"recorded_at"`
}

// LogEntry is one presence interval for exactly one subject.
// Exactly one of VisitorID/PersonnelID is set. TimeOut nil means the
// subject is still inside.
type LogEntry struct {
	ID              string     `json:"id"`
	VisitorID       *string    `json:"visitor_id,omitempty"`
	PersonnelID     *string    `json:"personnel_id,omitempty"`
	TimeIn          time.Time  `json:"time_in"`
	TimeOut         *time.Time `json:"time_out,omitempty"`
	DurationSeconds *int64     `json:"duration_seconds,omitempty"`
	HandledBy       string     `json:"handled_by_user_id"`
	CreatedAt       time.Time  `json:"created_at"`
}

// SubjectSummary is the slim subject view returned with a scan result.
type SubjectSummary struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Type       SubjectType `json:"type"`
	AccessCode string      `json:"access_code"`
}

// FullName joins name parts, skipping empty ones, normalized to
// uppercase the way visitor records are stored.
func FullName(first, middle, last string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{first, middle, last} {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.ToUpper(strings.Join(parts, " "))
}
