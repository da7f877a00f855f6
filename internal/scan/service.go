package scan

import (
	"context"
	"fmt"
	"time"
)

// Actions accepted by Scan.
const (
	ActionCheckin  = "checkin"
	ActionCheckout = "checkout"
)

// maxAlerts is how many recent violations ride along with a scan result.
const maxAlerts = 3

// Store is the persistence surface the resolver needs.
// *Repository satisfies it; tests use an in-memory fake.
type Store interface {
	VisitorByCode(ctx context.Context, code string) (*Visitor, error)
	PersonnelByCode(ctx context.Context, code string) (*Personnel, error)
	RecentViolations(ctx context.Context, visitorID string, limit int) ([]Violation, error)
	InsertEntry(ctx context.Context, entry LogEntry) (LogEntry, error)
	LatestOpenEntry(ctx context.Context, subjectType SubjectType, subjectID string) (*LogEntry, error)
	CloseEntry(ctx context.Context, id string, at time.Time) (LogEntry, error)
}

// Result describes a successful scan.
type Result struct {
	Status      string         `json:"status"`
	Event       string         `json:"event"`
	Timestamp   time.Time      `json:"timestamp"`
	LogID       string         `json:"logId"`
	SubjectType SubjectType    `json:"subjectType"`
	Subject     SubjectSummary `json:"subject"`
	Alerts      []Violation    `json:"alerts"`
}

// Event is the queue payload published after a successful scan.
type Event struct {
	LogID       string `json:"log_id"`
	Event       string `json:"event"`
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
	Date        string `json:"date"`
	AlertCount  int    `json:"alert_count"`
}

// Service resolves scanned access codes against the attendance ledger.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a resolver backed by the given store.
func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Scan resolves code to a visitor or personnel record and transitions
// the ledger: checkin opens a new entry, checkout closes the most
// recent open one. A second checkin without an intervening checkout
// opens another entry; re-entry logging is intentional.
func (s *Service) Scan(ctx context.Context, code, action, operatorID string) (Result, error) {
	if code == "" {
		return Result{}, ErrValidation("code is required")
	}
	if action != ActionCheckin && action != ActionCheckout {
		return Result{}, ErrValidation("action must be checkin or checkout")
	}

	subject, alerts, err := s.resolve(ctx, code)
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	var entry LogEntry
	switch action {
	case ActionCheckin:
		entry = LogEntry{TimeIn: now, HandledBy: operatorID}
		if subject.Type == SubjectVisitor {
			id := subject.ID
			entry.VisitorID = &id
		} else {
			id := subject.ID
			entry.PersonnelID = &id
		}
		entry, err = s.store.InsertEntry(ctx, entry)
		if err != nil {
			return Result{}, fmt.Errorf("insert ledger entry: %w", err)
		}

	case ActionCheckout:
		open, err := s.store.LatestOpenEntry(ctx, subject.Type, subject.ID)
		if err != nil {
			return Result{}, fmt.Errorf("find open entry: %w", err)
		}
		if open == nil {
			return Result{}, ErrConflict("No open check-in found for this QR code")
		}
		entry, err = s.store.CloseEntry(ctx, open.ID, now)
		if err != nil {
			return Result{}, fmt.Errorf("close ledger entry: %w", err)
		}
	}

	return Result{
		Status:      "ok",
		Event:       action,
		Timestamp:   now,
		LogID:       entry.ID,
		SubjectType: subject.Type,
		Subject:     subject,
		Alerts:      alerts,
	}, nil
}

// resolve finds the subject for an access code, visitors first, and
// attaches up to maxAlerts recent violations for visitors.
func (s *Service) resolve(ctx context.Context, code string) (SubjectSummary, []Violation, error) {
	v, err := s.store.VisitorByCode(ctx, code)
	if err != nil {
		return SubjectSummary{}, nil, fmt.Errorf("visitor lookup: %w", err)
	}
	if v != nil {
		alerts, err := s.store.RecentViolations(ctx, v.ID, maxAlerts)
		if err != nil {
			return SubjectSummary{}, nil, fmt.Errorf("violation lookup: %w", err)
		}
		return SubjectSummary{ID: v.ID, Name: v.FullName, Type: SubjectVisitor, AccessCode: v.AccessCode}, alerts, nil
	}

	p, err := s.store.PersonnelByCode(ctx, code)
	if err != nil {
		return SubjectSummary{}, nil, fmt.Errorf("personnel lookup: %w", err)
	}
	if p != nil {
		return SubjectSummary{ID: p.ID, Name: p.FullName, Type: SubjectPersonnel, AccessCode: p.AccessCode}, nil, nil
	}

	return SubjectSummary{}, nil, ErrNotFound("Invalid QR code")
}
