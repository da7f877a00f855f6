package scan

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store for resolver tests.
type fakeStore struct {
	visitors   map[string]*Visitor   // by access code
	personnel  map[string]*Personnel // by access code
	violations map[string][]Violation
	entries    []*LogEntry

	lastViolationLimit int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		visitors:   make(map[string]*Visitor),
		personnel:  make(map[string]*Personnel),
		violations: make(map[string][]Violation),
	}
}

func (f *fakeStore) VisitorByCode(_ context.Context, code string) (*Visitor, error) {
	return f.visitors[code], nil
}

func (f *fakeStore) PersonnelByCode(_ context.Context, code string) (*Personnel, error) {
	return f.personnel[code], nil
}

func (f *fakeStore) RecentViolations(_ context.Context, visitorID string, limit int) ([]Violation, error) {
	f.lastViolationLimit = limit
	vs := f.violations[visitorID]
	if len(vs) > limit {
		vs = vs[:limit]
	}
	return vs, nil
}

func (f *fakeStore) InsertEntry(_ context.Context, e LogEntry) (LogEntry, error) {
	e.ID = uuid.NewString()
	e.CreatedAt = e.TimeIn
	stored := e
	f.entries = append(f.entries, &stored)
	return e, nil
}

func (f *fakeStore) LatestOpenEntry(_ context.Context, subjectType SubjectType, subjectID string) (*LogEntry, error) {
	var latest *LogEntry
	for _, e := range f.entries {
		if e.TimeOut != nil {
			continue
		}
		switch subjectType {
		case SubjectVisitor:
			if e.VisitorID == nil || *e.VisitorID != subjectID {
				continue
			}
		case SubjectPersonnel:
			if e.PersonnelID == nil || *e.PersonnelID != subjectID {
				continue
			}
		}
		if latest == nil || e.TimeIn.After(latest.TimeIn) {
			latest = e
		}
	}
	return latest, nil
}

func (f *fakeStore) CloseEntry(_ context.Context, id string, at time.Time) (LogEntry, error) {
	for _, e := range f.entries {
		if e.ID == id && e.TimeOut == nil {
			out := at
			e.TimeOut = &out
			secs := int64(at.Sub(e.TimeIn).Seconds())
			e.DurationSeconds = &secs
			return *e, nil
		}
	}
	return LogEntry{}, ErrConflict("No open check-in found for this QR code")
}

func (f *fakeStore) openCount(subjectID string) int {
	n := 0
	for _, e := range f.entries {
		if e.TimeOut != nil {
			continue
		}
		if (e.VisitorID != nil && *e.VisitorID == subjectID) || (e.PersonnelID != nil && *e.PersonnelID == subjectID) {
			n++
		}
	}
	return n
}

func newTestService(store *fakeStore, start time.Time) *Service {
	now := start
	svc := NewService(store)
	svc.now = func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
	return svc
}

func addVisitor(f *fakeStore, name string) *Visitor {
	v := &Visitor{
		ID:         uuid.NewString(),
		FirstName:  name,
		LastName:   "DOE",
		FullName:   FullName(name, "", "DOE"),
		AccessCode: uuid.NewString(),
	}
	f.visitors[v.AccessCode] = v
	return v
}

func addPersonnel(f *fakeStore, name string) *Personnel {
	p := &Personnel{
		ID:         uuid.NewString(),
		FullName:   name,
		AccessCode: uuid.NewString(),
	}
	f.personnel[p.AccessCode] = p
	return p
}

func TestScanValidation(t *testing.T) {
	svc := newTestService(newFakeStore(), time.Now())

	_, err := svc.Scan(context.Background(), "", ActionCheckin, "op-1")
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, 400, HTTPStatus(err))

	_, err = svc.Scan(context.Background(), "some-code", "enter", "op-1")
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestScanUnknownCode(t *testing.T) {
	svc := newTestService(newFakeStore(), time.Now())

	_, err := svc.Scan(context.Background(), uuid.NewString(), ActionCheckin, "op-1")
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.EqualError(t, err, "Invalid QR code")
	assert.Equal(t, 400, HTTPStatus(err))
}

func TestVisitorCheckin(t *testing.T) {
	store := newFakeStore()
	v := addVisitor(store, "ALICE")
	svc := newTestService(store, time.Now())

	res, err := svc.Scan(context.Background(), v.AccessCode, ActionCheckin, "op-1")
	require.NoError(t, err)

	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, ActionCheckin, res.Event)
	assert.Equal(t, SubjectVisitor, res.SubjectType)
	assert.Equal(t, v.ID, res.Subject.ID)
	assert.Equal(t, v.FullName, res.Subject.Name)
	assert.NotEmpty(t, res.LogID)
	assert.Equal(t, 1, store.openCount(v.ID))

	entry := store.entries[0]
	require.NotNil(t, entry.VisitorID)
	assert.Equal(t, v.ID, *entry.VisitorID)
	assert.Nil(t, entry.PersonnelID)
	assert.Nil(t, entry.TimeOut)
	assert.Equal(t, "op-1", entry.HandledBy)
}

func TestVisitorCheckinCarriesAlerts(t *testing.T) {
	store := newFakeStore()
	v := addVisitor(store, "BOB")
	for i := 0; i < 5; i++ {
		store.violations[v.ID] = append(store.violations[v.ID], Violation{
			ID:        uuid.NewString(),
			VisitorID: v.ID,
			Details:   "contraband attempt",
		})
	}
	svc := newTestService(store, time.Now())

	res, err := svc.Scan(context.Background(), v.AccessCode, ActionCheckin, "op-1")
	require.NoError(t, err)

	assert.Len(t, res.Alerts, 3, "only the most recent three alerts ride along")
	assert.Equal(t, 3, store.lastViolationLimit)
}

func TestPersonnelNeverCarryAlerts(t *testing.T) {
	store := newFakeStore()
	p := addPersonnel(store, "SGT CARTER")
	svc := newTestService(store, time.Now())

	res, err := svc.Scan(context.Background(), p.AccessCode, ActionCheckin, "op-1")
	require.NoError(t, err)

	assert.Equal(t, SubjectPersonnel, res.SubjectType)
	assert.Empty(t, res.Alerts)
	assert.Equal(t, 0, store.lastViolationLimit, "violation lookup must not run for personnel")
}

func TestCheckoutClosesOpenEntry(t *testing.T) {
	store := newFakeStore()
	v := addVisitor(store, "CAROL")
	svc := newTestService(store, time.Now())

	in, err := svc.Scan(context.Background(), v.AccessCode, ActionCheckin, "op-1")
	require.NoError(t, err)

	out, err := svc.Scan(context.Background(), v.AccessCode, ActionCheckout, "op-2")
	require.NoError(t, err)

	assert.Equal(t, ActionCheckout, out.Event)
	assert.Equal(t, in.LogID, out.LogID, "checkout closes the entry the checkin opened")
	assert.Equal(t, 0, store.openCount(v.ID))

	entry := store.entries[0]
	require.NotNil(t, entry.TimeOut)
	require.NotNil(t, entry.DurationSeconds)
	assert.Equal(t, int64(60), *entry.DurationSeconds)
}

func TestCheckoutWithoutOpenEntry(t *testing.T) {
	store := newFakeStore()
	v := addVisitor(store, "DAVE")
	svc := newTestService(store, time.Now())

	_, err := svc.Scan(context.Background(), v.AccessCode, ActionCheckout, "op-1")
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.EqualError(t, err, "No open check-in found for this QR code")

	// Closed history does not change the answer.
	_, err = svc.Scan(context.Background(), v.AccessCode, ActionCheckin, "op-1")
	require.NoError(t, err)
	_, err = svc.Scan(context.Background(), v.AccessCode, ActionCheckout, "op-1")
	require.NoError(t, err)
	_, err = svc.Scan(context.Background(), v.AccessCode, ActionCheckout, "op-1")
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestRepeatedCheckinOpensAnotherEntry(t *testing.T) {
	store := newFakeStore()
	v := addVisitor(store, "EVE")
	svc := newTestService(store, time.Now())

	_, err := svc.Scan(context.Background(), v.AccessCode, ActionCheckin, "op-1")
	require.NoError(t, err)
	second, err := svc.Scan(context.Background(), v.AccessCode, ActionCheckin, "op-1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.openCount(v.ID), "re-entry logging keeps both entries open")

	// Checkout closes the newest open entry first.
	out, err := svc.Scan(context.Background(), v.AccessCode, ActionCheckout, "op-1")
	require.NoError(t, err)
	assert.Equal(t, second.LogID, out.LogID)
	assert.Equal(t, 1, store.openCount(v.ID))
}

func TestOpenEntryBookkeeping(t *testing.T) {
	store := newFakeStore()
	v := addVisitor(store, "FRANK")
	svc := newTestService(store, time.Now())
	ctx := context.Background()

	checkins, checkouts := 0, 0
	actions := []string{
		ActionCheckin, ActionCheckin, ActionCheckout,
		ActionCheckin, ActionCheckout, ActionCheckout,
		ActionCheckout, ActionCheckin,
	}
	for _, a := range actions {
		_, err := svc.Scan(ctx, v.AccessCode, a, "op-1")
		if a == ActionCheckin {
			require.NoError(t, err)
			checkins++
			continue
		}
		if err == nil {
			checkouts++
		} else {
			assert.Equal(t, KindConflict, KindOf(err))
		}
	}

	assert.Equal(t, checkins-checkouts, store.openCount(v.ID))
}

func TestFullName(t *testing.T) {
	tests := []struct {
		first, middle, last string
		want                string
	}{
		{"Juan", "Santos", "dela Cruz", "JUAN SANTOS DELA CRUZ"},
		{"Ana", "", "Reyes", "ANA REYES"},
		{"  Ana ", " ", "Reyes", "ANA REYES"},
		{"", "", "Solo", "SOLO"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FullName(tt.first, tt.middle, tt.last))
	}
}
