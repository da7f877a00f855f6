package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendDeliversAlert(t *testing.T) {
	var got Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	err := c.Send(context.Background(), Alert{
		LogID:       "log-1",
		SubjectID:   "visitor-1",
		SubjectType: "visitor",
		Event:       "checkin",
		Date:        "2026-08-28",
		AlertCount:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, "log-1", got.LogID)
	assert.Equal(t, 2, got.AlertCount)
}

func TestSendReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	err := c.Send(context.Background(), Alert{LogID: "log-1"})
	assert.Error(t, err)
}

func TestSkipDisablesDelivery(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := New(srv.URL, true)
	require.NoError(t, c.Send(context.Background(), Alert{LogID: "log-1"}))
	require.NoError(t, c.Health(context.Background()))
	assert.False(t, called)
}

func TestHealth(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()
	assert.NoError(t, New(healthy.URL, false).Health(context.Background()))

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()
	assert.Error(t, New(broken.URL, false).Health(context.Background()))
}
