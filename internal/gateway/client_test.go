package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/thread-commands/internal/domain"
	"github.com/tbourn/thread-commands/internal/engine"
)

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient("  ", "", 0)
	assert.ErrorIs(t, err, ErrNoBaseURL)
}

func TestRecentEvents(t *testing.T) {
	since := time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/tenants/g1/events", r.URL.Path)
		assert.Equal(t, since.Format(time.RFC3339Nano), r.URL.Query().Get("since"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]domain.EventContext{
			{EventID: "e1", ContainerID: "c1", ActorID: "u1", Text: "ping", CreatedAt: since.Add(time.Minute)},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/v1/", "tok", time.Second)
	require.NoError(t, err)
	evs, err := c.RecentEvents(context.Background(), "g1", since)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "g1", evs[0].TenantID, "tenant filled from the request")
	assert.Equal(t, "ping", evs[0].Text)
}

func TestRecentEvents_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "", time.Second)
	require.NoError(t, err)
	_, err = c.RecentEvents(context.Background(), "g1", time.Now())
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.Status)
	assert.Equal(t, "boom", se.Body)
}

func TestExecute(t *testing.T) {
	var got actionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/actions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"executed":true}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "", time.Second)
	require.NoError(t, err)
	ok, err := c.Execute(context.Background(), domain.ActionDelete,
		engine.Target{TenantID: "g1", ContainerID: "c1", EventID: "e1", ActorID: "u1"},
		engine.Params{Delay: 300 * time.Second})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.ActionDelete, got.Kind)
	assert.Equal(t, int64(300), got.DelaySeconds)
	assert.Equal(t, "e1", got.EventID)
}

func TestExecute_TargetGone(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusConflict} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		c, err := NewClient(srv.URL, "", time.Second)
		require.NoError(t, err)
		ok, err := c.Execute(context.Background(), domain.ActionReact, engine.Target{EventID: "e1"}, engine.Params{Reaction: "✅"})
		assert.NoError(t, err, "status %d", code)
		assert.False(t, ok)
		srv.Close()
	}
}

func TestExecute_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "", time.Second)
	require.NoError(t, err)
	_, err = c.Execute(context.Background(), domain.ActionReply, engine.Target{}, engine.Params{ReplyText: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestLogDispatcher(t *testing.T) {
	ok, err := NewLogDispatcher().Execute(context.Background(), domain.ActionReply, engine.Target{EventID: "e1"}, engine.Params{ReplyText: "x"})
	require.NoError(t, err)
	assert.True(t, ok)
}
