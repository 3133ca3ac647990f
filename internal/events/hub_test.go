package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caresync/telehealth-ivr/internal/appointments"
)

func dial(t *testing.T, srv *httptest.Server, origin string) (*gorilla.Conn, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := gorilla.DefaultDialer.Dial(url, http.Header{"Origin": {origin}})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, err
}

func TestHubBroadcastsToSubscribers(t *testing.T) {
	hub := NewHub(4, nil, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	a, err := dial(t, srv, "http://localhost:3000")
	require.NoError(t, err)
	b, err := dial(t, srv, "http://localhost:3000")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(context.Background(), Event{
		Type:        TypeNewAppointment,
		Appointment: &appointments.Appointment{ID: "appt-1", Time: "10:00 AM"},
		Doctor:      &Party{ID: "d1", Name: "Alok Gupta"},
		Message:     "New appointment booked via phone call",
		BookedVia:   appointments.ViaVoiceCall,
	})

	for _, conn := range []*gorilla.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var got Event
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, TypeNewAppointment, got.Type)
		assert.Equal(t, "appt-1", got.Appointment.ID)
		assert.Equal(t, "Alok Gupta", got.Doctor.Name)
		assert.Equal(t, appointments.ViaVoiceCall, got.BookedVia)
		assert.False(t, got.At.IsZero())
	}
}

func TestHubAnswersPing(t *testing.T) {
	hub := NewHub(0, []string{"*"}, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, err := dial(t, srv, "https://dashboard.example.com")
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "pong", got.Type)
}

func TestHubRejectsUnknownOrigin(t *testing.T) {
	hub := NewHub(1, []string{"https://dashboard.example.com"}, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	_, err := dial(t, srv, "https://evil.example.com")
	assert.Error(t, err)

	_, err = dial(t, srv, "https://dashboard.example.com")
	assert.NoError(t, err)
}

func TestHubUnregistersClosedSubscribers(t *testing.T) {
	hub := NewHub(1, nil, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, err := dial(t, srv, "http://localhost")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPublishDropsFullSubscriber(t *testing.T) {
	hub := NewHub(1, nil, nil)
	slow := &client{send: make(chan Event, 1), done: make(chan struct{})}
	slow.send <- Event{Type: "backlog"}
	hub.clients[slow] = struct{}{}

	done := make(chan struct{})
	go func() {
		hub.Publish(context.Background(), Event{Type: TypeNewAppointment})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	select {
	case <-slow.done:
	default:
		t.Fatal("slow subscriber was not closed")
	}
}

func TestPublisherFunc(t *testing.T) {
	var got Event
	var p Publisher = PublisherFunc(func(_ context.Context, ev Event) { got = ev })
	p.Publish(context.Background(), Event{Type: TypeNewAppointment})
	assert.Equal(t, TypeNewAppointment, got.Type)
}
