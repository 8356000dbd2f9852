package websocket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func testHub() *Hub {
	return NewHub(zerolog.New(os.Stderr))
}

func newClient(doctorID uuid.UUID) *Client {
	return &Client{
		ID:       uuid.New().String(),
		DoctorID: doctorID,
		Send:     make(chan []byte, 4),
	}
}

func TestNotifyScopedToDoctorGroup(t *testing.T) {
	hub := testHub()
	drFive := uuid.New()
	drSeven := uuid.New()

	watcherFive := newClient(drFive)
	watcherSeven := newClient(drSeven)
	hub.Register(watcherFive)
	hub.Register(watcherSeven)

	hub.NotifyQueueUpdate(drFive)

	select {
	case data := <-watcherFive.Send:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if ev.Type != EventQueueUpdated {
			t.Errorf("expected %s, got %s", EventQueueUpdated, ev.Type)
		}
		if ev.DoctorID != drFive {
			t.Errorf("expected doctor %s, got %s", drFive, ev.DoctorID)
		}
	default:
		t.Fatal("subscriber of notified doctor received nothing")
	}

	select {
	case <-watcherSeven.Send:
		t.Error("subscriber of other doctor received the event")
	default:
	}
}

func TestNotifyEmptyGroupIsNoop(t *testing.T) {
	hub := testHub()
	hub.NotifyQueueUpdate(uuid.New())

	if hub.ClientCount() != 0 {
		t.Errorf("expected no clients, got %d", hub.ClientCount())
	}
}

func TestUnregisterDiscardsEmptyGroup(t *testing.T) {
	hub := testHub()
	doctorID := uuid.New()

	a := newClient(doctorID)
	b := newClient(doctorID)
	hub.Register(a)
	hub.Register(b)

	if got := hub.GroupSize(doctorID); got != 2 {
		t.Fatalf("expected group size 2, got %d", got)
	}

	hub.Unregister(a)
	if got := hub.GroupSize(doctorID); got != 1 {
		t.Errorf("expected group size 1, got %d", got)
	}

	hub.Unregister(b)
	if got := hub.GroupSize(doctorID); got != 0 {
		t.Errorf("expected empty group, got %d", got)
	}

	// Second unregister of the same client must not panic on a closed channel.
	hub.Unregister(b)
}

func TestSlowConsumerDropsEventWithoutBlocking(t *testing.T) {
	hub := testHub()
	doctorID := uuid.New()

	slow := &Client{ID: "slow", DoctorID: doctorID, Send: make(chan []byte, 1)}
	hub.Register(slow)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			hub.NotifyQueueUpdate(doctorID)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on slow consumer")
	}

	if got := len(slow.Send); got != 1 {
		t.Errorf("expected exactly the buffered event, got %d", got)
	}
}

func TestConcurrentRegisterNotifyUnregister(t *testing.T) {
	hub := testHub()
	doctors := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newClient(doctors[i%len(doctors)])
			hub.Register(c)
			hub.NotifyQueueUpdate(c.DoctorID)
			hub.Unregister(c)
		}(i)
	}
	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected all clients gone, got %d", got)
	}
}

func TestHandleConnectRejectsBadDoctorID(t *testing.T) {
	hub := testHub()
	h := NewHandler(hub)

	e := echo.New()
	h.RegisterRoutes(e.Group(""))

	for _, q := range []string{"", "?doctor_id=not-a-uuid"} {
		req := httptest.NewRequest(http.MethodGet, "/ws/queue"+q, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("query %q: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestEndToEndQueueSubscription(t *testing.T) {
	hub := testHub()
	h := NewHandler(hub)

	e := echo.New()
	h.RegisterRoutes(e.Group(""))
	srv := httptest.NewServer(e)
	defer srv.Close()

	doctorID := uuid.New()
	url := fmt.Sprintf("%s/ws/queue?doctor_id=%s",
		strings.Replace(srv.URL, "http", "ws", 1), doctorID)

	conn, _, err := gorillawebsocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Registration happens inside the upgrade handler goroutine.
	deadline := time.Now().Add(2 * time.Second)
	for hub.GroupSize(doctorID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.NotifyQueueUpdate(doctorID)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != EventQueueUpdated || ev.DoctorID != doctorID {
		t.Errorf("unexpected event: %+v", ev)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.GroupSize(doctorID) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never unregistered after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
