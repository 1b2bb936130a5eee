package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rewired-gh/strikewatch/internal/models"
	"github.com/rewired-gh/strikewatch/internal/monitor"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BroadcastsView(t *testing.T) {
	hub, url := startHub(t)
	a := dial(t, url)
	b := dial(t, url)
	waitFor(t, func() bool { return hub.ClientCount() == 2 })

	view := monitor.View{
		CycleID: "c1",
		Rows:    []models.DerivedRow{{Strike: "100", AvgRatio: 0.5}},
		Signal:  true,
		Flagged: []string{"100"},
	}
	if err := hub.Publish(context.Background(), view); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, conn := range []*websocket.Conn{a, b} {
		env := readEnvelope(t, conn)
		if env.Type != "view" || env.Data.CycleID != "c1" || !env.Data.Signal {
			t.Errorf("unexpected envelope: %+v", env)
		}
		if len(env.Data.Rows) != 1 || env.Data.Rows[0].Strike != "100" {
			t.Errorf("unexpected rows: %+v", env.Data.Rows)
		}
	}
}

func TestHub_LateClientGetsLatest(t *testing.T) {
	hub, url := startHub(t)
	if err := hub.Publish(context.Background(), monitor.View{CycleID: "c7"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	conn := dial(t, url)
	env := readEnvelope(t, conn)
	if env.Data.CycleID != "c7" {
		t.Errorf("late client got cycle %q, want c7", env.Data.CycleID)
	}
}

func TestHub_UnregistersOnClose(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestHub_PublishHonorsContext(t *testing.T) {
	hub := NewHub(zap.NewNop()) // not running: the queue fills up
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var err error
	for i := 0; i < cap(hub.broadcast)+1 && err == nil; i++ {
		err = hub.Publish(ctx, monitor.View{})
	}
	if err == nil {
		t.Error("expected context error once the queue is full")
	}
}

func TestHub_StoppedHubNeverBlocks(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn := dial(t, url)
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	cancel()
	<-stopped

	// The existing client is closed by the hub and its read pump exits.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to be closed after shutdown")
	}

	// A client arriving after shutdown is turned away instead of hanging.
	late := dial(t, url)
	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := late.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("late client err = %v, want going-away close", err)
	}

	if err := hub.Publish(context.Background(), monitor.View{}); err != nil && !errors.Is(err, ErrHubClosed) {
		t.Errorf("Publish after shutdown: %v", err)
	}
	for i := 0; i < cap(hub.broadcast)+1; i++ {
		if err := hub.Publish(context.Background(), monitor.View{}); errors.Is(err, ErrHubClosed) {
			return
		}
	}
	t.Error("Publish should report a closed hub once the queue is full")
}
