package verify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWSChannel(t *testing.T) {
	f := newFixture(t)
	f.galleries.AddSource(context.Background(), "u1", "alice", []float32{1, 0}, "seed", "")

	sessions := &Sessions{Threshold: 0.65, Format: "wav", Embedder: f.embedder, Galleries: f.galleries}
	upgrader := websocket.Upgrader{}
	served := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			served <- err
			return
		}
		served <- sessions.Serve(r.Context(), "u1", NewWSChannel(conn, 1<<20, nil))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, chunk(t, 3)); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var m Message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if m.Action != ActionMute || !m.IsTargetSpeaker || m.Similarity != 0.9 {
		t.Errorf("decision = %+v", m)
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve = %v, want nil on normal close", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end")
	}
	if sessions.Active() != 0 {
		t.Errorf("Active = %d", sessions.Active())
	}
}
