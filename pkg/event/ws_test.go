package event

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func TestWSHandlerForwardsGroupEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	emitter := NewEmitter()
	h := NewWSHandlerWithEmitter(emitter)

	router := gin.New()
	router.GET("/groups/:id/ws", h.Handle)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/groups/g1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	bus := NewGroupBus(emitter)

	// The subscription is registered by the handler after the upgrade, so
	// keep publishing until the first event comes through. Events for other
	// groups are interleaved and must never reach this connection.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				bus.PublishDelta("other-group", "m0", "b0", "paragraph", "noise", "", false)
				bus.PublishDelta("g1", "m1", "b1", "paragraph", "hello", "", true)
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Event != ChatDelta {
		t.Fatalf("event = %q, want %q", msg.Event, ChatDelta)
	}
	if gid, _ := msg.Data["group_id"].(string); gid != "g1" {
		t.Fatalf("group_id = %q, want g1", gid)
	}
	if content, _ := msg.Data["content"].(string); content != "hello" {
		t.Fatalf("content = %q, want %q", content, "hello")
	}
}
