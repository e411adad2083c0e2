package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialFeed connects a WebSocket client to /feed using the session cookies.
func dialFeed(t *testing.T, serverURL string, cookies []*http.Cookie) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/feed"
	header := http.Header{}
	for _, c := range cookies {
		header.Add("Cookie", c.String())
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dialing feed: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
	})
	return conn
}

func TestFeedBroadcastsAppliedChanges(t *testing.T) {
	g := setupTestGateway(t)
	g.register(t, "alice", "pw", false)
	g.register(t, "bob", "pw", false)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	g.server.hub = NewHub(g.server.feedCfg, g.server.logger)
	go g.server.hub.Run(ctx)

	ts := httptest.NewServer(g.router)
	t.Cleanup(ts.Close)

	aliceCookies := g.login(t, "alice", "pw")
	bobCookies := g.login(t, "bob", "pw")

	aliceConn := dialFeed(t, ts.URL, aliceCookies)
	bobConn := dialFeed(t, ts.URL, bobCookies)

	// Wait for both registrations before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for g.server.hub.ClientCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("feed clients connected = %d, want 2", g.server.hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec := g.do(t, http.MethodPost, "/changes", `{"changes":[
		{"op":"create","kind":"tag","entity_id":"tag-a","payload":{"name":"a"}}
	]}`, aliceCookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("apply status = %d, body %s", rec.Code, rec.Body.String())
	}

	aliceConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := aliceConn.ReadMessage()
	if err != nil {
		t.Fatalf("reading feed message: %v", err)
	}
	var msg FeedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decoding feed message: %v", err)
	}
	if msg.Type != "changes_applied" {
		t.Errorf("feed message type = %q, want changes_applied", msg.Type)
	}
	payload, _ := msg.Payload.(map[string]any)
	if changes, _ := payload["changes"].([]any); len(changes) != 1 {
		t.Errorf("feed payload carries %d changes, want 1", len(changes))
	}

	// Bob shares the gateway but not the tenant; his feed stays silent.
	bobConn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := bobConn.ReadMessage(); err == nil {
		t.Error("another tenant's feed received the broadcast")
	}
}

func TestFeedRequiresSession(t *testing.T) {
	g := setupTestGateway(t)

	rec := g.do(t, http.MethodGet, "/feed", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous feed status = %d, want 401", rec.Code)
	}
}
