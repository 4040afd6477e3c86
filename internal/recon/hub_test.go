package recon_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tradeops/recon-engine/internal/recon"
)

// dialHub connects a test WebSocket client to the hub.
func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("ws dial failed: %v", err)
	}
	return conn
}

func TestWSHub_BroadcastSurvivesDeadClient(t *testing.T) {
	hub := recon.NewWSHub()
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	dead := dialHub(t, srv)
	live := dialHub(t, srv)
	defer live.Close()

	// Kill one client, then keep broadcasting: the hub must drop the dead
	// connection and still deliver to the live one.
	dead.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				hub.Broadcast(recon.WSMessage{
					Type:      "account_reconciled",
					RunID:     "run-1",
					AccountID: "60076155",
					Status:    recon.StatusClean,
				})
			}
		}
	}()

	live.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := live.ReadMessage()
	if err != nil {
		t.Fatalf("live client got no broadcast: %v", err)
	}

	var msg recon.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("broadcast is not valid JSON: %v", err)
	}
	if msg.Type != "account_reconciled" || msg.AccountID != "60076155" {
		t.Errorf("message: %+v", msg)
	}
}
