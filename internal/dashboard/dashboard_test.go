package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	syncpkg "github.com/agritrack/fieldsync/internal/sync"
)

// fakeStatus serves a fixed status snapshot.
type fakeStatus struct {
	status syncpkg.Status
}

func (f *fakeStatus) Status(ctx context.Context) (syncpkg.Status, error) {
	return f.status, nil
}

func newTestServer(t *testing.T, status StatusProvider) *Server {
	t.Helper()

	config := &Config{
		Port:   0, // Use random available port
		Logger: log.New(io.Discard, "", 0),
	}

	server := NewServer(config, status)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	time.Sleep(50 * time.Millisecond)
	return server
}

func TestServerStartStop(t *testing.T) {
	server := newTestServer(t, nil)

	if server.GetAddr() == "" {
		t.Fatal("Server address is empty")
	}
}

func TestWebSocketWelcomeCarriesStatus(t *testing.T) {
	provider := &fakeStatus{status: syncpkg.Status{PendingCount: 3, IsOnline: true}}
	server := newTestServer(t, provider)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read welcome message: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeStatus {
		t.Errorf("Welcome message type = %s, want %s", msg.Type, MessageTypeStatus)
	}

	var status syncpkg.Status
	if err := json.Unmarshal(msg.Data, &status); err != nil {
		t.Fatalf("Failed to unmarshal status: %v", err)
	}
	if status.PendingCount != 3 || !status.IsOnline {
		t.Errorf("Welcome status = %+v, want pending=3 online", status)
	}
}

func TestBroadcastStatusReachesClients(t *testing.T) {
	server := newTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	server.BroadcastStatus(syncpkg.Status{ErrorCount: 2, IsOnline: true})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeStatus {
		t.Errorf("Message type = %s, want %s", msg.Type, MessageTypeStatus)
	}

	var status syncpkg.Status
	if err := json.Unmarshal(msg.Data, &status); err != nil {
		t.Fatalf("Failed to unmarshal status: %v", err)
	}
	if status.ErrorCount != 2 {
		t.Errorf("ErrorCount = %d, want 2", status.ErrorCount)
	}
}

func TestBroadcastConnectivity(t *testing.T) {
	server := newTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	server.BroadcastConnectivity(false)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeConnectivity {
		t.Errorf("Message type = %s, want %s", msg.Type, MessageTypeConnectivity)
	}

	var cd ConnectivityData
	if err := json.Unmarshal(msg.Data, &cd); err != nil {
		t.Fatalf("Failed to unmarshal connectivity: %v", err)
	}
	if cd.Online {
		t.Error("Online = true, want false")
	}
}

func TestStatusEndpoint(t *testing.T) {
	provider := &fakeStatus{status: syncpkg.Status{PendingCount: 7}}
	server := newTestServer(t, provider)

	resp, err := http.Get("http://" + server.GetAddr() + "/status")
	if err != nil {
		t.Fatalf("GET /status error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /status = %d, want 200", resp.StatusCode)
	}

	var status syncpkg.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if status.PendingCount != 7 {
		t.Errorf("PendingCount = %d, want 7", status.PendingCount)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, nil)

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health status = %v, want ok", body["status"])
	}
}
