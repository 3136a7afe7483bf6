package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sensorcal/sensorcal/pkg/types"
	"github.com/sensorcal/sensorcal/server/internal/store"
	wsHub "github.com/sensorcal/sensorcal/server/internal/ws"
)

// testInterval is long enough that only Notify and connect trigger messages
// unless a test waits for a tick on purpose.
const testInterval = 200 * time.Millisecond

type fixedAlerts int

func (f fixedAlerts) Firing() int { return int(f) }

// --- helpers ----------------------------------------------------------------

func appendRun(t *testing.T, st store.Store, runID string, measured ...float64) {
	t.Helper()
	rows := make([]types.EnrichedReading, len(measured))
	for i, m := range measured {
		rows[i] = types.EnrichedReading{
			Reading: types.Reading{Timestamp: time.Unix(int64(i), 0).UTC(), Measured: m, Ideal: 100},
			Health:  100,
			RULDays: 30,
		}
		if m > 105 {
			rows[i].Anomaly = types.AnomalyOutOfRange
			rows[i].Alert = types.AlertCritical
		}
	}
	if _, err := st.Append(context.Background(), runID, rows); err != nil {
		t.Fatalf("Append: %v", err)
	}
}

// startHub starts a test HTTP server with the hub as its handler and the
// hub's Run loop on a cancellable context.
func startHub(t *testing.T, st store.Store) (wsURL string, hub *wsHub.Hub, cancel func()) {
	t.Helper()

	hub = wsHub.New(st, fixedAlerts(2), testInterval)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readStatus reads one message and returns its data object.
func readStatus(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(msg, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["event"] != wsHub.EventStatus {
		t.Fatalf("event: got %v, want %s", m["event"], wsHub.EventStatus)
	}
	data, ok := m["data"].(map[string]interface{})
	if !ok {
		t.Fatal("data: missing or wrong type")
	}
	return data
}

// waitForRun reads messages until one carries runID. Ticks and
// notifications may interleave, so earlier messages can be stale.
func waitForRun(t *testing.T, conn *websocket.Conn, runID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if data := readStatus(t, conn); data["run_id"] == runID {
			return
		}
	}
	t.Fatalf("no broadcast carried %s", runID)
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateStatus(t *testing.T) {
	st := store.NewMemory()
	appendRun(t, st, "run-1", 100, 110)
	wsURL, _, _ := startHub(t, st)

	data := readStatus(t, dial(t, wsURL))
	if data["state"] != "CRITICAL" {
		t.Errorf("state: got %v, want CRITICAL", data["state"])
	}
	if data["run_id"] != "run-1" {
		t.Errorf("run_id: got %v, want run-1", data["run_id"])
	}
	if data["firing_alerts"].(float64) != 2 {
		t.Errorf("firing_alerts: got %v, want 2", data["firing_alerts"])
	}
	if data["generated_at"] == nil || data["generated_at"] == "" {
		t.Error("generated_at: missing")
	}
}

func TestHub_EmptyStore_UnknownState(t *testing.T) {
	wsURL, _, _ := startHub(t, store.NewMemory())
	data := readStatus(t, dial(t, wsURL))
	if data["state"] != "unknown" {
		t.Errorf("state: got %v, want unknown", data["state"])
	}
	if _, ok := data["status"]; ok {
		t.Error("status should be omitted before the first run")
	}
}

func TestHub_NotifyBroadcastsNewRun(t *testing.T) {
	st := store.NewMemory()
	wsURL, hub, _ := startHub(t, st)

	conn := dial(t, wsURL)
	readStatus(t, conn) // immediate status, empty store

	appendRun(t, st, "run-2", 100)
	hub.Notify()
	waitForRun(t, conn, "run-2")
}

func TestHub_NotifyNeverBlocks(t *testing.T) {
	hub := wsHub.New(store.NewMemory(), nil, time.Hour)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Notify()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked without a running hub")
	}
}

func TestHub_ReceivesBroadcastOnTick(t *testing.T) {
	st := store.NewMemory()
	wsURL, _, _ := startHub(t, st)

	conn := dial(t, wsURL)
	readStatus(t, conn)

	appendRun(t, st, "tick-run", 101)
	waitForRun(t, conn, "tick-run")
}

func TestHub_CountClients(t *testing.T) {
	wsURL, hub, _ := startHub(t, store.NewMemory())

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, wsURL)
		readStatus(t, conns[i])
	}

	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}

	conns[0].Close()
	time.Sleep(50 * time.Millisecond) // let readPump detect the close
	if n := hub.Count(); n != 2 {
		t.Errorf("Count after disconnect: got %d, want 2", n)
	}
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	wsURL, hub, cancel := startHub(t, store.NewMemory())

	conn := dial(t, wsURL)
	readStatus(t, conn)
	time.Sleep(10 * time.Millisecond)

	cancel()

	time.Sleep(50 * time.Millisecond)
	if n := hub.Count(); n != 0 {
		t.Errorf("Count after cancel: got %d, want 0", n)
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	hub := wsHub.New(store.NewMemory(), nil, testInterval)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
