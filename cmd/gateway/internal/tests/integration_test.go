package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket" // Using Gorilla for the test CLIENT
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-watchlist/cmd/gateway/internal/api"
	"github.com/shubham-shewale/stock-watchlist/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/stock-watchlist/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/stock-watchlist/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/stock-watchlist/cmd/gateway/internal/simulator"
	"github.com/shubham-shewale/stock-watchlist/pkg/config"
	"github.com/shubham-shewale/stock-watchlist/pkg/models"
)

type env struct {
	server *httptest.Server
	mr     *miniredis.Miniredis
	hub    *hub.Hub
}

// startServer wires the gateway the way main does, with a long tick interval
// so every payload a test sees is caused by the test itself.
func startServer(t *testing.T) *env {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := repository.WithTimeout(repository.NewRedisStore(rdb), time.Second)
	sim := simulator.NewPriceSimulator(50, 0.5, simulator.NewRealRand(), simulator.RealClock{})
	wsHub := hub.NewHub(store, sim, zap.NewNop(),
		hub.WithInterval(time.Hour),
		hub.WithSink("redis", repository.NewRedisSnapshotMirror(rdb)))

	handler := api.NewHandler(store, wsHub, config.DefaultTickers, zap.NewNop())
	router := api.NewRouter(handler, gateway.Handler(wsHub, zap.NewNop(), 16), "*", zap.NewNop())

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &env{server: server, mr: mr, hub: wsHub}
}

func connectWS(t *testing.T, serverURL, path string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(serverURL, "http") + path
	wsConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to connect to websocket: %v", err)
	}
	t.Cleanup(func() { wsConn.Close() })
	return wsConn
}

func readSnapshot(t *testing.T, c *websocket.Conn) models.Snapshot {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to receive snapshot: %v", err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(msg, &snap); err != nil {
		t.Fatalf("Snapshot is not valid JSON %q: %v", msg, err)
	}
	return snap
}

func request(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	resp.Body.Close()
	return resp
}

func TestEndToEnd_FullFlow(t *testing.T) {
	e := startServer(t)

	wsConn := connectWS(t, e.server.URL, "/ws")
	if snap := readSnapshot(t, wsConn); len(snap) != 0 {
		t.Fatalf("Expected empty initial snapshot, got %v", snap.Symbols())
	}

	resp := request(t, http.MethodPost, e.server.URL+"/add-symbols", `["MSFT","AAPL"]`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	snap := readSnapshot(t, wsConn)
	if got := strings.Join(snap.Symbols(), ","); got != "AAPL,MSFT" {
		t.Errorf("Expected AAPL,MSFT after add, got %s", got)
	}
	for _, q := range snap {
		if q.Price.IsNegative() || q.UpdatedAt.IsZero() {
			t.Errorf("Malformed quote %+v", q)
		}
	}

	resp = request(t, http.MethodDelete, e.server.URL+"/remove-symbol", `{"symbol":"MSFT"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if got := strings.Join(readSnapshot(t, wsConn).Symbols(), ","); got != "AAPL" {
		t.Errorf("Expected AAPL after remove, got %s", got)
	}

	if err := e.hub.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if got := strings.Join(readSnapshot(t, wsConn).Symbols(), ","); got != "AAPL" {
		t.Errorf("Removed symbol must not come back on tick, got %s", got)
	}

	mirrored, err := e.mr.Get("watchlist:snapshot")
	if err != nil || !strings.Contains(mirrored, "AAPL") {
		t.Errorf("Expected mirrored snapshot in Redis, got %q (%v)", mirrored, err)
	}
}

func TestEndToEnd_RemoveUnknown(t *testing.T) {
	e := startServer(t)

	resp := request(t, http.MethodDelete, e.server.URL+"/remove-symbol", `{"symbol":"ZZZZ"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestEndToEnd_NewViewerGetsCurrentState(t *testing.T) {
	e := startServer(t)
	request(t, http.MethodPost, e.server.URL+"/add-symbols", `["TSLA"]`)

	// Root path is where the original web client connects.
	wsConn := connectWS(t, e.server.URL, "/")
	if got := strings.Join(readSnapshot(t, wsConn).Symbols(), ","); got != "TSLA" {
		t.Errorf("Expected TSLA on connect, got %s", got)
	}
}

func TestEndToEnd_DisconnectUnregisters(t *testing.T) {
	e := startServer(t)

	wsConn := connectWS(t, e.server.URL, "/ws")
	readSnapshot(t, wsConn)
	if e.hub.Len() != 1 {
		t.Fatalf("Expected 1 session, got %d", e.hub.Len())
	}

	wsConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	wsConn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for e.hub.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if e.hub.Len() != 0 {
		t.Errorf("Session should unregister on disconnect, %d left", e.hub.Len())
	}
}

func TestEndToEnd_IsolationAcrossViewers(t *testing.T) {
	e := startServer(t)

	gone := connectWS(t, e.server.URL, "/ws")
	readSnapshot(t, gone)
	stay := connectWS(t, e.server.URL, "/ws")
	readSnapshot(t, stay)
	gone.Close()

	request(t, http.MethodPost, e.server.URL+"/add-symbols", `["NVDA"]`)
	if got := strings.Join(readSnapshot(t, stay).Symbols(), ","); got != "NVDA" {
		t.Errorf("Remaining viewer should still get updates, got %s", got)
	}
}

func TestEndToEnd_StockOptions(t *testing.T) {
	e := startServer(t)

	resp, err := http.Get(e.server.URL + "/get-stock-options")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	var options []string
	if err := json.NewDecoder(resp.Body).Decode(&options); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if len(options) != len(config.DefaultTickers) {
		t.Errorf("Expected %d options, got %d", len(config.DefaultTickers), len(options))
	}
}
