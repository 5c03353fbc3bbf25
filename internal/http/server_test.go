// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"hatd/internal/api"
	"hatd/internal/config"
	"hatd/internal/ports"
	"hatd/internal/timer"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{HTTP: ":8080"},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupServer(t *testing.T) (*Server, *ports.State) {
	t.Helper()
	logger := testLogger()
	state := ports.NewState(logger)

	if err := state.Add(ports.NewMemoryDigital("lamp", ports.Low)); err != nil {
		t.Fatal(err)
	}
	dial, err := ports.NewMemoryDial("level", "", ports.DialRange{Min: 0, Max: 10}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := state.Add(dial); err != nil {
		t.Fatal(err)
	}

	tm, err := timer.New(config.TimerConfig{
		ID:          "porch",
		OutputPorts: []string{"lamp"},
		Schedules: []config.ScheduleConfig{
			{Name: "hourly", Type: "Interval", Hour: "1"},
		},
	}, state, logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := state.Add(tm); err != nil {
		t.Fatal(err)
	}
	if err := tm.Prepare(state); err != nil {
		t.Fatal(err)
	}

	handler := api.NewHandler(state, []*timer.Timer{tm})
	return NewServer(testConfig(), state, handler, logger), state
}

func TestHandlePorts(t *testing.T) {
	server, _ := setupServer(t)

	req := httptest.NewRequest("GET", "/api/ports", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var result []ports.PortStatus
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(result) != 3 {
		t.Errorf("expected 3 ports, got %d", len(result))
	}
	if result[2].Type != "timer" || result[2].State == "" {
		t.Errorf("expected timer with extended state, got %+v", result[2])
	}
}

func TestHandlePortGet(t *testing.T) {
	server, _ := setupServer(t)

	req := httptest.NewRequest("GET", "/api/ports/lamp", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var result ports.PortStatus
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if result.ID != "lamp" || result.Line != "low" {
		t.Errorf("unexpected port %+v", result)
	}
}

func TestHandlePortNotFound(t *testing.T) {
	server, _ := setupServer(t)

	for _, method := range []string{"GET", "PUT"} {
		req := httptest.NewRequest(method, "/api/ports/nonexistent", strings.NewReader(`{"line":"high"}`))
		w := httptest.NewRecorder()
		server.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected status 404, got %d", method, w.Code)
		}
	}
}

func TestHandlePortPut(t *testing.T) {
	server, state := setupServer(t)

	req := httptest.NewRequest("PUT", "/api/ports/level", strings.NewReader(`{"position": 7}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	d, _ := state.Dial("level")
	if pos, _ := d.Position(); pos != 7 {
		t.Errorf("expected position 7, got %d", pos)
	}

	req = httptest.NewRequest("PUT", "/api/ports/level", strings.NewReader(`{"position": 70}`))
	w = httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestHandleTimers(t *testing.T) {
	server, _ := setupServer(t)

	req := httptest.NewRequest("GET", "/api/timers", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	var result []timer.Status
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(result) != 1 || result[0].ID != "porch" || !result[0].Enabled {
		t.Errorf("unexpected timers %+v", result)
	}
}

func TestHandleTimerDisable(t *testing.T) {
	server, _ := setupServer(t)

	req := httptest.NewRequest("PUT", "/api/timers/porch", strings.NewReader(`{"enabled": false}`))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var result timer.Status
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if result.Enabled || result.QueueLength != 0 {
		t.Errorf("expected disabled timer with empty queue, got %+v", result)
	}

	req = httptest.NewRequest("PUT", "/api/timers/porch", strings.NewReader(`{}`))
	w = httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestHandleTimerNotFound(t *testing.T) {
	server, _ := setupServer(t)

	req := httptest.NewRequest("GET", "/api/timers/lamp", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestHandleAPIMethodNotAllowed(t *testing.T) {
	server, _ := setupServer(t)

	req := httptest.NewRequest("GET", "/api", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}

func TestHandleAPI(t *testing.T) {
	server, _ := setupServer(t)

	req := httptest.NewRequest("POST", "/api", strings.NewReader(`{"cmd":"set","target":"lamp","line":"high"}`))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	var resp api.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Type != "ok" {
		t.Errorf("expected ok, got %s: %s", resp.Type, resp.Error)
	}
}

func TestHandleHealth(t *testing.T) {
	server, _ := setupServer(t)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	var result HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if result.Goroutines == 0 || result.GoVersion == "" {
		t.Errorf("unexpected health %+v", result)
	}
}

func TestStaticFiles(t *testing.T) {
	server, _ := setupServer(t)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Home Automation Timers") {
		t.Error("index.html should contain 'Home Automation Timers'")
	}
}

func TestWebSocketClientIsController(t *testing.T) {
	server, _ := setupServer(t)
	ts := httptest.NewServer(server)
	defer ts.Close()

	if server.Connected() {
		t.Fatal("expected no controller before connect")
	}

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var init ports.StateUpdate
	if err := conn.ReadJSON(&init); err != nil {
		t.Fatalf("read init failed: %v", err)
	}
	if init.Type != "init" || len(init.Ports) != 3 {
		t.Errorf("unexpected init message %+v", init)
	}
	if !server.Connected() {
		t.Error("expected controller connected")
	}

	if err := conn.WriteJSON(api.Request{Cmd: "get", Target: "lamp"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var resp api.Response
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read response failed: %v", err)
	}
	if resp.Type != "port" || resp.Target != "lamp" {
		t.Errorf("unexpected response %+v", resp)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for server.Connected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if server.Connected() {
		t.Error("expected controller disconnected after close")
	}
}
