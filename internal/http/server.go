// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package http

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hatd/internal/api"
	"hatd/internal/config"
	"hatd/internal/ports"
)

var startTime = time.Now()

//go:embed static/*
var staticFiles embed.FS

// HealthResponse for /api/health endpoint
type HealthResponse struct {
	UptimeSec  int     `json:"uptime_sec"`
	UptimeStr  string  `json:"uptime_str"`
	Goroutines int     `json:"goroutines"`
	Clients    int     `json:"ws_clients"`
	CPULoad1m  float64 `json:"cpu_load_1m"`
	CPULoad5m  float64 `json:"cpu_load_5m"`
	CPULoad15m float64 `json:"cpu_load_15m"`
	MemAllocMB float64 `json:"mem_alloc_mb"`
	MemSysMB   float64 `json:"mem_sys_mb"`
	GCRuns     uint32  `json:"gc_runs"`
	GoVersion  string  `json:"go_version"`
}

// Server is the HTTP/WebSocket server. Attached WebSocket clients count
// as a connected controller.
type Server struct {
	cfg      *config.Config
	state    *ports.State
	api      *api.Handler
	logger   *slog.Logger
	server   *http.Server
	upgrader websocket.Upgrader
	clients  atomic.Int32
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, state *ports.State, handler *api.Handler, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		state:  state,
		api:    handler,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// Unified API endpoint (JSON POST)
	mux.HandleFunc("/api", s.handleAPI)

	// REST API
	mux.HandleFunc("/api/ports", s.handlePorts)
	mux.HandleFunc("/api/ports/", s.handlePort)
	mux.HandleFunc("/api/timers", s.handleTimers)
	mux.HandleFunc("/api/timers/", s.handleTimer)
	mux.HandleFunc("/api/health", s.handleHealth)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	// Static files
	staticFS, _ := fs.Sub(staticFiles, "static")
	mux.Handle("/", http.FileServer(http.FS(staticFS)))

	s.server = &http.Server{
		Addr:    cfg.Server.HTTP,
		Handler: mux,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.cfg.Server.HTTP)
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Connected reports whether at least one WebSocket client is attached
func (s *Server) Connected() bool {
	return s.clients.Load() > 0
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	n := s.clients.Add(1)
	defer s.clients.Add(-1)
	s.logger.Debug("WebSocket client connected", "remote", r.RemoteAddr, "clients", n)

	updates := s.state.Subscribe()
	defer s.state.Unsubscribe(updates)

	// all writes go through the loop below
	outgoing := make(chan []byte, 100)
	done := make(chan struct{})

	outgoing <- s.state.Message("init")

	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					s.logger.Debug("WebSocket read error", "error", err)
				}
				return
			}
			select {
			case outgoing <- s.api.HandleJSON(message):
			default:
				s.logger.Warn("WebSocket client too slow, response dropped", "remote", r.RemoteAddr)
			}
		}
	}()

	for {
		select {
		case data := <-outgoing:
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("WebSocket write error", "error", err)
				return
			}
		case data, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("WebSocket write error", "error", err)
				return
			}
		case <-done:
			s.logger.Debug("WebSocket client disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}

// handleAPI handles the unified JSON API endpoint
func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	resp := s.api.HandleJSON(body)
	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}

// REST API Handlers

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, s.state.Snapshot())
}

func (s *Server) handlePort(w http.ResponseWriter, r *http.Request) {
	// Path: /api/ports/{id}
	id := strings.TrimPrefix(r.URL.Path, "/api/ports/")
	if id == "" {
		http.Error(w, "Missing port id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		st, err := s.state.Status(id)
		if errors.Is(err, ports.ErrNotFound) {
			http.Error(w, "Port not found", http.StatusNotFound)
			return
		}
		s.jsonResponse(w, st)
	case http.MethodPut:
		var body struct {
			Line     string `json:"line"`
			Position *int64 `json:"position"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, ok := s.state.Get(id); !ok {
			http.Error(w, "Port not found", http.StatusNotFound)
			return
		}
		resp := s.api.Handle(&api.Request{Cmd: "set", Target: id, Line: body.Line, Position: body.Position})
		if resp.Type == "error" {
			http.Error(w, resp.Error, http.StatusBadRequest)
			return
		}
		s.jsonResponse(w, map[string]string{"status": "ok"})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTimers(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, s.api.Timers())
}

func (s *Server) handleTimer(w http.ResponseWriter, r *http.Request) {
	// Path: /api/timers/{id}
	id := strings.TrimPrefix(r.URL.Path, "/api/timers/")
	t, ok := s.api.Timer(id)
	if !ok {
		http.Error(w, "Timer not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.jsonResponse(w, t.Status())
	case http.MethodPut:
		var body struct {
			Enabled *bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if body.Enabled == nil {
			http.Error(w, "enabled required", http.StatusBadRequest)
			return
		}
		cmd := "disable"
		if *body.Enabled {
			cmd = "enable"
		}
		resp := s.api.Handle(&api.Request{Cmd: cmd, Target: id})
		if resp.Type == "error" {
			http.Error(w, resp.Error, http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, resp.Data)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	// Linux only
	var load1, load5, load15 float64
	if data, err := os.ReadFile("/proc/loadavg"); err == nil {
		fmt.Sscanf(string(data), "%f %f %f", &load1, &load5, &load15)
	}

	s.jsonResponse(w, HealthResponse{
		UptimeSec:  int(time.Since(startTime).Seconds()),
		UptimeStr:  time.Since(startTime).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		Clients:    int(s.clients.Load()),
		CPULoad1m:  load1,
		CPULoad5m:  load5,
		CPULoad15m: load15,
		MemAllocMB: float64(m.Alloc) / 1024 / 1024,
		MemSysMB:   float64(m.Sys) / 1024 / 1024,
		GCRuns:     m.NumGC,
		GoVersion:  runtime.Version(),
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// Helper for tests
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// Addr returns the server address
func (s *Server) Addr() string {
	return s.cfg.Server.HTTP
}
