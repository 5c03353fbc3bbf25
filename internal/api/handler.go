// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package api

import (
	"encoding/json"
	"time"

	"hatd/internal/metrics"
	"hatd/internal/ports"
	"hatd/internal/scheduler"
	"hatd/internal/timer"
)

// Request is the unified JSON request format for all protocols
// Used by: HTTP POST /api, WebSocket, MQTT
type Request struct {
	Cmd      string `json:"cmd"`                // status, ports, get, set, enable, disable, timers, schedules
	Target   string `json:"target,omitempty"`   // port or timer id
	Line     string `json:"line,omitempty"`     // set: "low" / "high"
	Position *int64 `json:"position,omitempty"` // set: dial position
}

// Response is the unified JSON response format
type Response struct {
	Type   string      `json:"type"`             // status, ports, port, timers, timer, schedules, error, ok
	Target string      `json:"target,omitempty"` // echoes request target
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// StatusResponse is the data of a status response
type StatusResponse struct {
	Time          time.Time       `json:"time"`
	Ports         int             `json:"ports"`
	Timers        int             `json:"timers"`
	TimersEnabled int             `json:"timers_enabled"`
	Poll          *scheduler.Info `json:"poll,omitempty"`
}

// Handler processes unified API requests
type Handler struct {
	state     *ports.State
	timers    []*timer.Timer
	byID      map[string]*timer.Timer
	scheduler *scheduler.Scheduler
}

// NewHandler creates a new API handler
func NewHandler(state *ports.State, timers []*timer.Timer) *Handler {
	byID := make(map[string]*timer.Timer, len(timers))
	for _, t := range timers {
		byID[t.ID()] = t
	}
	return &Handler{state: state, timers: timers, byID: byID}
}

// SetScheduler attaches the poll loop reported by the status command
func (h *Handler) SetScheduler(s *scheduler.Scheduler) {
	h.scheduler = s
}

// Handle processes a request and returns a response
func (h *Handler) Handle(req *Request) *Response {
	switch req.Cmd {
	case "status":
		return h.handleStatus()
	case "ports":
		return &Response{Type: "ports", Data: h.state.Snapshot()}
	case "get":
		return h.handleGet(req.Target)
	case "set":
		return h.handleSet(req)
	case "enable":
		return h.handleEnable(req.Target, true)
	case "disable":
		return h.handleEnable(req.Target, false)
	case "timers":
		return h.handleTimers(req.Target)
	case "schedules":
		return h.handleSchedules(req.Target)
	default:
		return &Response{Type: "error", Error: "unknown command: " + req.Cmd}
	}
}

// HandleJSON parses JSON and returns JSON response
func (h *Handler) HandleJSON(data []byte) []byte {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		resp := &Response{Type: "error", Error: "invalid JSON: " + err.Error()}
		out, _ := json.Marshal(resp)
		return out
	}
	resp := h.Handle(&req)
	out, _ := json.Marshal(resp)
	return out
}

// Timer returns the timer with the given id
func (h *Handler) Timer(id string) (*timer.Timer, bool) {
	t, ok := h.byID[id]
	return t, ok
}

// Timers returns the status of every timer
func (h *Handler) Timers() []timer.Status {
	out := make([]timer.Status, len(h.timers))
	for i, t := range h.timers {
		out[i] = t.Status()
	}
	return out
}

func (h *Handler) handleStatus() *Response {
	status := StatusResponse{
		Time:   time.Now(),
		Ports:  len(h.state.Ports()),
		Timers: len(h.timers),
	}
	for _, t := range h.timers {
		if l, _ := t.Line(); l == ports.High {
			status.TimersEnabled++
		}
	}
	if h.scheduler != nil {
		info := h.scheduler.Info()
		status.Poll = &info
	}
	return &Response{Type: "status", Data: status}
}

func (h *Handler) handleGet(target string) *Response {
	if target == "" {
		return &Response{Type: "ports", Data: h.state.Snapshot()}
	}
	st, err := h.state.Status(target)
	if err != nil {
		return &Response{Type: "error", Target: target, Error: err.Error()}
	}
	return &Response{Type: "port", Target: target, Data: st}
}

func (h *Handler) handleSet(req *Request) *Response {
	if req.Target == "" {
		return &Response{Type: "error", Error: "target required"}
	}

	var err error
	switch {
	case req.Position != nil:
		err = h.state.SetPosition(req.Target, *req.Position)
	case req.Line != "":
		var l ports.Line
		if l, err = ports.ParseLine(req.Line); err == nil {
			err = h.state.SetLine(req.Target, l)
		}
	default:
		return &Response{Type: "error", Target: req.Target, Error: "line or position required"}
	}

	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("set").Inc()
		return &Response{Type: "error", Target: req.Target, Error: err.Error()}
	}
	metrics.CommandsTotal.WithLabelValues("set").Inc()
	return &Response{Type: "ok", Target: req.Target}
}

func (h *Handler) handleEnable(target string, enable bool) *Response {
	cmd := "disable"
	line := ports.Low
	if enable {
		cmd = "enable"
		line = ports.High
	}

	if target == "" {
		return &Response{Type: "error", Error: "target required"}
	}
	if _, ok := h.byID[target]; !ok {
		metrics.ErrorsTotal.WithLabelValues(cmd).Inc()
		return &Response{Type: "error", Target: target, Error: "timer not found"}
	}
	if err := h.state.SetLine(target, line); err != nil {
		metrics.ErrorsTotal.WithLabelValues(cmd).Inc()
		return &Response{Type: "error", Target: target, Error: err.Error()}
	}

	metrics.CommandsTotal.WithLabelValues(cmd).Inc()
	return &Response{Type: "ok", Target: target, Data: h.byID[target].Status()}
}

func (h *Handler) handleTimers(target string) *Response {
	if target == "" {
		return &Response{Type: "timers", Data: h.Timers()}
	}
	t, ok := h.byID[target]
	if !ok {
		return &Response{Type: "error", Target: target, Error: "timer not found"}
	}
	return &Response{Type: "timer", Target: target, Data: t.Status()}
}

func (h *Handler) handleSchedules(target string) *Response {
	if target == "" {
		return &Response{Type: "error", Error: "target required"}
	}
	t, ok := h.byID[target]
	if !ok {
		return &Response{Type: "error", Target: target, Error: "timer not found"}
	}
	return &Response{Type: "schedules", Target: target, Data: t.Status().Schedules}
}
