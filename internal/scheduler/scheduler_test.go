// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package scheduler

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"hatd/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeWorker struct {
	mu        sync.Mutex
	calls     int
	connected []bool
	work      bool
}

func (w *fakeWorker) ID() string { return "fake" }

func (w *fakeWorker) DoWork(connected bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	w.connected = append(w.connected, connected)
	return w.work
}

func (w *fakeWorker) Calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

type staticLink bool

func (l staticLink) Connected() bool { return bool(l) }

func TestPollPassesConnection(t *testing.T) {
	w := &fakeWorker{}
	s := New([]Worker{w}, staticLink(true), config.PollConfig{IntervalMs: 5}, testLogger())

	s.Poll()
	if len(w.connected) != 1 || !w.connected[0] {
		t.Errorf("expected connected=true, got %v", w.connected)
	}

	s = New([]Worker{w}, nil, config.PollConfig{IntervalMs: 5}, testLogger())
	s.Poll()
	if w.connected[1] {
		t.Error("expected nil link to report disconnected")
	}
}

func TestPollReportsWork(t *testing.T) {
	idle := &fakeWorker{}
	busy := &fakeWorker{work: true}

	s := New([]Worker{idle, busy}, nil, config.PollConfig{IntervalMs: 5}, testLogger())
	if !s.Poll() {
		t.Error("expected work reported")
	}
	if idle.Calls() != 1 || busy.Calls() != 1 {
		t.Error("expected every worker polled once")
	}

	s = New([]Worker{idle}, nil, config.PollConfig{IntervalMs: 5}, testLogger())
	if s.Poll() {
		t.Error("expected no work reported")
	}
}

func TestAnyLink(t *testing.T) {
	if (AnyLink{}).Connected() {
		t.Error("empty link should be disconnected")
	}
	if (AnyLink{staticLink(false), nil}).Connected() {
		t.Error("expected disconnected")
	}
	if !(AnyLink{staticLink(false), staticLink(true)}).Connected() {
		t.Error("expected connected")
	}
}

func TestIdleBackoff(t *testing.T) {
	s := New(nil, nil, config.PollConfig{IntervalMs: 10}, testLogger())
	now := time.Now()

	s.lastWork = now
	if got := s.nextInterval(now.Add(500 * time.Millisecond)); got != 10*time.Millisecond {
		t.Errorf("expected base interval, got %s", got)
	}
	if got := s.nextInterval(now.Add(2 * time.Second)); got != 40*time.Millisecond {
		t.Errorf("expected idle interval, got %s", got)
	}
}

func TestStartStop(t *testing.T) {
	w := &fakeWorker{}
	s := New([]Worker{w}, nil, config.PollConfig{IntervalMs: 1}, testLogger())

	s.Start()
	s.Start() // no-op
	deadline := time.Now().Add(time.Second)
	for w.Calls() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	s.Stop() // no-op

	if w.Calls() < 3 {
		t.Errorf("expected at least 3 polls, got %d", w.Calls())
	}
	if s.Info().Running {
		t.Error("expected scheduler stopped")
	}

	calls := w.Calls()
	time.Sleep(20 * time.Millisecond)
	if w.Calls() != calls {
		t.Error("worker polled after Stop")
	}
}

func TestDefaultInterval(t *testing.T) {
	s := New(nil, nil, config.PollConfig{}, testLogger())
	if s.Info().IntervalMs != 5 {
		t.Errorf("expected default interval 5ms, got %d", s.Info().IntervalMs)
	}
}
