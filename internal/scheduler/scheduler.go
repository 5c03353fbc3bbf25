// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package scheduler

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"hatd/internal/config"
	"hatd/internal/metrics"
)

// IdleAfter is the time without work after which polling slows down
const IdleAfter = time.Second

// IdleFactor multiplies the poll interval while idle
const IdleFactor = 4

// Worker is polled on every cycle. DoWork reports whether it did anything.
type Worker interface {
	ID() string
	DoWork(connected bool) bool
}

// Link reports whether a controller is attached
type Link interface {
	Connected() bool
}

// AnyLink is connected when any of its links is
type AnyLink []Link

// Connected implements Link
func (a AnyLink) Connected() bool {
	for _, l := range a {
		if l != nil && l.Connected() {
			return true
		}
	}
	return false
}

// Scheduler runs the poll loop driving all timers
type Scheduler struct {
	workers  []Worker
	link     Link
	logger   *slog.Logger
	interval time.Duration

	mu       sync.Mutex
	lastWork time.Time
	stopChan chan struct{}
	done     chan struct{}
	running  bool

	cycles atomic.Uint64
}

// Info describes the poll loop for status queries
type Info struct {
	Running    bool   `json:"running"`
	IntervalMs int64  `json:"interval_ms"`
	Cycles     uint64 `json:"cycles"`
	Workers    int    `json:"workers"`
}

// New creates a new scheduler. link may be nil (never connected).
func New(workers []Worker, link Link, cfg config.PollConfig, logger *slog.Logger) *Scheduler {
	interval := cfg.Interval()
	if interval <= 0 {
		interval = 5 * time.Millisecond
	}
	return &Scheduler{
		workers:  workers,
		link:     link,
		logger:   logger,
		interval: interval,
	}
}

// Start begins the poll loop
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	s.lastWork = time.Now()
	s.mu.Unlock()

	go s.loop()
	s.logger.Info("Scheduler started", "timers", len(s.workers), "interval", s.interval)
}

// Stop stops the poll loop and waits for the current cycle to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("Scheduler stopped", "cycles", s.cycles.Load())
}

func (s *Scheduler) loop() {
	defer close(s.done)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			now := time.Now()
			if s.Poll() {
				s.mu.Lock()
				s.lastWork = now
				s.mu.Unlock()
			}
			timer.Reset(s.nextInterval(now))
		case <-s.stopChan:
			return
		}
	}
}

// Poll runs one cycle over all workers and reports whether any did work
func (s *Scheduler) Poll() bool {
	connected := s.link != nil && s.link.Connected()

	worked := false
	for _, w := range s.workers {
		if w.DoWork(connected) {
			worked = true
		}
	}
	s.cycles.Add(1)
	metrics.PollCycles.Inc()
	return worked
}

// nextInterval backs off while nothing happened for IdleAfter
func (s *Scheduler) nextInterval(now time.Time) time.Duration {
	s.mu.Lock()
	idle := now.Sub(s.lastWork) > IdleAfter
	s.mu.Unlock()
	if idle {
		return s.interval * IdleFactor
	}
	return s.interval
}

// Info returns the state of the poll loop
func (s *Scheduler) Info() Info {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return Info{
		Running:    running,
		IntervalMs: s.interval.Milliseconds(),
		Cycles:     s.cycles.Load(),
		Workers:    len(s.workers),
	}
}
