// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package timer implements timer ports. A timer is a digital port whose
// line enables or disables it. While enabled it keeps a time-ordered queue
// of schedule activations and deactivations and drives its output ports
// when they come due.
package timer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"hatd/internal/config"
	"hatd/internal/metrics"
	"hatd/internal/ports"
	"hatd/internal/schedule"
)

// DefaultClockJump is the poll gap above which schedules are recomputed
const DefaultClockJump = 5 * time.Second

// Registry resolves the ports a timer works with
type Registry interface {
	Digital(id string) (ports.Digital, error)
	Dial(id string) (ports.Dial, error)
}

// Option configures a Timer
type Option func(*Timer)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(t *Timer) { t.now = now }
}

// WithLocation sets the timezone of calendar fields and displayed timestamps
func WithLocation(loc *time.Location) Option {
	return func(t *Timer) { t.location = loc }
}

// WithClockJump sets the clock jump threshold
func WithClockJump(d time.Duration) Option {
	return func(t *Timer) {
		if d > 0 {
			t.clockJump = d
		}
	}
}

// Timer is a digital port driving output ports from schedules.
// Line high means enabled.
type Timer struct {
	ports.Notifier

	id        string
	cfg       config.TimerConfig
	logger    *slog.Logger
	now       func() time.Time
	location  *time.Location
	clockJump time.Duration
	resolver  *schedule.Resolver

	mu        sync.Mutex
	schedules []*schedule.Schedule
	outputs   []ports.Digital
	queue     *queue
	enabled   bool
	connected bool
	lastPoll  time.Time

	recompute atomic.Bool
	refresh   atomic.Bool
}

// New builds a timer and its schedules. Manual schedules are bound to
// their dial ports through reg. Output ports are resolved by Prepare.
func New(cfg config.TimerConfig, reg Registry, logger *slog.Logger, opts ...Option) (*Timer, error) {
	cfg.ApplyDefaults()

	t := &Timer{
		id:        cfg.ID,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		location:  time.Local,
		clockJump: DefaultClockJump,
		queue:     newQueue(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.resolver = schedule.NewResolver(t.location)

	for _, sc := range cfg.ActiveSchedules() {
		def := sc.Definition()
		if def.Type == schedule.Manual.String() {
			dial, err := reg.Dial(def.NodeID)
			if err != nil {
				return nil, fmt.Errorf("timer %s: schedule %s: %w", t.id, sc.Name, err)
			}
			def.Source = dialTime{dial}
			if w, ok := dial.(ports.Watchable); ok {
				w.Watch(t.RequestRecompute)
			}
		}

		s, err := schedule.Build(def)
		if err != nil {
			return nil, fmt.Errorf("timer %s: %w", t.id, err)
		}
		t.schedules = append(t.schedules, s)
	}

	return t, nil
}

// Prepare resolves the output ports and applies the configured initial line.
// It must be called once all ports are registered.
func (t *Timer) Prepare(reg Registry) error {
	outputs := make([]ports.Digital, 0, len(t.cfg.OutputPorts))
	for _, id := range t.cfg.OutputPorts {
		d, err := reg.Digital(id)
		if err != nil {
			return fmt.Errorf("timer %s: output: %w", t.id, err)
		}
		outputs = append(outputs, d)
	}

	t.mu.Lock()
	t.outputs = outputs
	t.mu.Unlock()

	if len(t.schedules) == 0 {
		t.logger.Warn("Timer has no schedules", "timer", t.id)
	}

	t.logger.Info("Timer prepared",
		"timer", t.id,
		"schedules", len(t.schedules),
		"outputs", len(outputs))

	if t.cfg.IsEnabled() {
		return t.SetLine(ports.High)
	}
	metrics.SetTimerEnabled(t.id, false)
	return nil
}

func (t *Timer) ID() string   { return t.id }
func (t *Timer) Type() string { return ports.TypeTimer }

// Line returns High while the timer is enabled
func (t *Timer) Line() (ports.Line, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enabled {
		return ports.High, nil
	}
	return ports.Low, nil
}

// SetLine enables (High) or disables (Low) the timer.
// Enabling recomputes all schedules from now. Disabling clears the queue
// and, with propagate_switch_off, sets all outputs low.
func (t *Timer) SetLine(l ports.Line) error {
	t.mu.Lock()
	changed := false
	switch {
	case l == ports.High && !t.enabled:
		now := t.now()
		t.enabled = true
		t.queue.reset()
		t.recomputeActivations(now)
		changed = true
		t.logger.Info("Timer enabled", "timer", t.id, "queued", t.queue.Len())

	case l == ports.Low && t.enabled:
		t.enabled = false
		t.queue.reset()
		for _, s := range t.schedules {
			s.NextEvent = time.Time{}
		}
		t.queueChanged()
		if t.cfg.PropagateSwitchOff {
			for _, out := range t.outputs {
				t.setOutput(out, ports.Low)
			}
		}
		changed = true
		t.logger.Info("Timer disabled", "timer", t.id)
	}
	enabled := t.enabled
	t.mu.Unlock()

	if changed {
		metrics.SetTimerEnabled(t.id, enabled)
		t.Notify()
	}
	return nil
}

// RequestRecompute asks the next DoWork call to recompute all activations
func (t *Timer) RequestRecompute() {
	t.recompute.Store(true)
}

// RefreshRequired reports and clears the flag raised by queue changes
func (t *Timer) RefreshRequired() bool {
	return t.refresh.Swap(false)
}

// DoWork runs one poll cycle. connected tells whether a controller is
// attached. It returns true if a notification or event was processed.
func (t *Timer) DoWork(connected bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	last := t.lastPoll
	t.lastPoll = now

	if !t.enabled {
		t.connected = connected
		return false
	}

	// the first poll has no reference to detect a jump from
	jumped := !last.IsZero() && absDuration(now.Sub(last)) > t.clockJump
	manual := t.recompute.Swap(false)
	if jumped || manual {
		if jumped {
			t.logger.Warn("Clock jump detected, recomputing schedules",
				"timer", t.id,
				"gap", now.Sub(last))
		} else {
			t.logger.Info("Manual time changed, recomputing schedules", "timer", t.id)
		}
		t.recomputeActivations(now)
	}

	if connected != t.connected {
		t.connected = connected
		kind := schedule.OnLogout
		if connected {
			kind = schedule.OnLogin
		}
		if i := t.firstOfKind(kind); i >= 0 {
			t.logger.Debug("Connection event", "timer", t.id, "connected", connected)
			t.activate(i, now)
			return true
		}
	}

	if jumped || manual {
		return true
	}

	n := t.queue.next()
	if n == nil || n.due.After(now) {
		return false
	}
	t.queue.take()
	if n.deactivate {
		t.deactivate(n.schedule)
	} else {
		t.activate(n.schedule, now)
	}
	t.queueChanged()
	return true
}

// firstOfKind returns the first non-exhausted schedule of kind, or -1
func (t *Timer) firstOfKind(kind schedule.Kind) int {
	for i, s := range t.schedules {
		if s.Kind() == kind && !s.Exhausted() {
			return i
		}
	}
	return -1
}

// activate fires a schedule. Caller holds t.mu.
func (t *Timer) activate(i int, now time.Time) {
	s := t.schedules[i]
	s.Occurrences++
	metrics.TimerOccurrences.WithLabelValues(t.id, s.Name).Inc()

	t.logger.Info("Schedule activated",
		"timer", t.id,
		"schedule", s.Name,
		"action", s.Action.String(),
		"occurrence", s.Occurrences)

	t.apply(s.Action, false)

	if s.Duration > 0 {
		t.enqueue(i, true, now.Add(s.Duration), now)
	}

	if rescheduled(s.Kind()) && !s.Exhausted() {
		t.scheduleNext(i, now)
	} else {
		s.NextEvent = time.Time{}
	}
	t.queueChanged()
}

// deactivate applies the inverse action of a schedule. Caller holds t.mu.
func (t *Timer) deactivate(i int) {
	s := t.schedules[i]
	t.logger.Info("Schedule deactivated",
		"timer", t.id,
		"schedule", s.Name)
	t.apply(s.Action, true)
}

// rescheduled reports whether a kind gets a new activation after firing.
// Manual schedules fire once per value of their dial.
func rescheduled(k schedule.Kind) bool {
	switch k {
	case schedule.Interval, schedule.Periodic, schedule.Astronomical:
		return true
	}
	return false
}

// resolvable reports whether a kind has a computable activation time
func resolvable(k schedule.Kind) bool {
	return k != schedule.OnLogin && k != schedule.OnLogout
}

// recomputeActivations drops all pending activations and computes them
// again from now. Pending deactivations are kept. Caller holds t.mu.
func (t *Timer) recomputeActivations(now time.Time) {
	t.queue.dropActivations()
	for i, s := range t.schedules {
		s.NextEvent = time.Time{}
		if !resolvable(s.Kind()) || s.Exhausted() {
			continue
		}
		// a one-shot schedule fires at most once
		if s.Kind() == schedule.Once && s.Occurrences > 0 {
			continue
		}
		t.scheduleNext(i, now)
	}
	t.queueChanged()
}

// scheduleNext resolves and queues the next activation. Caller holds t.mu.
func (t *Timer) scheduleNext(i int, now time.Time) {
	s := t.schedules[i]
	next, err := t.resolver.Resolve(s, now)
	if err != nil {
		s.NextEvent = time.Time{}
		if !errors.Is(err, schedule.ErrEventDriven) {
			metrics.TimerResolutionFailures.WithLabelValues(t.id, s.Name).Inc()
			t.logger.Debug("Schedule not scheduled",
				"timer", t.id,
				"schedule", s.Name,
				"error", err)
		}
		return
	}

	if t.enqueue(i, false, next, now) {
		s.NextEvent = next
		t.logger.Debug("Schedule queued",
			"timer", t.id,
			"schedule", s.Name,
			"at", next.In(t.location).Format(t.cfg.TimestampFormat))
	} else {
		s.NextEvent = time.Time{}
	}
}

// enqueue queues a notification unless it lies in the past. Caller holds t.mu.
func (t *Timer) enqueue(i int, deactivate bool, due, now time.Time) bool {
	if !due.After(now) {
		kind := "activation"
		if deactivate {
			kind = "deactivation"
		}
		metrics.TimerDropped.WithLabelValues(t.id, "stale").Inc()
		t.logger.Warn("Notification lies in the past, ignoring",
			"timer", t.id,
			"schedule", t.schedules[i].Name,
			"kind", kind,
			"due", due.In(t.location).Format(t.cfg.TimestampFormat))
		return false
	}
	t.queue.put(i, deactivate, due)
	return true
}

// apply sets the outputs for an action, or its inverse. Caller holds t.mu.
func (t *Timer) apply(action schedule.Action, inverse bool) {
	for _, out := range t.outputs {
		target := ports.High
		switch action {
		case schedule.SetLow:
			target = ports.Low
		case schedule.Toggle:
			cur, err := out.Line()
			if err != nil {
				metrics.ErrorsTotal.WithLabelValues("timer_output").Inc()
				t.logger.Warn("Cannot read output", "timer", t.id, "port", out.ID(), "error", err)
				continue
			}
			target = cur.Invert()
		}
		if inverse && action != schedule.Toggle {
			target = target.Invert()
		}
		t.setOutput(out, target)
	}
}

func (t *Timer) setOutput(out ports.Digital, l ports.Line) {
	if err := out.SetLine(l); err != nil {
		metrics.ErrorsTotal.WithLabelValues("timer_output").Inc()
		t.logger.Warn("Cannot set output", "timer", t.id, "port", out.ID(), "line", l.String(), "error", err)
	}
}

func (t *Timer) queueChanged() {
	t.refresh.Store(true)
	metrics.TimerQueueLength.WithLabelValues(t.id).Set(float64(t.queue.Len()))
}

// ExtendedState describes the timer for display: deactivated, not
// scheduled, or the local time of the next event
func (t *Timer) ExtendedState() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.extendedState()
}

func (t *Timer) extendedState() string {
	if !t.enabled {
		return t.cfg.DeactivatedText
	}
	next, ok := t.nextEvent()
	if !ok {
		return t.cfg.NotScheduledText
	}
	return t.cfg.NextEventText + next.In(t.location).Format(t.cfg.TimestampFormat)
}

// nextEvent returns the earliest future activation. Caller holds t.mu.
func (t *Timer) nextEvent() (time.Time, bool) {
	now := t.now()
	var earliest time.Time
	for _, s := range t.schedules {
		if s.NextEvent.IsZero() || !s.NextEvent.After(now) {
			continue
		}
		if earliest.IsZero() || s.NextEvent.Before(earliest) {
			earliest = s.NextEvent
		}
	}
	return earliest, !earliest.IsZero()
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// dialTime reads a manual schedule's instant from a dial port
type dialTime struct {
	dial ports.Dial
}

func (d dialTime) UnixTime() (int64, error) {
	return d.dial.Position()
}
