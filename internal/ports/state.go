// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package ports

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"hatd/internal/config"
	"hatd/internal/metrics"
)

// refresher is implemented by ports that flag UI-relevant changes themselves
type refresher interface {
	RefreshRequired() bool
}

// State is the registry of all ports. It pushes pre-marshaled JSON
// snapshots to subscribers whenever a port changes.
type State struct {
	logger *slog.Logger

	mu    sync.RWMutex
	order []Port
	byID  map[string]Port

	// Subscribers for state changes (WebSocket clients, MQTT)
	subsMu sync.RWMutex
	subs   map[chan []byte]struct{}

	dirty       chan struct{}
	stopRefresh chan struct{}
	refreshDone chan struct{}
}

// NewState creates an empty registry
func NewState(logger *slog.Logger) *State {
	return &State{
		logger: logger,
		byID:   make(map[string]Port),
		subs:   make(map[chan []byte]struct{}),
		dirty:  make(chan struct{}, 1),
	}
}

// FromConfig creates the digital, GPIO and dial ports of cfg.
// With dryRun, GPIO ports are replaced by memory ports.
func FromConfig(cfg []config.PortConfig, dryRun bool, logger *slog.Logger) ([]Port, error) {
	out := make([]Port, 0, len(cfg))
	for _, pc := range cfg {
		line, err := ParseLine(pc.Line)
		if err != nil {
			return nil, fmt.Errorf("port %s: %w", pc.ID, err)
		}

		switch pc.Type {
		case config.PortDigital:
			out = append(out, NewMemoryDigital(pc.ID, line))
		case config.PortGPIO:
			if dryRun {
				logger.Info("Dry run: GPIO port simulated in memory", "port", pc.ID, "chip", pc.Chip, "pin", pc.Pin)
				out = append(out, NewMemoryDigital(pc.ID, line))
				continue
			}
			g, err := NewGPIODigital(pc.ID, pc.Chip, pc.Pin, pc.ActiveLow, line)
			if err != nil {
				return nil, fmt.Errorf("port %s: %w", pc.ID, err)
			}
			out = append(out, g)
		case config.PortDial:
			d, err := NewMemoryDial(pc.ID, pc.Unit, DialRange{Min: pc.Min, Max: pc.Max, Step: pc.Step}, pc.Position)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		default:
			return nil, fmt.Errorf("port %s: unknown type %q", pc.ID, pc.Type)
		}
	}
	return out, nil
}

// Add registers a port. Ids must be unique.
func (s *State) Add(p Port) error {
	s.mu.Lock()
	if _, ok := s.byID[p.ID()]; ok {
		s.mu.Unlock()
		return fmt.Errorf("duplicate port id %q", p.ID())
	}
	s.byID[p.ID()] = p
	s.order = append(s.order, p)
	s.mu.Unlock()

	if w, ok := p.(Watchable); ok {
		w.Watch(s.markDirty)
	}
	return nil
}

// Get returns the port with the given id
func (s *State) Get(id string) (Port, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	return p, ok
}

// Ports returns all ports in registration order
func (s *State) Ports() []Port {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Port, len(s.order))
	copy(out, s.order)
	return out
}

// Digital returns the digital port with the given id
func (s *State) Digital(id string) (Digital, error) {
	p, ok := s.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	d, ok := p.(Digital)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a digital port", ErrWrongType, id)
	}
	return d, nil
}

// Dial returns the dial port with the given id
func (s *State) Dial(id string) (Dial, error) {
	p, ok := s.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	d, ok := p.(Dial)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a dial port", ErrWrongType, id)
	}
	return d, nil
}

// SetLine sets the line of a digital or timer port
func (s *State) SetLine(id string, l Line) error {
	d, err := s.Digital(id)
	if err != nil {
		return err
	}
	if err := d.SetLine(l); err != nil {
		return err
	}
	s.broadcastState()
	return nil
}

// SetPosition sets the position of a dial port
func (s *State) SetPosition(id string, pos int64) error {
	d, err := s.Dial(id)
	if err != nil {
		return err
	}
	if err := d.SetPosition(pos); err != nil {
		return err
	}
	s.broadcastState()
	return nil
}

// Status returns the snapshot of a single port
func (s *State) Status(id string) (PortStatus, error) {
	p, ok := s.Get(id)
	if !ok {
		return PortStatus{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return statusOf(p), nil
}

// Snapshot returns the status of all ports in registration order
func (s *State) Snapshot() []PortStatus {
	list := s.Ports()
	out := make([]PortStatus, len(list))
	for i, p := range list {
		out[i] = statusOf(p)
	}
	return out
}

func statusOf(p Port) PortStatus {
	st := PortStatus{ID: p.ID(), Type: p.Type()}

	switch v := p.(type) {
	case Digital:
		l, err := v.Line()
		if err != nil {
			st.Error = err.Error()
		} else {
			st.Line = l.String()
		}
	case Dial:
		st.Unit = v.Unit()
		if pos, err := v.Position(); err == nil {
			st.Position = &pos
		}
		if r, ok := p.(interface{ Range() DialRange }); ok {
			st.Min, st.Max = r.Range().Min, r.Range().Max
		}
	}

	if e, ok := p.(Stateful); ok {
		st.State = e.ExtendedState()
	}
	return st
}

// Message returns the marshaled snapshot with the given message type
func (s *State) Message(typ string) []byte {
	data, _ := json.Marshal(StateUpdate{Type: typ, Ports: s.Snapshot()})
	return data
}

// Subscribe returns a channel that receives pre-marshaled JSON state updates
func (s *State) Subscribe() chan []byte {
	ch := make(chan []byte, 100)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber
func (s *State) Unsubscribe(ch chan []byte) {
	s.subsMu.Lock()
	delete(s.subs, ch)
	close(ch)
	s.subsMu.Unlock()
}

// markDirty schedules an asynchronous broadcast
func (s *State) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// broadcastState sends current state to all subscribers and updates line metrics
func (s *State) broadcastState() {
	// a pending dirty flag is covered by this broadcast
	select {
	case <-s.dirty:
	default:
	}

	snapshot := s.Snapshot()
	for _, st := range snapshot {
		if st.Line != "" {
			metrics.SetPortLine(st.ID, st.Line == High.String())
		}
	}

	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	if len(s.subs) == 0 {
		return
	}

	data, _ := json.Marshal(StateUpdate{Type: "state", Ports: snapshot})
	for ch := range s.subs {
		select {
		case ch <- data:
		default:
			// Channel full, skip
		}
	}
}

// flagInterval is how often the refresh flags of timers are checked
const flagInterval = 100 * time.Millisecond

// StartRefresh starts the broadcaster. Line changes and raised refresh
// flags are pushed as they happen; the full state is also rebroadcast
// every interval (0 = changes only).
func (s *State) StartRefresh(interval time.Duration) {
	s.stopRefresh = make(chan struct{})
	s.refreshDone = make(chan struct{})

	go func() {
		defer close(s.refreshDone)

		var tick <-chan time.Time
		if interval > 0 {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			tick = ticker.C
		}
		flags := time.NewTicker(flagInterval)
		defer flags.Stop()

		s.logger.Info("State refresh started", "interval", interval)

		for {
			select {
			case <-tick:
				s.consumeRefreshFlags()
				s.broadcastState()
			case <-flags.C:
				if s.consumeRefreshFlags() {
					s.broadcastState()
				}
			case <-s.dirty:
				s.consumeRefreshFlags()
				s.broadcastState()
			case <-s.stopRefresh:
				s.logger.Info("State refresh stopped")
				return
			}
		}
	}()
}

// StopRefresh stops the broadcaster and waits for it to exit
func (s *State) StopRefresh() {
	if s.stopRefresh != nil {
		close(s.stopRefresh)
		<-s.refreshDone
		s.stopRefresh = nil
	}
}

// consumeRefreshFlags clears the refresh flags raised by timers and
// reports whether any was set
func (s *State) consumeRefreshFlags() bool {
	raised := false
	for _, p := range s.Ports() {
		if r, ok := p.(refresher); ok && r.RefreshRequired() {
			raised = true
		}
	}
	return raised
}

// Close releases ports holding hardware resources
func (s *State) Close() {
	for _, p := range s.Ports() {
		c, ok := p.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			s.logger.Warn("Failed to close port", "port", p.ID(), "error", err)
		}
	}
}
