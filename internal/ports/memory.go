// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package ports

import (
	"fmt"
	"sync"
)

// Notifier keeps change callbacks. Callbacks run without any port lock held.
type Notifier struct {
	mu  sync.Mutex
	fns []func()
}

// Watch registers fn
func (n *Notifier) Watch(fn func()) {
	n.mu.Lock()
	n.fns = append(n.fns, fn)
	n.mu.Unlock()
}

// Notify calls every registered callback
func (n *Notifier) Notify() {
	n.mu.Lock()
	fns := n.fns
	n.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// MemoryDigital is a digital port backed by memory only
type MemoryDigital struct {
	Notifier

	id   string
	mu   sync.RWMutex
	line Line
}

// NewMemoryDigital creates a digital port with an initial line
func NewMemoryDigital(id string, initial Line) *MemoryDigital {
	return &MemoryDigital{id: id, line: initial}
}

func (d *MemoryDigital) ID() string   { return d.id }
func (d *MemoryDigital) Type() string { return TypeDigital }

// Line returns the current line
func (d *MemoryDigital) Line() (Line, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.line, nil
}

// SetLine sets the line and notifies watchers on change
func (d *MemoryDigital) SetLine(l Line) error {
	d.mu.Lock()
	changed := d.line != l
	d.line = l
	d.mu.Unlock()

	if changed {
		d.Notify()
	}
	return nil
}

// DialRange bounds a dial. Step 0 or 1 allows every integer.
type DialRange struct {
	Min, Max, Step int64
}

// MemoryDial is a dial port backed by memory. It has no position until
// the first SetPosition unless created with an initial one.
type MemoryDial struct {
	Notifier

	id    string
	unit  string
	rng   DialRange
	mu    sync.RWMutex
	pos   int64
	isSet bool
}

// NewMemoryDial creates a dial; initial may be nil
func NewMemoryDial(id, unit string, rng DialRange, initial *int64) (*MemoryDial, error) {
	d := &MemoryDial{id: id, unit: unit, rng: rng}
	if initial != nil {
		if err := d.check(*initial); err != nil {
			return nil, fmt.Errorf("dial %s: %w", id, err)
		}
		d.pos = *initial
		d.isSet = true
	}
	return d, nil
}

func (d *MemoryDial) ID() string       { return d.id }
func (d *MemoryDial) Type() string     { return TypeDial }
func (d *MemoryDial) Unit() string     { return d.unit }
func (d *MemoryDial) Range() DialRange { return d.rng }

// Position returns the current position or ErrUnset
func (d *MemoryDial) Position() (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.isSet {
		return 0, ErrUnset
	}
	return d.pos, nil
}

// SetPosition validates and stores a position
func (d *MemoryDial) SetPosition(pos int64) error {
	if err := d.check(pos); err != nil {
		return err
	}

	d.mu.Lock()
	changed := !d.isSet || d.pos != pos
	d.pos = pos
	d.isSet = true
	d.mu.Unlock()

	if changed {
		d.Notify()
	}
	return nil
}

// UnixTime returns the position as unix seconds
func (d *MemoryDial) UnixTime() (int64, error) {
	if d.unit != UnitUnixTime {
		return 0, fmt.Errorf("dial %s: unit is %q, not %s", d.id, d.unit, UnitUnixTime)
	}
	return d.Position()
}

func (d *MemoryDial) check(pos int64) error {
	if d.rng.Max > d.rng.Min && (pos < d.rng.Min || pos > d.rng.Max) {
		return fmt.Errorf("%w: %d not in %d..%d", ErrOutOfRange, pos, d.rng.Min, d.rng.Max)
	}
	if d.rng.Step > 1 && (pos-d.rng.Min)%d.rng.Step != 0 {
		return fmt.Errorf("%w: %d is not a multiple of step %d", ErrOutOfRange, pos, d.rng.Step)
	}
	return nil
}
