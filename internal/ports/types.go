// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package ports

import (
	"errors"
	"fmt"
	"strings"
)

// Port types
const (
	TypeDigital = "digital"
	TypeGPIO    = "gpio"
	TypeDial    = "dial"
	TypeTimer   = "timer"
)

// UnitUnixTime marks a dial whose position is a unix timestamp in seconds
const UnitUnixTime = "unixTime"

var (
	ErrNotFound   = errors.New("port not found")
	ErrWrongType  = errors.New("port has wrong type")
	ErrUnset      = errors.New("position not set")
	ErrOutOfRange = errors.New("position out of range")
)

// Line is the state of a digital port
type Line int

const (
	Low Line = iota
	High
)

func (l Line) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// Invert returns the opposite line
func (l Line) Invert() Line {
	if l == High {
		return Low
	}
	return High
}

// ParseLine accepts low/high, off/on and 0/1
func ParseLine(s string) (Line, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "low", "off", "0":
		return Low, nil
	case "high", "on", "1":
		return High, nil
	}
	return Low, fmt.Errorf("invalid line %q", s)
}

// Port is anything addressable by id
type Port interface {
	ID() string
	Type() string
}

// Digital is a two-state port
type Digital interface {
	Port
	Line() (Line, error)
	SetLine(Line) error
}

// Dial is a port holding an integer position
type Dial interface {
	Port
	Position() (int64, error)
	SetPosition(int64) error
	Unit() string
}

// Watchable ports call registered functions after their state changed
type Watchable interface {
	Watch(fn func())
}

// Stateful ports expose a human readable extended state
type Stateful interface {
	ExtendedState() string
}

// PortStatus is the snapshot of one port sent to API clients
type PortStatus struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Line     string `json:"line,omitempty"`
	Position *int64 `json:"position,omitempty"`
	Unit     string `json:"unit,omitempty"`
	Min      int64  `json:"min,omitempty"`
	Max      int64  `json:"max,omitempty"`
	State    string `json:"state,omitempty"`
	Error    string `json:"error,omitempty"`
}

// StateUpdate is the message pushed to subscribers
type StateUpdate struct {
	Type  string       `json:"type"` // always "state"
	Ports []PortStatus `json:"ports"`
}
