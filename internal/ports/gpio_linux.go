// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

//go:build linux

package ports

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// GPIODigital drives a GPIO output line through the Linux GPIO character device
type GPIODigital struct {
	Notifier

	id   string
	mu   sync.Mutex
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewGPIODigital requests pin on chip (e.g. "gpiochip0") as an output
func NewGPIODigital(id, chip string, pin int, activeLow bool, initial Line) (*GPIODigital, error) {
	c, err := gpiocdev.NewChip(chip, gpiocdev.WithConsumer("hatd"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chip, err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(int(initial))}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	l, err := c.RequestLine(pin, opts...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("request pin %d: %w", pin, err)
	}

	return &GPIODigital{id: id, chip: c, line: l}, nil
}

func (g *GPIODigital) ID() string   { return g.id }
func (g *GPIODigital) Type() string { return TypeGPIO }

// Line reads the logical line value
func (g *GPIODigital) Line() (Line, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, err := g.line.Value()
	if err != nil {
		return Low, fmt.Errorf("read %s: %w", g.id, err)
	}
	if v != 0 {
		return High, nil
	}
	return Low, nil
}

// SetLine writes the logical line value
func (g *GPIODigital) SetLine(l Line) error {
	g.mu.Lock()
	v, err := g.line.Value()
	if err == nil && v == int(l) {
		g.mu.Unlock()
		return nil
	}
	err = g.line.SetValue(int(l))
	g.mu.Unlock()
	if err != nil {
		return fmt.Errorf("write %s: %w", g.id, err)
	}
	g.Notify()
	return nil
}

// Close releases the line and the chip
func (g *GPIODigital) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var errs []error
	if g.line != nil {
		if err := g.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
