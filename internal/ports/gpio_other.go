// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

//go:build !linux

package ports

import "errors"

// GPIODigital is not available on non-Linux platforms
type GPIODigital struct {
	Notifier
}

// NewGPIODigital returns an error on non-Linux platforms
func NewGPIODigital(id, chip string, pin int, activeLow bool, initial Line) (*GPIODigital, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

func (g *GPIODigital) ID() string   { return "" }
func (g *GPIODigital) Type() string { return TypeGPIO }

func (g *GPIODigital) Line() (Line, error) {
	return Low, errors.New("gpio: not supported")
}

func (g *GPIODigital) SetLine(Line) error {
	return errors.New("gpio: not supported")
}

func (g *GPIODigital) Close() error {
	return nil
}
