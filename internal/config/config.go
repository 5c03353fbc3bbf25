// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"hatd/internal/schedule"
)

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for missing config
func (c *Config) applyDefaults() {
	if c.Server.HTTP == "" {
		c.Server.HTTP = ":8080"
	}
	if c.Poll.IntervalMs == 0 {
		c.Poll.IntervalMs = 5
	}
	if c.Poll.ClockJumpMs == 0 {
		c.Poll.ClockJumpMs = 5000
	}
	if c.Poll.RefreshMs == 0 {
		c.Poll.RefreshMs = 1000
	}
	if c.Modbus != nil && c.Modbus.Port == "" {
		c.Modbus.Port = ":502"
	}
	if c.MQTT != nil {
		if c.MQTT.TopicPrefix == "" {
			c.MQTT.TopicPrefix = "hatd"
		}
		if c.MQTT.ClientID == "" {
			c.MQTT.ClientID = "hatd-" + uuid.NewString()[:8]
		}
	}
	for i := range c.Ports {
		if c.Ports[i].Type == PortGPIO && c.Ports[i].Chip == "" {
			c.Ports[i].Chip = "gpiochip0"
		}
	}
	for i := range c.Timers {
		c.Timers[i].ApplyDefaults()
	}
}

// ApplyDefaults sets the default texts and timestamp format of a timer
func (t *TimerConfig) ApplyDefaults() {
	if t.DeactivatedText == "" {
		t.DeactivatedText = "Deactivated"
	}
	if t.NotScheduledText == "" {
		t.NotScheduledText = "Not scheduled"
	}
	if t.NextEventText == "" {
		t.NextEventText = "Next event: "
	}
	if t.TimestampFormat == "" {
		t.TimestampFormat = "2006-01-02 15:04:05"
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if c.Poll.IntervalMs < 0 || c.Poll.ClockJumpMs < 0 || c.Poll.RefreshMs < 0 {
		return fmt.Errorf("poll timings must not be negative")
	}
	if c.MQTT != nil && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt: broker required")
	}
	if len(c.Ports) == 0 && len(c.Timers) == 0 {
		return fmt.Errorf("no ports or timers defined")
	}

	ids := make(map[string]string)
	for _, p := range c.Ports {
		if p.ID == "" {
			return fmt.Errorf("port without id")
		}
		if _, ok := ids[p.ID]; ok {
			return fmt.Errorf("duplicate port id %q", p.ID)
		}
		switch p.Type {
		case PortDigital, PortGPIO:
			if p.Line != "" && p.Line != "low" && p.Line != "high" {
				return fmt.Errorf("port %q: line must be low or high", p.ID)
			}
		case PortDial:
			if p.Max < p.Min {
				return fmt.Errorf("port %q: max below min", p.ID)
			}
			if p.Step < 0 {
				return fmt.Errorf("port %q: step must not be negative", p.ID)
			}
		default:
			return fmt.Errorf("port %q: unknown type %q", p.ID, p.Type)
		}
		ids[p.ID] = p.Type
	}

	for _, t := range c.Timers {
		if t.ID == "" {
			return fmt.Errorf("timer without id")
		}
		if _, ok := ids[t.ID]; ok {
			return fmt.Errorf("duplicate port id %q", t.ID)
		}
		ids[t.ID] = "timer"
	}

	for _, t := range c.Timers {
		if err := c.validateTimer(t, ids); err != nil {
			return fmt.Errorf("timer %q: %w", t.ID, err)
		}
	}

	return c.checkTimerCycles()
}

func (c *Config) validateTimer(t TimerConfig, ids map[string]string) error {
	for _, out := range t.OutputPorts {
		if out == t.ID {
			return fmt.Errorf("cannot drive itself")
		}
		typ, ok := ids[out]
		if !ok {
			return fmt.Errorf("output port %q not found", out)
		}
		if typ == PortDial {
			return fmt.Errorf("output port %q is not a digital port", out)
		}
	}

	names := make(map[string]struct{})
	for _, sc := range t.Schedules {
		if sc.Name == "" {
			return fmt.Errorf("schedule without name")
		}
		if _, ok := names[sc.Name]; ok {
			return fmt.Errorf("duplicate schedule %q", sc.Name)
		}
		names[sc.Name] = struct{}{}

		if sc.MaxOccurrences != nil && *sc.MaxOccurrences <= 0 {
			return &schedule.ConfigError{
				Schedule: sc.Name,
				Field:    "MaxOccurrences",
				Value:    strconv.Itoa(*sc.MaxOccurrences),
				Reason:   "must be positive, omit for no limit",
			}
		}
		if _, err := schedule.Build(sc.Definition()); err != nil {
			return err
		}
		if sc.Type == "Manual" {
			p := c.Port(sc.NodeID)
			if p == nil || p.Type != PortDial || p.Unit != UnitUnixTime {
				return &schedule.ConfigError{
					Schedule: sc.Name,
					Field:    "NodeID",
					Value:    sc.NodeID,
					Reason:   "must reference a dial port with unit " + UnitUnixTime,
				}
			}
		}
	}
	return nil
}

// checkTimerCycles rejects timers that drive each other in a loop
func (c *Config) checkTimerCycles() error {
	outputs := make(map[string][]string, len(c.Timers))
	for _, t := range c.Timers {
		outputs[t.ID] = t.OutputPorts
	}

	const (
		visiting = 1
		done     = 2
	)
	mark := make(map[string]int)
	var visit func(id string) error
	visit = func(id string) error {
		switch mark[id] {
		case visiting:
			return fmt.Errorf("timer %q: output ports form a cycle", id)
		case done:
			return nil
		}
		mark[id] = visiting
		for _, out := range outputs[id] {
			if _, isTimer := outputs[out]; isTimer {
				if err := visit(out); err != nil {
					return err
				}
			}
		}
		mark[id] = done
		return nil
	}

	for _, t := range c.Timers {
		if err := visit(t.ID); err != nil {
			return err
		}
	}
	return nil
}

// Location returns the configured timezone
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Port returns the port config with the given id, or nil
func (c *Config) Port(id string) *PortConfig {
	for i := range c.Ports {
		if c.Ports[i].ID == id {
			return &c.Ports[i]
		}
	}
	return nil
}

// ActiveSchedules returns the schedules with a non-negative priority,
// ordered by ascending priority. Equal priorities keep file order.
func (t TimerConfig) ActiveSchedules() []ScheduleConfig {
	active := make([]ScheduleConfig, 0, len(t.Schedules))
	for _, sc := range t.Schedules {
		if sc.Priority >= 0 {
			active = append(active, sc)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority < active[j].Priority
	})
	return active
}

// Definition converts the config into a schedule definition.
// The time source of manual schedules is attached by the caller.
func (s ScheduleConfig) Definition() schedule.Definition {
	maxOcc := 0
	if s.MaxOccurrences != nil {
		maxOcc = *s.MaxOccurrences
	}
	return schedule.Definition{
		Name:           s.Name,
		Type:           s.Type,
		Action:         s.Action,
		MaxOccurrences: maxOcc,
		DurationMs:     s.Duration,
		Year:           string(s.Year),
		Month:          string(s.Month),
		Day:            string(s.Day),
		Weekday:        string(s.Weekday),
		Hour:           string(s.Hour),
		Minute:         string(s.Minute),
		Second:         string(s.Second),
		AstroEvent:     s.AstroEvent,
		AstroOffset:    s.AstroOffset,
		Latitude:       s.Latitude,
		Longitude:      s.Longitude,
		AstroAlgorithm: s.AstroAlgorithm,
		NodeID:         s.NodeID,
	}
}
