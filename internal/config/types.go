// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Timezone string        `yaml:"timezone,omitempty"` // e.g. "Europe/Paris", defaults to local
	Poll     PollConfig    `yaml:"poll"`
	Modbus   *ModbusConfig `yaml:"modbus,omitempty"`
	MQTT     *MQTTConfig   `yaml:"mqtt,omitempty"`
	Ports    []PortConfig  `yaml:"ports"`
	Timers   []TimerConfig `yaml:"timers"`
}

// ServerConfig defines server endpoints
type ServerConfig struct {
	HTTP string `yaml:"http"`
}

// PollConfig defines the timing of the poll loop
type PollConfig struct {
	IntervalMs  int `yaml:"interval_ms"`
	ClockJumpMs int `yaml:"clock_jump_ms"`
	RefreshMs   int `yaml:"refresh_ms"` // UI state rebroadcast (0 = disabled)
}

func (p PollConfig) Interval() time.Duration  { return time.Duration(p.IntervalMs) * time.Millisecond }
func (p PollConfig) ClockJump() time.Duration { return time.Duration(p.ClockJumpMs) * time.Millisecond }
func (p PollConfig) Refresh() time.Duration   { return time.Duration(p.RefreshMs) * time.Millisecond }

// ModbusConfig defines Modbus TCP server settings
// Presence of this section enables Modbus
type ModbusConfig struct {
	Port string `yaml:"port"` // ":502" or ":5020"
}

// MQTTConfig defines MQTT client settings
// Presence of this section enables MQTT
type MQTTConfig struct {
	Broker      string `yaml:"broker"`       // tcp://host:1883
	ClientID    string `yaml:"client_id"`    // optional
	Username    string `yaml:"username"`     // optional
	Password    string `yaml:"password"`     // optional
	TopicPrefix string `yaml:"topic_prefix"` // defaults to "hatd"
}

// Port types
const (
	PortDigital = "digital"
	PortGPIO    = "gpio"
	PortDial    = "dial"
)

// UnitUnixTime is the dial unit required by manual schedules
const UnitUnixTime = "unixTime"

// PortConfig defines a digital output, a GPIO line or a dial
type PortConfig struct {
	ID   string `yaml:"id"`
	Type string `yaml:"type"`
	Line string `yaml:"line,omitempty"` // initial line: low/high

	// gpio
	Chip      string `yaml:"chip,omitempty"` // defaults to gpiochip0
	Pin       int    `yaml:"pin,omitempty"`
	ActiveLow bool   `yaml:"active_low,omitempty"`

	// dial
	Unit     string `yaml:"unit,omitempty"`
	Min      int64  `yaml:"min,omitempty"`
	Max      int64  `yaml:"max,omitempty"`
	Step     int64  `yaml:"step,omitempty"`
	Position *int64 `yaml:"position,omitempty"`
}

// TimerConfig defines a timer port and its schedules
type TimerConfig struct {
	ID                 string           `yaml:"id"`
	OutputPorts        []string         `yaml:"output_ports"`
	Enabled            *bool            `yaml:"enabled,omitempty"` // defaults to true
	PropagateSwitchOff bool             `yaml:"propagate_switch_off,omitempty"`
	DeactivatedText    string           `yaml:"deactivated_text,omitempty"`
	NotScheduledText   string           `yaml:"not_scheduled_text,omitempty"`
	NextEventText      string           `yaml:"next_event_text,omitempty"`
	TimestampFormat    string           `yaml:"timestamp_format,omitempty"` // Go layout
	Schedules          []ScheduleConfig `yaml:"schedules"`
}

// IsEnabled returns the initial timer line
func (t TimerConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// ScheduleConfig defines one schedule of a timer
type ScheduleConfig struct {
	Name           string `yaml:"name"`
	Priority       int    `yaml:"priority,omitempty"` // negative = inactive
	Type           string `yaml:"type"`
	Action         string `yaml:"action,omitempty"`
	MaxOccurrences *int   `yaml:"max_occurrences,omitempty"` // absent = unbounded
	Duration       uint64 `yaml:"duration,omitempty"`        // milliseconds

	Year    Field `yaml:"year,omitempty"`
	Month   Field `yaml:"month,omitempty"`
	Day     Field `yaml:"day,omitempty"`
	Weekday Field `yaml:"weekday,omitempty"`
	Hour    Field `yaml:"hour,omitempty"`
	Minute  Field `yaml:"minute,omitempty"`
	Second  Field `yaml:"second,omitempty"`

	AstroEvent     string   `yaml:"astro_event,omitempty"`
	AstroOffset    int64    `yaml:"astro_offset,omitempty"` // seconds
	Latitude       *float64 `yaml:"latitude,omitempty"`
	Longitude      *float64 `yaml:"longitude,omitempty"`
	AstroAlgorithm string   `yaml:"astro_algorithm,omitempty"`

	NodeID string `yaml:"node_id,omitempty"`
}

// Field holds a raw time component: an integer or a pattern such as "1-5 !3"
type Field string

// UnmarshalYAML accepts any scalar and keeps its text
func (f *Field) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: time component must be a number or a pattern", node.Line)
	}
	*f = Field(node.Value)
	return nil
}
