// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package schedule

import (
	"errors"
	"fmt"
)

// ConfigError reports a malformed schedule definition
type ConfigError struct {
	Schedule string
	Field    string
	Value    string
	Reason   string
}

func (e *ConfigError) Error() string {
	msg := e.Field
	if e.Value != "" {
		msg += fmt.Sprintf(" %q", e.Value)
	}
	msg += ": " + e.Reason
	if e.Schedule != "" {
		msg = "schedule " + e.Schedule + ": " + msg
	}
	return msg
}

// Resolution failures. All of them wrap ErrNotScheduled.
var (
	ErrNotScheduled   = errors.New("next occurrence could not be determined")
	ErrEventDriven    = fmt.Errorf("%w: schedule is triggered by connection events", ErrNotScheduled)
	ErrIterationLimit = fmt.Errorf("%w: no matching weekday within iteration limit", ErrNotScheduled)
	ErrManualUnset    = fmt.Errorf("%w: manual time not set", ErrNotScheduled)
	ErrNoAstroEvent   = fmt.Errorf("%w: no astronomical event", ErrNotScheduled)
)
