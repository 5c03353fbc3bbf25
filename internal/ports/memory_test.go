// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package ports

import (
	"errors"
	"testing"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		input string
		want  Line
	}{
		{"", Low},
		{"low", Low},
		{"OFF", Low},
		{"0", Low},
		{"high", High},
		{"On", High},
		{"1", High},
	}

	for _, tc := range tests {
		got, err := ParseLine(tc.input)
		if err != nil {
			t.Errorf("ParseLine(%q): %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseLine(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}

	if _, err := ParseLine("half"); err == nil {
		t.Error("expected error for invalid line")
	}
}

func TestDigitalNotifiesOnChangeOnly(t *testing.T) {
	d := NewMemoryDigital("lamp", Low)
	calls := 0
	d.Watch(func() { calls++ })

	d.SetLine(Low)
	if calls != 0 {
		t.Errorf("expected no notification without change, got %d", calls)
	}

	d.SetLine(High)
	d.SetLine(High)
	if calls != 1 {
		t.Errorf("expected 1 notification, got %d", calls)
	}
}

func TestDialUnsetUntilFirstSet(t *testing.T) {
	d, err := NewMemoryDial("wakeup", UnitUnixTime, DialRange{}, nil)
	if err != nil {
		t.Fatalf("NewMemoryDial: %v", err)
	}

	if _, err := d.Position(); !errors.Is(err, ErrUnset) {
		t.Errorf("expected ErrUnset, got %v", err)
	}
	if _, err := d.UnixTime(); !errors.Is(err, ErrUnset) {
		t.Errorf("expected ErrUnset, got %v", err)
	}

	calls := 0
	d.Watch(func() { calls++ })

	if err := d.SetPosition(1_800_000_000); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	sec, err := d.UnixTime()
	if err != nil || sec != 1_800_000_000 {
		t.Errorf("UnixTime = %d, %v", sec, err)
	}
	if calls != 1 {
		t.Errorf("expected 1 notification, got %d", calls)
	}
}

func TestDialRange(t *testing.T) {
	d, err := NewMemoryDial("level", "", DialRange{Min: 0, Max: 100, Step: 10}, nil)
	if err != nil {
		t.Fatalf("NewMemoryDial: %v", err)
	}

	for _, pos := range []int64{-10, 110, 15} {
		if err := d.SetPosition(pos); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("SetPosition(%d): expected ErrOutOfRange, got %v", pos, err)
		}
	}
	if err := d.SetPosition(30); err != nil {
		t.Errorf("SetPosition(30): %v", err)
	}

	bad := int64(200)
	if _, err := NewMemoryDial("level", "", DialRange{Min: 0, Max: 100}, &bad); err == nil {
		t.Error("expected error for initial position out of range")
	}
}

func TestDialUnixTimeRequiresUnit(t *testing.T) {
	pos := int64(42)
	d, _ := NewMemoryDial("level", "percent", DialRange{}, &pos)
	if _, err := d.UnixTime(); err == nil {
		t.Error("expected error for non time dial")
	}
}
