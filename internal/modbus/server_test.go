// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package modbus

import (
	"encoding/binary"
	"log/slog"
	"os"
	"testing"

	"github.com/tbrandon/mbserver"

	"hatd/internal/config"
	"hatd/internal/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupServer(t *testing.T) (*Server, *ports.State) {
	t.Helper()
	state := ports.NewState(testLogger())

	for _, id := range []string{"lamp", "pump"} {
		if err := state.Add(ports.NewMemoryDigital(id, ports.Low)); err != nil {
			t.Fatal(err)
		}
	}
	wake, err := ports.NewMemoryDial("wake", ports.UnitUnixTime, ports.DialRange{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := state.Add(wake); err != nil {
		t.Fatal(err)
	}
	if err := state.Add(ports.NewMemoryDigital("fan", ports.High)); err != nil {
		t.Fatal(err)
	}

	return NewServer(&config.ModbusConfig{Port: ":5020"}, state, testLogger()), state
}

func frame(fc uint8, words ...uint16) *mbserver.TCPFrame {
	data := make([]byte, 2*len(words))
	for i, w := range words {
		binary.BigEndian.PutUint16(data[2*i:], w)
	}
	return &mbserver.TCPFrame{Function: fc, Data: data}
}

func TestAddressMap(t *testing.T) {
	s, _ := setupServer(t)

	if len(s.coils) != 3 || s.coils[2] != "fan" {
		t.Errorf("unexpected coils %v", s.coils)
	}
	if len(s.dials) != 1 || s.dials[0] != "wake" {
		t.Errorf("unexpected dials %v", s.dials)
	}
}

func TestReadCoils(t *testing.T) {
	s, state := setupServer(t)
	if err := state.SetLine("lamp", ports.High); err != nil {
		t.Fatal(err)
	}

	resp, exc := s.handleReadCoils(nil, frame(1, 0, 3))
	if exc != &mbserver.Success {
		t.Fatalf("unexpected exception %v", exc)
	}
	// lamp and fan high
	if len(resp) != 2 || resp[0] != 1 || resp[1] != 0x05 {
		t.Errorf("unexpected response %x", resp)
	}

	if _, exc := s.handleReadCoils(nil, frame(1, 2, 2)); exc != &mbserver.IllegalDataAddress {
		t.Errorf("expected illegal address, got %v", exc)
	}
}

func TestWriteSingleCoil(t *testing.T) {
	s, state := setupServer(t)

	if _, exc := s.handleWriteSingleCoil(nil, frame(5, 1, 0xFF00)); exc != &mbserver.Success {
		t.Fatalf("unexpected exception %v", exc)
	}
	d, _ := state.Digital("pump")
	if l, _ := d.Line(); l != ports.High {
		t.Error("expected pump high")
	}

	if _, exc := s.handleWriteSingleCoil(nil, frame(5, 1, 0x1234)); exc != &mbserver.IllegalDataValue {
		t.Errorf("expected illegal value, got %v", exc)
	}
	if _, exc := s.handleWriteSingleCoil(nil, frame(5, 9, 0xFF00)); exc != &mbserver.IllegalDataAddress {
		t.Errorf("expected illegal address, got %v", exc)
	}
}

func TestDialRegisters(t *testing.T) {
	s, state := setupServer(t)

	// unset dial reads as zero
	resp, exc := s.handleReadHoldingRegisters(nil, frame(3, 0, 4))
	if exc != &mbserver.Success {
		t.Fatalf("unexpected exception %v", exc)
	}
	if len(resp) != 9 || resp[0] != 8 || binary.BigEndian.Uint64(resp[1:]) != 0 {
		t.Errorf("unexpected response %x", resp)
	}

	const pos int64 = 1767268800
	req := frame(16, 0, 4)
	req.Data = append(req.Data, 8)
	req.Data = binary.BigEndian.AppendUint64(req.Data, uint64(pos))
	if _, exc := s.handleWriteMultipleRegisters(nil, req); exc != &mbserver.Success {
		t.Fatalf("unexpected exception %v", exc)
	}

	d, _ := state.Dial("wake")
	if got, _ := d.Position(); got != pos {
		t.Errorf("expected %d, got %d", pos, got)
	}

	resp, _ = s.handleReadHoldingRegisters(nil, frame(3, 0, 4))
	if got := int64(binary.BigEndian.Uint64(resp[1:])); got != pos {
		t.Errorf("expected %d read back, got %d", pos, got)
	}
}

func TestWriteSingleRegisterReplacesWord(t *testing.T) {
	s, state := setupServer(t)
	if err := state.SetPosition("wake", 0x0000_0001_0000_0002); err != nil {
		t.Fatal(err)
	}

	if _, exc := s.handleWriteSingleRegister(nil, frame(6, 3, 0x0009)); exc != &mbserver.Success {
		t.Fatalf("unexpected exception %v", exc)
	}
	d, _ := state.Dial("wake")
	if got, _ := d.Position(); got != 0x0000_0001_0000_0009 {
		t.Errorf("unexpected position %x", got)
	}
}

func TestWriteMultipleRegistersPartialRejected(t *testing.T) {
	s, _ := setupServer(t)

	req := frame(16, 1, 2)
	req.Data = append(req.Data, 4, 0, 1, 0, 2)
	if _, exc := s.handleWriteMultipleRegisters(nil, req); exc != &mbserver.IllegalDataValue {
		t.Errorf("expected illegal value, got %v", exc)
	}
}

func TestWords(t *testing.T) {
	v := int64(-2)
	if word(v, 0) != 0xFFFF || word(v, 3) != 0xFFFE {
		t.Errorf("unexpected words of %d", v)
	}
	if got := setWord(0, 0, 0x8000); got >= 0 {
		t.Errorf("expected negative value, got %d", got)
	}
}
