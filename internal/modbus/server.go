// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package modbus

import (
	"encoding/binary"
	"log/slog"

	"github.com/tbrandon/mbserver"

	"hatd/internal/config"
	"hatd/internal/ports"
)

// RegistersPerDial is the number of holding registers holding one dial
// position (int64, big endian, most significant word first)
const RegistersPerDial = 4

// Server is the Modbus TCP server
// Register mapping, in port registration order:
//   - Coil n = line of the n-th digital port (timers included: enable/disable)
//   - Holding registers 4n..4n+3 = position of the n-th dial
type Server struct {
	cfg    *config.ModbusConfig
	state  *ports.State
	logger *slog.Logger
	mb     *mbserver.Server

	coils []string
	dials []string
}

// NewServer creates a new Modbus TCP server. The address map is built
// from the ports registered in state at this point.
func NewServer(cfg *config.ModbusConfig, state *ports.State, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		state:  state,
		logger: logger,
	}
	for _, p := range state.Ports() {
		switch p.(type) {
		case ports.Digital:
			s.coils = append(s.coils, p.ID())
		case ports.Dial:
			s.dials = append(s.dials, p.ID())
		}
	}
	return s
}

// Start starts the Modbus TCP server
func (s *Server) Start() error {
	s.mb = mbserver.NewServer()

	s.mb.RegisterFunctionHandler(1, s.handleReadCoils)               // FC01
	s.mb.RegisterFunctionHandler(3, s.handleReadHoldingRegisters)    // FC03
	s.mb.RegisterFunctionHandler(5, s.handleWriteSingleCoil)         // FC05
	s.mb.RegisterFunctionHandler(6, s.handleWriteSingleRegister)     // FC06
	s.mb.RegisterFunctionHandler(16, s.handleWriteMultipleRegisters) // FC16

	s.logger.Info("Modbus TCP server starting", "addr", s.cfg.Port, "coils", len(s.coils), "dials", len(s.dials))
	for i, id := range s.coils {
		s.logger.Debug("Modbus coil", "addr", i, "port", id)
	}
	for i, id := range s.dials {
		s.logger.Debug("Modbus holding registers", "addr", i*RegistersPerDial, "port", id)
	}

	go func() {
		if err := s.mb.ListenTCP(s.cfg.Port); err != nil {
			s.logger.Error("Modbus TCP server error", "error", err)
		}
	}()

	return nil
}

// Stop stops the Modbus TCP server
func (s *Server) Stop() {
	if s.mb != nil {
		s.mb.Close()
		s.logger.Info("Modbus TCP server stopped")
	}
}

// FC01: Read Coils (digital port lines)
func (s *Server) handleReadCoils(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}

	start := int(binary.BigEndian.Uint16(data[0:2]))
	quantity := int(binary.BigEndian.Uint16(data[2:4]))
	if quantity == 0 || start+quantity > len(s.coils) {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	byteCount := (quantity + 7) / 8
	resp := make([]byte, 1+byteCount)
	resp[0] = byte(byteCount)

	for i := 0; i < quantity; i++ {
		d, err := s.state.Digital(s.coils[start+i])
		if err != nil {
			return []byte{}, &mbserver.SlaveDeviceFailure
		}
		l, err := d.Line()
		if err != nil {
			return []byte{}, &mbserver.SlaveDeviceFailure
		}
		if l == ports.High {
			resp[1+i/8] |= 1 << (i % 8)
		}
	}
	return resp, &mbserver.Success
}

// FC05: Write Single Coil (set a line, enable/disable a timer)
func (s *Server) handleWriteSingleCoil(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}

	addr := int(binary.BigEndian.Uint16(data[0:2]))
	value := binary.BigEndian.Uint16(data[2:4])

	if addr >= len(s.coils) {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	if value != 0xFF00 && value != 0x0000 {
		return []byte{}, &mbserver.IllegalDataValue
	}

	line := ports.Low
	if value == 0xFF00 {
		line = ports.High
	}

	id := s.coils[addr]
	if err := s.state.SetLine(id, line); err != nil {
		s.logger.Warn("Modbus write failed", "port", id, "error", err)
		return []byte{}, &mbserver.SlaveDeviceFailure
	}
	s.logger.Debug("Modbus coil write", "port", id, "line", line)

	// Echo request as response
	return data[:4], &mbserver.Success
}

// FC03: Read Holding Registers (dial positions, 0 while unset)
func (s *Server) handleReadHoldingRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}

	start := int(binary.BigEndian.Uint16(data[0:2]))
	quantity := int(binary.BigEndian.Uint16(data[2:4]))
	if quantity == 0 || start+quantity > len(s.dials)*RegistersPerDial {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	resp := make([]byte, 1+quantity*2)
	resp[0] = byte(quantity * 2)

	for i := 0; i < quantity; i++ {
		reg := start + i
		pos, ok := s.position(reg / RegistersPerDial)
		if !ok {
			return []byte{}, &mbserver.SlaveDeviceFailure
		}
		binary.BigEndian.PutUint16(resp[1+i*2:], word(pos, reg%RegistersPerDial))
	}
	return resp, &mbserver.Success
}

// FC06: Write Single Register (replaces one word of a dial position)
func (s *Server) handleWriteSingleRegister(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}

	reg := int(binary.BigEndian.Uint16(data[0:2]))
	value := binary.BigEndian.Uint16(data[2:4])
	if reg >= len(s.dials)*RegistersPerDial {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	idx := reg / RegistersPerDial
	pos, ok := s.position(idx)
	if !ok {
		return []byte{}, &mbserver.SlaveDeviceFailure
	}
	pos = setWord(pos, reg%RegistersPerDial, value)

	if exc := s.setPosition(idx, pos); exc != &mbserver.Success {
		return []byte{}, exc
	}

	// Echo request as response
	return data[:4], &mbserver.Success
}

// FC16: Write Multiple Registers (whole dial positions only)
func (s *Server) handleWriteMultipleRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 5 {
		return []byte{}, &mbserver.IllegalDataValue
	}

	start := binary.BigEndian.Uint16(data[0:2])
	quantity := binary.BigEndian.Uint16(data[2:4])
	byteCount := data[4]

	if int(start)+int(quantity) > len(s.dials)*RegistersPerDial {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	if int(byteCount) != int(quantity)*2 || len(data) < 5+int(byteCount) {
		return []byte{}, &mbserver.IllegalDataValue
	}
	if quantity == 0 || start%RegistersPerDial != 0 || quantity%RegistersPerDial != 0 {
		return []byte{}, &mbserver.IllegalDataValue
	}

	values := data[5 : 5+int(byteCount)]
	for i := 0; i < int(quantity)/RegistersPerDial; i++ {
		pos := int64(binary.BigEndian.Uint64(values[i*8:]))
		if exc := s.setPosition(int(start)/RegistersPerDial+i, pos); exc != &mbserver.Success {
			return []byte{}, exc
		}
	}

	s.logger.Debug("Modbus write multiple", "start", start, "count", quantity)

	// Response: start addr + quantity
	resp := make([]byte, 4)
	binary.BigEndian.PutUint16(resp[0:2], start)
	binary.BigEndian.PutUint16(resp[2:4], quantity)
	return resp, &mbserver.Success
}

// position returns the position of the idx-th dial, 0 while unset
func (s *Server) position(idx int) (int64, bool) {
	d, err := s.state.Dial(s.dials[idx])
	if err != nil {
		return 0, false
	}
	pos, err := d.Position()
	if err != nil {
		return 0, true
	}
	return pos, true
}

func (s *Server) setPosition(idx int, pos int64) *mbserver.Exception {
	id := s.dials[idx]
	if err := s.state.SetPosition(id, pos); err != nil {
		s.logger.Warn("Modbus write failed", "port", id, "position", pos, "error", err)
		return &mbserver.IllegalDataValue
	}
	s.logger.Debug("Modbus register write", "port", id, "position", pos)
	return &mbserver.Success
}

// word returns the n-th 16-bit word of v, most significant first
func word(v int64, n int) uint16 {
	return uint16(uint64(v) >> (16 * (RegistersPerDial - 1 - n)))
}

// setWord replaces the n-th 16-bit word of v
func setWord(v int64, n int, w uint16) int64 {
	shift := 16 * (RegistersPerDial - 1 - n)
	u := uint64(v) &^ (0xFFFF << shift)
	return int64(u | uint64(w)<<shift)
}
