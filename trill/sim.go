package trill

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Simulator is a register-level model of a Trill sensor implementing
// Bus. It applies command writes to its state, serves identify
// responses and queued frames, and records every write so tests can
// assert on the exact encoded bytes.
type Simulator struct {
	// Kind and Firmware are returned by the identify command.
	Kind     Kind
	Firmware byte
	// Addr, if non-zero, makes transactions to any other address
	// fail like an unacknowledged bus address.
	Addr uint16
	// Err, if set, fails every transaction.
	Err error

	// Writes records the written bytes of each transaction,
	// including the register byte.
	Writes [][]byte

	mode     Mode
	identify bool
	frames   []Frame
}

// NewSimulator returns a simulator identifying as the given sensor
// kind.
func NewSimulator(kind Kind) *Simulator {
	return &Simulator{
		Kind:     kind,
		Firmware: 0x02,
		mode:     ModeUnset,
	}
}

// Queue appends a frame to be served by the next data read.
func (s *Simulator) Queue(frame Frame) {
	s.frames = append(s.frames, frame)
}

// Mode returns the mode most recently written to the simulated
// command register.
func (s *Simulator) Mode() Mode {
	return s.mode
}

// Commands returns the command payloads written so far, with the
// register byte stripped.
func (s *Simulator) Commands() [][]byte {
	var cmds [][]byte
	for _, w := range s.Writes {
		if len(w) > 1 && w[0] == regCommand {
			cmds = append(cmds, w[1:])
		}
	}
	return cmds
}

func (s *Simulator) Tx(addr uint16, w, r []byte) error {
	if s.Err != nil {
		return s.Err
	}
	if s.Addr != 0 && addr != s.Addr {
		return fmt.Errorf("trill: simulator: no device at address 0x%02x", addr)
	}
	if len(w) > 0 {
		s.Writes = append(s.Writes, append([]byte(nil), w...))
		if w[0] == regCommand && len(w) > 1 {
			s.exec(w[1], w[2:])
		}
	}
	if len(r) > 0 {
		return s.read(r)
	}
	return nil
}

func (s *Simulator) exec(cmd byte, args []byte) {
	switch cmd {
	case cmdIdentify:
		s.identify = true
	case cmdMode:
		if len(args) > 0 && Mode(args[0]) >= ModeCentroid && Mode(args[0]) <= ModeDiff {
			s.mode = Mode(args[0])
		}
	}
}

func (s *Simulator) read(r []byte) error {
	if s.identify {
		s.identify = false
		resp := [3]byte{cmdIdentify, byte(s.Kind), s.Firmware}
		if len(r) > len(resp) {
			return errors.New("trill: simulator: identify read overflow")
		}
		copy(r, resp[:])
		return nil
	}
	if len(s.frames) == 0 {
		return errors.New("trill: simulator: no frame queued")
	}
	frame := s.frames[0]
	s.frames = s.frames[1:]
	if len(r) > 2*len(frame) {
		return fmt.Errorf("trill: simulator: read of %d bytes from %d sample frame", len(r), len(frame))
	}
	for i := 0; i < len(r)/2; i++ {
		binary.BigEndian.PutUint16(r[2*i:], uint16(frame[i]))
	}
	return nil
}
