// Package capture persists Trill scan sessions in a compact binary
// form, for offline decoding and for regression fixtures recorded
// against real hardware.
package capture

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Session is a sequence of frames read from one sensor.
type Session struct {
	// Kind is the sensor model name, as in trill.Kind.String.
	Kind string `cbor:"1,keyasint"`
	// Mode is the scan mode name the frames were read in.
	Mode string `cbor:"2,keyasint"`
	// Frames holds the raw samples of each scan, in scan order.
	Frames [][]int16 `cbor:"3,keyasint,omitempty"`
}

// Add appends one frame to the session.
func (s *Session) Add(frame []int16) {
	cp := make([]int16, len(frame))
	copy(cp, frame)
	s.Frames = append(s.Frames, cp)
}

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = dm
}

// Write encodes the sessions to w as one document.
func Write(w io.Writer, sessions []*Session) error {
	data, err := encMode.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	return nil
}

// Read decodes the sessions written by Write.
func Read(r io.Reader) ([]*Session, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	var sessions []*Session
	if err := decMode.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return sessions, nil
}
