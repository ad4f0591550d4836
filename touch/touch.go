// Package touch decodes centroid scan frames from Trill capacitive
// sensors into touch events.
//
// In centroid mode the sensor firmware pre-computes touch positions
// and sizes; a frame is a fixed number of slots, each holding at most
// one touch. Decoding is pure: the same frame always yields the same
// touch set.
package touch

import (
	"errors"
	"fmt"
)

// Geometry describes the centroid frame layout of a sensor.
type Geometry struct {
	// Directions is 1 for sensors reporting along a single axis,
	// 2 for sensors reporting both axes.
	Directions int
	// Slots is the number of touch slots in a frame.
	Slots int
	// ScaleX and ScaleY are the full-scale position values used to
	// normalize coordinates.
	ScaleX, ScaleY int
}

// Touch is one detected contact. Positions are normalized to [0, 1];
// sizes are raw sensor counts. X and SizeX are zero for
// one-dimensional sensors.
type Touch struct {
	X, Y         float32
	SizeX, SizeY float32
}

// Set is the ordered sequence of touches decoded from one frame. The
// order follows ascending slot index, not spatial order. The zero Set
// is empty.
type Set struct {
	touches []Touch
}

var (
	ErrIndexRange = errors.New("touch index out of range")
	ErrShortFrame = errors.New("frame too short")
)

// noTouch is the location sample the firmware stores in empty slots.
const noTouch = -1

// Decode interprets a centroid frame according to g.
//
// One-dimensional frames hold a block of location samples followed by
// a block of size samples. Two-dimensional frames hold the vertical
// blocks (locations, sizes) followed by the horizontal blocks. A slot
// holds a touch iff its location is not the no-touch sentinel and its
// size is non-zero; empty slots are skipped, so the decoder handles
// both front-packed and in-place frame variants.
func Decode(frame []int16, g Geometry) (Set, error) {
	n := 2 * g.Directions * g.Slots
	if len(frame) < n {
		return Set{}, fmt.Errorf("touch: frame holds %d samples, need %d: %w", len(frame), n, ErrShortFrame)
	}
	var s Set
	switch g.Directions {
	case 1:
		locs, sizes := frame[:g.Slots], frame[g.Slots:2*g.Slots]
		for i := 0; i < g.Slots; i++ {
			if locs[i] == noTouch || sizes[i] == 0 {
				continue
			}
			s.touches = append(s.touches, Touch{
				Y:     float32(locs[i]) / float32(g.ScaleY),
				SizeY: float32(sizes[i]),
			})
		}
	case 2:
		vloc := frame[:g.Slots]
		vsize := frame[g.Slots : 2*g.Slots]
		hloc := frame[2*g.Slots : 3*g.Slots]
		hsize := frame[3*g.Slots : 4*g.Slots]
		for i := 0; i < g.Slots; i++ {
			if vloc[i] == noTouch || vsize[i] == 0 {
				continue
			}
			s.touches = append(s.touches, Touch{
				X:     float32(hloc[i]) / float32(g.ScaleX),
				Y:     float32(vloc[i]) / float32(g.ScaleY),
				SizeX: float32(hsize[i]),
				SizeY: float32(vsize[i]),
			})
		}
	default:
		return Set{}, fmt.Errorf("touch: geometry with %d directions", g.Directions)
	}
	return s, nil
}

// Touches returns the decoded touches in slot order.
func (s Set) Touches() []Touch {
	return s.touches
}

// NumTouches returns the number of decoded touches.
func (s Set) NumTouches() int {
	return len(s.touches)
}

// At returns the touch at index i.
func (s Set) At(i int) (Touch, error) {
	if i < 0 || i >= len(s.touches) {
		return Touch{}, fmt.Errorf("touch: index %d of %d: %w", i, len(s.touches), ErrIndexRange)
	}
	return s.touches[i], nil
}

// Empty reports whether no touches were decoded.
func (s Set) Empty() bool {
	return len(s.touches) == 0
}
