package trill

import (
	"bytes"
	"errors"
	"testing"
)

func newTestDevice(t *testing.T, kind Kind, opts ...Option) (*Device, *Simulator) {
	t.Helper()
	sim := NewSimulator(kind)
	opts = append([]Option{WithSettleDelay(0)}, opts...)
	d, err := New(sim, kind, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return d, sim
}

func TestPresetDefaults(t *testing.T) {
	tests := []struct {
		kind       Kind
		addr       uint16
		channels   int
		maxTouches int
		twoD       bool
	}{
		{Bar, 0x20, 26, 5, false},
		{Square, 0x28, 30, 4, true},
		{Craft, 0x30, 30, 5, false},
		{Ring, 0x38, 28, 5, false},
		{Hex, 0x40, 30, 4, true},
	}
	for _, test := range tests {
		d, _ := newTestDevice(t, test.kind)
		if got := d.Addr(); got != test.addr {
			t.Errorf("%s: address 0x%02x, want 0x%02x", test.kind, got, test.addr)
		}
		if got := d.InitialMode(); got != ModeCentroid {
			t.Errorf("%s: initial mode %s, want Centroid", test.kind, got)
		}
		if got := d.Mode(); got != ModeUnset {
			t.Errorf("%s: mode %s before any SetMode, want Unset", test.kind, got)
		}
		if got := d.Channels(); got != test.channels {
			t.Errorf("%s: %d channels, want %d", test.kind, got, test.channels)
		}
		if got := d.MaxTouches(); got != test.maxTouches {
			t.Errorf("%s: %d touch slots, want %d", test.kind, got, test.maxTouches)
		}
		if d.Is2D() != test.twoD || d.Is1D() == test.twoD {
			t.Errorf("%s: Is1D=%v Is2D=%v", test.kind, d.Is1D(), d.Is2D())
		}
	}
}

func TestNewWithoutPreset(t *testing.T) {
	for _, kind := range []Kind{Unknown, Flex, Kind(42)} {
		if _, err := New(NewSimulator(kind), kind); err == nil {
			t.Errorf("New(%s) succeeded, want error", kind)
		}
	}
}

func TestIdentify(t *testing.T) {
	d, sim := newTestDevice(t, Ring)
	sim.Addr = 0x38
	sim.Firmware = 0x03
	kind, fw, err := d.Identify()
	if err != nil {
		t.Fatal(err)
	}
	if kind != Ring || fw != 0x03 {
		t.Errorf("identified as %s firmware %d, want Ring firmware 3", kind, fw)
	}
	if d.Firmware() != 0x03 {
		t.Errorf("cached firmware %d, want 3", d.Firmware())
	}
	if len(sim.Writes) != 2 {
		t.Fatalf("%d writes, want 2", len(sim.Writes))
	}
	if !bytes.Equal(sim.Writes[0], []byte{0x04}) {
		t.Errorf("pointer write %#x, want 0x04", sim.Writes[0])
	}
	if !bytes.Equal(sim.Writes[1], []byte{0x00, 0xff}) {
		t.Errorf("identify write %#x, want 0x00ff", sim.Writes[1])
	}
}

func TestIdentifyMismatch(t *testing.T) {
	d, sim := newTestDevice(t, Bar)
	sim.Kind = Square
	kind, _, err := d.Identify()
	if err != nil {
		t.Fatal(err)
	}
	if kind != Square {
		t.Errorf("identified as %s, want Square", kind)
	}
}

func TestIdentifyUnknownDevice(t *testing.T) {
	d, sim := newTestDevice(t, Bar)
	sim.Kind = Kind(9)
	if _, _, err := d.Identify(); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("got %v, want ErrUnknownDevice", err)
	}
}

func TestScanSettingsEncoding(t *testing.T) {
	d, sim := newTestDevice(t, Bar)
	for speed := 0; speed <= 3; speed++ {
		for res := 9; res <= 16; res++ {
			if err := d.SetScanSettings(speed, res); err != nil {
				t.Fatalf("speed %d resolution %d: %v", speed, res, err)
			}
			cmds := sim.Commands()
			got := cmds[len(cmds)-1]
			want := []byte{0x02, byte(speed), byte(res)}
			if !bytes.Equal(got, want) {
				t.Errorf("speed %d resolution %d encoded as %#x, want %#x", speed, res, got, want)
			}
		}
	}
}

func TestCommandEncoding(t *testing.T) {
	tests := []struct {
		name string
		send func(*Device) error
		want []byte
	}{
		{"mode diff", func(d *Device) error { return d.SetMode(ModeDiff) }, []byte{0x01, 0x03}},
		{"prescaler", func(d *Device) error { return d.SetPrescaler(8) }, []byte{0x03, 0x08}},
		{"noise threshold", func(d *Device) error { return d.SetNoiseThreshold(40) }, []byte{0x04, 0x28}},
		{"idac", func(d *Device) error { return d.SetIDACValue(128) }, []byte{0x05, 0x80}},
		{"baseline update", func(d *Device) error { return d.UpdateBaseline() }, []byte{0x06}},
		{"minimum size", func(d *Device) error { return d.SetMinimumTouchSize(0x1234) }, []byte{0x07, 0x12, 0x34}},
		{"auto-scan interval", func(d *Device) error { return d.SetAutoScanInterval(1) }, []byte{0x10, 0x01}},
	}
	for _, test := range tests {
		d, sim := newTestDevice(t, Bar)
		if err := test.send(d); err != nil {
			t.Errorf("%s: %v", test.name, err)
			continue
		}
		cmds := sim.Commands()
		if len(cmds) != 1 || !bytes.Equal(cmds[0], test.want) {
			t.Errorf("%s: encoded as %#x, want %#x", test.name, cmds, test.want)
		}
	}
}

func TestOutOfRangeIssuesNoWrite(t *testing.T) {
	tests := []struct {
		name string
		send func(*Device) error
	}{
		{"mode -1", func(d *Device) error { return d.SetMode(ModeUnset) }},
		{"mode 4", func(d *Device) error { return d.SetMode(Mode(4)) }},
		{"speed -1", func(d *Device) error { return d.SetScanSettings(-1, 12) }},
		{"speed 4", func(d *Device) error { return d.SetScanSettings(4, 12) }},
		{"resolution 8", func(d *Device) error { return d.SetScanSettings(0, 8) }},
		{"resolution 17", func(d *Device) error { return d.SetScanSettings(0, 17) }},
		{"prescaler 0", func(d *Device) error { return d.SetPrescaler(0) }},
		{"prescaler 9", func(d *Device) error { return d.SetPrescaler(9) }},
		{"threshold -1", func(d *Device) error { return d.SetNoiseThreshold(-1) }},
		{"threshold 256", func(d *Device) error { return d.SetNoiseThreshold(256) }},
		{"idac -1", func(d *Device) error { return d.SetIDACValue(-1) }},
		{"idac 256", func(d *Device) error { return d.SetIDACValue(256) }},
		{"minimum size -1", func(d *Device) error { return d.SetMinimumTouchSize(-1) }},
		{"minimum size 65536", func(d *Device) error { return d.SetMinimumTouchSize(0x10000) }},
		{"interval -1", func(d *Device) error { return d.SetAutoScanInterval(-1) }},
		{"interval 256", func(d *Device) error { return d.SetAutoScanInterval(256) }},
	}
	for _, test := range tests {
		d, sim := newTestDevice(t, Bar)
		if err := test.send(d); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("%s: got %v, want ErrOutOfRange", test.name, err)
		}
		if len(sim.Writes) != 0 {
			t.Errorf("%s: %d bus writes, want none", test.name, len(sim.Writes))
		}
		if d.Mode() != ModeUnset {
			t.Errorf("%s: cached mode %s, want Unset", test.name, d.Mode())
		}
	}
}

func TestReadModeNotSet(t *testing.T) {
	d, sim := newTestDevice(t, Bar)
	if _, err := d.Read(); !errors.Is(err, ErrModeNotSet) {
		t.Errorf("got %v, want ErrModeNotSet", err)
	}
	if len(sim.Writes) != 0 {
		t.Errorf("%d bus writes, want none", len(sim.Writes))
	}
}

func TestReadFrameLength(t *testing.T) {
	d, sim := newTestDevice(t, Bar)
	if err := d.SetMode(ModeCentroid); err != nil {
		t.Fatal(err)
	}
	sim.Queue(Frame{1600, -1, -1, -1, -1, 500, 0, 0, 0, 0})
	frame, err := d.Read()
	if err != nil {
		t.Fatal(err)
	}
	if len(frame) != 10 {
		t.Errorf("centroid frame of %d samples, want 10", len(frame))
	}
	if frame[0] != 1600 || frame[1] != -1 || frame[5] != 500 {
		t.Errorf("frame %v does not round-trip", frame)
	}

	if err := d.SetMode(ModeRaw); err != nil {
		t.Fatal(err)
	}
	raw := make(Frame, 26)
	for i := range raw {
		raw[i] = int16(i * 100)
	}
	sim.Queue(raw)
	frame, err = d.Read()
	if err != nil {
		t.Fatal(err)
	}
	if len(frame) != 26 {
		t.Errorf("raw frame of %d samples, want 26", len(frame))
	}
	if frame[25] != 2500 {
		t.Errorf("frame[25] = %d, want 2500", frame[25])
	}
}

func TestReadShortRead(t *testing.T) {
	d, _ := newTestDevice(t, Bar)
	if err := d.SetMode(ModeCentroid); err != nil {
		t.Fatal(err)
	}
	// No frame queued: the data read fails.
	if _, err := d.Read(); !errors.Is(err, ErrShortRead) {
		t.Errorf("got %v, want ErrShortRead", err)
	}
}

func TestFailedSetterKeepsMode(t *testing.T) {
	d, sim := newTestDevice(t, Bar)
	if err := d.SetMode(ModeCentroid); err != nil {
		t.Fatal(err)
	}
	sim.Err = errors.New("bus nack")
	if err := d.SetMode(ModeRaw); err == nil {
		t.Fatal("SetMode succeeded on a failing bus")
	}
	if d.Mode() != ModeCentroid {
		t.Errorf("cached mode %s after failed SetMode, want Centroid", d.Mode())
	}
}

func TestConfigure(t *testing.T) {
	d, sim := newTestDevice(t, Square)
	if err := d.Configure(); err != nil {
		t.Fatal(err)
	}
	want := [][]byte{
		{0x01, 0x00},
		{0x02, 0x00, 0x0c},
		{0x06},
	}
	cmds := sim.Commands()
	if len(cmds) != len(want) {
		t.Fatalf("%d commands, want %d", len(cmds), len(want))
	}
	for i := range want {
		if !bytes.Equal(cmds[i], want[i]) {
			t.Errorf("command %d encoded as %#x, want %#x", i, cmds[i], want[i])
		}
	}
	if d.Mode() != ModeCentroid {
		t.Errorf("mode %s after Configure, want Centroid", d.Mode())
	}
}

func TestReadTouchesWrongMode(t *testing.T) {
	d, _ := newTestDevice(t, Square)
	if _, err := d.ReadTouches(); !errors.Is(err, ErrModeNotSet) {
		t.Errorf("got %v, want ErrModeNotSet", err)
	}
}

func TestReadTouches2D(t *testing.T) {
	d, sim := newTestDevice(t, Square)
	if err := d.SetMode(ModeCentroid); err != nil {
		t.Fatal(err)
	}
	sim.Queue(Frame{
		896, 1200, -1, -1, // vertical locations
		1000, 800, 0, 0, // vertical sizes
		448, 1700, -1, -1, // horizontal locations
		900, 700, 0, 0, // horizontal sizes
	})
	set, err := d.ReadTouches()
	if err != nil {
		t.Fatal(err)
	}
	if set.NumTouches() != 2 {
		t.Fatalf("%d touches, want 2", set.NumTouches())
	}
	want := []struct {
		x, y, sizeX, sizeY float32
	}{
		{0.25, 0.5, 900, 1000},
		{0.9487, 0.6696, 700, 800},
	}
	for i, w := range want {
		got, err := set.At(i)
		if err != nil {
			t.Fatal(err)
		}
		if !close32(got.X, w.x) || !close32(got.Y, w.y) ||
			!close32(got.SizeX, w.sizeX) || !close32(got.SizeY, w.sizeY) {
			t.Errorf("touch %d = %+v, want %+v", i, got, w)
		}
	}
}

func close32(got, want float32) bool {
	const eps = 1e-3
	d := got - want
	return -eps < d && d < eps
}
