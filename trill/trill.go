// Package trill implements a driver for the Bela Trill family of
// capacitive touch sensors.
//
// Trill sensors sit on an I2C bus and expose a small command register
// interface: configuration commands are written to the command
// register, scan frames are read after resetting the data pointer.
// The firmware has no ready flag, so every write is followed by a
// mandatory settle delay.
//
// Datasheet: https://learn.bela.io/products/trill/about-trill/
package trill

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"bela.dev/touch"
)

// Bus is the two-wire bus the sensor is connected to. It is satisfied
// by periph.io/x/conn/v3/i2c.Bus.
type Bus interface {
	Tx(addr uint16, w, r []byte) error
}

// Kind identifies a Trill sensor model. The values match the type
// byte returned by the identify command.
type Kind int

const (
	Unknown Kind = iota
	Bar
	Square
	Craft
	Ring
	Hex
	// Flex is recognized during identification but has no preset.
	Flex
)

var kindNames = [...]string{"Unknown", "Bar", "Square", "Craft", "Ring", "Hex", "Flex"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind maps a sensor model name to its Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return Unknown, fmt.Errorf("trill: unknown sensor kind %q", name)
}

// Geometry reports how sensors of this kind lay out their centroid
// frames and the full-scale position values for normalization.
func (k Kind) Geometry() touch.Geometry {
	s := k.spec()
	return touch.Geometry{
		Directions: s.directions,
		Slots:      s.maxTouches,
		ScaleX:     s.sizeX,
		ScaleY:     s.sizeY,
	}
}

// DefaultAddr returns the factory bus address of the sensor kind,
// zero for kinds without a preset.
func (k Kind) DefaultAddr() uint16 {
	return k.spec().addr
}

func (k Kind) spec() spec {
	if k < Bar || int(k) >= len(specs) {
		return spec{}
	}
	return specs[k]
}

// Mode is a sensor scan mode. The zero value of a Device's cached mode
// is ModeUnset: no mode is assumed until one has been set explicitly.
type Mode int8

const (
	ModeUnset    Mode = -1
	ModeCentroid Mode = 0x00
	ModeRaw      Mode = 0x01
	ModeBaseline Mode = 0x02
	ModeDiff     Mode = 0x03
)

var modeNames = [...]string{"Centroid", "Raw", "Baseline", "Diff"}

func (m Mode) String() string {
	if m == ModeUnset {
		return "Unset"
	}
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int8(m))
	}
	return modeNames[m]
}

// ParseMode maps a scan mode name to its Mode.
func ParseMode(name string) (Mode, error) {
	for m, n := range modeNames {
		if n == name {
			return Mode(m), nil
		}
	}
	return ModeUnset, fmt.Errorf("trill: unknown scan mode %q", name)
}

// Frame is one scan transaction worth of samples. Centroid frames hold
// 2·directions·maxTouches samples; raw, baseline and diff frames hold
// one sample per channel. Samples are signed: the firmware uses -1 as
// the no-touch location sentinel.
type Frame []int16

var (
	ErrOutOfRange    = errors.New("argument out of range")
	ErrShortRead     = errors.New("short read")
	ErrTimeout       = errors.New("no response")
	ErrUnknownDevice = errors.New("unknown device")
	ErrModeNotSet    = errors.New("scan mode not set")
)

// spec holds the fixed per-model constants.
type spec struct {
	addr         uint16
	channels     int
	maxTouches   int
	directions   int
	sizeX, sizeY int
}

var specs = [...]spec{
	Bar:    {addr: 0x20, channels: 26, maxTouches: 5, directions: 1, sizeX: 1, sizeY: 3200},
	Square: {addr: 0x28, channels: 30, maxTouches: 4, directions: 2, sizeX: 1792, sizeY: 1792},
	Craft:  {addr: 0x30, channels: 30, maxTouches: 5, directions: 1, sizeX: 1, sizeY: 4096},
	Ring:   {addr: 0x38, channels: 28, maxTouches: 5, directions: 1, sizeX: 1, sizeY: 3584},
	Hex:    {addr: 0x40, channels: 30, maxTouches: 4, directions: 2, sizeX: 1664, sizeY: 1920},
}

// Device drives one Trill sensor. It caches the last mode it was told
// to set; it is not safe for concurrent use, callers sharing a Device
// across goroutines must serialize access.
type Device struct {
	bus     Bus
	kind    Kind
	spec    spec
	addr    uint16
	mode    Mode
	initial Mode
	settle  time.Duration

	identified Kind
	firmware   byte

	// Scratch for the largest transaction: register byte plus a
	// 30 channel raw frame.
	buf [1 + 2*30]byte
}

// Option configures a Device at construction. No option issues bus
// traffic.
type Option func(*Device)

// WithAddress overrides the model's default bus address, for sensors
// re-addressed via their solder jumpers.
func WithAddress(addr uint16) Option {
	return func(d *Device) { d.addr = addr }
}

// WithSettleDelay overrides the delay observed after every bus write.
func WithSettleDelay(settle time.Duration) Option {
	return func(d *Device) { d.settle = settle }
}

// WithInitialMode overrides the scan mode Configure applies. No
// command is issued until Configure or SetMode is called.
func WithInitialMode(m Mode) Option {
	return func(d *Device) { d.initial = m }
}

const defaultSettle = 10 * time.Millisecond

// New returns a Device for the given sensor model at its default
// address. The device is returned unconfigured: no command is sent
// and no mode is assumed until SetMode or Configure is called.
func New(bus Bus, kind Kind, opts ...Option) (*Device, error) {
	s := kind.spec()
	if s.channels == 0 {
		return nil, fmt.Errorf("trill: no preset for sensor kind %s", kind)
	}
	d := &Device{
		bus:     bus,
		kind:    kind,
		spec:    s,
		addr:    s.addr,
		mode:    ModeUnset,
		initial: ModeCentroid,
		settle:  defaultSettle,
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Kind returns the sensor model the device was constructed for.
func (d *Device) Kind() Kind { return d.kind }

// Addr returns the bus address in use.
func (d *Device) Addr() uint16 { return d.addr }

// Mode returns the last mode set on this device, or ModeUnset if no
// mode has ever been set. The initial mode bound at construction is
// not assumed until Configure sends it.
func (d *Device) Mode() Mode { return d.mode }

// InitialMode returns the mode Configure applies: ModeCentroid for
// all presets unless overridden with WithInitialMode.
func (d *Device) InitialMode() Mode { return d.initial }

// Channels returns the number of capacitive channels.
func (d *Device) Channels() int { return d.spec.channels }

// MaxTouches returns the number of touch slots in a centroid frame.
func (d *Device) MaxTouches() int { return d.spec.maxTouches }

// Size returns the sensor extent in position units.
func (d *Device) Size() (x, y int) { return d.spec.sizeX, d.spec.sizeY }

// Is1D reports whether the sensor reports touches along a single axis.
func (d *Device) Is1D() bool { return d.spec.directions == 1 }

// Is2D reports whether the sensor reports touches along both axes.
func (d *Device) Is2D() bool { return d.spec.directions == 2 }

// Geometry returns the centroid frame geometry of the sensor.
func (d *Device) Geometry() touch.Geometry { return d.kind.Geometry() }

// Firmware returns the firmware version read by Identify, zero before
// the first successful Identify.
func (d *Device) Firmware() byte { return d.firmware }

// Identify asks the sensor for its type and firmware version. The
// returned kind is the one the hardware reports, which may differ from
// the kind the device was constructed for.
func (d *Device) Identify() (Kind, byte, error) {
	if err := d.pointTo(regData); err != nil {
		return Unknown, 0, fmt.Errorf("trill: identify: %w", err)
	}
	if err := d.command(cmdIdentify); err != nil {
		return Unknown, 0, fmt.Errorf("trill: identify: %w", err)
	}
	// Identification takes longer than the settle delay already
	// observed by command.
	time.Sleep(identifyDelay)
	resp := d.buf[:3]
	if err := d.bus.Tx(d.addr, nil, resp); err != nil {
		return Unknown, 0, fmt.Errorf("trill: identify: %w: %w", ErrTimeout, err)
	}
	// First byte echoes the command register.
	typ, fw := resp[1], resp[2]
	if typ == 0 || int(typ) >= len(kindNames) {
		return Unknown, 0, fmt.Errorf("trill: identify: type byte 0x%02x: %w", typ, ErrUnknownDevice)
	}
	d.identified = Kind(typ)
	d.firmware = fw
	return d.identified, fw, nil
}

// SetMode sets the scan mode. The cached mode is updated only after
// the command has been sent.
func (d *Device) SetMode(m Mode) error {
	if m < ModeCentroid || m > ModeDiff {
		return fmt.Errorf("trill: mode %d: %w", int8(m), ErrOutOfRange)
	}
	if err := d.command(cmdMode, byte(m)); err != nil {
		return err
	}
	d.mode = m
	return nil
}

// SetScanSettings sets the scan speed (0 fastest to 3 slowest) and the
// resolution in bits (9 to 16).
func (d *Device) SetScanSettings(speed, resolution int) error {
	if speed < 0 || speed > 3 {
		return fmt.Errorf("trill: scan speed %d: %w", speed, ErrOutOfRange)
	}
	if resolution < 9 || resolution > 16 {
		return fmt.Errorf("trill: scan resolution %d: %w", resolution, ErrOutOfRange)
	}
	return d.command(cmdScanSettings, byte(speed), byte(resolution))
}

// SetPrescaler sets the capacitive sensing prescaler, 1 to 8.
func (d *Device) SetPrescaler(prescaler int) error {
	if prescaler < 1 || prescaler > 8 {
		return fmt.Errorf("trill: prescaler %d: %w", prescaler, ErrOutOfRange)
	}
	return d.command(cmdPrescaler, byte(prescaler))
}

// SetNoiseThreshold sets the noise threshold, 0 to 255, applied in
// centroid and diff modes.
func (d *Device) SetNoiseThreshold(threshold int) error {
	if threshold < 0 || threshold > 255 {
		return fmt.Errorf("trill: noise threshold %d: %w", threshold, ErrOutOfRange)
	}
	return d.command(cmdNoiseThreshold, byte(threshold))
}

// SetIDACValue sets the current reference calibration value, 0 to 255.
func (d *Device) SetIDACValue(value int) error {
	if value < 0 || value > 255 {
		return fmt.Errorf("trill: IDAC value %d: %w", value, ErrOutOfRange)
	}
	return d.command(cmdIDAC, byte(value))
}

// SetMinimumTouchSize sets the smallest touch size the firmware will
// report, 0 to 65535.
func (d *Device) SetMinimumTouchSize(size int) error {
	if size < 0 || size > 0xffff {
		return fmt.Errorf("trill: minimum touch size %d: %w", size, ErrOutOfRange)
	}
	return d.command(cmdMinimumSize, byte(size>>8), byte(size))
}

// SetAutoScanInterval sets the scan interval used with the EVT pin,
// 0 to 255.
func (d *Device) SetAutoScanInterval(interval int) error {
	if interval < 0 || interval > 255 {
		return fmt.Errorf("trill: auto-scan interval %d: %w", interval, ErrOutOfRange)
	}
	return d.command(cmdAutoScanInterval, byte(interval))
}

// UpdateBaseline makes the firmware re-capture its baseline
// capacitance values.
func (d *Device) UpdateBaseline() error {
	return d.command(cmdBaselineUpdate)
}

// Configure puts the sensor in its initial mode with default scan
// settings and a fresh baseline.
func (d *Device) Configure() error {
	if err := d.SetMode(d.initial); err != nil {
		return err
	}
	if err := d.SetScanSettings(defaultSpeed, defaultResolution); err != nil {
		return err
	}
	return d.UpdateBaseline()
}

// Read reads one scan frame. The frame length is determined by the
// cached mode; Read fails with ErrModeNotSet before touching the bus
// if no mode has been set.
func (d *Device) Read() (Frame, error) {
	if d.mode == ModeUnset {
		return nil, fmt.Errorf("trill: read: %w", ErrModeNotSet)
	}
	if err := d.pointTo(regData); err != nil {
		return nil, fmt.Errorf("trill: read: %w", err)
	}
	n := d.frameLen()
	raw := d.buf[1 : 1+2*n]
	if err := d.bus.Tx(d.addr, nil, raw); err != nil {
		return nil, fmt.Errorf("trill: read: %w: %w", ErrShortRead, err)
	}
	frame := make(Frame, n)
	for i := range frame {
		frame[i] = int16(binary.BigEndian.Uint16(raw[2*i:]))
	}
	return frame, nil
}

// ReadTouches reads and decodes one centroid frame. The device must be
// in centroid mode.
func (d *Device) ReadTouches() (touch.Set, error) {
	if d.mode != ModeCentroid {
		return touch.Set{}, fmt.Errorf("trill: touches require centroid mode, have %s: %w", d.mode, ErrModeNotSet)
	}
	frame, err := d.Read()
	if err != nil {
		return touch.Set{}, err
	}
	return touch.Decode(frame, d.Geometry())
}

func (d *Device) frameLen() int {
	if d.mode == ModeCentroid {
		return 2 * d.spec.directions * d.spec.maxTouches
	}
	return d.spec.channels
}

// command writes a command with its arguments to the command register
// and waits out the settle delay.
func (d *Device) command(args ...byte) error {
	w := d.buf[:1+len(args)]
	w[0] = regCommand
	copy(w[1:], args)
	if err := d.bus.Tx(d.addr, w, nil); err != nil {
		return fmt.Errorf("trill: command 0x%02x: %w", args[0], err)
	}
	time.Sleep(d.settle)
	return nil
}

// pointTo resets the sensor's read pointer.
func (d *Device) pointTo(reg byte) error {
	w := d.buf[:1]
	w[0] = reg
	if err := d.bus.Tx(d.addr, w, nil); err != nil {
		return err
	}
	time.Sleep(d.settle)
	return nil
}

const (
	defaultSpeed      = 0
	defaultResolution = 12

	identifyDelay = 15 * time.Millisecond

	regCommand = 0x00
	regData    = 0x04

	cmdNone             = 0x00
	cmdMode             = 0x01
	cmdScanSettings     = 0x02
	cmdPrescaler        = 0x03
	cmdNoiseThreshold   = 0x04
	cmdIDAC             = 0x05
	cmdBaselineUpdate   = 0x06
	cmdMinimumSize      = 0x07
	cmdAutoScanInterval = 0x10
	cmdIdentify         = 0xff
)
