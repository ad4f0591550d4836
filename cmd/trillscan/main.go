// Command trillscan polls Trill sensors on an I2C bus and prints the
// decoded touches. Sessions can be recorded to a capture file and
// decoded again offline with -replay.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"bela.dev/capture"
	"bela.dev/internal/config"
	"bela.dev/touch"
	"bela.dev/trill"
)

func main() {
	busName := flag.String("bus", "", "I2C bus name, empty for the first available")
	cfgPath := flag.String("config", "", "sensor setup file")
	scans := flag.Int("n", 0, "number of scans, 0 to run until interrupted")
	interval := flag.Duration("interval", 50*time.Millisecond, "delay between scans")
	record := flag.String("record", "", "record raw frames to a capture file")
	replay := flag.String("replay", "", "decode a capture file and exit")
	flag.Parse()
	log.SetFlags(0)
	log.SetPrefix("trillscan: ")

	if *replay != "" {
		if err := runReplay(*replay); err != nil {
			log.Fatal(err)
		}
		return
	}
	if err := run(*busName, *cfgPath, *scans, *interval, *record); err != nil {
		log.Fatal(err)
	}
}

func run(busName, cfgPath string, scans int, interval time.Duration, record string) error {
	cfg := &config.Config{
		Sensors: []config.SensorConfig{{Type: "Bar"}},
	}
	if cfgPath != "" {
		c, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = c
	}
	if busName == "" {
		busName = cfg.Bus
	}

	if _, err := host.Init(); err != nil {
		return err
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return err
	}
	defer bus.Close()

	var devs []*trill.Device
	for _, sc := range cfg.Sensors {
		d, err := openSensor(bus, sc)
		if err != nil {
			return err
		}
		devs = append(devs, d)
	}

	var sessions []*capture.Session
	if record != "" {
		for _, d := range devs {
			sessions = append(sessions, &capture.Session{
				Kind: d.Kind().String(),
				Mode: d.Mode().String(),
			})
		}
	}

	for i := 0; scans == 0 || i < scans; i++ {
		for j, d := range devs {
			frame, err := d.Read()
			if err != nil {
				return err
			}
			if sessions != nil {
				sessions[j].Add(frame)
			}
			if d.Mode() != trill.ModeCentroid {
				fmt.Printf("%s: %v\n", d.Kind(), frame)
				continue
			}
			set, err := touch.Decode(frame, d.Geometry())
			if err != nil {
				return err
			}
			printTouches(d.Kind().String(), set)
		}
		time.Sleep(interval)
	}

	if record != "" {
		f, err := os.Create(record)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := capture.Write(f, sessions); err != nil {
			return err
		}
	}
	return nil
}

func openSensor(bus trill.Bus, sc config.SensorConfig) (*trill.Device, error) {
	kind, err := trill.ParseKind(sc.Type)
	if err != nil {
		return nil, err
	}
	var opts []trill.Option
	if sc.Address != 0 {
		opts = append(opts, trill.WithAddress(sc.Address))
	}
	if sc.SettleMs != 0 {
		opts = append(opts, trill.WithSettleDelay(time.Duration(sc.SettleMs)*time.Millisecond))
	}
	if sc.Mode != "" {
		mode, err := trill.ParseMode(sc.Mode)
		if err != nil {
			return nil, err
		}
		opts = append(opts, trill.WithInitialMode(mode))
	}
	d, err := trill.New(bus, kind, opts...)
	if err != nil {
		return nil, err
	}
	id, fw, err := d.Identify()
	if err != nil {
		return nil, err
	}
	if id != kind {
		log.Printf("sensor at 0x%02x identifies as %s, configured as %s", d.Addr(), id, kind)
	}
	log.Printf("%s at 0x%02x, firmware %d", id, d.Addr(), fw)

	if err := d.Configure(); err != nil {
		return nil, err
	}
	steps := []struct {
		val *int
		set func(int) error
	}{
		{sc.NoiseThreshold, d.SetNoiseThreshold},
		{sc.Prescaler, d.SetPrescaler},
		{sc.IDAC, d.SetIDACValue},
		{sc.MinimumTouchSize, d.SetMinimumTouchSize},
		{sc.AutoScanInterval, d.SetAutoScanInterval},
	}
	if sc.Speed != nil || sc.Resolution != nil {
		speed, res := 0, 12
		if sc.Speed != nil {
			speed = *sc.Speed
		}
		if sc.Resolution != nil {
			res = *sc.Resolution
		}
		if err := d.SetScanSettings(speed, res); err != nil {
			return nil, err
		}
	}
	for _, s := range steps {
		if s.val == nil {
			continue
		}
		if err := s.set(*s.val); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func runReplay(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sessions, err := capture.Read(f)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		kind, err := trill.ParseKind(s.Kind)
		if err != nil {
			return err
		}
		if s.Mode != "" && s.Mode != trill.ModeCentroid.String() {
			fmt.Printf("%s: %d %s frames\n", s.Kind, len(s.Frames), s.Mode)
			continue
		}
		for _, frame := range s.Frames {
			set, err := touch.Decode(frame, kind.Geometry())
			if err != nil {
				return err
			}
			printTouches(s.Kind, set)
		}
	}
	return nil
}

func printTouches(name string, set touch.Set) {
	if set.Empty() {
		fmt.Printf("%s: no touches\n", name)
		return
	}
	fmt.Printf("%s:", name)
	for _, t := range set.Touches() {
		if t.SizeX == 0 {
			fmt.Printf(" (%.3f sz %.0f)", t.Y, t.SizeY)
		} else {
			fmt.Printf(" (%.3f,%.3f sz %.0f,%.0f)", t.X, t.Y, t.SizeX, t.SizeY)
		}
	}
	fmt.Println()
}
