package config

import (
	"fmt"

	"bela.dev/trill"
)

// Validate checks configuration correctness. It performs declarative
// validation only and does not mutate the configuration.
func Validate(cfg *Config) error {
	seen := make(map[uint16]string)
	for i, s := range cfg.Sensors {
		kind, err := trill.ParseKind(s.Type)
		if err != nil {
			return fmt.Errorf("sensor %d: %w", i, err)
		}
		if kind == trill.Unknown || kind == trill.Flex {
			return fmt.Errorf("sensor %d: kind %s has no preset", i, kind)
		}
		if s.Mode != "" {
			if _, err := trill.ParseMode(s.Mode); err != nil {
				return fmt.Errorf("sensor %d: %w", i, err)
			}
		}
		addr := s.Address
		if addr == 0 {
			addr = kind.DefaultAddr()
		}
		if s.SettleMs < 0 {
			return fmt.Errorf("sensor %d: settle_ms must not be negative", i)
		}
		ranges := []struct {
			name     string
			val      *int
			min, max int
		}{
			{"speed", s.Speed, 0, 3},
			{"resolution", s.Resolution, 9, 16},
			{"prescaler", s.Prescaler, 1, 8},
			{"noise_threshold", s.NoiseThreshold, 0, 255},
			{"idac", s.IDAC, 0, 255},
			{"minimum_touch_size", s.MinimumTouchSize, 0, 0xffff},
			{"auto_scan_interval", s.AutoScanInterval, 0, 255},
		}
		for _, r := range ranges {
			if r.val == nil {
				continue
			}
			if *r.val < r.min || *r.val > r.max {
				return fmt.Errorf("sensor %d: %s %d outside %d-%d", i, r.name, *r.val, r.min, r.max)
			}
		}
		if prev, ok := seen[addr]; ok {
			return fmt.Errorf("sensor %d: address 0x%02x already used by sensor %s", i, addr, prev)
		}
		seen[addr] = s.Type
	}
	return nil
}
