package vl53l0x

import "time"

// DefaultAddress is the 7-bit address the chip answers on after reset.
const DefaultAddress = 0x29

// SenseMode is a preset of limit checks, VCSEL periods and timing budget.
type SenseMode uint8

const (
	SenseDefault SenseMode = iota
	SenseLongRange
	SenseHighSpeed
	SenseHighAccuracy
)

func (m SenseMode) String() string {
	switch m {
	case SenseDefault:
		return "default"
	case SenseLongRange:
		return "long_range"
	case SenseHighSpeed:
		return "high_speed"
	case SenseHighAccuracy:
		return "high_accuracy"
	}
	return "unknown"
}

// ParseSenseMode accepts the names returned by SenseMode.String.
func ParseSenseMode(s string) (SenseMode, bool) {
	for m := SenseDefault; m <= SenseHighAccuracy; m++ {
		if m.String() == s {
			return m, true
		}
	}
	return SenseDefault, false
}

// Config is passed to Device.Configure. Zero fields take defaults.
type Config struct {
	// Address is the 7-bit address to move the device to.
	Address uint8

	Sense SenseMode

	// IO1V8 keeps the chip's I/O in 1V8 mode instead of switching to 2V8.
	IO1V8 bool

	// MaxLoop bounds every status polling loop.
	MaxLoop int

	// PollInterval is the pause between two polls.
	PollInterval time.Duration

	// Logger receives step-by-step debug output when set.
	Logger func(string)

	// Sleep replaces time.Sleep.
	Sleep func(time.Duration)
}

// DefaultConfig returns the configuration used by New.
func DefaultConfig() Config {
	return Config{
		Address:      DefaultAddress,
		Sense:        SenseDefault,
		MaxLoop:      DefaultMaxLoop,
		PollInterval: DefaultPollInterval,
		Sleep:        time.Sleep,
	}
}

func (c *Config) setDefaults() {
	if c.Address == 0 {
		c.Address = DefaultAddress
	}
	if c.MaxLoop <= 0 {
		c.MaxLoop = DefaultMaxLoop
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Sleep == nil {
		c.Sleep = time.Sleep
	}
}
