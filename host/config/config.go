// Package config loads the tof-host YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tofmcu/vl53l0x"
)

// Config is the top-level configuration file
type Config struct {
	Serial  Serial   `yaml:"serial"`
	Log     Log      `yaml:"log"`
	Local   Local    `yaml:"local"`
	Sensors []Sensor `yaml:"sensors"`
}

// Serial describes the link to the MCU
type Serial struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	// Read timeout in milliseconds
	ReadTimeoutMS int `yaml:"readTimeoutMs"`
	// How long a query waits for its response, in milliseconds
	ResponseTimeoutMS int `yaml:"responseTimeoutMs"`
}

// Log selects the zap encoder and level
type Log struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
}

// Local is used when sensors hang off the host's own I2C bus
type Local struct {
	// periph.io bus name; empty selects the first bus
	Bus string `yaml:"bus"`
}

// Sensor is one VL53L0X
type Sensor struct {
	Name string `yaml:"name"`
	// MCU object ids
	OID    uint8 `yaml:"oid"`
	I2COID uint8 `yaml:"i2cOid"`
	// MCU I2C bus number and clock
	Bus  uint8  `yaml:"bus"`
	Rate uint32 `yaml:"rate"`
	// 7-bit address to move the sensor to
	Address uint8 `yaml:"address"`
	// One of default, long_range, high_speed, high_accuracy
	Sense string `yaml:"sense"`
	// Timing budget in µs; 0 keeps the sense mode's budget
	BudgetUS uint32 `yaml:"budgetUs"`
	// Continuous ranging period in ms
	PeriodMS uint16 `yaml:"periodMs"`
	// MCU pin driving the sensor's XSHUT line, needed when sensors share a bus
	XShutPin *uint32 `yaml:"xshutPin"`
	XShutOID uint8   `yaml:"xshutOid"`
}

// Defaults
const (
	DefaultDevice          = "/dev/ttyACM0"
	DefaultBaud            = 250000
	DefaultReadTimeoutMS   = 100
	DefaultResponseTimeout = 1000
	DefaultRate            = 400000
	DefaultLevel           = "info"

	// minBudgetUS is the shortest timing budget the sensor accepts
	minBudgetUS = 20000
)

// Default returns a configuration for one sensor on the default address
func Default() *Config {
	c := &Config{Sensors: []Sensor{{Name: "tof0"}}}
	c.setDefaults()
	return c
}

// LoadConfig reads, defaults and validates a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes YAML, then applies defaults and validates
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) setDefaults() {
	if c.Serial.Device == "" {
		c.Serial.Device = DefaultDevice
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = DefaultBaud
	}
	if c.Serial.ReadTimeoutMS == 0 {
		c.Serial.ReadTimeoutMS = DefaultReadTimeoutMS
	}
	if c.Serial.ResponseTimeoutMS == 0 {
		c.Serial.ResponseTimeoutMS = DefaultResponseTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLevel
	}
	for i := range c.Sensors {
		s := &c.Sensors[i]
		if s.Name == "" {
			s.Name = fmt.Sprintf("tof%d", i)
		}
		if s.Rate == 0 {
			s.Rate = DefaultRate
		}
		if s.Address == 0 {
			s.Address = vl53l0x.DefaultAddress
		}
		if s.Sense == "" {
			s.Sense = vl53l0x.SenseDefault.String()
		}
		if s.PeriodMS == 0 {
			s.PeriodMS = vl53l0x.DefaultContinuousPeriod
		}
	}
	// object ids follow the sensor order unless given
	assignOIDs(c.Sensors)
}

// assignOIDs gives sensors without explicit ids an I2C object at 2n and a
// sensor object at 2n+1. XSHUT outputs follow after all sensors.
func assignOIDs(sensors []Sensor) {
	for i := range sensors {
		s := &sensors[i]
		if s.OID == 0 && s.I2COID == 0 {
			s.I2COID = uint8(2 * i)
			s.OID = uint8(2*i + 1)
		}
		if s.XShutPin != nil && s.XShutOID == 0 {
			s.XShutOID = uint8(2*len(sensors) + i)
		}
	}
}

// Validate checks the configuration for mistakes that would only surface
// on the MCU
func (c *Config) Validate() error {
	var errs []error
	if len(c.Sensors) == 0 {
		errs = append(errs, errors.New("no sensors configured"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	names := make(map[string]bool)
	oids := make(map[uint8]string)
	addrs := make(map[[2]uint8]string)
	noXShut := make(map[uint8][]string)
	for _, s := range c.Sensors {
		if names[s.Name] {
			errs = append(errs, fmt.Errorf("sensor %s: duplicate name", s.Name))
		}
		names[s.Name] = true

		if s.OID == s.I2COID {
			errs = append(errs, fmt.Errorf("sensor %s: oid and i2cOid are both %d", s.Name, s.OID))
		}
		ids := []uint8{s.OID, s.I2COID}
		if s.XShutPin != nil {
			ids = append(ids, s.XShutOID)
		} else {
			noXShut[s.Bus] = append(noXShut[s.Bus], s.Name)
		}
		for _, oid := range ids {
			if other, ok := oids[oid]; ok {
				errs = append(errs, fmt.Errorf("sensor %s: oid %d already used by %s", s.Name, oid, other))
			}
			oids[oid] = s.Name
		}

		if s.Address < 0x08 || s.Address > 0x77 {
			errs = append(errs, fmt.Errorf("sensor %s: address 0x%02x is not a 7-bit device address", s.Name, s.Address))
		}
		key := [2]uint8{s.Bus, s.Address}
		if other, ok := addrs[key]; ok {
			errs = append(errs, fmt.Errorf("sensor %s: address 0x%02x on bus %d already used by %s", s.Name, s.Address, s.Bus, other))
		}
		addrs[key] = s.Name

		if _, ok := vl53l0x.ParseSenseMode(s.Sense); !ok {
			errs = append(errs, fmt.Errorf("sensor %s: unknown sense mode %q", s.Name, s.Sense))
		}
		if s.BudgetUS != 0 && s.BudgetUS < minBudgetUS {
			errs = append(errs, fmt.Errorf("sensor %s: timing budget %dus is below %dus", s.Name, s.BudgetUS, minBudgetUS))
		}
	}
	// all sensors boot at the default address, so at most one per bus may
	// come up without being held in standby
	for bus, names := range noXShut {
		if len(names) > 1 {
			errs = append(errs, fmt.Errorf("bus %d: sensors %s share the bus and need xshutPin", bus, strings.Join(names, ", ")))
		}
	}
	return errors.Join(errs...)
}

// SenseMode returns the parsed sense mode
func (s Sensor) SenseMode() vl53l0x.SenseMode {
	m, _ := vl53l0x.ParseSenseMode(s.Sense)
	return m
}

// DriverConfig returns the driver configuration for running the sensor
// directly on a host bus
func (s Sensor) DriverConfig() vl53l0x.Config {
	cfg := vl53l0x.DefaultConfig()
	cfg.Address = s.Address
	cfg.Sense = s.SenseMode()
	return cfg
}
