// Package localbus runs VL53L0X sensors directly on a Linux I2C bus through
// periph.io, without an MCU in between.
package localbus

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"

	"tofmcu/vl53l0x"
)

// Bus adapts a periph.io I2C bus to drivers.I2C
type Bus struct {
	bus    i2c.Bus
	closer i2c.BusCloser
}

var _ drivers.I2C = (*Bus)(nil)

// Open initializes the host drivers and opens an I2C bus by name; an empty
// name selects the first bus
func Open(name string, rateHz uint32) (*Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bc, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}
	b := &Bus{bus: bc, closer: bc}
	if rateHz != 0 {
		if err := b.SetRate(rateHz); err != nil {
			bc.Close()
			return nil, err
		}
	}
	return b, nil
}

// New wraps an already open bus
func New(bus i2c.Bus) *Bus {
	return &Bus{bus: bus}
}

// Tx performs a write, a read, or a write followed by a read
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	return b.bus.Tx(addr, w, r)
}

// SetRate sets the bus clock
func (b *Bus) SetRate(hz uint32) error {
	if err := b.bus.SetSpeed(physic.Frequency(hz) * physic.Hertz); err != nil {
		return fmt.Errorf("set i2c speed on %s: %w", b.bus, err)
	}
	return nil
}

func (b *Bus) String() string {
	return b.bus.String()
}

// Close releases the bus if Open created it
func (b *Bus) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

// Sensor is a VL53L0X driven from the host
type Sensor struct {
	Name string
	Dev  *vl53l0x.Device
	log  *zap.Logger
}

// NewSensor runs the bring-up sequence on bus
func NewSensor(bus drivers.I2C, name string, cfg vl53l0x.Config, log *zap.Logger) (*Sensor, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("sensor", name))
	if cfg.Logger == nil && log.Core().Enabled(zap.DebugLevel) {
		cfg.Logger = func(s string) { log.Debug(s) }
	}

	s := &Sensor{Name: name, Dev: vl53l0x.New(bus), log: log}
	if err := s.Dev.Configure(cfg); err != nil {
		return nil, fmt.Errorf("sensor %s: %w", name, err)
	}
	log.Info("sensor ready", zap.Uint8("address", s.Dev.Address()), zap.Stringer("sense", cfg.Sense))
	return s, nil
}

// Measure runs a single-shot measurement
func (s *Sensor) Measure() (vl53l0x.RangingMeasurementData, error) {
	return s.Dev.GetSingleRangingMeasurement()
}

// Stream runs continuous ranging and calls fn for every result until ctx
// is done. The sensor is stopped on return.
func (s *Sensor) Stream(ctx context.Context, periodMs uint16, fn func(vl53l0x.RangingMeasurementData)) error {
	if periodMs == 0 {
		periodMs = vl53l0x.DefaultContinuousPeriod
	}
	if err := s.Dev.StartRangeContinuous(periodMs); err != nil {
		return err
	}
	s.log.Debug("stream started", zap.Uint16("period_ms", periodMs))

	poll := time.Duration(periodMs) * time.Millisecond / 4
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.Dev.StopRangeContinuous()
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return s.Dev.StopRangeContinuous()
		}
		if !s.Dev.IsRangeComplete() {
			continue
		}
		m, err := s.Dev.GetRangingMeasurement()
		if err == nil {
			err = s.Dev.ClearInterruptMask()
		}
		if err != nil {
			s.Dev.StopRangeContinuous()
			return fmt.Errorf("sensor %s: %w", s.Name, err)
		}
		fn(m)
	}
}
