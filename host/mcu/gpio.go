package mcu

import (
	"fmt"
	"time"
)

// xshutBootDelay covers the sensor boot after XSHUT goes high
const xshutBootDelay = 2 * time.Millisecond

// DigitalOut drives one output pin on the MCU
type DigitalOut struct {
	mcu *MCU
	OID uint8
	Pin uint32
}

// NewDigitalOut configures an output pin at value. The pin returns to
// defaultValue when the MCU shuts down.
func (m *MCU) NewDigitalOut(oid uint8, pin uint32, value, defaultValue bool) (*DigitalOut, error) {
	if err := m.Send("config_digital_out", oid, pin, value, defaultValue, uint32(0)); err != nil {
		return nil, fmt.Errorf("config_digital_out: %w", err)
	}
	return &DigitalOut{mcu: m, OID: oid, Pin: pin}, nil
}

// Set drives the pin now
func (d *DigitalOut) Set(value bool) error {
	return d.mcu.Send("update_digital_out", d.OID, value)
}

// XShut is the MCU output wired to a sensor's XSHUT line
type XShut struct {
	OID uint8
	Pin uint32
}

// NewToFs brings up several sensors that may share a bus. Sensors with an
// XSHUT line are held in standby first, then released one at a time so
// each is moved off the default address before the next boots.
func (m *MCU) NewToFs(cfgs []ToFConfig) ([]*ToF, error) {
	outs := make([]*DigitalOut, len(cfgs))
	for i, cfg := range cfgs {
		if cfg.XShut == nil {
			continue
		}
		d, err := m.NewDigitalOut(cfg.XShut.OID, cfg.XShut.Pin, false, false)
		if err != nil {
			return nil, fmt.Errorf("sensor %d xshut: %w", cfg.OID, err)
		}
		outs[i] = d
	}

	tofs := make([]*ToF, 0, len(cfgs))
	for i, cfg := range cfgs {
		if d := outs[i]; d != nil {
			if err := d.Set(true); err != nil {
				return tofs, fmt.Errorf("sensor %d xshut: %w", cfg.OID, err)
			}
			time.Sleep(xshutBootDelay)
		}
		t, err := m.NewToF(cfg)
		if err != nil {
			return tofs, err
		}
		tofs = append(tofs, t)
	}
	return tofs, nil
}
