package mcu

import (
	"fmt"

	"tofmcu/vl53l0x"
)

// Range is a decoded vl53l0x_range report
type Range struct {
	OID            uint8
	Status         uint8
	RangeMM        uint16
	SignalRate     float32 // MCPS
	AmbientRate    float32 // MCPS
	EffectiveSpads uint16  // 8.8
}

// Valid reports whether the range status is RangeValid
func (r Range) Valid() bool {
	return r.Status == vl53l0x.RangeValid
}

// StatusString is the text for the range status
func (r Range) StatusString() string {
	return vl53l0x.RangeStatusString(r.Status)
}

func (r Range) String() string {
	if !r.Valid() {
		return fmt.Sprintf("oid=%d %s", r.OID, r.StatusString())
	}
	return fmt.Sprintf("oid=%d range=%dmm signal=%.2fMCPS ambient=%.2fMCPS", r.OID, r.RangeMM, r.SignalRate, r.AmbientRate)
}

func decodeRange(r *Response) Range {
	return Range{
		OID:            uint8(r.Uint("oid")),
		Status:         uint8(r.Uint("status")),
		RangeMM:        uint16(r.Uint("range")),
		SignalRate:     vl53l0x.FixPoint1616(r.Uint("signal")).Float(),
		AmbientRate:    vl53l0x.FixPoint1616(r.Uint("ambient")).Float(),
		EffectiveSpads: uint16(r.Uint("spads")),
	}
}

// SensorStatus is a decoded vl53l0x_status report
type SensorStatus struct {
	OID        uint8
	Error      vl53l0x.Error
	Address    uint8
	Continuous bool
}

// ToF drives one VL53L0X object on the MCU
type ToF struct {
	mcu    *MCU
	OID    uint8
	I2COID uint8
}

// ToFConfig describes the objects allocated for one sensor
type ToFConfig struct {
	OID     uint8
	I2COID  uint8
	Bus     uint8
	Rate    uint32 // Hz
	Address uint8  // 7-bit address to move the sensor to, 0 keeps the default
	Sense   vl53l0x.SenseMode
	Budget  uint32 // µs, 0 keeps the sense mode's budget
	XShut   *XShut // standby line, used by NewToFs
}

// NewToF configures the I2C object and the sensor object on the MCU and runs
// the sensor bring-up
func (m *MCU) NewToF(cfg ToFConfig) (*ToF, error) {
	t := &ToF{mcu: m, OID: cfg.OID, I2COID: cfg.I2COID}
	steps := []struct {
		cmd  string
		args []interface{}
	}{
		{"config_i2c", []interface{}{cfg.I2COID}},
		{"i2c_set_bus", []interface{}{cfg.I2COID, cfg.Bus, cfg.Rate, vl53l0x.DefaultAddress}},
		{"config_vl53l0x", []interface{}{cfg.OID, cfg.I2COID}},
	}
	for _, s := range steps {
		if err := m.Send(s.cmd, s.args...); err != nil {
			return nil, fmt.Errorf("%s: %w", s.cmd, err)
		}
	}
	if err := m.Send("vl53l0x_init", cfg.OID, cfg.Address, uint8(cfg.Sense), cfg.Budget); err != nil {
		return nil, fmt.Errorf("vl53l0x_init: %w", err)
	}
	st, err := t.Status()
	if err != nil {
		return nil, err
	}
	if st.Error != vl53l0x.ErrNone {
		return nil, fmt.Errorf("sensor %d init: %w", cfg.OID, st.Error)
	}
	return t, nil
}

func (t *ToF) matchOID(r *Response) bool {
	return uint8(r.Uint("oid")) == t.OID
}

// Measure runs a single-shot measurement
func (t *ToF) Measure() (Range, error) {
	r, err := t.mcu.Query("vl53l0x_range", t.matchOID, "vl53l0x_measure", t.OID)
	if err != nil {
		return Range{}, err
	}
	return decodeRange(r), nil
}

// Status queries the status of the last driver call
func (t *ToF) Status() (SensorStatus, error) {
	r, err := t.mcu.Query("vl53l0x_status", t.matchOID, "vl53l0x_query_status", t.OID)
	if err != nil {
		return SensorStatus{}, err
	}
	return SensorStatus{
		OID:        t.OID,
		Error:      vl53l0x.Error(r.Int("status")),
		Address:    uint8(r.Uint("address")),
		Continuous: vl53l0x.DeviceMode(r.Uint("mode")) == vl53l0x.DeviceModeContinuousTimedRanging,
	}, nil
}

// StartContinuous starts streaming one result every periodMs (0 selects
// the default period). fn runs on the reader goroutine for every result
// until Stop.
func (t *ToF) StartContinuous(periodMs uint16, fn func(Range)) (stop func() error, err error) {
	remove := t.mcu.RegisterHandler("vl53l0x_range", func(r *Response) {
		if t.matchOID(r) {
			fn(decodeRange(r))
		}
	})
	if err := t.mcu.Send("vl53l0x_start_continuous", t.OID, periodMs); err != nil {
		remove()
		return nil, err
	}
	return func() error {
		defer remove()
		return t.mcu.Send("vl53l0x_stop_continuous", t.OID)
	}, nil
}

// SetLimit enables or disables a limit check; value is used when enabling
func (t *ToF) SetLimit(id vl53l0x.LimitCheckID, enable bool, value vl53l0x.FixPoint1616) error {
	return t.mcu.Send("vl53l0x_set_limit", t.OID, uint16(id), enable, uint32(value))
}

// SetInterrupt configures threshold interrupts in mm; zero for both selects
// new-sample-ready
func (t *ToF) SetInterrupt(lowMM, highMM uint32) error {
	return t.mcu.Send("vl53l0x_set_interrupt", t.OID, lowMM, highMM)
}

// ClearInterrupt clears a pending sensor interrupt
func (t *ToF) ClearInterrupt() error {
	return t.mcu.Send("vl53l0x_clear_interrupt", t.OID)
}
