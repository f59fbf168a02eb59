// Package sim emulates a VL53L0X on the register level. A Sensor satisfies
// drivers.I2C so it can stand in for a real bus in tests and demos.
package sim

import (
	"errors"
	"sync"
)

// ErrNack is returned for transactions addressed to another device.
var ErrNack = errors.New("sim: no device at address")

// Sensor is a simulated VL53L0X. Measurements complete as soon as they are
// started and report the configured range.
type Sensor struct {
	mu sync.Mutex

	addr      uint8
	page      uint8
	regs      [8][256]byte
	intStatus uint8
	fault     error
	standby   bool // XSHUT held low

	// continuous ranging produces a new result on the second status poll
	// after each interrupt clear
	continuous bool
	armed      bool

	rangeMM      uint16
	deviceStatus uint8
	signalRate   uint16 // 9.7 MCPS
	ambientRate  uint16 // 9.7 MCPS
	spads        uint16 // 8.8
	stopStatus   uint8

	measurements int
}

// New returns a sensor in its power-on state answering on 0x29.
func New() *Sensor {
	s := &Sensor{
		rangeMM:      500,
		deviceStatus: 11,
		signalRate:   20 << 7,
		ambientRate:  1 << 6,
		spads:        8 << 8,
	}
	s.boot()
	return s
}

// boot resets the chip state. The simulated target is left alone.
func (s *Sensor) boot() {
	s.addr = 0x29
	s.page = 0
	s.regs = [8][256]byte{}
	s.intStatus = 0
	s.continuous = false
	s.armed = false
	s.stopStatus = 0

	s.regs[0][0xC0] = 0xEE
	s.regs[0][0xC1] = 0xAA
	s.regs[0][0xC2] = 0x10
	s.regs[0][0xF8] = 0x00
	s.regs[0][0xF9] = 0x35
	for i := 0xB0; i <= 0xB5; i++ {
		s.regs[0][i] = 0xFF
	}
	s.regs[1][0x91] = 0x3C
	s.regs[1][0xB6] = 0x00
	s.regs[1][0xB7] = 0x80
	s.regs[1][0xCB] = 0x1D
	s.regs[1][0xEE] = 0x01
	// 5 aperture reference SPADs
	s.regs[7][0x92] = 0x85
}

// Tx implements drivers.I2C. The first written byte is the register index;
// further written bytes and all read bytes auto-increment from it.
func (s *Sensor) Tx(addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fault != nil {
		return s.fault
	}
	if s.standby || uint8(addr) != s.addr {
		return ErrNack
	}
	if len(w) == 0 {
		return errors.New("sim: missing register index")
	}
	idx := w[0]
	for i, b := range w[1:] {
		s.write(idx+uint8(i), b)
	}
	for i := range r {
		r[i] = s.read(idx + uint8(i))
	}
	return nil
}

// ReadRegister implements the legacy register helper of drivers.I2C.
func (s *Sensor) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return s.Tx(uint16(addr), []byte{reg}, buf)
}

// WriteRegister implements the legacy register helper of drivers.I2C.
func (s *Sensor) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return s.Tx(uint16(addr), append([]byte{reg}, buf...), nil)
}

func (s *Sensor) write(reg, v uint8) {
	if reg == 0xFF {
		s.page = v
		return
	}
	p := s.page & 0x07
	if p == 0 {
		switch reg {
		case 0x00:
			if s.continuous && v == 0x01 {
				// stop request
				s.continuous = false
				v = 0
			} else if v&0x07 != 0 {
				s.continuous = v&0x06 != 0
				s.measure()
			}
			// start bit self-clears
			v &^= 0x01
		case 0x0B:
			if v&0x01 != 0 {
				s.intStatus = 0
				s.armed = false
				s.regs[0][0x14] &^= 0x01
			}
		case 0x8A:
			s.addr = v & 0x7F
		}
	}
	s.regs[p][reg] = v
}

func (s *Sensor) read(reg uint8) uint8 {
	p := s.page & 0x07
	switch {
	case p == 0 && reg == 0x13:
		if s.continuous && s.intStatus == 0 {
			if s.armed {
				s.measure()
			}
			s.armed = true
		}
		return s.intStatus
	case p == 1 && reg == 0x04:
		return s.stopStatus
	case p == 7 && reg == 0x83:
		return 0x10
	}
	return s.regs[p][reg]
}

func (s *Sensor) measure() {
	s.measurements++
	s.intStatus = 0x04
	r := &s.regs[0]
	r[0x14] = s.deviceStatus<<3 | 0x01
	r[0x16], r[0x17] = byte(s.spads>>8), byte(s.spads)
	r[0x1A], r[0x1B] = byte(s.signalRate>>8), byte(s.signalRate)
	r[0x1C], r[0x1D] = byte(s.ambientRate>>8), byte(s.ambientRate)
	r[0x1E], r[0x1F] = byte(s.rangeMM>>8), byte(s.rangeMM)
}

// Address returns the 7-bit address the sensor currently answers on.
func (s *Sensor) Address() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// SetRange sets the distance reported by later measurements.
func (s *Sensor) SetRange(mm uint16) {
	s.mu.Lock()
	s.rangeMM = mm
	s.mu.Unlock()
}

// SetDeviceStatus sets the raw device status reported by later
// measurements. 11 means range complete.
func (s *Sensor) SetDeviceStatus(code uint8) {
	s.mu.Lock()
	s.deviceStatus = code & 0x0F
	s.mu.Unlock()
}

// SetSignal sets the return signal rate (9.7 MCPS) and the effective SPAD
// count (8.8) reported by later measurements.
func (s *Sensor) SetSignal(rate, spads uint16) {
	s.mu.Lock()
	s.signalRate, s.spads = rate, spads
	s.mu.Unlock()
}

// SetStopStatus sets the value of the stop status register. Zero means
// the last stop has completed.
func (s *Sensor) SetStopStatus(v uint8) {
	s.mu.Lock()
	s.stopStatus = v
	s.mu.Unlock()
}

// SetFault makes every transaction fail with err. Nil restores the bus.
func (s *Sensor) SetFault(err error) {
	s.mu.Lock()
	s.fault = err
	s.mu.Unlock()
}

// Reg returns a raw register value.
func (s *Sensor) Reg(page, reg uint8) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[page&0x07][reg]
}

// Measurements returns how many measurements have been started.
func (s *Sensor) Measurements() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.measurements
}

// SetXShut drives the XSHUT input. Low holds the chip in hardware standby
// where it does not answer; raising it boots the chip at 0x29.
func (s *Sensor) SetXShut(high bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if high && s.standby {
		s.boot()
	}
	s.standby = !high
}

// GPIO1 returns the level of the interrupt output. In continuous ranging
// the window functions follow the current range; otherwise the output is
// active only while an interrupt is pending.
func (s *Sensor) GPIO1() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	activeHigh := s.regs[0][0x84]&0x10 != 0
	if s.standby {
		return activeHigh
	}
	active := false
	fn := s.regs[0][0x0A] & 0x07
	if fn == 0x04 {
		active = s.intStatus != 0
	} else if s.continuous || s.intStatus != 0 {
		low := (uint16(s.regs[0][0x0E])<<8 | uint16(s.regs[0][0x0F])) * 2
		high := (uint16(s.regs[0][0x0C])<<8 | uint16(s.regs[0][0x0D])) * 2
		switch fn {
		case 0x01:
			active = s.rangeMM < low
		case 0x02:
			active = s.rangeMM > high
		case 0x03:
			active = s.rangeMM < low || s.rangeMM > high
		}
	}
	return active == activeHigh
}

// ErrCollision is returned when several sensors answer the same address.
var ErrCollision = errors.New("sim: several devices answered")

// Bus connects several sensors to one I2C bus. It satisfies drivers.I2C.
type Bus struct {
	Sensors []*Sensor
}

// NewBus returns a bus with the given sensors attached.
func NewBus(sensors ...*Sensor) *Bus {
	return &Bus{Sensors: sensors}
}

// Tx routes the transaction to the sensor answering on addr.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	var target *Sensor
	for _, s := range b.Sensors {
		s.mu.Lock()
		answers := !s.standby && s.addr == uint8(addr)
		s.mu.Unlock()
		if !answers {
			continue
		}
		if target != nil {
			return ErrCollision
		}
		target = s
	}
	if target == nil {
		return ErrNack
	}
	return target.Tx(addr, w, r)
}

// ReadRegister implements the legacy register helper of drivers.I2C.
func (b *Bus) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), []byte{reg}, buf)
}

// WriteRegister implements the legacy register helper of drivers.I2C.
func (b *Bus) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), append([]byte{reg}, buf...), nil)
}
