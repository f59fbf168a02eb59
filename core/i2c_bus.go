package core

import "errors"

// I2CBusID identifies a specific I2C bus (e.g., I2C0, I2C1).
type I2CBusID uint8

// I2CAddress is a 7-bit I2C device address.
type I2CAddress uint8

// I2CDriver is the abstract I2C interface that core code uses.
type I2CDriver interface {
	// ConfigureBus initializes a specific I2C bus with the given frequency.
	ConfigureBus(bus I2CBusID, frequencyHz uint32) error

	// Write transmits data to a device at the given address on the specified bus.
	Write(bus I2CBusID, addr I2CAddress, data []byte) error

	// Read writes regData (when non-empty) and then reads readLen bytes with
	// a repeated start in between, like Klipper's i2c_dev_read.
	Read(bus I2CBusID, addr I2CAddress, regData []byte, readLen uint8) ([]byte, error)
}

var i2cDriver I2CDriver

// SetI2CDriver is called by target-specific code to register its driver.
func SetI2CDriver(d I2CDriver) {
	i2cDriver = d
}

// MustI2C returns the configured driver or panics if missing.
func MustI2C() I2CDriver {
	if i2cDriver == nil {
		panic("I2C driver not configured")
	}
	return i2cDriver
}

var errI2CNotReady = errors.New("i2c device not configured")

// HALBus exposes the bus of a protocol-configured I2C object as a
// drivers.I2C so that TinyGo sensor drivers can run on it. The sensor
// driver chooses the target address; the object only supplies the bus.
type HALBus struct {
	Dev *I2CDevice
}

// NewHALBus returns a bus bound to the I2C object dev.
func NewHALBus(dev *I2CDevice) *HALBus {
	return &HALBus{Dev: dev}
}

// Tx performs a write, a read, or a write followed by a read.
func (b *HALBus) Tx(addr uint16, w, r []byte) error {
	if b.Dev == nil || !b.Dev.Ready {
		return errI2CNotReady
	}
	if len(r) == 0 {
		return MustI2C().Write(b.Dev.Bus, I2CAddress(addr), w)
	}
	data, err := MustI2C().Read(b.Dev.Bus, I2CAddress(addr), w, uint8(len(r)))
	if err != nil {
		return err
	}
	copy(r, data)
	return nil
}

// ReadRegister reads len(buf) bytes starting at reg.
func (b *HALBus) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), []byte{reg}, buf)
}

// WriteRegister writes buf starting at reg.
func (b *HALBus) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), append([]byte{reg}, buf...), nil)
}
