//go:build rp2040

package main

import (
	"errors"
	"machine"
	"sync"

	"tofmcu/core"
)

var (
	errBusUnsupported = errors.New("unsupported I2C bus")
	errBusNotReady    = errors.New("I2C bus not configured")
)

// rpI2C implements core.I2CDriver on machine.I2C0 (GP4/GP5) and
// machine.I2C1 (GP6/GP7)
type rpI2C struct {
	mu    sync.Mutex
	buses [2]*machine.I2C
}

func newRPI2C() *rpI2C {
	return &rpI2C{}
}

func (d *rpI2C) ConfigureBus(bus core.I2CBusID, frequencyHz uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if int(bus) >= len(d.buses) {
		return errBusUnsupported
	}
	if i2c := d.buses[bus]; i2c != nil {
		return i2c.SetBaudRate(frequencyHz)
	}

	i2c := machine.I2C0
	if bus == 1 {
		i2c = machine.I2C1
	}
	if err := i2c.Configure(machine.I2CConfig{Frequency: frequencyHz}); err != nil {
		return err
	}
	d.buses[bus] = i2c
	return nil
}

func (d *rpI2C) get(bus core.I2CBusID) (*machine.I2C, error) {
	if int(bus) >= len(d.buses) {
		return nil, errBusUnsupported
	}
	if d.buses[bus] == nil {
		return nil, errBusNotReady
	}
	return d.buses[bus], nil
}

func (d *rpI2C) Write(bus core.I2CBusID, addr core.I2CAddress, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	i2c, err := d.get(bus)
	if err != nil {
		return err
	}
	return i2c.Tx(uint16(addr), data, nil)
}

// Read issues a repeated start between regData and the read when regData
// is not empty
func (d *rpI2C) Read(bus core.I2CBusID, addr core.I2CAddress, regData []byte, readLen uint8) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	i2c, err := d.get(bus)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, readLen)
	if err := i2c.Tx(uint16(addr), regData, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
