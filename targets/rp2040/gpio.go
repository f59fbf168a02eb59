//go:build rp2040

package main

import (
	"errors"
	"machine"
	"strconv"

	"tofmcu/core"
)

// rpPinCount is the number of user GPIOs (GP0 to GP29)
const rpPinCount = 30

var errPinUnsupported = errors.New("unsupported GPIO pin")

// rpGPIO implements core.GPIODriver. Pin numbers are GPIO numbers.
type rpGPIO struct{}

func newRPGPIO() rpGPIO {
	return rpGPIO{}
}

func pinOf(pin core.GPIOPin) (machine.Pin, error) {
	if pin >= rpPinCount {
		return 0, errPinUnsupported
	}
	return machine.Pin(pin), nil
}

func (rpGPIO) ConfigureOutput(pin core.GPIOPin) error {
	p, err := pinOf(pin)
	if err != nil {
		return err
	}
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return nil
}

func (rpGPIO) ConfigureInput(pin core.GPIOPin, pullUp bool) error {
	p, err := pinOf(pin)
	if err != nil {
		return err
	}
	mode := machine.PinInputPulldown
	if pullUp {
		mode = machine.PinInputPullup
	}
	p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (rpGPIO) SetPin(pin core.GPIOPin, value bool) error {
	p, err := pinOf(pin)
	if err != nil {
		return err
	}
	p.Set(value)
	return nil
}

func (rpGPIO) ReadPin(pin core.GPIOPin) bool {
	p, err := pinOf(pin)
	if err != nil {
		return false
	}
	return p.Get()
}

// registerPins publishes the pin names used by config_digital_out and
// config_endstop
func registerPins() {
	names := make([]string, rpPinCount)
	for i := range names {
		names[i] = "gpio" + strconv.Itoa(i)
	}
	core.RegisterEnumeration("pin", names)
}
