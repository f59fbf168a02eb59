package core

import "errors"

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// GPIODriver is the pin interface core code uses. Targets provide the
// hardware implementation.
type GPIODriver interface {
	// ConfigureOutput makes pin a push-pull output
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInput makes pin an input with a pull-up or pull-down
	ConfigureInput(pin GPIOPin, pullUp bool) error

	// SetPin drives an output pin
	SetPin(pin GPIOPin, value bool) error

	// ReadPin returns the level of an input pin
	ReadPin(pin GPIOPin) bool
}

var errGPIONotConfigured = errors.New("GPIO driver not configured")

var gpioDriver GPIODriver

// SetGPIODriver is called by target code to register its driver
func SetGPIODriver(d GPIODriver) {
	gpioDriver = d
}

// gpio returns the registered driver
func gpio() (GPIODriver, error) {
	if gpioDriver == nil {
		return nil, errGPIONotConfigured
	}
	return gpioDriver, nil
}
