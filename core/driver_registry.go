package core

import (
	"errors"

	"tofmcu/protocol"
)

// DriverConfig describes a sensor driver reachable through the generic
// driver_* commands. Every callback is optional.
type DriverConfig struct {
	Name    string
	I2CBus  I2CBusID
	I2CAddr I2CAddress

	// Attributes carries driver specific settings into the callbacks
	Attributes map[string]interface{}

	InitFunc      func(cfg *DriverConfig) (interface{}, error)
	ConfigureFunc func(device interface{}, cfg *DriverConfig) error
	ReadFunc      func(device interface{}, params []byte) ([]byte, error)
	WriteFunc     func(device interface{}, data []byte) error
	CloseFunc     func(device interface{}) error

	// PollFunc runs every PollRate ticks once polling starts. A nil or
	// empty result sends nothing.
	PollFunc func(device interface{}) ([]byte, error)
	PollRate uint32
}

// DriverInstance is a registered driver and its runtime state
type DriverInstance struct {
	OID        uint8
	Name       string
	Device     interface{}
	Config     *DriverConfig
	Configured bool
	Active     bool
	LastError  error
	PollRate   uint32
	timer      Timer
}

var (
	errDriverConfigNil    = errors.New("driver config is nil")
	errDriverNameRequired = errors.New("driver name is required")
	errDriverOIDTaken     = errors.New("driver OID already registered")
	errDriverNameTaken    = errors.New("driver name already registered")
	errDriverNotFound     = errors.New("driver not found")
	errDriverNoPoll       = errors.New("driver does not support polling")
	errDriverPollRate     = errors.New("poll rate must be greater than 0")
)

var (
	registeredDrivers = make(map[uint8]*DriverInstance)
	driversByName     = make(map[string]*DriverInstance)
)

// NewI2CDriverConfig creates the config of a driver for the device at addr
func NewI2CDriverConfig(name string, bus I2CBusID, addr I2CAddress) *DriverConfig {
	return &DriverConfig{
		Name:       name,
		I2CBus:     bus,
		I2CAddr:    addr,
		Attributes: make(map[string]interface{}),
	}
}

// RegisterDriver runs the driver's InitFunc and adds it under oid. Nothing
// is registered when InitFunc fails.
func RegisterDriver(oid uint8, cfg *DriverConfig) error {
	switch {
	case cfg == nil:
		return errDriverConfigNil
	case cfg.Name == "":
		return errDriverNameRequired
	}
	if _, ok := registeredDrivers[oid]; ok {
		return errDriverOIDTaken
	}
	if _, ok := driversByName[cfg.Name]; ok {
		return errDriverNameTaken
	}

	inst := &DriverInstance{OID: oid, Name: cfg.Name, Config: cfg, PollRate: cfg.PollRate}
	inst.timer.Handler = func(t *Timer) uint8 { return inst.poll(t) }
	if cfg.InitFunc != nil {
		dev, err := cfg.InitFunc(cfg)
		if err != nil {
			return err
		}
		inst.Device = dev
	}
	registeredDrivers[oid] = inst
	driversByName[cfg.Name] = inst
	return nil
}

func GetDriver(oid uint8) (*DriverInstance, bool) {
	inst, ok := registeredDrivers[oid]
	return inst, ok
}

func GetDriverByName(name string) (*DriverInstance, bool) {
	inst, ok := driversByName[name]
	return inst, ok
}

// UnregisterDriver stops and closes the driver at oid
func UnregisterDriver(oid uint8) error {
	inst, ok := registeredDrivers[oid]
	if !ok {
		return errDriverNotFound
	}
	inst.StopPolling()
	if inst.Config.CloseFunc != nil {
		if err := inst.Config.CloseFunc(inst.Device); err != nil {
			return err
		}
	}
	delete(registeredDrivers, oid)
	delete(driversByName, inst.Name)
	return nil
}

// StartPolling (re)starts the poll timer with the given interval
func (d *DriverInstance) StartPolling(ticks uint32) error {
	if d.Config.PollFunc == nil {
		return errDriverNoPoll
	}
	if ticks == 0 {
		return errDriverPollRate
	}
	d.PollRate = ticks
	d.Active = true
	DelTimer(&d.timer)
	d.timer.WakeTime = GetTime() + ticks
	ScheduleTimer(&d.timer)
	return nil
}

func (d *DriverInstance) StopPolling() {
	d.Active = false
	DelTimer(&d.timer)
}

func (d *DriverInstance) poll(t *Timer) uint8 {
	if !d.Active {
		return SF_DONE
	}
	data, err := d.Config.PollFunc(d.Device)
	d.LastError = err
	if err == nil && len(data) > 0 {
		SendResponse("driver_poll_data", func(out protocol.OutputBuffer) {
			protocol.EncodeVLQUint(out, uint32(d.OID))
			protocol.EncodeVLQBytes(out, data)
		})
	}
	t.WakeTime += d.PollRate
	return SF_RESCHEDULE
}
