package core

import (
	"errors"
	"testing"

	"tofmcu/protocol"
	"tofmcu/vl53l0x/sim"

	"tinygo.org/x/drivers"
)

// simHAL is an I2C HAL with the same simulated device on every bus
type simHAL struct {
	sensor drivers.I2C
	rates  map[I2CBusID]uint32
}

func (h *simHAL) ConfigureBus(bus I2CBusID, frequencyHz uint32) error {
	h.rates[bus] = frequencyHz
	return nil
}

func (h *simHAL) Write(bus I2CBusID, addr I2CAddress, data []byte) error {
	return h.sensor.Tx(uint16(addr), data, nil)
}

func (h *simHAL) Read(bus I2CBusID, addr I2CAddress, regData []byte, readLen uint8) ([]byte, error) {
	buf := make([]byte, readLen)
	if err := h.sensor.Tx(uint16(addr), regData, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Pins of the simulated board
const (
	pinXShut = 2 // drives the sensor's XSHUT
	pinGPIO1 = 3 // reads the sensor's GPIO1
)

// simGPIO records output levels and forwards wired pins
type simGPIO struct {
	outputs map[GPIOPin]bool
	pullUps map[GPIOPin]bool
	drive   map[GPIOPin]func(bool)
	sense   map[GPIOPin]func() bool
}

func newSimGPIO(sensor *sim.Sensor) *simGPIO {
	return &simGPIO{
		outputs: make(map[GPIOPin]bool),
		pullUps: make(map[GPIOPin]bool),
		drive:   map[GPIOPin]func(bool){pinXShut: sensor.SetXShut},
		sense:   map[GPIOPin]func() bool{pinGPIO1: sensor.GPIO1},
	}
}

func (g *simGPIO) ConfigureOutput(pin GPIOPin) error {
	if pin > 29 {
		return errors.New("no such pin")
	}
	g.outputs[pin] = false
	return nil
}

func (g *simGPIO) ConfigureInput(pin GPIOPin, pullUp bool) error {
	g.pullUps[pin] = pullUp
	return nil
}

func (g *simGPIO) SetPin(pin GPIOPin, value bool) error {
	g.outputs[pin] = value
	if fn, ok := g.drive[pin]; ok {
		fn(value)
	}
	return nil
}

func (g *simGPIO) ReadPin(pin GPIOPin) bool {
	if fn, ok := g.sense[pin]; ok {
		return fn()
	}
	return g.pullUps[pin]
}

// captureOutput is an unbounded protocol output buffer
type captureOutput struct {
	data []byte
}

func (c *captureOutput) Output(data []byte)       { c.data = append(c.data, data...) }
func (c *captureOutput) CurPosition() int         { return len(c.data) }
func (c *captureOutput) Update(pos int, val byte) { c.data[pos] = val }
func (c *captureOutput) DataSince(pos int) []byte { return c.data[pos:] }

type response struct {
	name string
	args []byte
}

// takeResponses parses and clears the captured frames
func (c *captureOutput) takeResponses(t *testing.T) []response {
	t.Helper()
	var out []response
	data := c.data
	for len(data) > 0 {
		n := int(data[0])
		if n < protocol.MessageLengthMin || n > len(data) {
			t.Fatalf("Bad frame length %d", n)
		}
		if crc := protocol.CRC16(data[:n-3]); uint16(data[n-3])<<8|uint16(data[n-2]) != crc {
			t.Fatalf("Bad frame CRC")
		}
		payload := append([]byte(nil), data[2:n-3]...)
		data = data[n:]
		if len(payload) == 0 {
			continue
		}
		id, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			t.Fatalf("Bad message id: %v", err)
		}
		cmd, ok := globalRegistry.GetCommand(uint16(id))
		if !ok {
			t.Fatalf("Unknown message id %d", id)
		}
		out = append(out, response{name: cmd.Name, args: payload})
	}
	c.data = nil
	return out
}

// uints decodes the integer arguments of a response
func (r response) uints(t *testing.T) []uint32 {
	t.Helper()
	var vals []uint32
	args := r.args
	for len(args) > 0 {
		v, err := protocol.DecodeVLQUint(&args)
		if err != nil {
			t.Fatalf("Bad %s argument: %v", r.name, err)
		}
		vals = append(vals, v)
	}
	return vals
}

// setupFirmware registers the commands, clears all objects and installs a
// simulated sensor behind the I2C HAL.
func setupFirmware(t *testing.T) (*captureOutput, *sim.Sensor) {
	t.Helper()
	InitCoreCommands()
	InitI2CCommands()
	InitDriverCommands()
	InitTriggerSyncCommands()
	InitI2CEndstopCommands()
	InitToFCommands()
	InitGPIOCommands()
	InitEndstopCommands()

	ResetObjects()
	SetTime(0)
	ResetFirmwareState()

	sensor := sim.New()
	SetI2CDriver(&simHAL{sensor: sensor, rates: make(map[I2CBusID]uint32)})
	SetGPIODriver(newSimGPIO(sensor))

	out := &captureOutput{}
	SetGlobalTransport(protocol.NewTransport(out, DispatchCommand))
	t.Cleanup(func() { SetGlobalTransport(nil) })
	return out, sensor
}

// run dispatches a command by name. Arguments are uint32, int or []byte.
func run(t *testing.T, name string, args ...interface{}) error {
	t.Helper()
	cmd, ok := globalRegistry.GetCommandByName(name)
	if !ok {
		t.Fatalf("Command %s not registered", name)
	}
	var enc captureOutput
	for _, a := range args {
		switch v := a.(type) {
		case int:
			protocol.EncodeVLQUint(&enc, uint32(v))
		case uint32:
			protocol.EncodeVLQUint(&enc, v)
		case []byte:
			protocol.EncodeVLQBytes(&enc, v)
		default:
			t.Fatalf("Unsupported argument %T", a)
		}
	}
	data := enc.data
	return DispatchCommand(cmd.ID, &data)
}

// mustRun dispatches a command that is expected to succeed
func mustRun(t *testing.T, name string, args ...interface{}) {
	t.Helper()
	if err := run(t, name, args...); err != nil {
		t.Fatalf("%s failed: %v", name, err)
	}
}

// configureI2C creates I2C object oid on bus 0 at the sensor address
func configureI2C(t *testing.T, oid int) {
	t.Helper()
	mustRun(t, "config_i2c", oid)
	mustRun(t, "i2c_set_bus", oid, 0, 400000, 0x29)
}

// advance moves the clock forward and runs the due timers
func advance(ticks uint32) {
	SetTime(GetTime() + ticks)
	ProcessTimers()
}
