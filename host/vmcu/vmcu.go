// Package vmcu runs the core firmware inside the host process with a
// simulated VL53L0X on every I2C bus. Two pins reach the sensor's XSHUT
// and GPIO1 lines. It backs the host tool's -sim mode
// and end-to-end tests of the host packages.
//
// The firmware keeps its state in package globals, so only one virtual MCU
// may run at a time.
package vmcu

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"tofmcu/core"
	"tofmcu/protocol"
	"tofmcu/vl53l0x/sim"
)

// tickInterval is how often the firmware loop advances its clock
const tickInterval = time.Millisecond

var (
	errRunning = errors.New("vmcu: a virtual MCU is already running")

	registerOnce sync.Once
	running      bool
	runningMu    sync.Mutex
)

// simBus is an I2C HAL with one simulated sensor shared by all buses
type simBus struct {
	sensor *sim.Sensor
}

func (b simBus) ConfigureBus(bus core.I2CBusID, frequencyHz uint32) error {
	return nil
}

func (b simBus) Write(bus core.I2CBusID, addr core.I2CAddress, data []byte) error {
	return b.sensor.Tx(uint16(addr), data, nil)
}

func (b simBus) Read(bus core.I2CBusID, addr core.I2CAddress, regData []byte, readLen uint8) ([]byte, error) {
	buf := make([]byte, readLen)
	if err := b.sensor.Tx(uint16(addr), regData, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Pins of the virtual MCU wired to the simulated sensor
const (
	XShutPin core.GPIOPin = 2 // output to the sensor's XSHUT input
	GPIO1Pin core.GPIOPin = 3 // input from the sensor's GPIO1 output
)

// simPins is a GPIO HAL. XShutPin and GPIO1Pin reach the sensor, other
// pins latch their last level.
type simPins struct {
	sensor *sim.Sensor
	levels map[core.GPIOPin]bool
}

func (p *simPins) ConfigureOutput(pin core.GPIOPin) error {
	return nil
}

func (p *simPins) ConfigureInput(pin core.GPIOPin, pullUp bool) error {
	if pin != GPIO1Pin {
		p.levels[pin] = pullUp
	}
	return nil
}

func (p *simPins) SetPin(pin core.GPIOPin, value bool) error {
	if pin == XShutPin {
		p.sensor.SetXShut(value)
	}
	p.levels[pin] = value
	return nil
}

func (p *simPins) ReadPin(pin core.GPIOPin) bool {
	if pin == GPIO1Pin {
		return p.sensor.GPIO1()
	}
	return p.levels[pin]
}

// MCU is a running virtual MCU
type MCU struct {
	Sensor *sim.Sensor

	log      *zap.Logger
	fw       net.Conn
	input    chan []byte
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Start boots the firmware and returns the host end of its serial link
func Start(sensor *sim.Sensor, log *zap.Logger) (*MCU, io.ReadWriteCloser, error) {
	runningMu.Lock()
	defer runningMu.Unlock()
	if running {
		return nil, nil, errRunning
	}
	running = true

	if log == nil {
		log = zap.NewNop()
	}
	registerOnce.Do(registerCommands)
	core.ResetObjects()
	core.ResetFirmwareState()
	core.SetTime(0)
	core.SetI2CDriver(simBus{sensor: sensor})
	core.SetGPIODriver(&simPins{sensor: sensor, levels: make(map[core.GPIOPin]bool)})

	host, fw := net.Pipe()
	m := &MCU{
		Sensor: sensor,
		log:    log,
		fw:     fw,
		input:  make(chan []byte, 16),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go m.readLoop()
	go m.run()
	log.Info("virtual MCU started")
	return m, host, nil
}

// registerCommands mirrors the command set of the RP2040 firmware
func registerCommands() {
	core.InitCoreCommands()
	core.InitI2CCommands()
	core.InitDriverCommands()
	core.InitTriggerSyncCommands()
	core.InitI2CEndstopCommands()
	core.InitToFCommands()
	core.InitGPIOCommands()
	core.InitEndstopCommands()
	core.RegisterConstant("MCU", "vmcu")
	core.RegisterConstant("CLOCK_FREQ", uint32(core.TimerFreq))
	core.GetGlobalDictionary().BuildDictionary()
}

// readLoop moves bytes from the link into the firmware loop
func (m *MCU) readLoop() {
	buf := make([]byte, 256)
	for {
		n, err := m.fw.Read(buf)
		if err != nil {
			m.Stop()
			return
		}
		data := append([]byte(nil), buf[:n]...)
		select {
		case m.input <- data:
		case <-m.stop:
			return
		}
	}
}

// run is the firmware main loop. All firmware state is touched here only.
func (m *MCU) run() {
	defer close(m.done)
	defer func() {
		core.SetGlobalTransport(nil)
		runningMu.Lock()
		running = false
		runningMu.Unlock()
	}()

	inputBuffer := protocol.NewFifoBuffer(512)
	outputBuffer := protocol.NewScratchOutput()
	transport := protocol.NewTransport(outputBuffer, core.DispatchCommand)
	transport.SetResetCallback(func() {
		core.ResetFirmwareState()
	})
	core.SetGlobalTransport(transport)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-m.stop:
			return
		case data := <-m.input:
			inputBuffer.Write(data)
			transport.Receive(inputBuffer)
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			core.SetTime(core.GetTime() + core.TimerFromUS(uint32(elapsed.Microseconds())))
			core.ProcessTimers()
		}

		if out := outputBuffer.Result(); len(out) > 0 {
			msg := append([]byte(nil), out...)
			outputBuffer.Reset()
			if _, err := m.fw.Write(msg); err != nil {
				m.log.Debug("virtual MCU link closed", zap.Error(err))
				return
			}
		}
	}
}

// Stop halts the firmware loop and closes the link
func (m *MCU) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.fw.Close()
	})
}

// Wait blocks until the firmware loop has exited
func (m *MCU) Wait() {
	<-m.done
}

// Close stops the firmware and waits for it to exit
func (m *MCU) Close() error {
	m.Stop()
	m.Wait()
	return nil
}

// ShutdownReason is the latched firmware shutdown reason, if any
func (m *MCU) ShutdownReason() string {
	return core.ShutdownReason()
}
