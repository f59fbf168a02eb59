package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/drivers"

	"tofmcu/host/config"
	"tofmcu/host/localbus"
	"tofmcu/host/mcu"
	"tofmcu/host/serial"
	"tofmcu/host/vmcu"
	"tofmcu/vl53l0x"
	"tofmcu/vl53l0x/sim"
)

// reading is one range result from any backend
type reading struct {
	Sensor  string
	Status  uint8
	RangeMM uint16
	Signal  float32
	Ambient float32
}

func (r reading) String() string {
	if r.Status != vl53l0x.RangeValid {
		return fmt.Sprintf("%s: %s", r.Sensor, vl53l0x.RangeStatusString(r.Status))
	}
	return fmt.Sprintf("%s: %d mm (signal %.2f MCPS, ambient %.2f MCPS)", r.Sensor, r.RangeMM, r.Signal, r.Ambient)
}

// backend runs the configured sensors either through an MCU or directly
type backend interface {
	Measure() ([]reading, error)
	// Start streams results; a zero period uses each sensor's configured one
	Start(periodMs uint16, fn func(reading)) error
	Stop() error
	Status(w io.Writer) error
	Dictionary(w io.Writer) error
	Close() error
}

var (
	errStreaming    = errors.New("already streaming")
	errNotStreaming = errors.New("not streaming")
	errNoDictionary = errors.New("no MCU dictionary in local mode")
)

type mcuSensor struct {
	name   string
	period uint16
	tof    *mcu.ToF
}

// mcuBackend drives sensors through the ToF objects of an MCU
type mcuBackend struct {
	m       *mcu.MCU
	vm      *vmcu.MCU
	sensors []mcuSensor
	stops   []func() error
}

// newMCUBackend connects to the MCU on the configured serial port, or to a
// virtual MCU with a simulated sensor when simulate is set
func newMCUBackend(cfg *config.Config, simulate bool, log *zap.Logger) (*mcuBackend, error) {
	b := &mcuBackend{m: mcu.New(log.Named("mcu"))}
	b.m.SetTimeout(time.Duration(cfg.Serial.ResponseTimeoutMS) * time.Millisecond)

	if simulate {
		vm, port, err := vmcu.Start(sim.New(), log.Named("vmcu"))
		if err != nil {
			return nil, err
		}
		b.vm = vm
		b.m.Attach(port)
	} else {
		err := b.m.ConnectWithConfig(&serial.Config{
			Device:      cfg.Serial.Device,
			Baud:        cfg.Serial.Baud,
			ReadTimeout: cfg.Serial.ReadTimeoutMS,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := b.m.RetrieveDictionary(); err != nil {
		b.Close()
		return nil, err
	}
	cfgs := make([]mcu.ToFConfig, len(cfg.Sensors))
	for i, s := range cfg.Sensors {
		cfgs[i] = mcu.ToFConfig{
			OID:     s.OID,
			I2COID:  s.I2COID,
			Bus:     s.Bus,
			Rate:    s.Rate,
			Address: s.Address,
			Sense:   s.SenseMode(),
			Budget:  s.BudgetUS,
		}
		if s.XShutPin != nil {
			cfgs[i].XShut = &mcu.XShut{OID: s.XShutOID, Pin: *s.XShutPin}
		}
	}
	tofs, err := b.m.NewToFs(cfgs)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("sensor %s: %w", cfg.Sensors[len(tofs)].Name, err)
	}
	for i, tof := range tofs {
		s := cfg.Sensors[i]
		b.sensors = append(b.sensors, mcuSensor{name: s.Name, period: s.PeriodMS, tof: tof})
		log.Info("sensor ready", zap.String("sensor", s.Name), zap.Uint8("oid", s.OID))
	}
	return b, nil
}

func fromRange(name string, r mcu.Range) reading {
	return reading{Sensor: name, Status: r.Status, RangeMM: r.RangeMM, Signal: r.SignalRate, Ambient: r.AmbientRate}
}

func (b *mcuBackend) Measure() ([]reading, error) {
	var out []reading
	for _, s := range b.sensors {
		r, err := s.tof.Measure()
		if err != nil {
			return out, fmt.Errorf("%s: %w", s.name, err)
		}
		out = append(out, fromRange(s.name, r))
	}
	return out, nil
}

func (b *mcuBackend) Start(periodMs uint16, fn func(reading)) error {
	if len(b.stops) > 0 {
		return errStreaming
	}
	for _, s := range b.sensors {
		name := s.name
		period := periodMs
		if period == 0 {
			period = s.period
		}
		stop, err := s.tof.StartContinuous(period, func(r mcu.Range) { fn(fromRange(name, r)) })
		if err != nil {
			b.Stop()
			return fmt.Errorf("%s: %w", name, err)
		}
		b.stops = append(b.stops, stop)
	}
	return nil
}

func (b *mcuBackend) Stop() error {
	if len(b.stops) == 0 {
		return errNotStreaming
	}
	var errs []error
	for _, stop := range b.stops {
		errs = append(errs, stop())
	}
	b.stops = nil
	return errors.Join(errs...)
}

func (b *mcuBackend) Status(w io.Writer) error {
	r, err := b.m.Query("config", nil, "get_config")
	if err != nil {
		return err
	}
	if r.Uint("is_shutdown") != 0 {
		fmt.Fprintln(w, "mcu: shutdown")
	} else {
		fmt.Fprintln(w, "mcu: ready")
	}
	for _, s := range b.sensors {
		st, err := s.tof.Status()
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		mode := "single"
		if st.Continuous {
			mode = "continuous"
		}
		fmt.Fprintf(w, "%s: oid=%d address=0x%02x mode=%s status=%s\n", s.name, st.OID, st.Address, mode, st.Error.Error())
	}
	return nil
}

func (b *mcuBackend) Dictionary(w io.Writer) error {
	b.m.WriteSummary(w)
	return nil
}

func (b *mcuBackend) Close() error {
	if len(b.stops) > 0 {
		b.Stop()
	}
	err := b.m.Close()
	if b.vm != nil {
		b.vm.Close()
	}
	return err
}

type localSensor struct {
	period uint16
	s      *localbus.Sensor
}

// localBackend runs the driver on the host's own I2C bus, or on a
// simulated sensor when simulate is set
type localBackend struct {
	bus     *localbus.Bus
	sensors []localSensor

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	errs   []error
}

func newLocalBackend(cfg *config.Config, simulate bool, log *zap.Logger) (*localBackend, error) {
	b := &localBackend{}
	var bus drivers.I2C
	if simulate {
		bus = sim.New()
	} else {
		lb, err := localbus.Open(cfg.Local.Bus, cfg.Sensors[0].Rate)
		if err != nil {
			return nil, err
		}
		b.bus = lb
		bus = lb
	}

	for _, s := range cfg.Sensors {
		sensor, err := localbus.NewSensor(bus, s.Name, s.DriverConfig(), log.Named("local"))
		if err == nil && s.BudgetUS != 0 {
			err = sensor.Dev.SetMeasurementTimingBudget(s.BudgetUS)
		}
		if err != nil {
			b.Close()
			return nil, err
		}
		b.sensors = append(b.sensors, localSensor{period: s.PeriodMS, s: sensor})
	}
	return b, nil
}

func fromMeasurement(name string, m vl53l0x.RangingMeasurementData) reading {
	return reading{
		Sensor:  name,
		Status:  m.RangeStatus,
		RangeMM: m.RangeMilliMeter,
		Signal:  m.SignalRateRtnMegaCps.Float(),
		Ambient: m.AmbientRateRtnMegaCps.Float(),
	}
}

func (b *localBackend) Measure() ([]reading, error) {
	if b.cancel != nil {
		return nil, errStreaming
	}
	var out []reading
	for _, ls := range b.sensors {
		m, err := ls.s.Measure()
		if err != nil {
			return out, err
		}
		out = append(out, fromMeasurement(ls.s.Name, m))
	}
	return out, nil
}

func (b *localBackend) Start(periodMs uint16, fn func(reading)) error {
	if b.cancel != nil {
		return errStreaming
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.errs = nil
	for _, ls := range b.sensors {
		ls := ls
		period := periodMs
		if period == 0 {
			period = ls.period
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			err := ls.s.Stream(ctx, period, func(m vl53l0x.RangingMeasurementData) {
				fn(fromMeasurement(ls.s.Name, m))
			})
			if err != nil {
				b.mu.Lock()
				b.errs = append(b.errs, err)
				b.mu.Unlock()
			}
		}()
	}
	return nil
}

func (b *localBackend) Stop() error {
	if b.cancel == nil {
		return errNotStreaming
	}
	b.cancel()
	b.wg.Wait()
	b.cancel = nil
	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Join(b.errs...)
}

func (b *localBackend) Status(w io.Writer) error {
	mode := "single"
	if b.cancel != nil {
		mode = "continuous"
	}
	for _, ls := range b.sensors {
		fmt.Fprintf(w, "%s: address=0x%02x mode=%s status=%s\n", ls.s.Name, ls.s.Dev.Address(), mode, ls.s.Dev.Status().Error())
	}
	return nil
}

func (b *localBackend) Dictionary(w io.Writer) error {
	return errNoDictionary
}

func (b *localBackend) Close() error {
	if b.cancel != nil {
		b.Stop()
	}
	if b.bus != nil {
		return b.bus.Close()
	}
	return nil
}
