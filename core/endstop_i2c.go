// I2C endstop handling for Time-of-Flight distance sensors
// A homing move stops when the measured distance crosses a threshold
package core

import (
	"errors"

	"tofmcu/protocol"
	"tofmcu/vl53l0x"

	"tinygo.org/x/drivers/vl53l1x"
)

// ESF_HOMING is set in I2CEndstop.Flags while a homing move runs
const ESF_HOMING = 1 << 1

// I2C endstop sensor types
const (
	I2C_ENDSTOP_VL53L0X = 0x00
	I2C_ENDSTOP_VL53L1X = 0x01
)

// endstopPeriodMs is the ranging period the sensor runs at while configured
const endstopPeriodMs = 20

var (
	errEndstopSensorType = errors.New("unknown I2C endstop sensor type")
	errL1XInit           = errors.New("vl53l1x init failed")
)

// distanceSensor is a ToF sensor ranging continuously in the background
type distanceSensor interface {
	// start brings the sensor up and starts continuous ranging
	start() error
	// distance returns the latest range in mm; ok is false when no new
	// result is ready yet
	distance() (mm uint32, ok bool, err error)
}

// l0xSensor runs a VL53L0X through the vl53l0x driver
type l0xSensor struct {
	dev  *vl53l0x.Device
	addr uint8
}

func (s *l0xSensor) start() error {
	cfg := vl53l0x.DefaultConfig()
	cfg.Address = s.addr
	cfg.Sense = vl53l0x.SenseHighSpeed
	if err := s.dev.Configure(cfg); err != nil {
		return err
	}
	return s.dev.StartRangeContinuous(endstopPeriodMs)
}

func (s *l0xSensor) distance() (uint32, bool, error) {
	if !s.dev.IsRangeComplete() {
		return 0, false, nil
	}
	m, err := s.dev.GetRangingMeasurement()
	if err == nil {
		err = s.dev.ClearInterruptMask()
	}
	if err != nil {
		return 0, false, err
	}
	if m.RangeStatus != vl53l0x.RangeValid {
		// nothing in range
		return rangeInvalid, true, nil
	}
	return uint32(m.RangeMilliMeter), true, nil
}

// l1xSensor runs a VL53L1X through the TinyGo vl53l1x driver
type l1xSensor struct {
	dev vl53l1x.Device
}

func (s *l1xSensor) start() error {
	if !s.dev.Configure(true) {
		return errL1XInit
	}
	s.dev.SetMeasurementTimingBudget(endstopPeriodMs * 1000)
	s.dev.StartContinuous(endstopPeriodMs)
	return nil
}

func (s *l1xSensor) distance() (uint32, bool, error) {
	// a non-blocking read returns zero until a result is ready
	d := s.dev.Read(false)
	if d == 0 {
		return 0, false, nil
	}
	return uint32(d), true, nil
}

// I2CEndstop stops homing moves on a distance threshold. A trigger needs
// sample_count consecutive results past the threshold; once the first is
// seen, later ones only have to stay within the hysteresis.
type I2CEndstop struct {
	OID               uint8
	I2C               *I2CDevice
	Addr              uint8
	SensorType        uint8
	DistanceThreshold uint32 // mm
	TriggerBelow      bool
	Hysteresis        uint32 // mm

	Flags        uint8
	LastDistance uint32
	Initialized  bool

	sensor       distanceSensor
	timer        Timer
	home         homing
	oversampling bool
	remaining    uint8
	nextWake     uint32
}

// homing holds the arguments of i2c_endstop_home
type homing struct {
	sampleTicks uint32
	restTicks   uint32
	samples     uint8
	trsync      *TriggerSync
	reason      uint8
}

var i2cEndstops = make(map[uint8]*I2CEndstop)

// InitI2CEndstopCommands registers the I2C endstop commands
func InitI2CEndstopCommands() {
	RegisterCommand("config_i2c_endstop", "oid=%c i2c_oid=%c addr=%c sensor_type=%c distance_threshold=%u trigger_below=%c hysteresis=%u", handleConfigI2CEndstop)
	RegisterCommand("i2c_endstop_home", "oid=%c clock=%u sample_ticks=%u sample_count=%c rest_ticks=%u trsync_oid=%c trigger_reason=%c", handleI2CEndstopHome)
	RegisterShutdownCommand("i2c_endstop_query_state", "oid=%c", handleI2CEndstopQueryState)
	RegisterResponse("i2c_endstop_state", "oid=%c homing=%c next_clock=%u distance=%u")
}

func newDistanceSensor(kind uint8, i2c *I2CDevice, addr uint8) (distanceSensor, error) {
	switch kind {
	case I2C_ENDSTOP_VL53L0X:
		return &l0xSensor{dev: vl53l0x.New(NewHALBus(i2c)), addr: addr}, nil
	case I2C_ENDSTOP_VL53L1X:
		dev := vl53l1x.New(NewHALBus(i2c))
		dev.Address = uint16(addr)
		return &l1xSensor{dev: dev}, nil
	}
	return nil, errEndstopSensorType
}

// handleConfigI2CEndstop creates the endstop and tries to bring the sensor
// up. A bus that is not ready yet is retried at homing time.
// Format: config_i2c_endstop oid=%c i2c_oid=%c addr=%c sensor_type=%c distance_threshold=%u trigger_below=%c hysteresis=%u
func handleConfigI2CEndstop(data *[]byte) error {
	var oid, i2cOID, addr, kind, threshold, below, hysteresis uint32
	err := decodeArgs(data, &oid, &i2cOID, &addr, &kind, &threshold, &below, &hysteresis)
	if err != nil {
		return err
	}
	i2c, ok := GetI2C(uint8(i2cOID))
	if !ok {
		return nil
	}
	sensor, err := newDistanceSensor(uint8(kind), i2c, uint8(addr&0x7F))
	if err != nil {
		return err
	}

	e := &I2CEndstop{
		OID:               uint8(oid),
		I2C:               i2c,
		Addr:              uint8(addr & 0x7F),
		SensorType:        uint8(kind),
		DistanceThreshold: threshold,
		TriggerBelow:      below != 0,
		Hysteresis:        hysteresis,
		LastDistance:      rangeInvalid,
		sensor:            sensor,
	}
	e.timer.Handler = e.sample

	if old, ok := i2cEndstops[e.OID]; ok {
		DelTimer(&old.timer)
	}
	i2cEndstops[e.OID] = e
	e.bringUp()
	return nil
}

// handleI2CEndstopHome arms the endstop. A sample_count of 0 disarms it.
// Format: i2c_endstop_home oid=%c clock=%u sample_ticks=%u sample_count=%c rest_ticks=%u trsync_oid=%c trigger_reason=%c
func handleI2CEndstopHome(data *[]byte) error {
	var oid, clock, sampleTicks, sampleCount, restTicks, trsyncOID, reason uint32
	err := decodeArgs(data, &oid, &clock, &sampleTicks, &sampleCount, &restTicks, &trsyncOID, &reason)
	if err != nil {
		return err
	}
	e, ok := i2cEndstops[uint8(oid)]
	if !ok {
		return nil
	}
	DelTimer(&e.timer)
	e.Flags = 0
	e.home = homing{}
	if sampleCount == 0 {
		return nil
	}
	ts, ok := GetTriggerSync(uint8(trsyncOID))
	if !ok {
		return nil
	}
	if !e.Initialized {
		if err := e.bringUp(); err != nil {
			return err
		}
	}

	e.home = homing{
		sampleTicks: sampleTicks,
		restTicks:   restTicks,
		samples:     uint8(sampleCount),
		trsync:      ts,
		reason:      uint8(reason),
	}
	e.oversampling = false
	e.Flags = ESF_HOMING
	e.timer.WakeTime = clock
	ScheduleTimer(&e.timer)
	return nil
}

// Format: i2c_endstop_query_state oid=%c
func handleI2CEndstopQueryState(data *[]byte) error {
	var oid uint32
	if err := decodeArgs(data, &oid); err != nil {
		return err
	}
	e, ok := i2cEndstops[uint8(oid)]
	if !ok {
		return nil
	}

	state := disableInterrupts()
	homingNow := e.Flags&ESF_HOMING != 0
	next, distance := e.nextWake, e.LastDistance
	restoreInterrupts(state)

	SendResponse("i2c_endstop_state", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, oid)
		protocol.EncodeVLQUint(out, boolArg(homingNow))
		protocol.EncodeVLQUint(out, next)
		protocol.EncodeVLQUint(out, distance)
	})
	return nil
}

// bringUp configures the sensor and starts continuous ranging
func (e *I2CEndstop) bringUp() error {
	if !e.I2C.Ready {
		return errI2CNotReady
	}
	if err := e.sensor.start(); err != nil {
		DebugPrintln("[ENDSTOP] sensor init oid=" + itoa(int(e.OID)) + " failed: " + err.Error())
		return err
	}
	e.Initialized = true
	return nil
}

// crossed reports whether distance is past the threshold widened by slack
func (e *I2CEndstop) crossed(distance, slack uint32) bool {
	if e.TriggerBelow {
		return distance < e.DistanceThreshold+slack
	}
	return distance+slack > e.DistanceThreshold
}

// sample is the endstop timer. It checks every rest_ticks until the
// threshold is crossed, then every sample_ticks while counting results.
func (e *I2CEndstop) sample(t *Timer) uint8 {
	if e.Flags&ESF_HOMING == 0 {
		return SF_DONE
	}
	distance, ok, err := e.sensor.distance()
	if err == nil && ok {
		e.LastDistance = distance
	}

	if !e.oversampling {
		if err != nil || !ok || !e.crossed(distance, 0) {
			t.WakeTime += e.home.restTicks
			return SF_RESCHEDULE
		}
		e.nextWake = t.WakeTime + e.home.restTicks
		e.oversampling = true
		e.remaining = e.home.samples
	} else if err != nil || (ok && !e.crossed(distance, e.Hysteresis)) {
		// back to the slow checks
		e.oversampling = false
		t.WakeTime = e.nextWake
		return SF_RESCHEDULE
	} else if !ok {
		t.WakeTime += e.home.sampleTicks
		return SF_RESCHEDULE
	}

	e.remaining--
	if e.remaining > 0 {
		t.WakeTime += e.home.sampleTicks
		return SF_RESCHEDULE
	}
	e.Flags &^= ESF_HOMING
	e.oversampling = false
	RecordEvent(EvtEndstopHit, e.OID, distance, uint32(e.home.reason))
	e.home.trsync.Trigger(e.home.reason)
	return SF_DONE
}
