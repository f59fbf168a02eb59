// VL53L0X time-of-flight sensor objects
// Exposes the vl53l0x driver to the host as Klipper objects bound to an I2C bus
package core

import (
	"tofmcu/protocol"
	"tofmcu/vl53l0x"
)

// ToFSensor is a VL53L0X configured over the protocol
type ToFSensor struct {
	OID       uint8
	I2C       *I2CDevice
	Dev       *vl53l0x.Device
	Timer     Timer  // Continuous mode result polling
	Period    uint32 // Inter-measurement period in ticks
	Streaming bool   // Continuous results are being sent
	polling   bool   // A driver poll measurement is in flight
	Last      vl53l0x.RangingMeasurementData
	Samples   uint32 // Results sent since the last start
}

// readyRetryUS is how long the stream waits before polling data-ready again
const readyRetryUS = 1000

// rangeInvalid is reported in place of a range when the read failed
const rangeInvalid = 0xFFFF

var tofSensors = make(map[uint8]*ToFSensor)

// InitToFCommands registers the VL53L0X commands and responses
func InitToFCommands() {
	RegisterCommand("config_vl53l0x", "oid=%c i2c_oid=%c", handleConfigToF)
	RegisterCommand("vl53l0x_init", "oid=%c addr=%c mode=%c budget=%u", handleToFInit)
	RegisterCommand("vl53l0x_measure", "oid=%c", handleToFMeasure)
	RegisterCommand("vl53l0x_start_continuous", "oid=%c period=%hu", handleToFStartContinuous)
	RegisterCommand("vl53l0x_stop_continuous", "oid=%c", handleToFStopContinuous)
	RegisterCommand("vl53l0x_set_limit", "oid=%c check=%c enable=%c value=%u", handleToFSetLimit)
	RegisterCommand("vl53l0x_set_interrupt", "oid=%c low=%u high=%u", handleToFSetInterrupt)
	RegisterCommand("vl53l0x_clear_interrupt", "oid=%c", handleToFClearInterrupt)
	RegisterShutdownCommand("vl53l0x_query_status", "oid=%c", handleToFQueryStatus)

	RegisterResponse("vl53l0x_range", "oid=%c status=%c range=%hu signal=%u ambient=%u spads=%hu")
	RegisterResponse("vl53l0x_status", "oid=%c status=%i address=%c mode=%c")

	RegisterConstant("VL53L0X_DEFAULT_ADDRESS", uint32(vl53l0x.DefaultAddress))
	RegisterEnumeration("vl53l0x_sense_mode", []string{
		vl53l0x.SenseDefault.String(),
		vl53l0x.SenseLongRange.String(),
		vl53l0x.SenseHighSpeed.String(),
		vl53l0x.SenseHighAccuracy.String(),
	})
}

// GetToF returns the sensor object with the given OID
func GetToF(oid uint8) (*ToFSensor, bool) {
	s, ok := tofSensors[oid]
	return s, ok
}

// decodeToF reads the leading oid and looks up the sensor
func decodeToF(data *[]byte) (*ToFSensor, error) {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return nil, err
	}
	return tofSensors[uint8(oid)], nil
}

// handleConfigToF binds a sensor object to a configured I2C object and
// registers it with the generic driver registry under the same OID.
// Format: config_vl53l0x oid=%c i2c_oid=%c
func handleConfigToF(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	i2cOID, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	i2c, exists := GetI2C(uint8(i2cOID))
	if !exists {
		return nil
	}

	s := &ToFSensor{
		OID: uint8(oid),
		I2C: i2c,
		Dev: vl53l0x.New(NewHALBus(i2c)),
	}
	tofSensors[s.OID] = s

	cfg := NewI2CDriverConfig("vl53l0x"+itoa(int(oid)), i2c.Bus, I2CAddress(vl53l0x.DefaultAddress))
	cfg.InitFunc = func(*DriverConfig) (interface{}, error) { return s, nil }
	cfg.ReadFunc = tofDriverRead
	cfg.PollFunc = tofDriverPoll
	UnregisterDriver(s.OID)
	return RegisterDriver(s.OID, cfg)
}

// handleToFInit runs the bring-up sequence
// Format: vl53l0x_init oid=%c addr=%c mode=%c budget=%u
func handleToFInit(data *[]byte) error {
	s, err := decodeToF(data)
	if err != nil {
		return err
	}
	addr, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	mode, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	budget, err := protocol.DecodeVLQUint(data)
	if err != nil || s == nil {
		return err
	}

	cfg := vl53l0x.DefaultConfig()
	if addr != 0 {
		cfg.Address = uint8(addr)
	}
	if mode <= uint32(vl53l0x.SenseHighAccuracy) {
		cfg.Sense = vl53l0x.SenseMode(mode)
	}
	if IsDebugEnabled() {
		cfg.Logger = DebugPrintln
	}

	stopStream(s)
	err = s.Dev.Configure(cfg)
	if err == nil && budget != 0 {
		err = s.Dev.SetMeasurementTimingBudget(budget)
	}
	RecordEvent(EvtToFInit, s.OID, statusCode(s.Dev.Status()), uint32(s.Dev.Address()))
	if err != nil {
		DebugPrintln("[TOF] init oid=" + itoa(int(s.OID)) + " failed: " + err.Error())
	}
	return err
}

// handleToFMeasure performs one blocking measurement and reports it
// Format: vl53l0x_measure oid=%c
func handleToFMeasure(data *[]byte) error {
	s, err := decodeToF(data)
	if err != nil || s == nil {
		return err
	}
	if s.Streaming {
		// the chip is busy with continuous ranging
		sendToFRange(s, s.Last, nil)
		return nil
	}

	m, err := s.Dev.GetSingleRangingMeasurement()
	sendToFRange(s, m, err)
	return nil
}

// handleToFStartContinuous starts timed continuous ranging and streams
// every result to the host
// Format: vl53l0x_start_continuous oid=%c period=%hu
func handleToFStartContinuous(data *[]byte) error {
	s, err := decodeToF(data)
	if err != nil {
		return err
	}
	period, err := protocol.DecodeVLQUint(data)
	if err != nil || s == nil {
		return err
	}
	if period == 0 {
		period = vl53l0x.DefaultContinuousPeriod
	}

	if err := s.Dev.StartRangeContinuous(uint16(period)); err != nil {
		RecordEvent(EvtToFError, s.OID, statusCode(vl53l0x.StatusOf(err)), 0)
		return err
	}
	RecordEvent(EvtToFStart, s.OID, period, 0)

	s.Period = TimerFromUS(period * 1000)
	s.Samples = 0
	s.Streaming = true
	DelTimer(&s.Timer)
	s.Timer.WakeTime = GetTime() + s.Period
	s.Timer.Handler = s.streamEvent
	ScheduleTimer(&s.Timer)
	return nil
}

// handleToFStopContinuous stops continuous ranging
// Format: vl53l0x_stop_continuous oid=%c
func handleToFStopContinuous(data *[]byte) error {
	s, err := decodeToF(data)
	if err != nil || s == nil {
		return err
	}
	s.Streaming = false
	DelTimer(&s.Timer)
	err = s.Dev.StopRangeContinuous()
	RecordEvent(EvtToFStop, s.OID, statusCode(vl53l0x.StatusOf(err)), s.Samples)
	return err
}

// handleToFSetLimit enables a limit check and sets its value (16.16)
// Format: vl53l0x_set_limit oid=%c check=%c enable=%c value=%u
func handleToFSetLimit(data *[]byte) error {
	s, err := decodeToF(data)
	if err != nil {
		return err
	}
	check, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	enable, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	value, err := protocol.DecodeVLQUint(data)
	if err != nil || s == nil {
		return err
	}

	id := vl53l0x.LimitCheckID(check)
	if err := s.Dev.SetLimitCheckEnable(id, enable != 0); err != nil {
		return err
	}
	if enable == 0 {
		return nil
	}
	return s.Dev.SetLimitCheckValue(id, vl53l0x.FixPoint1616(value))
}

// handleToFSetInterrupt configures the GPIO1 pin. Thresholds are in mm;
// both zero selects a new-sample-ready interrupt.
// Format: vl53l0x_set_interrupt oid=%c low=%u high=%u
func handleToFSetInterrupt(data *[]byte) error {
	s, err := decodeToF(data)
	if err != nil {
		return err
	}
	low, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	high, err := protocol.DecodeVLQUint(data)
	if err != nil || s == nil {
		return err
	}

	mode := vl53l0x.DeviceModeContinuousTimedRanging
	if low == 0 && high == 0 {
		return s.Dev.SetGpioConfig(0, mode, vl53l0x.GpioFuncNewMeasureReady, vl53l0x.InterruptPolarityLow)
	}
	err = s.Dev.SetInterruptThresholds(mode, vl53l0x.FixPoint1616(low<<16), vl53l0x.FixPoint1616(high<<16))
	if err != nil {
		return err
	}
	return s.Dev.SetGpioConfig(0, mode, vl53l0x.GpioFuncThresholdOut, vl53l0x.InterruptPolarityLow)
}

// handleToFClearInterrupt clears a pending interrupt
// Format: vl53l0x_clear_interrupt oid=%c
func handleToFClearInterrupt(data *[]byte) error {
	s, err := decodeToF(data)
	if err != nil || s == nil {
		return err
	}
	return s.Dev.ClearInterruptMask()
}

// handleToFQueryStatus reports the status of the last driver call
// Format: vl53l0x_query_status oid=%c
func handleToFQueryStatus(data *[]byte) error {
	s, err := decodeToF(data)
	if err != nil || s == nil {
		return err
	}

	mode := uint32(vl53l0x.DeviceModeSingleRanging)
	if s.Streaming {
		mode = uint32(vl53l0x.DeviceModeContinuousTimedRanging)
	}
	oid := s.OID
	status := int32(s.Dev.Status())
	address := uint32(s.Dev.Address())
	SendResponse("vl53l0x_status", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQInt(output, status)
		protocol.EncodeVLQUint(output, address)
		protocol.EncodeVLQUint(output, mode)
	})
	return nil
}

// sendToFRange reports a measurement. A failed read is sent with the
// no-update range status and an invalid range.
func sendToFRange(s *ToFSensor, m vl53l0x.RangingMeasurementData, err error) {
	status := uint32(m.RangeStatus)
	rng := uint32(m.RangeMilliMeter)
	if err != nil {
		status = uint32(vl53l0x.RangeNoUpdate)
		rng = rangeInvalid
		RecordEvent(EvtToFError, s.OID, statusCode(vl53l0x.StatusOf(err)), 0)
	} else {
		s.Last = m
		RecordEvent(EvtToFMeasure, s.OID, rng, status)
	}

	oid := s.OID
	signal := uint32(m.SignalRateRtnMegaCps)
	ambient := uint32(m.AmbientRateRtnMegaCps)
	spads := uint32(m.EffectiveSpadRtnCount)
	SendResponse("vl53l0x_range", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, status)
		protocol.EncodeVLQUint(output, rng)
		protocol.EncodeVLQUint(output, signal)
		protocol.EncodeVLQUint(output, ambient)
		protocol.EncodeVLQUint(output, spads)
	})
}

// streamEvent polls data-ready while continuous ranging is running
func (s *ToFSensor) streamEvent(t *Timer) uint8 {
	if !s.Streaming {
		return SF_DONE
	}

	if !s.Dev.IsRangeComplete() {
		t.WakeTime = GetTime() + TimerFromUS(readyRetryUS)
		return SF_RESCHEDULE
	}

	m, err := s.Dev.GetRangingMeasurement()
	if err == nil {
		err = s.Dev.ClearInterruptMask()
	}
	sendToFRange(s, m, err)
	if err != nil {
		TryShutdown("ToF sensor error")
		return SF_DONE
	}
	s.Samples++

	t.WakeTime += s.Period
	if int32(t.WakeTime-GetTime()) < 0 {
		// fell behind, do not burst
		t.WakeTime = GetTime() + s.Period
	}
	return SF_RESCHEDULE
}

// tofDriverRead serves driver_read: a single measurement as
// [status, range hi, range lo]
func tofDriverRead(device interface{}, params []byte) ([]byte, error) {
	s := device.(*ToFSensor)
	m, err := s.Dev.GetSingleRangingMeasurement()
	if err != nil {
		return nil, err
	}
	return packRange(m), nil
}

// tofDriverPoll serves driver_start_poll with the same layout as
// tofDriverRead. It never blocks: one poll starts a measurement and a later
// one collects it.
func tofDriverPoll(device interface{}) ([]byte, error) {
	s := device.(*ToFSensor)
	if s.Streaming {
		return packRange(s.Last), nil
	}
	if !s.polling {
		if err := s.Dev.StartRange(); err != nil {
			return nil, err
		}
		s.polling = true
		return nil, nil
	}
	if !s.Dev.IsRangeComplete() {
		return nil, nil
	}
	s.polling = false
	m, err := s.Dev.GetRangingMeasurement()
	if err == nil {
		err = s.Dev.ClearInterruptMask()
	}
	if err != nil {
		return nil, err
	}
	s.Last = m
	return packRange(m), nil
}

func packRange(m vl53l0x.RangingMeasurementData) []byte {
	return []byte{m.RangeStatus, byte(m.RangeMilliMeter >> 8), byte(m.RangeMilliMeter)}
}

// statusCode turns a driver status into an event value
func statusCode(e vl53l0x.Error) uint32 {
	return uint32(-int32(e))
}

func stopStream(s *ToFSensor) {
	DelTimer(&s.Timer)
	if s.Streaming {
		s.Streaming = false
		if err := s.Dev.StopRangeContinuous(); err != nil {
			RecordEvent(EvtToFError, s.OID, statusCode(vl53l0x.StatusOf(err)), 0)
		}
	}
}

// ShutdownAllToF stops every continuous stream (called during shutdown).
// The I2C objects are disabled right after, so the chips are not told.
func ShutdownAllToF() {
	for _, s := range tofSensors {
		if s != nil {
			s.Streaming = false
			DelTimer(&s.Timer)
		}
	}
}
