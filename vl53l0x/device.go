// Package vl53l0x provides a driver for the VL53L0X time-of-flight ranging
// sensor by ST.
//
// Datasheet: https://www.st.com/resource/en/datasheet/vl53l0x.pdf
package vl53l0x

import (
	"strconv"
	"time"

	"tinygo.org/x/drivers"
)

// Device wraps a ranging API instance bound to one sensor.
type Device struct {
	api    RangingAPI
	comms  *Comms
	native *Native

	address uint8

	status      Error
	rangeStatus uint8

	maxLoop      int
	pollInterval time.Duration
	sleep        func(time.Duration)
	log          func(string)
}

// New creates a device on an already configured I2C bus, at the default
// address, driven by the register-level backend.
func New(bus drivers.I2C) *Device {
	c := NewComms(bus, DefaultAddress)
	return NewWithAPI(NewNative(c))
}

// NewWithAPI creates a device driven by an arbitrary ranging API.
func NewWithAPI(api RangingAPI) *Device {
	d := &Device{
		api:          api,
		address:      DefaultAddress,
		rangeStatus:  RangeNoUpdate,
		maxLoop:      DefaultMaxLoop,
		pollInterval: DefaultPollInterval,
		sleep:        time.Sleep,
	}
	if n, ok := api.(*Native); ok {
		d.native = n
		d.comms = n.c
	}
	return d
}

func (d *Device) logf(parts ...string) {
	if d.log == nil {
		return
	}
	s := ""
	for _, p := range parts {
		s += p
	}
	d.log(s)
}

// track records err as the current status and passes it through.
func (d *Device) track(err error) error {
	d.status = StatusOf(err)
	return err
}

// Status returns the status of the last ranging API call.
func (d *Device) Status() Error {
	return d.status
}

// Address returns the 7-bit address the device is bound to.
func (d *Device) Address() uint8 {
	return d.address
}

// Configure runs the full bring-up sequence. The first failing step aborts
// the sequence and its status is kept in Status.
func (d *Device) Configure(cfg Config) error {
	cfg.setDefaults()
	d.maxLoop = cfg.MaxLoop
	d.pollInterval = cfg.PollInterval
	d.sleep = cfg.Sleep
	d.log = cfg.Logger
	if d.comms != nil {
		d.comms.pollInterval = cfg.PollInterval
		d.comms.sleep = cfg.Sleep
	}
	if d.native != nil {
		d.native.maxLoop = cfg.MaxLoop
		d.native.io1v8 = cfg.IO1V8
	}
	return d.track(d.begin(cfg))
}

func (d *Device) begin(cfg Config) error {
	v, err := d.api.GetVersion()
	if err != nil {
		return err
	}
	if v.Major != 1 || v.Minor != 0 || v.Build != 1 {
		d.logf("Found ", versionString(v), " but require 1.0.1")
		return ErrNotSupported
	}

	d.logf("VL53L0X: DataInit")
	if err := d.api.DataInit(); err != nil {
		return err
	}

	if cfg.Address != d.address {
		if err := d.SetAddress(cfg.Address); err != nil {
			return err
		}
	}

	info, err := d.api.GetDeviceInfo()
	if err != nil {
		return err
	}
	d.logf("VL53L0X Info: ", info.Name, " ", info.Type,
		" rev ", strconv.Itoa(int(info.ProductRevisionMajor)), ".", strconv.Itoa(int(info.ProductRevisionMinor)))
	if info.ProductRevisionMinor != 1 {
		d.logf("Error expected cut 1.1")
		return ErrNotSupported
	}

	d.logf("VL53L0X: StaticInit")
	if err := d.api.StaticInit(); err != nil {
		return err
	}

	spads, aperture, err := d.api.PerformRefSpadManagement()
	if err != nil {
		return err
	}
	d.logf("refSpadCount = ", strconv.Itoa(int(spads)), ", isApertureSpads = ", strconv.FormatBool(aperture))

	d.logf("VL53L0X: PerformRefCalibration")
	if _, _, err := d.api.PerformRefCalibration(); err != nil {
		return err
	}

	d.logf("VL53L0X: SetDeviceMode")
	if err := d.api.SetDeviceMode(DeviceModeSingleRanging); err != nil {
		return err
	}

	if err := d.api.SetLimitCheckEnable(CheckSigmaFinalRange, true); err != nil {
		return err
	}
	if err := d.api.SetLimitCheckEnable(CheckSignalRateFinalRange, true); err != nil {
		return err
	}
	if err := d.api.SetLimitCheckEnable(CheckRangeIgnoreThreshold, true); err != nil {
		return err
	}
	if err := d.api.SetLimitCheckValue(CheckRangeIgnoreThreshold, Fix1616(1.5*0.023)); err != nil {
		return err
	}
	return d.configSensor(cfg.Sense)
}

func versionString(v Version) string {
	return strconv.Itoa(int(v.Major)) + "." + strconv.Itoa(int(v.Minor)) + "." + strconv.Itoa(int(v.Build))
}

// Connected reports whether the part answers with the VL53L0X model ID.
func (d *Device) Connected() bool {
	info, err := d.api.GetDeviceInfo()
	return err == nil && info.ProductType == modelID
}

// SetAddress moves the device to a new 7-bit address.
func (d *Device) SetAddress(addr uint8) error {
	addr &= 0x7F
	err := d.api.SetDeviceAddress(addr * 2)
	d.sleep(10 * time.Millisecond)
	if err != nil {
		return d.track(err)
	}
	d.address = addr
	if d.comms != nil {
		d.comms.SetAddress(addr)
	}
	return d.track(nil)
}

// GetSingleRangingMeasurement performs one measurement. With a logger set it
// also reports the range status and the range-ignore value in use.
func (d *Device) GetSingleRangingMeasurement() (RangingMeasurementData, error) {
	data, err := d.api.PerformSingleRangingMeasurement()
	if d.track(err) != nil {
		return data, err
	}
	if d.log != nil {
		d.PrintRangeStatus(data)
		cur, err := d.api.GetLimitCheckCurrent(CheckRangeIgnoreThreshold)
		if err == nil {
			d.logf("RANGE IGNORE THRESHOLD: ", strconv.FormatFloat(float64(cur.Float()), 'f', 4, 32))
		}
		d.logf("Measured distance: ", strconv.Itoa(int(data.RangeMilliMeter)))
	}
	return data, nil
}

// RangeStatusString formats the status of a measurement.
func (d *Device) RangeStatusString(data RangingMeasurementData) string {
	return "Range Status: " + strconv.Itoa(int(data.RangeStatus)) + " : " +
		d.api.GetRangeStatusString(data.RangeStatus)
}

// PrintRangeStatus writes the range status to the logger.
func (d *Device) PrintRangeStatus(data RangingMeasurementData) {
	d.logf(d.RangeStatusString(data))
}

// GetRangingMeasurement reads the latest result without starting a new one.
func (d *Device) GetRangingMeasurement() (RangingMeasurementData, error) {
	data, err := d.api.GetRangingMeasurementData()
	return data, d.track(err)
}

// ReadRange performs a single measurement and returns the range in mm, or
// 0xFFFF on failure or a phase failure.
func (d *Device) ReadRange() uint16 {
	data, err := d.GetSingleRangingMeasurement()
	d.rangeStatus = data.RangeStatus
	if err != nil || data.RangeStatus == RangePhaseFail {
		return 0xFFFF
	}
	return data.RangeMilliMeter
}

// ReadRangeStatus returns the range status of the last read.
func (d *Device) ReadRangeStatus() uint8 {
	return d.rangeStatus
}

// StartMeasurement starts ranging in the current device mode.
func (d *Device) StartMeasurement() error {
	return d.track(d.api.StartMeasurement())
}

// StopMeasurement asks the chip to stop ranging.
func (d *Device) StopMeasurement() error {
	return d.track(d.api.StopMeasurement())
}

// SetDeviceMode selects single, continuous or timed ranging.
func (d *Device) SetDeviceMode(mode DeviceMode) error {
	return d.track(d.api.SetDeviceMode(mode))
}

// GetDeviceMode returns the current device mode.
func (d *Device) GetDeviceMode() (DeviceMode, error) {
	m, err := d.api.GetDeviceMode()
	return m, d.track(err)
}

// SetLimitCheckEnable turns a limit check on or off.
func (d *Device) SetLimitCheckEnable(id LimitCheckID, enable bool) error {
	return d.track(d.api.SetLimitCheckEnable(id, enable))
}

// GetLimitCheckEnable reports whether a limit check is on.
func (d *Device) GetLimitCheckEnable(id LimitCheckID) (bool, error) {
	v, err := d.api.GetLimitCheckEnable(id)
	return v, d.track(err)
}

// SetLimitCheckValue sets the threshold of a limit check.
func (d *Device) SetLimitCheckValue(id LimitCheckID, value FixPoint1616) error {
	return d.track(d.api.SetLimitCheckValue(id, value))
}

// GetLimitCheckValue returns the threshold of a limit check.
func (d *Device) GetLimitCheckValue(id LimitCheckID) (FixPoint1616, error) {
	v, err := d.api.GetLimitCheckValue(id)
	return v, d.track(err)
}

// GetLimitCheckCurrent returns the value the last measurement was checked with.
func (d *Device) GetLimitCheckCurrent(id LimitCheckID) (FixPoint1616, error) {
	v, err := d.api.GetLimitCheckCurrent(id)
	return v, d.track(err)
}

// SetInterruptThresholds sets the low and high GPIO1 thresholds, in mm.
func (d *Device) SetInterruptThresholds(mode DeviceMode, low, high FixPoint1616) error {
	return d.track(d.api.SetInterruptThresholds(mode, low, high))
}

// GetInterruptThresholds returns the low and high GPIO1 thresholds.
func (d *Device) GetInterruptThresholds(mode DeviceMode) (FixPoint1616, FixPoint1616, error) {
	lo, hi, err := d.api.GetInterruptThresholds(mode)
	return lo, hi, d.track(err)
}

// ClearInterruptMask clears the pending GPIO1 interrupt.
func (d *Device) ClearInterruptMask() error {
	return d.track(d.api.ClearInterruptMask(0))
}

// SetGpioConfig sets the function and polarity of GPIO1.
func (d *Device) SetGpioConfig(pin uint8, mode DeviceMode, fn GpioFunctionality, pol InterruptPolarity) error {
	return d.track(d.api.SetGpioConfig(pin, mode, fn, pol))
}

// GetGpioConfig returns the GPIO1 configuration.
func (d *Device) GetGpioConfig(pin uint8) (DeviceMode, GpioFunctionality, InterruptPolarity, error) {
	mode, fn, pol, err := d.api.GetGpioConfig(pin)
	return mode, fn, pol, d.track(err)
}

// SetMeasurementTimingBudget sets the time allowed for one measurement.
// Longer budgets give more accurate ranges.
func (d *Device) SetMeasurementTimingBudget(us uint32) error {
	return d.track(d.api.SetMeasurementTimingBudgetMicroSeconds(us))
}

// GetMeasurementTimingBudget returns the timing budget in microseconds.
func (d *Device) GetMeasurementTimingBudget() (uint32, error) {
	v, err := d.api.GetMeasurementTimingBudgetMicroSeconds()
	return v, d.track(err)
}

// SetVcselPulsePeriod sets a VCSEL pulse period in PCLKs.
func (d *Device) SetVcselPulsePeriod(kind VcselPeriodType, pclks uint8) error {
	return d.track(d.api.SetVcselPulsePeriod(kind, pclks))
}

// GetVcselPulsePeriod returns a VCSEL pulse period in PCLKs.
func (d *Device) GetVcselPulsePeriod(kind VcselPeriodType) (uint8, error) {
	v, err := d.api.GetVcselPulsePeriod(kind)
	return v, d.track(err)
}
