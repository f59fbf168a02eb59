package vl53l0x

// DefaultContinuousPeriod is the inter-measurement period, in milliseconds,
// used when StartRangeContinuous is given zero.
const DefaultContinuousPeriod = 50

// StartRange starts a single measurement without waiting for it.
func (d *Device) StartRange() error {
	if err := d.track(d.api.SetDeviceMode(DeviceModeSingleRanging)); err != nil {
		return err
	}
	return d.track(d.api.StartMeasurement())
}

// IsRangeComplete reports whether a result is waiting. A failed poll also
// reports true so that callers move on to read the error.
func (d *Device) IsRangeComplete() bool {
	ready, err := d.api.GetMeasurementDataReady()
	d.track(err)
	return err != nil || ready
}

// WaitRangeComplete polls until a result is waiting.
func (d *Device) WaitRangeComplete() error {
	for i := 0; i < d.maxLoop; i++ {
		ready, err := d.api.GetMeasurementDataReady()
		if err != nil {
			return d.track(err)
		}
		if ready {
			return d.track(nil)
		}
		d.pollingDelay()
	}
	return d.track(ErrTimeOut)
}

// ReadRangeResult reads a completed measurement and clears the interrupt.
// It returns the range in mm, or 0xFFFF on failure or a phase failure.
func (d *Device) ReadRangeResult() uint16 {
	data, err := d.api.GetRangingMeasurementData()
	d.rangeStatus = data.RangeStatus
	if err == nil {
		err = d.api.ClearInterruptMask(0)
	}
	d.track(err)
	if err != nil || data.RangeStatus == RangePhaseFail {
		return 0xFFFF
	}
	return data.RangeMilliMeter
}

// StartRangeContinuous starts timed continuous ranging with the given
// period in milliseconds. Zero selects DefaultContinuousPeriod.
func (d *Device) StartRangeContinuous(periodMs uint16) error {
	if periodMs == 0 {
		periodMs = DefaultContinuousPeriod
	}
	if err := d.track(d.api.SetDeviceMode(DeviceModeContinuousTimedRanging)); err != nil {
		return err
	}
	if err := d.track(d.api.SetInterMeasurementPeriodMilliSeconds(uint32(periodMs))); err != nil {
		return err
	}
	return d.track(d.api.StartMeasurement())
}

// StopRangeContinuous stops continuous ranging and waits for the chip to
// confirm.
func (d *Device) StopRangeContinuous() error {
	if err := d.track(d.api.StopMeasurement()); err != nil {
		return err
	}
	stopped := false
	for i := 0; i < d.maxLoop; i++ {
		s, err := d.api.GetStopCompletedStatus()
		if err != nil {
			return d.track(err)
		}
		if s == 0 {
			stopped = true
			break
		}
		d.pollingDelay()
	}
	if !stopped {
		return d.track(ErrTimeOut)
	}
	return d.track(d.api.ClearInterruptMask(0))
}

func (d *Device) pollingDelay() {
	if d.pollInterval > 0 {
		d.sleep(d.pollInterval)
	}
}
