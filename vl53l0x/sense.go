package vl53l0x

// ConfigSensor applies one of the sense mode presets.
func (d *Device) ConfigSensor(mode SenseMode) error {
	return d.track(d.configSensor(mode))
}

func (d *Device) configSensor(mode SenseMode) error {
	d.logf("VL53L0X: sense mode ", mode.String())

	switch mode {
	case SenseDefault:
		if err := d.api.SetLimitCheckEnable(CheckRangeIgnoreThreshold, true); err != nil {
			return err
		}
		return d.api.SetLimitCheckValue(CheckRangeIgnoreThreshold, Fix1616(1.5*0.023))

	case SenseLongRange:
		return d.applyPreset(Fix1616(0.1), 60<<16, 33000, 18, 14)

	case SenseHighSpeed:
		return d.applyPreset(Fix1616(0.25), 32<<16, 30000, 0, 0)

	case SenseHighAccuracy:
		if err := d.applyPreset(Fix1616(0.25), 18<<16, 200000, 0, 0); err != nil {
			return err
		}
		return d.api.SetLimitCheckEnable(CheckRangeIgnoreThreshold, false)
	}
	return ErrInvalidParams
}

// applyPreset sets the signal and sigma limits and the timing budget. VCSEL
// periods of zero are left unchanged.
func (d *Device) applyPreset(signal, sigma FixPoint1616, budgetUs uint32, preVcsel, finalVcsel uint8) error {
	if err := d.api.SetLimitCheckValue(CheckSignalRateFinalRange, signal); err != nil {
		return err
	}
	if err := d.api.SetLimitCheckValue(CheckSigmaFinalRange, sigma); err != nil {
		return err
	}
	if err := d.api.SetMeasurementTimingBudgetMicroSeconds(budgetUs); err != nil {
		return err
	}
	if preVcsel != 0 {
		if err := d.api.SetVcselPulsePeriod(VcselPeriodPreRange, preVcsel); err != nil {
			return err
		}
	}
	if finalVcsel != 0 {
		if err := d.api.SetVcselPulsePeriod(VcselPeriodFinalRange, finalVcsel); err != nil {
			return err
		}
	}
	return nil
}
