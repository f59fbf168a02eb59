package vl53l0x

// restoreStopVariable writes back the stop variable captured at DataInit.
// The chip needs it before every measurement start.
func (n *Native) restoreStopVariable() error {
	w := &regWriter{c: n.c}
	w.write(regPowerManagementGo1, 0x01)
	w.write(regPageSelect, 0x01)
	w.write(regSysRangeStart, 0x00)
	w.write(regStopVariable, n.stopVariable)
	w.write(regSysRangeStart, 0x01)
	w.write(regPageSelect, 0x00)
	w.write(regPowerManagementGo1, 0x00)
	return w.err
}

// StartMeasurement starts ranging in the current device mode. In single
// ranging mode it waits for the chip to acknowledge the start.
func (n *Native) StartMeasurement() error {
	var start uint8
	switch n.mode {
	case DeviceModeSingleRanging:
		start = sysRangeModeSingleShot
	case DeviceModeContinuousRanging:
		start = sysRangeModeBackToBack
	case DeviceModeContinuousTimedRanging:
		start = sysRangeModeTimed
	default:
		return ErrModeNotSupported
	}
	if err := n.restoreStopVariable(); err != nil {
		return err
	}
	if err := n.c.WriteReg(regSysRangeStart, start); err != nil {
		return err
	}
	if n.mode != DeviceModeSingleRanging {
		return nil
	}
	return n.poll(func() (bool, error) {
		v, err := n.c.ReadReg(regSysRangeStart)
		return v&sysRangeModeSingleShot == 0, err
	})
}

// StopMeasurement aborts continuous ranging. Use GetStopCompletedStatus to
// learn when the chip has actually stopped.
func (n *Native) StopMeasurement() error {
	w := &regWriter{c: n.c}
	w.write(regSysRangeStart, sysRangeModeSingleShot)
	w.write(regPageSelect, 0x01)
	w.write(regSysRangeStart, 0x00)
	w.write(regStopVariable, 0x00)
	w.write(regSysRangeStart, 0x01)
	w.write(regPageSelect, 0x00)
	return w.err
}

// GetStopCompletedStatus returns zero once a stop has completed.
func (n *Native) GetStopCompletedStatus() (uint32, error) {
	w := &regWriter{c: n.c}
	w.write(regPageSelect, 0x01)
	v := w.read(regStopStatus)
	w.write(regPageSelect, 0x00)
	if w.err != nil {
		return 0, w.err
	}
	if v == 0 {
		if err := n.restoreStopVariable(); err != nil {
			return 0, err
		}
	}
	return uint32(v), nil
}

// GetMeasurementDataReady reports whether a new result is waiting.
func (n *Native) GetMeasurementDataReady() (bool, error) {
	if n.gpioFunc == GpioFuncNewMeasureReady {
		v, err := n.c.ReadReg(regResultInterruptStatus)
		return v&0x07 == uint8(GpioFuncNewMeasureReady), err
	}
	v, err := n.c.ReadReg(regResultRangeStatus)
	return v&0x01 == 1, err
}

// ClearInterruptMask clears the pending interrupt, trying up to three times.
func (n *Native) ClearInterruptMask(uint32) error {
	for i := 0; i < 3; i++ {
		if err := n.c.WriteReg(regSystemInterruptClear, 0x01); err != nil {
			return err
		}
		if err := n.c.WriteReg(regSystemInterruptClear, 0x00); err != nil {
			return err
		}
		v, err := n.c.ReadReg(regResultInterruptStatus)
		if err != nil {
			return err
		}
		if v&0x07 == 0 {
			return nil
		}
	}
	return ErrInterruptNotCleared
}

func (n *Native) pollForCompletion() error {
	return n.poll(n.GetMeasurementDataReady)
}

// PerformSingleRangingMeasurement runs one complete measurement when the
// device is in single ranging mode. In other modes it reads the latest
// result.
func (n *Native) PerformSingleRangingMeasurement() (RangingMeasurementData, error) {
	if n.mode == DeviceModeSingleRanging {
		if err := n.StartMeasurement(); err != nil {
			return RangingMeasurementData{}, err
		}
		if err := n.pollForCompletion(); err != nil {
			return RangingMeasurementData{}, err
		}
	}
	data, err := n.GetRangingMeasurementData()
	if err != nil {
		return data, err
	}
	return data, n.ClearInterruptMask(0)
}

// GetRangingMeasurementData decodes the result block and derives the range
// status from the device status and the enabled limit checks.
func (n *Native) GetRangingMeasurementData() (RangingMeasurementData, error) {
	var buf [12]byte
	if err := n.c.ReadMulti(regResultRangeStatus, buf[:]); err != nil {
		return RangingMeasurementData{}, err
	}
	data := RangingMeasurementData{
		MeasurementTimeUsec:    n.budgetUs,
		RangeMilliMeter:        uint16(buf[10])<<8 | uint16(buf[11]),
		SignalRateRtnMegaCps:   from97(uint16(buf[6])<<8 | uint16(buf[7])),
		AmbientRateRtnMegaCps:  from97(uint16(buf[8])<<8 | uint16(buf[9])),
		EffectiveSpadRtnCount:  uint16(buf[2])<<8 | uint16(buf[3]),
		DeviceRangeStatusInner: (buf[0] & 0x78) >> 3,
	}

	status, err := n.rangeStatus(&data)
	if err != nil {
		return data, err
	}
	data.RangeStatus = status
	return data, nil
}

func (n *Native) rangeStatus(data *RangingMeasurementData) (uint8, error) {
	internal := data.DeviceRangeStatusInner

	noneFlag := false
	switch internal {
	case 0, 5, 7, 12, 13, 14, 15:
		noneFlag = true
	}

	// sigma is not estimated; the check always passes
	n.limitCurrent[CheckSigmaFinalRange] = 0
	n.limitCurrent[CheckSignalRateFinalRange] = data.SignalRateRtnMegaCps

	refClipFlag := false
	if n.limitEnable[CheckSignalRefClip] {
		w := &regWriter{c: n.c}
		w.write(regPageSelect, 0x01)
		raw := uint16(w.read(regResultPeakSignalRateRef))<<8 | uint16(w.read(regResultPeakSignalRateRef+1))
		w.write(regPageSelect, 0x00)
		if w.err != nil {
			return 0, w.err
		}
		ref := from97(raw)
		n.limitCurrent[CheckSignalRefClip] = ref
		clip := n.limitValue[CheckSignalRefClip]
		refClipFlag = clip > 0 && ref > clip
	}

	ignoreFlag := false
	if n.limitEnable[CheckRangeIgnoreThreshold] {
		var perSpad FixPoint1616
		if data.EffectiveSpadRtnCount != 0 {
			perSpad = FixPoint1616(uint64(data.SignalRateRtnMegaCps) * 256 / uint64(data.EffectiveSpadRtnCount))
		}
		n.limitCurrent[CheckRangeIgnoreThreshold] = perSpad
		threshold := n.limitValue[CheckRangeIgnoreThreshold]
		ignoreFlag = threshold != 0 && perSpad < threshold
	}

	switch {
	case noneFlag:
		return RangeNoUpdate, nil
	case internal == 1 || internal == 2 || internal == 3:
		return RangeHardwareFail, nil
	case internal == 6 || internal == 9:
		return RangePhaseFail, nil
	case internal == 8 || internal == 10 || refClipFlag:
		return RangeMinRangeFail, nil
	case internal == 4 || ignoreFlag:
		return RangeSignalFail, nil
	}
	return RangeValid, nil
}

// SetLimitCheckEnable turns a limit check on or off. Checks evaluated by
// the chip are reprogrammed immediately.
func (n *Native) SetLimitCheckEnable(id LimitCheckID, enable bool) error {
	if id >= LimitCheckCount {
		return ErrInvalidParams
	}
	var err error
	switch id {
	case CheckSignalRateFinalRange:
		var v FixPoint1616
		if enable {
			v = n.limitValue[id]
		}
		err = n.c.WriteReg16(regFinalRangeMinCountRateLimit, v.fix97())
	case CheckSignalRateMSRC:
		var or uint8
		if !enable {
			or = 0x02
		}
		err = n.c.UpdateReg(regMsrcConfigControl, 0xFD, or)
	case CheckSignalRatePreRange:
		var or uint8
		if !enable {
			or = 0x10
		}
		err = n.c.UpdateReg(regMsrcConfigControl, 0xEF, or)
	}
	if err != nil {
		return err
	}
	n.limitEnable[id] = enable
	return nil
}

func (n *Native) GetLimitCheckEnable(id LimitCheckID) (bool, error) {
	if id >= LimitCheckCount {
		return false, ErrInvalidParams
	}
	return n.limitEnable[id], nil
}

// SetLimitCheckValue stores a limit. Enabled checks evaluated by the chip
// are written through.
func (n *Native) SetLimitCheckValue(id LimitCheckID, value FixPoint1616) error {
	if id >= LimitCheckCount {
		return ErrInvalidParams
	}
	if n.limitEnable[id] {
		var err error
		switch id {
		case CheckSignalRateFinalRange:
			err = n.c.WriteReg16(regFinalRangeMinCountRateLimit, value.fix97())
		case CheckSignalRateMSRC, CheckSignalRatePreRange:
			err = n.c.WriteReg16(regPreRangeMinCountRateLimit, value.fix97())
		}
		if err != nil {
			return err
		}
	}
	n.limitValue[id] = value
	return nil
}

func (n *Native) GetLimitCheckValue(id LimitCheckID) (FixPoint1616, error) {
	if id >= LimitCheckCount {
		return 0, ErrInvalidParams
	}
	if id == CheckSignalRateFinalRange {
		raw, err := n.c.ReadReg16(regFinalRangeMinCountRateLimit)
		if err != nil {
			return 0, err
		}
		if raw != 0 {
			n.limitValue[id] = from97(raw)
		}
	}
	return n.limitValue[id], nil
}

// GetLimitCheckCurrent returns the value the check saw on the last
// measurement.
func (n *Native) GetLimitCheckCurrent(id LimitCheckID) (FixPoint1616, error) {
	if id >= LimitCheckCount {
		return 0, ErrInvalidParams
	}
	return n.limitCurrent[id], nil
}

var _ RangingAPI = (*Native)(nil)
