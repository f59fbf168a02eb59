package vl53l0x

// Overheads in microseconds used by the timing budget computation.
const (
	startOverheadGet   = 1910
	startOverheadSet   = 1320
	endOverhead        = 960
	msrcOverhead       = 660
	tccOverhead        = 590
	dssOverhead        = 690
	preRangeOverhead   = 660
	finalRangeOverhead = 550

	// MinTimingBudget is the shortest accepted measurement timing budget.
	MinTimingBudget = 20000
)

type sequenceSteps struct {
	tcc, msrc, dss, preRange, finalRange bool
}

type sequenceTimeouts struct {
	preRangeVcselPclks   uint8
	finalRangeVcselPclks uint8

	msrcDssTccMclks uint16
	preRangeMclks   uint16
	finalRangeMclks uint16

	msrcDssTccUs uint32
	preRangeUs   uint32
	finalRangeUs uint32
}

func decodeVcselPeriod(reg uint8) uint8 { return (reg + 1) << 1 }

func encodeVcselPeriod(pclks uint8) uint8 { return (pclks >> 1) - 1 }

// macroPeriodNs is the macro period in nanoseconds for a VCSEL period.
func macroPeriodNs(vcselPclks uint8) uint32 {
	return (2304*uint32(vcselPclks)*1655 + 500) / 1000
}

func decodeTimeout(v uint16) uint16 {
	return uint16((uint32(v&0x00FF) << ((v & 0xFF00) >> 8)) + 1)
}

func encodeTimeout(mclks uint32) uint16 {
	if mclks == 0 {
		return 0
	}
	ls := mclks - 1
	var ms uint16
	for ls&0xFFFFFF00 > 0 {
		ls >>= 1
		ms++
	}
	return ms<<8 | uint16(ls&0xFF)
}

func timeoutMclksToUs(mclks uint16, vcselPclks uint8) uint32 {
	macro := macroPeriodNs(vcselPclks)
	return (uint32(mclks)*macro + 500) / 1000
}

func timeoutUsToMclks(us uint32, vcselPclks uint8) uint32 {
	macro := macroPeriodNs(vcselPclks)
	return (us*1000 + macro/2) / macro
}

func (n *Native) sequenceSteps() (sequenceSteps, error) {
	seq, err := n.c.ReadReg(regSystemSequenceConfig)
	if err != nil {
		return sequenceSteps{}, err
	}
	return sequenceSteps{
		tcc:        seq&seqStepTCC != 0,
		dss:        seq&seqStepDSS != 0,
		msrc:       seq&seqStepMSRC != 0,
		preRange:   seq&seqStepPreRange != 0,
		finalRange: seq&seqStepFinalRange != 0,
	}, nil
}

func (n *Native) sequenceTimeouts(steps sequenceSteps) (sequenceTimeouts, error) {
	var t sequenceTimeouts
	var err error

	if t.preRangeVcselPclks, err = n.GetVcselPulsePeriod(VcselPeriodPreRange); err != nil {
		return t, err
	}
	msrc, err := n.c.ReadReg(regMsrcConfigTimeoutMacrop)
	if err != nil {
		return t, err
	}
	t.msrcDssTccMclks = uint16(msrc) + 1
	t.msrcDssTccUs = timeoutMclksToUs(t.msrcDssTccMclks, t.preRangeVcselPclks)

	pre, err := n.c.ReadReg16(regPreRangeTimeoutMacropHi)
	if err != nil {
		return t, err
	}
	t.preRangeMclks = decodeTimeout(pre)
	t.preRangeUs = timeoutMclksToUs(t.preRangeMclks, t.preRangeVcselPclks)

	if t.finalRangeVcselPclks, err = n.GetVcselPulsePeriod(VcselPeriodFinalRange); err != nil {
		return t, err
	}
	final, err := n.c.ReadReg16(regFinalRangeTimeoutMacropHi)
	if err != nil {
		return t, err
	}
	t.finalRangeMclks = decodeTimeout(final)
	if steps.preRange {
		t.finalRangeMclks -= t.preRangeMclks
	}
	t.finalRangeUs = timeoutMclksToUs(t.finalRangeMclks, t.finalRangeVcselPclks)
	return t, nil
}

// usedBudget sums the per-step cost of everything except the final range.
func usedBudget(start uint32, steps sequenceSteps, t sequenceTimeouts) uint32 {
	used := start + endOverhead
	if steps.tcc {
		used += t.msrcDssTccUs + tccOverhead
	}
	if steps.dss {
		used += 2 * (t.msrcDssTccUs + dssOverhead)
	} else if steps.msrc {
		used += t.msrcDssTccUs + msrcOverhead
	}
	if steps.preRange {
		used += t.preRangeUs + preRangeOverhead
	}
	return used
}

// GetMeasurementTimingBudgetMicroSeconds computes the budget from the
// sequence step timeouts currently programmed.
func (n *Native) GetMeasurementTimingBudgetMicroSeconds() (uint32, error) {
	steps, err := n.sequenceSteps()
	if err != nil {
		return 0, err
	}
	t, err := n.sequenceTimeouts(steps)
	if err != nil {
		return 0, err
	}
	budget := usedBudget(startOverheadGet, steps, t)
	if steps.finalRange {
		budget += t.finalRangeUs + finalRangeOverhead
	}
	n.budgetUs = budget
	return budget, nil
}

// SetMeasurementTimingBudgetMicroSeconds gives the final range step whatever
// time the other enabled steps leave over.
func (n *Native) SetMeasurementTimingBudgetMicroSeconds(us uint32) error {
	if us < MinTimingBudget {
		return ErrInvalidParams
	}
	steps, err := n.sequenceSteps()
	if err != nil {
		return err
	}
	t, err := n.sequenceTimeouts(steps)
	if err != nil {
		return err
	}
	used := usedBudget(startOverheadSet, steps, t)
	if steps.finalRange {
		used += finalRangeOverhead
		if used > us {
			return ErrInvalidParams
		}
		mclks := timeoutUsToMclks(us-used, t.finalRangeVcselPclks)
		if steps.preRange {
			mclks += uint32(t.preRangeMclks)
		}
		if err := n.c.WriteReg16(regFinalRangeTimeoutMacropHi, encodeTimeout(mclks)); err != nil {
			return err
		}
	}
	n.budgetUs = us
	return nil
}

// SetInterMeasurementPeriodMilliSeconds sets the period used by continuous
// timed ranging.
func (n *Native) SetInterMeasurementPeriodMilliSeconds(ms uint32) error {
	osc, err := n.c.ReadReg16(regOscCalibrateVal)
	if err != nil {
		return err
	}
	v := ms
	if osc != 0 {
		v = ms * uint32(osc)
	}
	if err := n.c.WriteReg32(regSystemInterMeasurementPer, v); err != nil {
		return err
	}
	n.periodMs = ms
	return nil
}

func (n *Native) GetVcselPulsePeriod(kind VcselPeriodType) (uint8, error) {
	reg := uint8(regPreRangeVcselPeriod)
	switch kind {
	case VcselPeriodPreRange:
	case VcselPeriodFinalRange:
		reg = regFinalRangeVcselPeriod
	default:
		return 0, ErrInvalidParams
	}
	v, err := n.c.ReadReg(reg)
	if err != nil {
		return 0, err
	}
	return decodeVcselPeriod(v), nil
}

// SetVcselPulsePeriod changes a VCSEL period, rescales the step timeouts to
// match, reapplies the timing budget and re-runs phase calibration. Valid
// periods are 12 to 18 for pre-range and 8 to 14 for final range, even only.
func (n *Native) SetVcselPulsePeriod(kind VcselPeriodType, pclks uint8) error {
	steps, err := n.sequenceSteps()
	if err != nil {
		return err
	}
	t, err := n.sequenceTimeouts(steps)
	if err != nil {
		return err
	}
	reg := encodeVcselPeriod(pclks)
	w := &regWriter{c: n.c}

	switch kind {
	case VcselPeriodPreRange:
		var phaseHigh uint8
		switch pclks {
		case 12:
			phaseHigh = 0x18
		case 14:
			phaseHigh = 0x30
		case 16:
			phaseHigh = 0x40
		case 18:
			phaseHigh = 0x50
		default:
			return ErrInvalidParams
		}
		w.write(regPreRangeValidPhaseHigh, phaseHigh)
		w.write(regPreRangeValidPhaseLow, 0x08)
		w.write(regPreRangeVcselPeriod, reg)
		w.write16(regPreRangeTimeoutMacropHi, encodeTimeout(timeoutUsToMclks(t.preRangeUs, pclks)))
		msrc := timeoutUsToMclks(t.msrcDssTccUs, pclks)
		if msrc > 256 {
			w.write(regMsrcConfigTimeoutMacrop, 255)
		} else {
			w.write(regMsrcConfigTimeoutMacrop, uint8(msrc-1))
		}

	case VcselPeriodFinalRange:
		var phaseHigh, width, phasecalTimeout, phasecalLim uint8
		switch pclks {
		case 8:
			phaseHigh, width, phasecalTimeout, phasecalLim = 0x10, 0x02, 0x0C, 0x30
		case 10:
			phaseHigh, width, phasecalTimeout, phasecalLim = 0x28, 0x03, 0x09, 0x20
		case 12:
			phaseHigh, width, phasecalTimeout, phasecalLim = 0x38, 0x03, 0x08, 0x20
		case 14:
			phaseHigh, width, phasecalTimeout, phasecalLim = 0x48, 0x03, 0x07, 0x20
		default:
			return ErrInvalidParams
		}
		w.write(regFinalRangeValidPhaseHigh, phaseHigh)
		w.write(regFinalRangeValidPhaseLow, 0x08)
		w.write(regGlobalConfigVcselWidth, width)
		w.write(regAlgoPhasecalConfigTimeout, phasecalTimeout)
		w.write(regPageSelect, 0x01)
		w.write(regAlgoPhasecalLim, phasecalLim)
		w.write(regPageSelect, 0x00)
		w.write(regFinalRangeVcselPeriod, reg)
		mclks := timeoutUsToMclks(t.finalRangeUs, pclks)
		if steps.preRange {
			mclks += uint32(t.preRangeMclks)
		}
		w.write16(regFinalRangeTimeoutMacropHi, encodeTimeout(mclks))

	default:
		return ErrInvalidParams
	}
	if w.err != nil {
		return w.err
	}

	if err := n.SetMeasurementTimingBudgetMicroSeconds(n.budgetUs); err != nil {
		return err
	}

	seq, err := n.c.ReadReg(regSystemSequenceConfig)
	if err != nil {
		return err
	}
	if err := n.c.WriteReg(regSystemSequenceConfig, 0x02); err != nil {
		return err
	}
	if err := n.singleRefCalibration(0x00); err != nil {
		return err
	}
	return n.c.WriteReg(regSystemSequenceConfig, seq)
}
