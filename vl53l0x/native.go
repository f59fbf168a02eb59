package vl53l0x

// DefaultMaxLoop bounds every status polling loop.
const DefaultMaxLoop = 2000

// Native implements RangingAPI directly on the chip's register protocol.
type Native struct {
	c *Comms

	maxLoop int
	io1v8   bool

	stopVariable uint8
	mode         DeviceMode
	gpioFunc     GpioFunctionality
	budgetUs     uint32
	periodMs     uint32

	spadCount      uint8
	spadIsAperture bool

	limitEnable  [LimitCheckCount]bool
	limitValue   [LimitCheckCount]FixPoint1616
	limitCurrent [LimitCheckCount]FixPoint1616
}

// NewNative returns a register-level backend on top of c.
func NewNative(c *Comms) *Native {
	return &Native{
		c:       c,
		maxLoop: DefaultMaxLoop,
	}
}

// regWriter sequences register accesses and keeps the first error.
type regWriter struct {
	c   *Comms
	err error
}

func (w *regWriter) write(reg, val uint8) {
	if w.err == nil {
		w.err = w.c.WriteReg(reg, val)
	}
}

func (w *regWriter) write16(reg uint8, val uint16) {
	if w.err == nil {
		w.err = w.c.WriteReg16(reg, val)
	}
}

func (w *regWriter) read(reg uint8) uint8 {
	if w.err != nil {
		return 0
	}
	var v uint8
	v, w.err = w.c.ReadReg(reg)
	return v
}

func (w *regWriter) update(reg, and, or uint8) {
	if w.err == nil {
		w.err = w.c.UpdateReg(reg, and, or)
	}
}

// poll calls done until it reports true, at most maxLoop times.
func (n *Native) poll(done func() (bool, error)) error {
	for i := 0; i < n.maxLoop; i++ {
		ok, err := done()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		n.c.PollingDelay()
	}
	return ErrTimeOut
}

// GetVersion reports the API revision this backend is compatible with.
func (n *Native) GetVersion() (Version, error) {
	return Version{Major: 1, Minor: 0, Build: 1, Revision: 4960}, nil
}

// DataInit performs the one-time device initialisation after power up.
func (n *Native) DataInit() error {
	w := &regWriter{c: n.c}
	if !n.io1v8 {
		w.update(regVhvConfigPadSclSdaExtsupHV, 0xFE, 0x01)
	}
	// standard mode I2C
	w.write(0x88, 0x00)

	w.write(regPowerManagementGo1, 0x01)
	w.write(regPageSelect, 0x01)
	w.write(regSysRangeStart, 0x00)
	n.stopVariable = w.read(regStopVariable)
	w.write(regSysRangeStart, 0x01)
	w.write(regPageSelect, 0x00)
	w.write(regPowerManagementGo1, 0x00)

	// MSRC and pre-range signal rate checks are off until enabled
	w.update(regMsrcConfigControl, 0xFF, 0x12)
	if w.err != nil {
		return w.err
	}

	n.limitEnable = [LimitCheckCount]bool{true, true, false, false, false, false}
	n.limitValue = [LimitCheckCount]FixPoint1616{
		CheckSigmaFinalRange:      18 << 16,
		CheckSignalRateFinalRange: Fix1616(0.25),
		CheckSignalRefClip:        35 << 16,
		CheckRangeIgnoreThreshold: 0,
		CheckSignalRateMSRC:       0,
		CheckSignalRatePreRange:   0,
	}
	n.limitCurrent = [LimitCheckCount]FixPoint1616{}

	w.write16(regFinalRangeMinCountRateLimit, n.limitValue[CheckSignalRateFinalRange].fix97())
	w.write(regSystemSequenceConfig, 0xFF)
	if w.err != nil {
		return w.err
	}
	n.mode = DeviceModeSingleRanging
	return nil
}

// StaticInit loads the tuning settings and the interrupt configuration and
// programs the default timing budget.
func (n *Native) StaticInit() error {
	if err := n.readSpadInfo(); err != nil {
		return err
	}
	if err := n.c.writeRegs(defaultTuning); err != nil {
		return err
	}
	if err := n.SetGpioConfig(0, DeviceModeSingleRanging, GpioFuncNewMeasureReady, InterruptPolarityLow); err != nil {
		return err
	}
	budget, err := n.GetMeasurementTimingBudgetMicroSeconds()
	if err != nil {
		return err
	}
	// MSRC and TCC are disabled by default
	if err := n.c.WriteReg(regSystemSequenceConfig, 0xE8); err != nil {
		return err
	}
	return n.SetMeasurementTimingBudgetMicroSeconds(budget)
}

// readSpadInfo fetches the reference SPAD count and type from NVM.
func (n *Native) readSpadInfo() error {
	w := &regWriter{c: n.c}
	w.write(regPowerManagementGo1, 0x01)
	w.write(regPageSelect, 0x01)
	w.write(regSysRangeStart, 0x00)

	w.write(regPageSelect, 0x06)
	w.write(0x83, w.read(0x83)|0x04)
	w.write(regPageSelect, 0x07)
	w.write(0x81, 0x01)
	w.write(regPowerManagementGo1, 0x01)
	w.write(0x94, 0x6B)
	w.write(0x83, 0x00)
	if w.err != nil {
		return w.err
	}
	err := n.poll(func() (bool, error) {
		v, err := n.c.ReadReg(0x83)
		return v != 0, err
	})
	if err != nil {
		return err
	}
	w.write(0x83, 0x01)
	tmp := w.read(0x92)
	n.spadCount = tmp & 0x7F
	n.spadIsAperture = tmp&0x80 != 0

	w.write(0x81, 0x00)
	w.write(regPageSelect, 0x06)
	w.write(0x83, w.read(0x83)&^0x04)
	w.write(regPageSelect, 0x01)
	w.write(regSysRangeStart, 0x01)
	w.write(regPageSelect, 0x00)
	w.write(regPowerManagementGo1, 0x00)
	return w.err
}

// PerformRefSpadManagement enables the reference SPADs reported by NVM and
// disables the rest.
func (n *Native) PerformRefSpadManagement() (uint32, bool, error) {
	var ref [6]byte
	if err := n.c.ReadMulti(regGlobalConfigSpadEnablesRef0, ref[:]); err != nil {
		return 0, false, err
	}
	w := &regWriter{c: n.c}
	w.write(regPageSelect, 0x01)
	w.write(regDynamicSpadRefEnStartOffset, 0x00)
	w.write(regDynamicSpadNumRequestedRef, 0x2C)
	w.write(regPageSelect, 0x00)
	w.write(regGlobalConfigRefEnStartSel, 0xB4)
	if w.err != nil {
		return 0, false, w.err
	}

	first := 0
	if n.spadIsAperture {
		// aperture SPADs start at 12
		first = 12
	}
	enabled := uint8(0)
	for i := 0; i < 48; i++ {
		bit := byte(1) << (i % 8)
		if i < first || enabled == n.spadCount {
			ref[i/8] &^= bit
		} else if ref[i/8]&bit != 0 {
			enabled++
		}
	}
	if err := n.c.WriteMulti(regGlobalConfigSpadEnablesRef0, ref[:]); err != nil {
		return 0, false, err
	}
	if enabled != n.spadCount {
		return uint32(enabled), n.spadIsAperture, ErrRefSpadInit
	}
	return uint32(enabled), n.spadIsAperture, nil
}

// PerformRefCalibration runs the VHV and phase calibrations and returns the
// values the chip settled on.
func (n *Native) PerformRefCalibration() (uint8, uint8, error) {
	seq, err := n.c.ReadReg(regSystemSequenceConfig)
	if err != nil {
		return 0, 0, err
	}
	if err := n.c.WriteReg(regSystemSequenceConfig, 0x01); err != nil {
		return 0, 0, err
	}
	if err := n.singleRefCalibration(0x40); err != nil {
		return 0, 0, err
	}
	if err := n.c.WriteReg(regSystemSequenceConfig, 0x02); err != nil {
		return 0, 0, err
	}
	if err := n.singleRefCalibration(0x00); err != nil {
		return 0, 0, err
	}

	w := &regWriter{c: n.c}
	w.write(regSystemSequenceConfig, seq)
	w.write(regPageSelect, 0x01)
	vhv := w.read(0xCB)
	phase := w.read(0xEE)
	w.write(regPageSelect, 0x00)
	return vhv, phase, w.err
}

func (n *Native) singleRefCalibration(vhvInit uint8) error {
	if err := n.c.WriteReg(regSysRangeStart, sysRangeModeSingleShot|vhvInit); err != nil {
		return err
	}
	err := n.poll(func() (bool, error) {
		v, err := n.c.ReadReg(regResultInterruptStatus)
		return v&0x07 != 0, err
	})
	if err != nil {
		return err
	}
	if err := n.c.WriteReg(regSystemInterruptClear, 0x01); err != nil {
		return err
	}
	return n.c.WriteReg(regSysRangeStart, 0x00)
}

// SetDeviceAddress programs a new address, given in 8-bit form. The caller
// moves the bus binding once this returns.
func (n *Native) SetDeviceAddress(addr8 uint8) error {
	return n.c.WriteReg(regI2CSlaveDeviceAddress, addr8/2)
}

// GetDeviceInfo reads the identification registers.
func (n *Native) GetDeviceInfo() (DeviceInfo, error) {
	w := &regWriter{c: n.c}
	model := w.read(regIdentificationModelID)
	rev := w.read(regIdentificationRevisionID)
	if w.err != nil {
		return DeviceInfo{}, w.err
	}
	return DeviceInfo{
		Name:                 "VL53L0X ES1 or later",
		Type:                 "VL53L0X",
		ProductType:          model,
		ProductRevisionMajor: 1,
		ProductRevisionMinor: (rev & 0xF0) >> 4,
	}, nil
}

func (n *Native) SetDeviceMode(mode DeviceMode) error {
	switch mode {
	case DeviceModeSingleRanging, DeviceModeContinuousRanging,
		DeviceModeContinuousTimedRanging, DeviceModeGpioDrive:
		n.mode = mode
		return nil
	}
	return ErrModeNotSupported
}

func (n *Native) GetDeviceMode() (DeviceMode, error) {
	return n.mode, nil
}

// SetGpioConfig configures the GPIO1 interrupt output. Only pin 0 exists.
func (n *Native) SetGpioConfig(pin uint8, mode DeviceMode, fn GpioFunctionality, pol InterruptPolarity) error {
	if pin != 0 {
		return ErrGpioNotExisting
	}
	if mode == DeviceModeGpioDrive {
		v := uint8(0x10)
		if pol == InterruptPolarityHigh {
			v = 0x01
		}
		return n.c.WriteReg(regGpioHvMuxActiveHigh, v)
	}
	if fn > GpioFuncNewMeasureReady {
		return ErrGpioFunctionalityNotSupported
	}
	var or uint8
	if pol == InterruptPolarityHigh {
		or = 0x10
	}
	w := &regWriter{c: n.c}
	w.write(regSystemInterruptConfigGpio, uint8(fn))
	w.update(regGpioHvMuxActiveHigh, 0xEF, or)
	if w.err != nil {
		return w.err
	}
	n.gpioFunc = fn
	return n.ClearInterruptMask(0)
}

func (n *Native) GetGpioConfig(pin uint8) (DeviceMode, GpioFunctionality, InterruptPolarity, error) {
	if pin != 0 {
		return 0, 0, 0, ErrGpioNotExisting
	}
	w := &regWriter{c: n.c}
	fn := GpioFunctionality(w.read(regSystemInterruptConfigGpio) & 0x07)
	mux := w.read(regGpioHvMuxActiveHigh)
	if w.err != nil {
		return 0, 0, 0, w.err
	}
	pol := InterruptPolarityLow
	if mux&0x10 != 0 {
		pol = InterruptPolarityHigh
	}
	n.gpioFunc = fn
	return n.mode, fn, pol, nil
}

// SetInterruptThresholds sets the window used by the threshold interrupt
// functions. Values are in mm, 16.16, with a resolution of 2 mm.
func (n *Native) SetInterruptThresholds(_ DeviceMode, low, high FixPoint1616) error {
	w := &regWriter{c: n.c}
	w.write16(regSystemThreshLow, uint16((low>>17)&0x0FFF))
	w.write16(regSystemThreshHigh, uint16((high>>17)&0x0FFF))
	return w.err
}

func (n *Native) GetInterruptThresholds(_ DeviceMode) (FixPoint1616, FixPoint1616, error) {
	lo, err := n.c.ReadReg16(regSystemThreshLow)
	if err != nil {
		return 0, 0, err
	}
	hi, err := n.c.ReadReg16(regSystemThreshHigh)
	if err != nil {
		return 0, 0, err
	}
	return FixPoint1616(lo&0x0FFF) << 17, FixPoint1616(hi&0x0FFF) << 17, nil
}

func (n *Native) GetRangeStatusString(status uint8) string {
	return RangeStatusString(status)
}
