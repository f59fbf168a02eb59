package vl53l0x

// FixPoint1616 is an unsigned 16.16 fixed point number.
type FixPoint1616 uint32

// Fix1616 converts a float to 16.16 fixed point.
func Fix1616(v float32) FixPoint1616 {
	return FixPoint1616(v * 65536)
}

// Float returns the value as a float.
func (f FixPoint1616) Float() float32 {
	return float32(f) / 65536
}

// fix97 converts to the chip's 9.7 register format.
func (f FixPoint1616) fix97() uint16 {
	return uint16((f >> 9) & 0xFFFF)
}

func from97(v uint16) FixPoint1616 {
	return FixPoint1616(v) << 9
}

// Version of the ranging API implementation.
type Version struct {
	Major, Minor, Build uint8
	Revision            uint32
}

// DeviceInfo describes the connected part.
type DeviceInfo struct {
	Name                 string
	Type                 string
	ProductType          uint8
	ProductRevisionMajor uint8
	ProductRevisionMinor uint8
}

// RangingMeasurementData holds one ranging result.
type RangingMeasurementData struct {
	TimeStamp              uint32
	MeasurementTimeUsec    uint32
	RangeMilliMeter        uint16
	RangeDMaxMilliMeter    uint16
	SignalRateRtnMegaCps   FixPoint1616
	AmbientRateRtnMegaCps  FixPoint1616
	EffectiveSpadRtnCount  uint16 // 8.8
	ZoneID                 uint8
	RangeFractionalPart    uint8
	RangeStatus            uint8
	DeviceRangeStatusInner uint8 // raw device status, bits 3..6 of RESULT_RANGE_STATUS
}

// DeviceMode selects how measurements are started.
type DeviceMode uint8

const (
	DeviceModeSingleRanging          DeviceMode = 0
	DeviceModeContinuousRanging      DeviceMode = 1
	DeviceModeContinuousTimedRanging DeviceMode = 3
	DeviceModeGpioDrive              DeviceMode = 20
)

// LimitCheckID names one of the range validity checks.
type LimitCheckID uint16

const (
	CheckSigmaFinalRange      LimitCheckID = 0
	CheckSignalRateFinalRange LimitCheckID = 1
	CheckSignalRefClip        LimitCheckID = 2
	CheckRangeIgnoreThreshold LimitCheckID = 3
	CheckSignalRateMSRC       LimitCheckID = 4
	CheckSignalRatePreRange   LimitCheckID = 5
)

// LimitCheckCount is the number of limit checks.
const LimitCheckCount = 6

// GpioFunctionality selects what drives the GPIO1 interrupt pin.
type GpioFunctionality uint8

const (
	GpioFuncOff             GpioFunctionality = 0
	GpioFuncThresholdLow    GpioFunctionality = 1
	GpioFuncThresholdHigh   GpioFunctionality = 2
	GpioFuncThresholdOut    GpioFunctionality = 3
	GpioFuncNewMeasureReady GpioFunctionality = 4
)

// InterruptPolarity of the GPIO1 pin.
type InterruptPolarity uint8

const (
	InterruptPolarityLow  InterruptPolarity = 0
	InterruptPolarityHigh InterruptPolarity = 1
)

// VcselPeriodType selects the pre-range or final-range VCSEL period.
type VcselPeriodType uint8

const (
	VcselPeriodPreRange   VcselPeriodType = 0
	VcselPeriodFinalRange VcselPeriodType = 1
)

// RangingAPI is the set of ranging entry points the Device drives. NewNative
// provides a register-level implementation.
type RangingAPI interface {
	GetVersion() (Version, error)
	DataInit() error
	StaticInit() error
	SetDeviceAddress(addr8 uint8) error
	GetDeviceInfo() (DeviceInfo, error)

	PerformRefSpadManagement() (count uint32, isAperture bool, err error)
	PerformRefCalibration() (vhv, phaseCal uint8, err error)

	SetDeviceMode(mode DeviceMode) error
	GetDeviceMode() (DeviceMode, error)

	SetLimitCheckEnable(id LimitCheckID, enable bool) error
	GetLimitCheckEnable(id LimitCheckID) (bool, error)
	SetLimitCheckValue(id LimitCheckID, value FixPoint1616) error
	GetLimitCheckValue(id LimitCheckID) (FixPoint1616, error)
	GetLimitCheckCurrent(id LimitCheckID) (FixPoint1616, error)

	SetMeasurementTimingBudgetMicroSeconds(us uint32) error
	GetMeasurementTimingBudgetMicroSeconds() (uint32, error)
	SetInterMeasurementPeriodMilliSeconds(ms uint32) error
	SetVcselPulsePeriod(kind VcselPeriodType, pclks uint8) error
	GetVcselPulsePeriod(kind VcselPeriodType) (uint8, error)

	PerformSingleRangingMeasurement() (RangingMeasurementData, error)
	StartMeasurement() error
	StopMeasurement() error
	GetStopCompletedStatus() (uint32, error)
	GetMeasurementDataReady() (bool, error)
	GetRangingMeasurementData() (RangingMeasurementData, error)
	ClearInterruptMask(mask uint32) error

	SetGpioConfig(pin uint8, mode DeviceMode, fn GpioFunctionality, pol InterruptPolarity) error
	GetGpioConfig(pin uint8) (DeviceMode, GpioFunctionality, InterruptPolarity, error)
	SetInterruptThresholds(mode DeviceMode, low, high FixPoint1616) error
	GetInterruptThresholds(mode DeviceMode) (low, high FixPoint1616, err error)

	GetRangeStatusString(status uint8) string
}
