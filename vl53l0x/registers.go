package vl53l0x

// Register map. Registers marked page 1 are only reachable after writing
// 0x01 to regPageSelect.
const (
	regSysRangeStart               = 0x00
	regSystemSequenceConfig        = 0x01
	regSystemInterMeasurementPer   = 0x04
	regSystemRangeConfig           = 0x09
	regSystemInterruptConfigGpio   = 0x0A
	regSystemInterruptClear        = 0x0B
	regSystemThreshHigh            = 0x0C
	regSystemThreshLow             = 0x0E
	regResultInterruptStatus       = 0x13
	regResultRangeStatus           = 0x14
	regCrosstalkCompPeakRate       = 0x20
	regPreRangeConfigMinSNR        = 0x27
	regAlgoPartToPartRangeOffsetMM = 0x28
	regAlgoPhasecalLim             = 0x30 // page 1
	regAlgoPhasecalConfigTimeout   = 0x30
	regGlobalConfigVcselWidth      = 0x32
	regFinalRangeMinCountRateLimit = 0x44
	regMsrcConfigTimeoutMacrop     = 0x46
	regFinalRangeValidPhaseLow     = 0x47
	regFinalRangeValidPhaseHigh    = 0x48
	regDynamicSpadNumRequestedRef  = 0x4E
	regDynamicSpadRefEnStartOffset = 0x4F
	regPreRangeVcselPeriod         = 0x50
	regPreRangeTimeoutMacropHi     = 0x51
	regPreRangeValidPhaseLow       = 0x56
	regPreRangeValidPhaseHigh      = 0x57
	regMsrcConfigControl           = 0x60
	regPreRangeMinCountRateLimit   = 0x64
	regFinalRangeMinSNR            = 0x67
	regFinalRangeVcselPeriod       = 0x70
	regFinalRangeTimeoutMacropHi   = 0x71
	regPowerManagementGo1          = 0x80
	regGpioHvMuxActiveHigh         = 0x84
	regVhvConfigPadSclSdaExtsupHV  = 0x89
	regI2CSlaveDeviceAddress       = 0x8A
	regStopVariable                = 0x91
	regGlobalConfigSpadEnablesRef0 = 0xB0
	regGlobalConfigRefEnStartSel   = 0xB6
	regResultPeakSignalRateRef     = 0xB6 // page 1
	regSoftResetGo2SoftResetN      = 0xBF
	regIdentificationModelID       = 0xC0
	regIdentificationRevisionID    = 0xC2
	regOscCalibrateVal             = 0xF8
	regPageSelect                  = 0xFF

	// stop-status lives at this index on page 1
	regStopStatus = 0x04
)

// SYSRANGE_START mode bits.
const (
	sysRangeModeSingleShot = 0x01
	sysRangeModeBackToBack = 0x02
	sysRangeModeTimed      = 0x04
	sysRangeModeHistogram  = 0x08
)

// Identification values read back from a genuine part.
const (
	modelID    = 0xEE
	moduleType = 0xAA
	revisionID = 0x10
)

// Sequence step enable bits in SYSTEM_SEQUENCE_CONFIG.
const (
	seqStepTCC        = 0x10
	seqStepDSS        = 0x08
	seqStepMSRC       = 0x04
	seqStepPreRange   = 0x40
	seqStepFinalRange = 0x80
)

type regVal struct {
	reg, val uint8
}

// defaultTuning is the factory tuning table loaded during static init.
var defaultTuning = []regVal{
	{0xFF, 0x01}, {0x00, 0x00},
	{0xFF, 0x00}, {0x09, 0x00}, {0x10, 0x00}, {0x11, 0x00},
	{0x24, 0x01}, {0x25, 0xFF}, {0x75, 0x00},
	{0xFF, 0x01}, {0x4E, 0x2C}, {0x48, 0x00}, {0x30, 0x20},
	{0xFF, 0x00}, {0x30, 0x09}, {0x54, 0x00}, {0x31, 0x04},
	{0x32, 0x03}, {0x40, 0x83}, {0x46, 0x25}, {0x60, 0x00},
	{0x27, 0x00}, {0x50, 0x06}, {0x51, 0x00}, {0x52, 0x96},
	{0x56, 0x08}, {0x57, 0x30}, {0x61, 0x00}, {0x62, 0x00},
	{0x64, 0x00}, {0x65, 0x00}, {0x66, 0xA0},
	{0xFF, 0x01}, {0x22, 0x32}, {0x47, 0x14}, {0x49, 0xFF}, {0x4A, 0x00},
	{0xFF, 0x00}, {0x7A, 0x0A}, {0x7B, 0x00}, {0x78, 0x21},
	{0xFF, 0x01}, {0x23, 0x34}, {0x42, 0x00}, {0x44, 0xFF}, {0x45, 0x26},
	{0x46, 0x05}, {0x40, 0x40}, {0x0E, 0x06}, {0x20, 0x1A}, {0x43, 0x40},
	{0xFF, 0x00}, {0x34, 0x03}, {0x35, 0x44},
	{0xFF, 0x01}, {0x31, 0x04}, {0x4B, 0x09}, {0x4C, 0x05}, {0x4D, 0x04},
	{0xFF, 0x00}, {0x44, 0x00}, {0x45, 0x20}, {0x47, 0x08}, {0x48, 0x28},
	{0x67, 0x00}, {0x70, 0x04}, {0x71, 0x01}, {0x72, 0xFE}, {0x76, 0x00}, {0x77, 0x00},
	{0xFF, 0x01}, {0x0D, 0x01},
	{0xFF, 0x00}, {0x80, 0x01}, {0x01, 0xF8},
	{0xFF, 0x01}, {0x8E, 0x01}, {0x00, 0x01}, {0xFF, 0x00}, {0x80, 0x00},
}
