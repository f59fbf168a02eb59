package vl53l0x

// Range status values reported in RangingMeasurementData.RangeStatus.
const (
	RangeValid        uint8 = 0
	RangeSigmaFail    uint8 = 1
	RangeSignalFail   uint8 = 2
	RangeMinRangeFail uint8 = 3
	RangePhaseFail    uint8 = 4
	RangeHardwareFail uint8 = 5
	RangeNoUpdate     uint8 = 255
)

// RangeStatusString returns the text for a range status value.
func RangeStatusString(status uint8) string {
	switch status {
	case RangeValid:
		return "Range Valid"
	case RangeSigmaFail:
		return "Sigma Fail"
	case RangeSignalFail:
		return "Signal Fail"
	case RangeMinRangeFail:
		return "Min Range Fail"
	case RangePhaseFail:
		return "Phase Fail"
	case RangeHardwareFail:
		return "Hardware Fail"
	}
	return "No Update"
}

// DeviceErrorString returns the text for the raw device status found in bits
// 3..6 of RESULT_RANGE_STATUS.
func DeviceErrorString(code uint8) string {
	switch code {
	case 0:
		return "No Error"
	case 1:
		return "VCSEL Continuity Test Failure"
	case 2:
		return "VCSEL Watchdog Test Failure"
	case 3:
		return "No VHV Value found"
	case 4:
		return "MSRC No Target Error"
	case 5:
		return "SNR Check Exit"
	case 6:
		return "Range Phase Check Error"
	case 7:
		return "Sigma Threshold Check Error"
	case 8:
		return "TCC Error"
	case 9:
		return "Phase Consistency Error"
	case 10:
		return "Min Clip Error"
	case 11:
		return "Range Complete"
	case 12:
		return "Range Algo Underflow Error"
	case 13:
		return "Range Algo Overlow Error"
	case 14:
		return "Range Ignore Threshold Error"
	}
	return "Unknown error code"
}
