package vl53l0x

import "testing"

func TestRangeStatusString(t *testing.T) {
	expected := map[uint8]string{
		0:   "Range Valid",
		1:   "Sigma Fail",
		2:   "Signal Fail",
		3:   "Min Range Fail",
		4:   "Phase Fail",
		5:   "Hardware Fail",
		6:   "No Update",
		255: "No Update",
	}
	for status, want := range expected {
		if got := RangeStatusString(status); got != want {
			t.Errorf("RangeStatusString(%d): expected %q, got %q", status, want, got)
		}
	}
}

func TestErrorStrings(t *testing.T) {
	expected := map[Error]string{
		ErrNone:                "No Error",
		ErrCalibrationWarning:  "Calibration Warning Error",
		ErrInvalidParams:       "Invalid parameters error",
		ErrTimeOut:             "Time out error",
		ErrInterruptNotCleared: "Interrupt not Cleared",
		ErrControlInterface:    "Control Interface Error",
		ErrRefSpadInit:         "Reference Spad Init Error",
		ErrNotImplemented:      "Not implemented error",
		Error(-100):            "Unknown Error Code",
	}
	for code, want := range expected {
		if got := code.Error(); got != want {
			t.Errorf("Error(%d): expected %q, got %q", code, want, got)
		}
	}
}

func TestDeviceErrorString(t *testing.T) {
	if DeviceErrorString(11) != "Range Complete" {
		t.Errorf("Unexpected text for 11: %q", DeviceErrorString(11))
	}
	if DeviceErrorString(15) != "Unknown error code" {
		t.Errorf("Unexpected text for 15: %q", DeviceErrorString(15))
	}
}
