package vl53l0x

// Error is a ranging API status code. Zero means success and is never
// returned as an error value.
type Error int8

const (
	ErrNone                          Error = 0
	ErrCalibrationWarning            Error = -1
	ErrMinClipped                    Error = -2
	ErrUndefined                     Error = -3
	ErrInvalidParams                 Error = -4
	ErrNotSupported                  Error = -5
	ErrRangeError                    Error = -6
	ErrTimeOut                       Error = -7
	ErrModeNotSupported              Error = -8
	ErrBufferTooSmall                Error = -9
	ErrGpioNotExisting               Error = -10
	ErrGpioFunctionalityNotSupported Error = -11
	ErrInterruptNotCleared           Error = -12
	ErrControlInterface              Error = -20
	ErrInvalidCommand                Error = -30
	ErrDivisionByZero                Error = -40
	ErrRefSpadInit                   Error = -50
	ErrNotImplemented                Error = -99
)

func (e Error) Error() string {
	switch e {
	case ErrNone:
		return "No Error"
	case ErrCalibrationWarning:
		return "Calibration Warning Error"
	case ErrMinClipped:
		return "Min clipped error"
	case ErrUndefined:
		return "Undefined error"
	case ErrInvalidParams:
		return "Invalid parameters error"
	case ErrNotSupported:
		return "Not supported error"
	case ErrRangeError:
		return "Range error"
	case ErrTimeOut:
		return "Time out error"
	case ErrModeNotSupported:
		return "Mode not supported error"
	case ErrBufferTooSmall:
		return "Buffer too small"
	case ErrGpioNotExisting:
		return "GPIO not existing"
	case ErrGpioFunctionalityNotSupported:
		return "GPIO funct not supported"
	case ErrInterruptNotCleared:
		return "Interrupt not Cleared"
	case ErrControlInterface:
		return "Control Interface Error"
	case ErrInvalidCommand:
		return "Invalid Command Error"
	case ErrDivisionByZero:
		return "Division by zero Error"
	case ErrRefSpadInit:
		return "Reference Spad Init Error"
	case ErrNotImplemented:
		return "Not implemented error"
	}
	return "Unknown Error Code"
}

// StatusOf converts an error returned by this package into its numeric
// status code. Foreign errors report ErrUndefined.
func StatusOf(err error) Error {
	if err == nil {
		return ErrNone
	}
	if e, ok := err.(Error); ok {
		return e
	}
	return ErrUndefined
}
