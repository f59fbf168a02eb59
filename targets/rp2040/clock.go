//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"

	"tofmcu/core"
)

// RP2040 timer peripheral, a free running 64-bit microsecond counter
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x08
	timerTIMERAWL = timerBase + 0x0C
)

// ticksPerUS scales the microsecond counter to the firmware clock
const ticksPerUS = core.TimerFreq / 1000000

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// InitClock registers the clock constants reported to the host
func InitClock() {
	core.RegisterConstant("MCU", "rp2040")
	core.RegisterConstant("CLOCK_FREQ", uint32(core.TimerFreq))
}

// hardwareUptime reads the 64-bit counter, retrying when the high word
// rolls over between reads
func hardwareUptime() uint64 {
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()
		if high1 == high2 {
			return uint64(high1)<<32 | uint64(low)
		}
	}
}

// UpdateSystemTime copies the hardware counter into the firmware clock.
// The clock is 32 bits wide and wraps like the host expects.
func UpdateSystemTime() {
	core.SetTime(uint32(hardwareUptime() * ticksPerUS))
}
