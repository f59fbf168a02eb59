package core

import "sync/atomic"

// TimerFreq is the firmware clock rate reported as CLOCK_FREQ
const TimerFreq = 12000000

const ticksPerUS = TimerFreq / 1000000

var (
	clockTicks uint32 // atomic
	clockHigh  uint32 // wraps of clockTicks, atomic
)

// GetTime returns the 32-bit firmware clock
func GetTime() uint32 {
	return atomic.LoadUint32(&clockTicks)
}

// SetTime moves the clock, counting a wrap when it goes backwards. Targets
// call it from their main loop with the hardware counter.
func SetTime(ticks uint32) {
	if ticks < atomic.LoadUint32(&clockTicks) {
		atomic.AddUint32(&clockHigh, 1)
	}
	atomic.StoreUint32(&clockTicks, ticks)
}

// GetUptime returns the 64-bit clock
func GetUptime() uint64 {
	return uint64(atomic.LoadUint32(&clockHigh))<<32 | uint64(GetTime())
}

// TimerFromUS converts microseconds to clock ticks
func TimerFromUS(us uint32) uint32 {
	return us * ticksPerUS
}

// TimerToUS converts clock ticks to microseconds
func TimerToUS(ticks uint32) uint32 {
	return ticks / ticksPerUS
}

// TimerInit restarts the uptime count at the current clock
func TimerInit() {
	atomic.StoreUint32(&clockHigh, 0)
}

// ProcessTimers runs every timer that is due
func ProcessTimers() {
	currentTime = GetTime()
	TimerDispatch()
}
