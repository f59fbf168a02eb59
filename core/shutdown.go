package core

import (
	"sync/atomic"

	"tofmcu/protocol"
)

// shutdownReasons is the static_string_id enumeration. Shutdown messages
// carry an index into it instead of text.
var shutdownReasons = []string{
	"Unknown shutdown reason",
	"Command request",
	"I2C write error",
	"I2C read error",
	"ToF sensor error",
}

var (
	shutdown       atomic.Bool
	shutdownReason atomic.Uint32
)

func reasonID(reason string) uint32 {
	for i, r := range shutdownReasons {
		if r == reason {
			return uint32(i)
		}
	}
	return 0
}

// TryShutdown latches the shutdown state, stops every sensor and bus and
// reports the reason. Only the first reason is kept.
func TryShutdown(reason string) {
	if !shutdown.CompareAndSwap(false, true) {
		return
	}
	id := reasonID(reason)
	shutdownReason.Store(id)

	ShutdownAllToF()
	ShutdownAllI2C()
	ShutdownAllDigitalOut()

	DebugPrintln("[SHUTDOWN] " + shutdownReasons[id])
	DumpEventRing()
	now := GetTime()
	SendResponse("shutdown", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, now)
		protocol.EncodeVLQUint(out, id)
	})
}

// IsShutdown reports whether the firmware is shut down
func IsShutdown() bool {
	return shutdown.Load()
}

// ShutdownReason returns the latched reason, or "" when running
func ShutdownReason() string {
	if !IsShutdown() {
		return ""
	}
	return shutdownReasons[shutdownReason.Load()]
}

// reportShutdown answers a command refused while shut down
func reportShutdown() {
	id := shutdownReason.Load()
	SendResponse("is_shutdown", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, id)
	})
}

func clearShutdown() {
	shutdown.Store(false)
	shutdownReason.Store(0)
}

func handleEmergencyStop(*[]byte) error {
	TryShutdown("Command request")
	return nil
}

// handleClearShutdown leaves the shutdown state. Objects stay stopped
// until the host configures them again.
func handleClearShutdown(*[]byte) error {
	clearShutdown()
	return nil
}
