// Core protocol messages every Klipper MCU answers: identification, clock
// queries, the config handshake and reset.
package core

import (
	"sync/atomic"

	"tofmcu/protocol"
)

// moveQueueSize is reported as move_count. No moves are queued here but
// the host refuses an MCU reporting fewer than 16.
const moveQueueSize = 16

var (
	configCRC    atomic.Uint32
	resetPending atomic.Bool
	resetHandler func()

	globalTransport *protocol.Transport
)

// InitCoreCommands registers the core messages. identify_response and
// identify must get IDs 0 and 1, the ones the host knows before it has
// the dictionary.
func InitCoreCommands() {
	RegisterResponse("identify_response", "offset=%u data=%*s")
	RegisterShutdownCommand("identify", "offset=%u count=%c", handleIdentify)

	RegisterShutdownCommand("get_uptime", "", handleGetUptime)
	RegisterShutdownCommand("get_clock", "", handleGetClock)
	RegisterShutdownCommand("get_config", "", handleGetConfig)
	RegisterShutdownCommand("config_reset", "", handleConfigReset)
	RegisterCommand("finalize_config", "crc=%u", handleFinalizeConfig)
	RegisterCommand("allocate_oids", "count=%c", handleAllocateOids)
	RegisterShutdownCommand("emergency_stop", "", handleEmergencyStop)
	RegisterShutdownCommand("clear_shutdown", "", handleClearShutdown)
	RegisterShutdownCommand("reset", "", handleReset)

	RegisterResponse("clock", "clock=%u")
	RegisterResponse("uptime", "high=%u clock=%u")
	RegisterResponse("config", "is_config=%c crc=%u is_shutdown=%c move_count=%hu")
	RegisterResponse("shutdown", "clock=%u static_string_id=%hu")
	RegisterResponse("is_shutdown", "static_string_id=%hu")

	// MCU and CLOCK_FREQ come from the target
	RegisterConstant("STATS_SUMSQ_BASE", uint32(256))
	RegisterEnumeration("static_string_id", shutdownReasons)
}

// SetGlobalTransport sets where SendResponse writes
func SetGlobalTransport(t *protocol.Transport) {
	globalTransport = t
}

// SendResponse sends a registered response. Nothing is sent without a
// transport.
func SendResponse(name string, args func(output protocol.OutputBuffer)) {
	if globalTransport == nil {
		return
	}
	cmd, ok := globalRegistry.GetCommandByName(name)
	if !ok {
		panic("response not registered: " + name)
	}
	globalTransport.SendCommand(cmd.ID, args)
}

// Format: identify offset=%u count=%c
func handleIdentify(data *[]byte) error {
	var offset, count uint32
	if err := decodeArgs(data, &offset, &count); err != nil {
		return err
	}
	chunk := GetGlobalDictionary().GetChunk(offset, uint8(count))
	SendResponse("identify_response", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, offset)
		protocol.EncodeVLQBytes(out, chunk)
	})
	return nil
}

func handleGetUptime(*[]byte) error {
	up := GetUptime()
	SendResponse("uptime", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(up>>32))
		protocol.EncodeVLQUint(out, uint32(up))
	})
	return nil
}

func handleGetClock(*[]byte) error {
	now := GetTime()
	SendResponse("clock", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, now)
	})
	return nil
}

func handleGetConfig(*[]byte) error {
	crc := configCRC.Load()
	shut := IsShutdown()
	SendResponse("config", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, boolArg(crc != 0))
		protocol.EncodeVLQUint(out, crc)
		protocol.EncodeVLQUint(out, boolArg(shut))
		protocol.EncodeVLQUint(out, moveQueueSize)
	})
	return nil
}

func handleConfigReset(*[]byte) error {
	configCRC.Store(0)
	return nil
}

// Format: finalize_config crc=%u
func handleFinalizeConfig(data *[]byte) error {
	var crc uint32
	if err := decodeArgs(data, &crc); err != nil {
		return err
	}
	configCRC.Store(crc)
	return nil
}

// handleAllocateOids only consumes its argument; objects live in maps
// Format: allocate_oids count=%c
func handleAllocateOids(data *[]byte) error {
	var count uint32
	return decodeArgs(data, &count)
}

// SetResetHandler installs the target's reboot function
func SetResetHandler(fn func()) {
	resetHandler = fn
}

// handleReset only flags the reset so that the ACK leaves first
func handleReset(*[]byte) error {
	resetPending.Store(true)
	return nil
}

// CheckPendingReset reboots when a reset was requested. Targets call it
// after flushing their output.
func CheckPendingReset() {
	if resetPending.Load() && resetHandler != nil {
		resetHandler()
	}
}

// ResetFirmwareState forgets the config handshake and any shutdown, as
// after a host reconnect
func ResetFirmwareState() {
	configCRC.Store(0)
	clearShutdown()
}

// ResetObjects drops every configured object and pending timer and
// restarts the clock, leaving the firmware as it was after boot
func ResetObjects() {
	state := disableInterrupts()
	timerList = nil
	restoreInterrupts(state)
	atomic.StoreUint32(&clockTicks, 0)
	TimerInit()

	i2cDevices = make(map[uint8]*I2CDevice)
	tofSensors = make(map[uint8]*ToFSensor)
	registeredDrivers = make(map[uint8]*DriverInstance)
	driversByName = make(map[string]*DriverInstance)
	i2cEndstops = make(map[uint8]*I2CEndstop)
	endstops = make(map[uint8]*Endstop)
	digitalOutputs = make(map[uint8]*DigitalOut)
	triggerSyncs = make(map[uint8]*TriggerSync)
	ClearEventRing()
}
