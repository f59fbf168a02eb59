// Pin endstops
// Homes on a digital line, typically the VL53L0X GPIO1 output programmed
// with vl53l0x_set_interrupt to assert when the range leaves its window
package core

import (
	"tofmcu/protocol"
)

// ESF_PIN_HIGH is set in Endstop.Flags when a high level means triggered
const ESF_PIN_HIGH = 1 << 0

// Endstop watches an input pin during homing moves
type Endstop struct {
	OID   uint8
	Pin   GPIOPin
	Flags uint8

	timer        Timer
	home         homing
	oversampling bool
	remaining    uint8
	nextWake     uint32
}

var endstops = make(map[uint8]*Endstop)

// InitEndstopCommands registers the pin endstop commands
func InitEndstopCommands() {
	RegisterCommand("config_endstop", "oid=%c pin=%u pull_up=%c", handleConfigEndstop)
	RegisterCommand("endstop_home", "oid=%c clock=%u sample_ticks=%u sample_count=%c rest_ticks=%u pin_value=%c trsync_oid=%c trigger_reason=%c", handleEndstopHome)
	RegisterShutdownCommand("endstop_query_state", "oid=%c", handleEndstopQueryState)
	RegisterResponse("endstop_state", "oid=%c homing=%c next_clock=%u pin_value=%c")
}

// Format: config_endstop oid=%c pin=%u pull_up=%c
func handleConfigEndstop(data *[]byte) error {
	var oid, pin, pullUp uint32
	if err := decodeArgs(data, &oid, &pin, &pullUp); err != nil {
		return err
	}
	drv, err := gpio()
	if err != nil {
		return err
	}
	if err := drv.ConfigureInput(GPIOPin(pin), pullUp != 0); err != nil {
		return err
	}
	e := &Endstop{OID: uint8(oid), Pin: GPIOPin(pin)}
	e.timer.Handler = e.sample
	if old, ok := endstops[e.OID]; ok {
		DelTimer(&old.timer)
	}
	endstops[e.OID] = e
	return nil
}

// handleEndstopHome arms the endstop. A sample_count of 0 disarms it.
// Format: endstop_home oid=%c clock=%u sample_ticks=%u sample_count=%c rest_ticks=%u pin_value=%c trsync_oid=%c trigger_reason=%c
func handleEndstopHome(data *[]byte) error {
	var oid, clock, sampleTicks, sampleCount, restTicks, pinValue, trsyncOID, reason uint32
	err := decodeArgs(data, &oid, &clock, &sampleTicks, &sampleCount, &restTicks, &pinValue, &trsyncOID, &reason)
	if err != nil {
		return err
	}
	e, ok := endstops[uint8(oid)]
	if !ok {
		return nil
	}
	DelTimer(&e.timer)
	e.Flags = 0
	e.home = homing{}
	if sampleCount == 0 {
		return nil
	}
	ts, ok := GetTriggerSync(uint8(trsyncOID))
	if !ok {
		return nil
	}

	e.home = homing{
		sampleTicks: sampleTicks,
		restTicks:   restTicks,
		samples:     uint8(sampleCount),
		trsync:      ts,
		reason:      uint8(reason),
	}
	e.oversampling = false
	e.Flags = ESF_HOMING
	if pinValue != 0 {
		e.Flags |= ESF_PIN_HIGH
	}
	e.timer.WakeTime = clock
	ScheduleTimer(&e.timer)
	return nil
}

// Format: endstop_query_state oid=%c
func handleEndstopQueryState(data *[]byte) error {
	var oid uint32
	if err := decodeArgs(data, &oid); err != nil {
		return err
	}
	e, ok := endstops[uint8(oid)]
	if !ok {
		return nil
	}

	state := disableInterrupts()
	homingNow := e.Flags&ESF_HOMING != 0
	next := e.nextWake
	restoreInterrupts(state)

	level := false
	if drv, err := gpio(); err == nil {
		level = drv.ReadPin(e.Pin)
	}
	SendResponse("endstop_state", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, oid)
		protocol.EncodeVLQUint(out, boolArg(homingNow))
		protocol.EncodeVLQUint(out, next)
		protocol.EncodeVLQUint(out, boolArg(level))
	})
	return nil
}

// triggered reports whether the pin is at its trigger level
func (e *Endstop) triggered() bool {
	drv, err := gpio()
	if err != nil {
		return false
	}
	return drv.ReadPin(e.Pin) == (e.Flags&ESF_PIN_HIGH != 0)
}

// sample is the endstop timer. It checks every rest_ticks until the pin
// reaches its trigger level, then needs sample_count readings at that
// level, sample_ticks apart.
func (e *Endstop) sample(t *Timer) uint8 {
	if e.Flags&ESF_HOMING == 0 {
		return SF_DONE
	}
	hit := e.triggered()

	if !e.oversampling {
		if !hit {
			t.WakeTime += e.home.restTicks
			return SF_RESCHEDULE
		}
		e.nextWake = t.WakeTime + e.home.restTicks
		e.oversampling = true
		e.remaining = e.home.samples
	} else if !hit {
		e.oversampling = false
		t.WakeTime = e.nextWake
		return SF_RESCHEDULE
	}

	e.remaining--
	if e.remaining > 0 {
		t.WakeTime += e.home.sampleTicks
		return SF_RESCHEDULE
	}
	e.Flags &^= ESF_HOMING
	e.oversampling = false
	RecordEvent(EvtEndstopHit, e.OID, uint32(e.Pin), uint32(e.home.reason))
	e.home.trsync.Trigger(e.home.reason)
	return SF_DONE
}
