// Trigger synchronization: the endstops of one homing move share a trsync
// object, and the first to fire stops the move for all of them.
package core

import (
	"tofmcu/protocol"
)

const (
	trsyncCanTrigger = 1 << 0
	trsyncTriggered  = 1 << 1
)

// TriggerSync is one trsync object
type TriggerSync struct {
	OID          uint8
	flags        uint8
	reason       uint8
	expireReason uint8
	reportTicks  uint32
	report       Timer
	expire       Timer
	signals      []func(reason uint8)
}

var triggerSyncs = make(map[uint8]*TriggerSync)

// InitTriggerSyncCommands registers the trsync commands
func InitTriggerSyncCommands() {
	RegisterCommand("config_trsync", "oid=%c", handleConfigTriggerSync)
	RegisterCommand("trsync_start", "oid=%c report_clock=%u report_ticks=%u expire_reason=%c", handleTriggerSyncStart)
	RegisterCommand("trsync_set_timeout", "oid=%c clock=%u", handleTriggerSyncSetTimeout)
	RegisterCommand("trsync_trigger", "oid=%c reason=%c", handleTriggerSyncTrigger)
	RegisterResponse("trsync_state", "oid=%c can_trigger=%c trigger_reason=%c clock=%u")
}

func newTriggerSync(oid uint8) *TriggerSync {
	ts := &TriggerSync{OID: oid}
	ts.report.Handler = func(t *Timer) uint8 {
		ts.sendState()
		if ts.flags&trsyncCanTrigger == 0 || ts.reportTicks == 0 {
			return SF_DONE
		}
		t.WakeTime = GetTime() + ts.reportTicks
		return SF_RESCHEDULE
	}
	ts.expire.Handler = func(*Timer) uint8 {
		ts.Trigger(ts.expireReason)
		return SF_DONE
	}
	return ts
}

// GetTriggerSync looks a trsync object up by OID
func GetTriggerSync(oid uint8) (*TriggerSync, bool) {
	ts, ok := triggerSyncs[oid]
	return ts, ok
}

func (ts *TriggerSync) cancelTimers() {
	DelTimer(&ts.report)
	DelTimer(&ts.expire)
}

// Format: config_trsync oid=%c
func handleConfigTriggerSync(data *[]byte) error {
	var oid uint32
	if err := decodeArgs(data, &oid); err != nil {
		return err
	}
	if old, ok := triggerSyncs[uint8(oid)]; ok {
		old.cancelTimers()
	}
	triggerSyncs[uint8(oid)] = newTriggerSync(uint8(oid))
	return nil
}

// handleTriggerSyncStart arms the object and starts periodic reports
// Format: trsync_start oid=%c report_clock=%u report_ticks=%u expire_reason=%c
func handleTriggerSyncStart(data *[]byte) error {
	var oid, reportClock, reportTicks, expireReason uint32
	if err := decodeArgs(data, &oid, &reportClock, &reportTicks, &expireReason); err != nil {
		return err
	}
	ts, ok := triggerSyncs[uint8(oid)]
	if !ok {
		ts = newTriggerSync(uint8(oid))
		triggerSyncs[uint8(oid)] = ts
	}
	ts.cancelTimers()

	ts.flags = trsyncCanTrigger
	ts.reason = 0
	ts.expireReason = uint8(expireReason)
	ts.reportTicks = reportTicks
	if reportTicks != 0 {
		ts.report.WakeTime = reportClock
		ScheduleTimer(&ts.report)
	}
	return nil
}

// Format: trsync_set_timeout oid=%c clock=%u
func handleTriggerSyncSetTimeout(data *[]byte) error {
	var oid, clock uint32
	if err := decodeArgs(data, &oid, &clock); err != nil {
		return err
	}
	ts, ok := triggerSyncs[uint8(oid)]
	if !ok {
		return nil
	}
	DelTimer(&ts.expire)
	ts.expire.WakeTime = clock
	ScheduleTimer(&ts.expire)
	return nil
}

// Format: trsync_trigger oid=%c reason=%c
func handleTriggerSyncTrigger(data *[]byte) error {
	var oid, reason uint32
	if err := decodeArgs(data, &oid, &reason); err != nil {
		return err
	}
	if ts, ok := triggerSyncs[uint8(oid)]; ok {
		ts.Trigger(uint8(reason))
	}
	return nil
}

// Trigger fires the object once. Later calls until the next trsync_start
// are ignored. The state report goes out on the next timer pass.
func (ts *TriggerSync) Trigger(reason uint8) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if ts.flags&trsyncCanTrigger == 0 {
		return
	}
	ts.flags = trsyncTriggered
	ts.reason = reason
	DelTimer(&ts.expire)

	for _, signal := range ts.signals {
		signal(reason)
	}

	DelTimer(&ts.report)
	ts.report.WakeTime = GetTime()
	ScheduleTimer(&ts.report)
}

// AddSignal registers fn to run when the object fires
func (ts *TriggerSync) AddSignal(fn func(reason uint8)) {
	state := disableInterrupts()
	ts.signals = append(ts.signals, fn)
	restoreInterrupts(state)
}

// Triggered reports whether the object has fired since it was armed
func (ts *TriggerSync) Triggered() bool {
	return ts.flags&trsyncTriggered != 0
}

func (ts *TriggerSync) sendState() {
	canTrigger := uint32(0)
	if ts.flags&trsyncCanTrigger != 0 {
		canTrigger = 1
	}
	now := GetTime()
	SendResponse("trsync_state", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(ts.OID))
		protocol.EncodeVLQUint(out, canTrigger)
		protocol.EncodeVLQUint(out, uint32(ts.reason))
		protocol.EncodeVLQUint(out, now)
	})
}
