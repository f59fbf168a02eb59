// Digital outputs
// Drives the XSHUT lines of ToF sensors so the host can bring them up one
// by one and give each its own I2C address
package core

// DigitalOut flags
const (
	DF_ON         = 1 << 0 // pin is high
	DF_DEFAULT_ON = 1 << 1 // pin goes high on shutdown
	DF_CHECK_END  = 1 << 2 // max_duration is enforced
)

// DigitalOut is a configured output pin
type DigitalOut struct {
	OID         uint8
	Pin         GPIOPin
	Flags       uint8
	MaxDuration uint32 // ticks the pin may leave its default state, 0 = forever

	timer   Timer
	pending bool   // value of the next scheduled update
	endTime uint32 // when max_duration expires
}

var digitalOutputs = make(map[uint8]*DigitalOut)

// InitGPIOCommands registers the digital output commands
func InitGPIOCommands() {
	RegisterCommand("config_digital_out", "oid=%c pin=%u value=%c default_value=%c max_duration=%u", handleConfigDigitalOut)
	RegisterCommand("queue_digital_out", "oid=%c clock=%u on_ticks=%u", handleQueueDigitalOut)
	RegisterCommand("update_digital_out", "oid=%c value=%c", handleUpdateDigitalOut)
}

// GetDigitalOut returns the output with the given OID
func GetDigitalOut(oid uint8) (*DigitalOut, bool) {
	d, ok := digitalOutputs[oid]
	return d, ok
}

// Format: config_digital_out oid=%c pin=%u value=%c default_value=%c max_duration=%u
func handleConfigDigitalOut(data *[]byte) error {
	var oid, pin, value, defaultValue, maxDuration uint32
	if err := decodeArgs(data, &oid, &pin, &value, &defaultValue, &maxDuration); err != nil {
		return err
	}
	drv, err := gpio()
	if err != nil {
		return err
	}
	d := &DigitalOut{OID: uint8(oid), Pin: GPIOPin(pin), MaxDuration: maxDuration}
	if defaultValue != 0 {
		d.Flags |= DF_DEFAULT_ON
	}
	d.timer.Handler = d.event
	if err := drv.ConfigureOutput(d.Pin); err != nil {
		return err
	}
	if old, ok := digitalOutputs[d.OID]; ok {
		DelTimer(&old.timer)
	}
	digitalOutputs[d.OID] = d
	if err := d.set(value != 0); err != nil {
		return err
	}
	if d.armEnd(GetTime()) {
		ScheduleTimer(&d.timer)
	}
	return nil
}

// handleQueueDigitalOut sets the pin at clock. Any on_ticks sets it high.
// Format: queue_digital_out oid=%c clock=%u on_ticks=%u
func handleQueueDigitalOut(data *[]byte) error {
	var oid, clock, onTicks uint32
	if err := decodeArgs(data, &oid, &clock, &onTicks); err != nil {
		return err
	}
	d, ok := digitalOutputs[uint8(oid)]
	if !ok {
		return nil
	}
	DelTimer(&d.timer)
	d.pending = onTicks != 0
	d.timer.Handler = d.event
	d.timer.WakeTime = clock
	ScheduleTimer(&d.timer)
	return nil
}

// Format: update_digital_out oid=%c value=%c
func handleUpdateDigitalOut(data *[]byte) error {
	var oid, value uint32
	if err := decodeArgs(data, &oid, &value); err != nil {
		return err
	}
	d, ok := digitalOutputs[uint8(oid)]
	if !ok {
		return nil
	}
	DelTimer(&d.timer)
	if err := d.set(value != 0); err != nil {
		return err
	}
	if d.armEnd(GetTime()) {
		ScheduleTimer(&d.timer)
	}
	return nil
}

// On reports the current pin level
func (d *DigitalOut) On() bool {
	return d.Flags&DF_ON != 0
}

func (d *DigitalOut) set(on bool) error {
	drv, err := gpio()
	if err != nil {
		return err
	}
	if err := drv.SetPin(d.Pin, on); err != nil {
		return err
	}
	if on {
		d.Flags |= DF_ON
	} else {
		d.Flags &^= DF_ON
	}
	return nil
}

// armEnd points the timer at the return to the default level when the pin
// has left it and a max_duration is set. It reports whether the timer needs
// to run.
func (d *DigitalOut) armEnd(now uint32) bool {
	d.Flags &^= DF_CHECK_END
	if d.MaxDuration == 0 || d.On() == (d.Flags&DF_DEFAULT_ON != 0) {
		return false
	}
	d.Flags |= DF_CHECK_END
	d.endTime = now + d.MaxDuration
	d.timer.Handler = d.expire
	d.timer.WakeTime = d.endTime
	return true
}

// event applies a queued update
func (d *DigitalOut) event(t *Timer) uint8 {
	if d.set(d.pending) != nil {
		return SF_DONE
	}
	if d.armEnd(t.WakeTime) {
		return SF_RESCHEDULE
	}
	return SF_DONE
}

// expire returns the pin to its default level after max_duration
func (d *DigitalOut) expire(t *Timer) uint8 {
	d.toDefault()
	return SF_DONE
}

func (d *DigitalOut) toDefault() {
	_ = d.set(d.Flags&DF_DEFAULT_ON != 0)
	d.Flags &^= DF_CHECK_END
}

// ShutdownAllDigitalOut returns every output to its default level
func ShutdownAllDigitalOut() {
	for _, d := range digitalOutputs {
		if d != nil {
			DelTimer(&d.timer)
			d.toDefault()
		}
	}
}
