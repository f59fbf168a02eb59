package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// RangeEvent captures a ranging event for post-mortem analysis
type RangeEvent struct {
	EventType uint8  // Event type code
	OID       uint8  // Sensor object ID
	Clock     uint32 // System clock at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtToFInit    = 1 // sensor brought up; v1=status v2=address
	EvtToFMeasure = 2 // result read; v1=range v2=range status
	EvtToFStart   = 3 // continuous ranging started; v1=period
	EvtToFStop    = 4 // continuous ranging stopped; v1=status
	EvtToFError   = 5 // API call failed; v1=status
	EvtEndstopHit = 6 // endstop triggered; v1=distance or pin v2=reason
)

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	debugPrintln DebugWriter = func(string) {}
	debugEnabled bool

	eventRing     [EventRingSize]RangeEvent
	eventRingHead uint8

	debugChan chan string
)

// SetDebugWriter sets where debug text goes, e.g. a spare UART
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled turns DebugPrintln output on or off
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled reports whether debug output is on
func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug moves debug output to a goroutine so that a slow writer
// does not stall the firmware loop. Messages are dropped while the queue
// is full.
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go func() {
		for msg := range debugChan {
			debugPrintln(msg)
		}
	}()
}

// DebugPrintln writes msg when debug output is on
func DebugPrintln(msg string) {
	if debugEnabled {
		writeDebug(msg)
	}
}

func writeDebug(msg string) {
	if debugChan == nil {
		debugPrintln(msg)
		return
	}
	select {
	case debugChan <- msg:
	default:
	}
}

// RecordEvent stores a ranging event in the ring buffer. It never blocks.
func RecordEvent(eventType, oid uint8, value1, value2 uint32) {
	idx := eventRingHead
	eventRing[idx] = RangeEvent{
		EventType: eventType,
		OID:       oid,
		Clock:     GetTime(),
		Value1:    value1,
		Value2:    value2,
	}
	eventRingHead = (idx + 1) % EventRingSize
}

// RecentEvents returns the recorded events, oldest first.
func RecentEvents() []RangeEvent {
	events := make([]RangeEvent, 0, EventRingSize)
	for i := uint8(0); i < EventRingSize; i++ {
		evt := eventRing[(eventRingHead+i)%EventRingSize]
		if evt.EventType != 0 {
			events = append(events, evt)
		}
	}
	return events
}

func eventName(t uint8) string {
	switch t {
	case EvtToFInit:
		return "TOF_INIT"
	case EvtToFMeasure:
		return "TOF_RANGE"
	case EvtToFStart:
		return "TOF_START"
	case EvtToFStop:
		return "TOF_STOP"
	case EvtToFError:
		return "TOF_ERROR!"
	case EvtEndstopHit:
		return "ENDSTOP_HIT"
	}
	return "UNKNOWN"
}

// DumpEventRing writes the recorded events through the debug writer,
// whether or not debug output is on. TryShutdown calls it.
func DumpEventRing() {
	writeDebug("[EVENTS] === Event Ring Dump ===")
	for _, evt := range RecentEvents() {
		writeDebug("[EVENTS] " + eventName(evt.EventType) +
			" oid=" + itoa(int(evt.OID)) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	writeDebug("[EVENTS] === End Dump ===")
}

// ClearEventRing clears the event buffer
func ClearEventRing() {
	for i := range eventRing {
		eventRing[i] = RangeEvent{}
	}
	eventRingHead = 0
}
