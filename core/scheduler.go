package core

// Timer is a scheduled callback. The handler returns SF_RESCHEDULE after
// moving WakeTime forward, or SF_DONE.
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

// Timer handler results
const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

var (
	// timerList is ordered by WakeTime; equal times run in insertion order
	timerList   *Timer
	currentTime uint32
)

// ScheduleTimer queues t to run at t.WakeTime
func ScheduleTimer(t *Timer) {
	state := disableInterrupts()
	insertTimer(t)
	restoreInterrupts(state)
}

func insertTimer(t *Timer) {
	pos := &timerList
	for *pos != nil && (*pos).WakeTime <= t.WakeTime {
		pos = &(*pos).Next
	}
	t.Next = *pos
	*pos = t
}

// DelTimer unqueues t. It does nothing when t is not queued.
func DelTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for pos := &timerList; *pos != nil; pos = &(*pos).Next {
		if *pos == t {
			*pos = t.Next
			t.Next = nil
			return
		}
	}
}

// TimerDispatch runs the timers due at currentTime
func TimerDispatch() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for timerList != nil && timerList.WakeTime <= currentTime {
		t := timerList
		timerList = t.Next
		t.Next = nil
		if t.Handler(t) == SF_RESCHEDULE {
			insertTimer(t)
		}
	}
}
