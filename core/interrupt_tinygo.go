//go:build tinygo

package core

import "runtime/interrupt"

type irqState = interrupt.State

// disableInterrupts masks interrupts while the timer list or a trigger is
// updated
func disableInterrupts() irqState { return interrupt.Disable() }

func restoreInterrupts(s irqState) { interrupt.Restore(s) }
