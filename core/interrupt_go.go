//go:build !tinygo

package core

// irqState stands in for the saved interrupt mask in host builds, where
// timers and commands run on one goroutine
type irqState struct{}

func disableInterrupts() irqState { return irqState{} }

func restoreInterrupts(irqState) {}
