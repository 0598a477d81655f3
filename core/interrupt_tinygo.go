//go:build tinygo

package core

import "runtime/interrupt"

// State is the saved interrupt mask returned by disableInterrupts.
type State = interrupt.State

// disableInterrupts masks interrupts so the byte and sample handlers cannot
// preempt the caller. Calls nest.
func disableInterrupts() State {
	return interrupt.Disable()
}

// restoreInterrupts restores the mask saved by disableInterrupts
func restoreInterrupts(state State) {
	interrupt.Restore(state)
}
