package core

import "sync/atomic"

// systemTicksValue is written by the target's clock update in the main loop
// and read from both event handlers.
var systemTicksValue atomic.Uint32

func getSystemTicks() uint32 {
	return systemTicksValue.Load()
}

func setSystemTicks(ticks uint32) {
	systemTicksValue.Store(ticks)
}
