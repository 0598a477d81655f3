//go:build rp2040 || rp2350

package main

import (
	"runtime/volatile"
	"unsafe"

	"gocoupler/core"
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerRawHAddr)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerRawLAddr)))
)

// GetHardwareTime returns the low 32 bits of the 1MHz microsecond counter
func GetHardwareTime() uint32 {
	return timerRAWL.Get()
}

// GetHardwareUptime reads the full 64-bit timer
func GetHardwareUptime() uint64 {
	// high, low, high again to catch a carry between the reads
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}

// UpdateSystemTime copies the hardware counter into the core clock
func UpdateSystemTime() {
	core.SetTime(GetHardwareTime())
}
