//go:build rp2350

package main

// RP2350 TIMER0 lives at a different base than the RP2040 timer
const (
	timerBase     = 0x400B0000
	timerRawHAddr = timerBase + 0x24
	timerRawLAddr = timerBase + 0x28
)
