//go:build rp2040 || rp2350

package main

import (
	"machine"

	"gocoupler/core"
)

// InitExpanderBus configures I2C0 on its default pins (SDA=GP4, SCL=GP5)
// and registers it as the expander bus. machine.I2C already satisfies
// drivers.I2C.
func InitExpanderBus(frequencyHz uint32) error {
	bus := machine.I2C0
	// zero SDA/SCL selects the board's default I2C0 pins
	err := bus.Configure(machine.I2CConfig{Frequency: frequencyHz})
	if err != nil {
		return err
	}
	core.SetExpanderBus(bus)
	return nil
}
