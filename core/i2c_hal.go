package core

import "tinygo.org/x/drivers"

// I2CAddress is a 7-bit I2C device address.
type I2CAddress uint8

// Global expander bus used by core code. machine.I2C satisfies drivers.I2C
// on every TinyGo target, so targets register the configured peripheral
// directly.
var expanderBus drivers.I2C

// SetExpanderBus is called by target-specific code once the I2C
// peripheral feeding the output expanders is configured.
func SetExpanderBus(bus drivers.I2C) {
	expanderBus = bus
}

// MustExpanderBus returns the configured bus or panics if missing.
func MustExpanderBus() drivers.I2C {
	if expanderBus == nil {
		panic("expander I2C bus not configured")
	}
	return expanderBus
}
