//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"

	"gocoupler/core"
)

// RpAdcDriver implements core.ADCDriver on the RP2 ADC block. Only the
// four external inputs are exposed; the coupler never reads the
// temperature sensor.
type RpAdcDriver struct {
	channels [4]*machine.ADC
}

// NewRPAdcDriver powers up the ADC block
func NewRPAdcDriver() *RpAdcDriver {
	machine.InitADC()
	return &RpAdcDriver{}
}

// ConfigureChannel puts the channel's pin into analog mode
func (d *RpAdcDriver) ConfigureChannel(ch core.ADCChannelID) error {
	if int(ch) >= len(d.channels) {
		return errors.New("unsupported ADC channel")
	}
	if d.channels[ch] != nil {
		return nil
	}

	pins := [...]machine.Pin{machine.ADC0, machine.ADC1, machine.ADC2, machine.ADC3}
	adc := machine.ADC{Pin: pins[ch]}
	if err := adc.Configure(machine.ADCConfig{}); err != nil {
		return err
	}
	d.channels[ch] = &adc
	return nil
}

// ReadRaw returns a right-aligned 12-bit conversion (0..4095)
func (d *RpAdcDriver) ReadRaw(ch core.ADCChannelID) (core.ADCValue, error) {
	if int(ch) >= len(d.channels) {
		return 0, errors.New("unsupported ADC channel")
	}
	adc := d.channels[ch]
	if adc == nil {
		if err := d.ConfigureChannel(ch); err != nil {
			return 0, err
		}
		adc = d.channels[ch]
	}
	// machine.ADC.Get scales the 12-bit result to 16 bits
	return core.ADCValue(adc.Get() >> 4), nil
}
