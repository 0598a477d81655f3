//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"
)

// usbLink carries the byte protocol over USB CDC (machine.Serial)
type usbLink struct{}

func (usbLink) Init() error {
	return machine.Serial.Configure(machine.UARTConfig{})
}

// Pump moves received bytes into deliver until the process ends
func (usbLink) Pump(deliver func([]byte)) {
	var one [1]byte
	for {
		if machine.Serial.Buffered() == 0 {
			time.Sleep(100 * time.Microsecond)
			continue
		}
		b, err := machine.Serial.ReadByte()
		if err != nil {
			linkErrors++
			time.Sleep(time.Millisecond)
			continue
		}
		one[0] = b
		deliver(one[:])
	}
}

func (usbLink) Write(p []byte) (int, error) {
	return machine.Serial.Write(p)
}
