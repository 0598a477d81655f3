//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"

	"gocoupler/config"
	"gocoupler/core"
	"gocoupler/protocol"
)

// transport selects the host link; override with
// -ldflags "-X main.transport=uart"
var transport = "usb"

// byteLink is the serial transport the firmware speaks over
type byteLink interface {
	Init() error
	Pump(deliver func([]byte))
	Write(p []byte) (int, error)
}

var (
	inputBuffer *protocol.FifoBuffer
	controller  *core.Controller

	// Debug counters
	linkErrors               uint32
	inputOverflows           uint32
	consecutiveWriteFailures uint32
)

func main() {
	// Clear any watchdog state left from a previous run
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	var link byteLink = usbLink{}
	if transport == "uart" {
		link = newUARTLink()
	}
	if err := link.Init(); err != nil {
		return
	}

	UpdateSystemTime()
	core.TimerInit()

	cfg := config.DefaultFirmwareConfig()
	// Debug lines share the host link; keep cfg.Debug off in production
	core.SetDebugWriter(func(msg string) { println(msg) })
	core.SetDebugEnabled(cfg.Debug)

	core.SetADCDriver(NewRPAdcDriver())
	core.SetGPIODriver(NewRPGPIODriver())
	if err := InitExpanderBus(cfg.I2CFrequency); err != nil {
		core.DebugPrintln("[COUPLER] i2c init failed: " + err.Error())
	}

	var err error
	controller, err = core.NewController(cfg, core.Peripherals{})
	if err != nil {
		core.DebugPrintln("[COUPLER] " + err.Error())
		for {
			time.Sleep(time.Second)
		}
	}
	// Expander faults at boot are reported through the LED and the event
	// ring; the host can still drive whichever expanders answered.
	_ = controller.Boot()

	inputBuffer = protocol.NewFifoBuffer(256)
	go link.Pump(func(data []byte) {
		if inputBuffer.Write(data) < len(data) {
			inputOverflows++
		}
	})

	var out [64]byte
	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					linkErrors++
					inputBuffer.Reset()
				}
			}()

			UpdateSystemTime()

			var in [32]byte
			for {
				n := inputBuffer.Read(in[:])
				if n == 0 {
					break
				}
				for _, b := range in[:n] {
					controller.HandleByte(b)
				}
			}

			controller.Task()

			for {
				n := controller.Output(out[:])
				if n == 0 {
					break
				}
				writeAll(link, out[:n])
			}
		}()

		time.Sleep(10 * time.Microsecond)
	}
}

// writeAll pushes p to the link. A stalled write drops the rest of p so a
// detached host cannot wedge the main loop.
func writeAll(link byteLink, p []byte) {
	written := 0
	for written < len(p) {
		n, err := link.Write(p[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
}
