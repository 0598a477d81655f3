// Package sim runs the firmware core on the host behind a serial.Port so
// the host tooling can be exercised without hardware. Time is virtual: each
// wall-clock tick advances the firmware clock by one tick's worth of
// microseconds in sample-interval steps, so frequency estimates are exact.
package sim

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"time"

	log "github.com/inconshreveable/log15"

	"gocoupler/config"
	"gocoupler/core"
	"gocoupler/host/serial"
)

// Options configure a simulated device
type Options struct {
	Firmware config.FirmwareConfig
	SignalHz float64       // initial test signal frequency, 0 for a flat line
	Tick     time.Duration // wall time between loop iterations
	Logger   log.Logger
}

// Device is a simulated coupler: firmware core plus fake peripherals
type Device struct {
	opts Options
	log  log.Logger

	ctrl   *core.Controller
	bus    *expanderBus
	led    *ledPin
	signal *signal

	clock uint32
}

// New builds a device. Only one device may run per process because the
// firmware scheduler is global.
func New(opts Options) (*Device, error) {
	if opts.Tick <= 0 {
		opts.Tick = time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = log.New("pkg", "sim")
	}
	if opts.Firmware.SampleIntervalUS == 0 {
		opts.Firmware = config.DefaultFirmwareConfig()
	}

	d := &Device{
		opts:   opts,
		log:    opts.Logger,
		bus:    newExpanderBus(uint16(opts.Firmware.ExpanderBase)),
		led:    &ledPin{},
		signal: &signal{fullScale: float64(opts.Firmware.ADCFullScale)},
	}
	d.signal.setHz(opts.SignalHz)

	core.ResetTimers()
	core.SetTime(0)

	ctrl, err := core.NewController(opts.Firmware, core.Peripherals{
		Bus:  d.bus,
		GPIO: d.led,
		ADC:  d.signal,
	})
	if err != nil {
		return nil, err
	}
	d.ctrl = ctrl
	return d, nil
}

// SetSignal changes the frequency of the simulated analog input
func (d *Device) SetSignal(hz float64) {
	d.signal.setHz(hz)
}

// Outputs returns the last byte written to each expander
func (d *Device) Outputs() [core.MaxMatrixSize]byte {
	return d.bus.snapshot()
}

// FailExpander makes writes to device index i fail
func (d *Device) FailExpander(i int, fail bool) {
	d.bus.setFail(uint16(d.opts.Firmware.ExpanderBase)+uint16(i), fail)
}

// Stats returns the firmware counters
func (d *Device) Stats() core.Stats {
	return d.ctrl.Stats()
}

// Run serves port until ctx is cancelled or the port fails
func (d *Device) Run(ctx context.Context, port serial.Port) error {
	if err := d.ctrl.Boot(); err != nil {
		d.log.Warn("Expander reset failed", "error", err)
	}

	in := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := port.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				select {
				case in <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(d.opts.Tick)
	defer ticker.Stop()

	step := d.opts.Firmware.SampleIntervalUS
	steps := uint32(d.opts.Tick/time.Microsecond) / step
	if steps == 0 {
		steps = 1
	}
	out := make([]byte, 256)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		case chunk := <-in:
			for _, b := range chunk {
				d.ctrl.HandleByte(b)
			}
		case <-ticker.C:
			for i := uint32(0); i < steps; i++ {
				d.clock += step
				core.SetTime(d.clock)
				d.ctrl.Task()
			}
		}

		// Matrices are applied on the next loop pass, as on hardware
		d.ctrl.Task()
		for {
			n := d.ctrl.Output(out)
			if n == 0 {
				break
			}
			if _, err := port.Write(out[:n]); err != nil {
				return err
			}
		}
	}
}

// expanderBus records expander writes. It satisfies tinygo.org/x/drivers.I2C.
type expanderBus struct {
	mu      sync.Mutex
	base    uint16
	state   map[uint16]byte
	failing map[uint16]bool
}

func newExpanderBus(base uint16) *expanderBus {
	return &expanderBus{base: base, state: make(map[uint16]byte), failing: make(map[uint16]bool)}
}

var errNoAck = errors.New("sim: expander did not acknowledge")

func (b *expanderBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing[addr] {
		return errNoAck
	}
	if len(w) > 0 {
		b.state[addr] = w[0]
	}
	return nil
}

func (b *expanderBus) setFail(addr uint16, fail bool) {
	b.mu.Lock()
	b.failing[addr] = fail
	b.mu.Unlock()
}

func (b *expanderBus) snapshot() [core.MaxMatrixSize]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out [core.MaxMatrixSize]byte
	for i := range out {
		out[i] = b.state[b.base+uint16(i)]
	}
	return out
}

// ledPin is a single fake GPIO
type ledPin struct {
	mu sync.Mutex
	on bool
}

func (l *ledPin) ConfigureOutput(pin core.GPIOPin) error { return nil }

func (l *ledPin) SetPin(pin core.GPIOPin, value bool) error {
	l.mu.Lock()
	l.on = value
	l.mu.Unlock()
	return nil
}

func (l *ledPin) GetPin(pin core.GPIOPin) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on, nil
}

// signal is a square wave on the ADC input, evaluated at the firmware clock
type signal struct {
	mu        sync.Mutex
	period    uint32 // ticks, 0 for a flat line
	fullScale float64
}

func (s *signal) setHz(hz float64) {
	var period uint32
	if hz > 0 {
		period = uint32(math.Round(core.TimerFreq / hz))
	}
	s.mu.Lock()
	s.period = period
	s.mu.Unlock()
}

func (s *signal) ConfigureChannel(ch core.ADCChannelID) error { return nil }

func (s *signal) ReadRaw(ch core.ADCChannelID) (core.ADCValue, error) {
	s.mu.Lock()
	period := s.period
	s.mu.Unlock()

	low := core.ADCValue(s.fullScale * 0.1)
	high := core.ADCValue(s.fullScale * 0.9)
	if period < 2 {
		return low, nil
	}
	if core.GetTime()%period < period/2 {
		return high, nil
	}
	return low, nil
}
