package core

import (
	"strings"
	"testing"

	"gocoupler/config"
	"gocoupler/protocol"
)

type testRig struct {
	ctrl *Controller
	bus  *MockI2C
	gpio *MockGPIODriver
	adc  *MockADCDriver
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	ResetTimers()
	ClearEventRing()
	SetTime(0)
	t.Cleanup(ResetTimers)

	rig := &testRig{
		bus:  NewMockI2C(),
		gpio: NewMockGPIODriver(),
		adc:  &MockADCDriver{},
	}
	ctrl, err := NewController(config.DefaultFirmwareConfig(), Peripherals{
		Bus:  rig.bus,
		GPIO: rig.gpio,
		ADC:  rig.adc,
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	rig.ctrl = ctrl
	return rig
}

func (r *testRig) send(s string) {
	for i := 0; i < len(s); i++ {
		r.ctrl.HandleByte(s[i])
	}
}

func (r *testRig) drain() string {
	var sb strings.Builder
	buf := make([]byte, 64)
	for {
		n := r.ctrl.Output(buf)
		if n == 0 {
			return sb.String()
		}
		sb.Write(buf[:n])
	}
}

func TestControllerMatrixRoundTrip(t *testing.T) {
	rig := newTestRig(t)

	rig.send("<1,0;0,1>")
	if out := rig.drain(); out != "" {
		t.Errorf("nothing should be sent before the main loop runs, got %q", out)
	}

	rig.ctrl.Task()
	out := rig.drain()
	want := "\n1 0\n0 1\n\nACK\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
	if got, _ := rig.bus.lastByte(0x20); got != 0x01 {
		t.Errorf("expander 0 = 0x%02x, want 0x01", got)
	}
	if got, _ := rig.bus.lastByte(0x21); got != 0x02 {
		t.Errorf("expander 1 = 0x%02x, want 0x02", got)
	}

	stats := rig.ctrl.Stats()
	if stats.MatricesApplied != 1 || stats.BytesHandled != 9 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestControllerBoot(t *testing.T) {
	rig := newTestRig(t)
	rig.bus.fail[0x27] = true

	if err := rig.ctrl.Boot(); err == nil {
		t.Fatal("expected boot error for failing expander")
	}
	if len(rig.bus.writes) != 8 {
		t.Errorf("boot should clear all 8 expanders, got %d writes", len(rig.bus.writes))
	}
	if rig.ctrl.Stats().ExpanderFaults != 1 {
		t.Errorf("expected 1 expander fault, got %d", rig.ctrl.Stats().ExpanderFaults)
	}
	if !rig.gpio.pins[GPIOPin(config.DefaultLEDPin)] {
		t.Error("boot fault should toggle the LED")
	}
}

func TestControllerExpanderFaultStillAcks(t *testing.T) {
	rig := newTestRig(t)
	rig.bus.fail[0x20] = true

	rig.send("<1>")
	rig.ctrl.Task()
	if out := rig.drain(); !strings.HasSuffix(out, "ACK\n") {
		t.Errorf("ACK must follow even when an expander fails, got %q", out)
	}
	if rig.ctrl.Stats().ExpanderFaults != 1 {
		t.Errorf("expected 1 expander fault, got %d", rig.ctrl.Stats().ExpanderFaults)
	}
}

func TestControllerFrequencyMode(t *testing.T) {
	rig := newTestRig(t)

	rig.send(string([]byte{CmdStartFrequency}))
	if out := rig.drain(); out != "Starting frequency measurement mode\r\n" {
		t.Fatalf("unexpected START ack %q", out)
	}
	if rig.ctrl.Mode() != ModeFrequency || !rig.ctrl.Sampler().Armed() {
		t.Fatal("START should enter frequency mode and arm the sampler")
	}

	// 80Hz square wave fed straight to the sample handler
	const period = 12500
	for now := uint32(0); now <= 4*period; now += 125 {
		v := ADCValue(300)
		if now%period < period/2 {
			v = 3800
		}
		rig.ctrl.HandleSample(v, now)
	}

	lines := strings.SplitAfter(rig.drain(), "\r\n")
	reports := 0
	for _, line := range lines {
		if line == "" {
			continue
		}
		if line != "#FRQ:80.00$\r\n" {
			t.Errorf("unexpected report %q", line)
		}
		reports++
	}
	// The high sample at mode entry only seeds the latch: 4 edges, 3 periods
	if reports != 3 {
		t.Errorf("expected 3 reports for 4 edges, got %d", reports)
	}
	if rig.ctrl.Stats().Reports != 3 {
		t.Errorf("Reports counter = %d", rig.ctrl.Stats().Reports)
	}

	rig.send(string([]byte{CmdStopFrequency}))
	if out := rig.drain(); out != "Stopping frequency measurement mode\r\n" {
		t.Errorf("unexpected STOP ack %q", out)
	}
	if rig.ctrl.Sampler().Armed() {
		t.Error("STOP should disarm the sampler")
	}

	// Samples arriving after STOP are ignored
	rig.ctrl.HandleSample(3800, 100000)
	rig.ctrl.HandleSample(300, 110000)
	rig.ctrl.HandleSample(3800, 120000)
	if out := rig.drain(); out != "" {
		t.Errorf("no reports expected in matrix mode, got %q", out)
	}
}

func TestControllerMatrixAfterFrequency(t *testing.T) {
	rig := newTestRig(t)

	rig.send(string([]byte{CmdStartFrequency}) + "<1,1;1,1>" + string([]byte{CmdStopFrequency}))
	rig.drain()
	rig.ctrl.Task()
	if out := rig.drain(); out != "" {
		t.Errorf("matrix bytes sent in frequency mode must be discarded, got %q", out)
	}

	rig.send("<0,1;1,0>")
	rig.ctrl.Task()
	if out := rig.drain(); out != "\n0 1\n1 0\n\nACK\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestControllerPendingMatrixWaitsForMatrixMode(t *testing.T) {
	rig := newTestRig(t)

	rig.send("<1>")
	rig.send(string([]byte{CmdStartFrequency}))
	rig.drain()

	rig.ctrl.Task()
	if rig.ctrl.Stats().MatricesApplied != 0 {
		t.Fatal("ready matrix must not be applied in frequency mode")
	}

	rig.send(string([]byte{CmdStopFrequency}))
	rig.drain()
	rig.ctrl.Task()
	if rig.ctrl.Stats().MatricesApplied != 1 {
		t.Error("ready matrix should be applied once back in matrix mode")
	}
}

func TestControllerNewestMatrixWins(t *testing.T) {
	rig := newTestRig(t)

	rig.send("<1,1;1,1><0,1;0,0>")
	rig.ctrl.Task()

	if out := rig.drain(); out != "\n0 1\n0 0\n\nACK\n" {
		t.Errorf("unexpected output %q", out)
	}
	if rig.ctrl.Stats().Dropped != 1 {
		t.Errorf("expected 1 dropped matrix, got %d", rig.ctrl.Stats().Dropped)
	}
}

func TestControllerMalformedCounted(t *testing.T) {
	rig := newTestRig(t)

	rig.send("<0,0,0,0,0,0,0,0,1>")
	rig.ctrl.Task()
	if out := rig.drain(); out != "" {
		t.Errorf("malformed matrix must not be applied, got %q", out)
	}
	if rig.ctrl.Stats().Malformed != 1 {
		t.Errorf("expected 1 malformed stream, got %d", rig.ctrl.Stats().Malformed)
	}

	found := false
	for _, evt := range Events() {
		if evt.Type == EvtMalformed {
			found = true
		}
	}
	if !found {
		t.Error("malformed stream should be recorded in the event ring")
	}
}

func TestControllerSamplerDrivesReports(t *testing.T) {
	rig := newTestRig(t)

	// Square wave at 1kHz sampled every 100us through the scheduler
	for i := 0; i < 40; i++ {
		if i%10 < 5 {
			rig.adc.values = append(rig.adc.values, 3500)
		} else {
			rig.adc.values = append(rig.adc.values, 500)
		}
	}

	rig.send(string([]byte{CmdStartFrequency}))
	rig.drain()
	for now := uint32(100); now <= 4000; now += 100 {
		SetTime(now)
		rig.ctrl.Task()
	}

	out := rig.drain()
	if !strings.Contains(out, "#FRQ:1000.00$\r\n") {
		t.Errorf("expected 1kHz reports, got %q", out)
	}
}

func TestControllerOutputOverflow(t *testing.T) {
	ResetTimers()
	t.Cleanup(ResetTimers)
	cfg := config.DefaultFirmwareConfig()
	cfg.OutputQueueSize = 64
	ctrl, err := NewController(cfg, Peripherals{Bus: NewMockI2C(), GPIO: NewMockGPIODriver(), ADC: &MockADCDriver{}})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	// Each ack is 37 bytes; the second cannot fit
	ctrl.HandleByte(CmdStopFrequency)
	ctrl.HandleByte(CmdStopFrequency)

	if ctrl.Pending() != len(protocol.AckStopFrequency) {
		t.Errorf("only whole frames may be queued, pending=%d", ctrl.Pending())
	}
	if ctrl.Stats().OutputDropped != uint32(len(protocol.AckStopFrequency)) {
		t.Errorf("OutputDropped = %d", ctrl.Stats().OutputDropped)
	}
}

func TestNewControllerRejectsBadConfig(t *testing.T) {
	cfg := config.DefaultFirmwareConfig()
	cfg.HysteresisLowPercent = 70
	if _, err := NewController(cfg, Peripherals{Bus: NewMockI2C(), GPIO: NewMockGPIODriver(), ADC: &MockADCDriver{}}); err == nil {
		t.Error("expected config validation error")
	}
}
