package core

import (
	"sync/atomic"

	"gocoupler/config"
	"gocoupler/protocol"

	"tinygo.org/x/drivers"
)

var (
	ackStartFrame = []byte(protocol.AckStartFrequency)
	ackStopFrame  = []byte(protocol.AckStopFrequency)
	matrixAck     = []byte(protocol.MatrixAck)
)

// Stats are the controller's running counters
type Stats struct {
	BytesHandled    uint32
	MatricesApplied uint32
	Malformed       uint32
	Dropped         uint32
	Reports         uint32
	ExpanderFaults  uint32
	SampleFaults    uint32
	OutputDropped   uint32
}

// Peripherals are the hardware collaborators of a Controller. Nil fields
// fall back to the drivers registered with SetExpanderBus, SetGPIODriver
// and SetADCDriver.
type Peripherals struct {
	Bus  drivers.I2C
	GPIO GPIODriver
	ADC  ADCDriver
}

// Controller is the firmware application context. The byte handler calls
// HandleByte, the sampler calls HandleSample, and the main loop calls Task
// and Output.
type Controller struct {
	cfg config.FirmwareConfig

	parser   *MatrixParser
	mode     *ModeController
	session  *FrequencySession
	handoff  *MatrixHandoff
	bank     *ExpanderBank
	led      *Indicator
	sampler  *ADCSampler
	outQueue *protocol.FifoBuffer

	// Per-context scratch space so no handler allocates
	sampleBuf [protocol.MaxReportLen]byte
	dumpBuf   []byte

	bytesHandled    atomic.Uint32
	matricesApplied atomic.Uint32
	malformed       atomic.Uint32
	reports         atomic.Uint32
	expanderFaults  atomic.Uint32
	outputDropped   atomic.Uint32
}

// NewController wires the firmware core from cfg and the peripherals
func NewController(cfg config.FirmwareConfig, p Peripherals) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if p.Bus == nil {
		p.Bus = MustExpanderBus()
	}
	if p.GPIO == nil {
		p.GPIO = MustGPIO()
	}
	if p.ADC == nil {
		p.ADC = MustADC()
	}

	fullScale := ADCValue(cfg.ADCFullScale)
	detector, err := NewEdgeDetector(
		ThresholdFromPercent(cfg.HysteresisLowPercent, fullScale),
		ThresholdFromPercent(cfg.HysteresisHighPercent, fullScale),
	)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:      cfg,
		parser:   NewMatrixParser(),
		session:  NewFrequencySession(detector, NewMovingAverage(cfg.MovingAverageSize, TimerFreq)),
		handoff:  NewMatrixHandoff(),
		bank:     NewExpanderBank(p.Bus, I2CAddress(cfg.ExpanderBase), cfg.ExpanderCount),
		outQueue: protocol.NewFifoBuffer(cfg.OutputQueueSize),
		dumpBuf:  make([]byte, 0, 2+MaxMatrixSize*2*MaxMatrixSize),
	}

	c.led, err = NewIndicator(p.GPIO, GPIOPin(cfg.LEDPin))
	if err != nil {
		return nil, err
	}
	c.sampler, err = NewADCSampler(p.ADC, ADCChannelID(cfg.ADCChannel), cfg.SampleIntervalUS, c.HandleSample)
	if err != nil {
		return nil, err
	}
	c.mode = NewModeController(c.parser, c.session, c.sampler)
	return c, nil
}

// Boot drives every expander low and announces the firmware
func (c *Controller) Boot() error {
	DebugPrintln("[COUPLER] boot, " + itoa(c.bank.Count()) + " expanders at 0x" + hex2(uint8(c.bank.Address(0))))
	err := c.bank.Reset()
	if err != nil {
		c.expanderFault(err)
	}
	return err
}

// Mode returns the current operating mode
func (c *Controller) Mode() OperatingMode {
	return c.mode.Mode()
}

// HandleByte is the byte-received handler
func (c *Controller) HandleByte(b byte) {
	c.bytesHandled.Add(1)

	switch c.mode.HandleByte(b) {
	case ActionAckStart:
		RecordEvent(EvtModeFrequency, 0, 0)
		c.enqueue(ackStartFrame)
	case ActionAckStop:
		RecordEvent(EvtModeMatrix, 0, 0)
		c.enqueue(ackStopFrame)
	case ActionMatrixReady:
		m := c.parser.Matrix()
		dropped := c.handoff.Dropped()
		c.handoff.Publish(m)
		if c.handoff.Dropped() != dropped {
			RecordEvent(EvtMatrixDropped, c.handoff.Dropped(), 0)
		}
		RecordEvent(EvtMatrixReady, uint32(m.Size()), 0)
	case ActionMalformed:
		c.malformed.Add(1)
		row, col := c.parser.Rejected()
		RecordEvent(EvtMalformed, uint32(row), uint32(col))
	}
}

// HandleSample is the sample-completion handler
func (c *Controller) HandleSample(value ADCValue, now uint32) {
	if c.mode.Mode() != ModeFrequency {
		return
	}
	hz, ok := c.session.OnSample(value, now)
	if !ok {
		return
	}
	RecordEvent(EvtEdge, c.session.LastPeriod(), 0)
	if c.enqueue(protocol.AppendFrequencyReport(c.sampleBuf[:0], float64(hz))) {
		c.reports.Add(1)
	}
}

// Task is one cooperative main-loop step: it runs due timers and, in MATRIX
// mode, applies the newest ready matrix.
func (c *Controller) Task() {
	ProcessTimers()

	if c.mode.Mode() != ModeMatrix {
		return
	}
	m, ok := c.handoff.Take()
	if !ok {
		return
	}
	c.apply(m)
}

func (c *Controller) apply(m *Matrix) {
	c.dumpBuf = m.AppendDump(c.dumpBuf[:0])
	c.enqueue(c.dumpBuf)

	if err := c.bank.Apply(m); err != nil {
		c.expanderFault(err)
	} else {
		c.led.Blink()
	}
	c.matricesApplied.Add(1)
	RecordEvent(EvtMatrixApplied, uint32(m.Size()), 0)

	c.enqueue(matrixAck)
}

func (c *Controller) expanderFault(err error) {
	for _, dev := range FailedDevices(err) {
		c.expanderFaults.Add(1)
		RecordEvent(EvtExpanderFault, uint32(dev), 0)
		c.led.Fault()
	}
	DebugPrintln("[COUPLER] " + err.Error())
}

// enqueue queues one whole frame for the transport writer
func (c *Controller) enqueue(frame []byte) bool {
	state := disableInterrupts()
	ok := c.outQueue.WriteFrame(frame)
	restoreInterrupts(state)

	if !ok {
		c.outputDropped.Add(uint32(len(frame)))
		RecordEvent(EvtOutputOverflow, uint32(len(frame)), 0)
	}
	return ok
}

// Output drains queued bytes into dst and returns the count
func (c *Controller) Output(dst []byte) int {
	state := disableInterrupts()
	n := c.outQueue.Read(dst)
	restoreInterrupts(state)
	return n
}

// Pending returns the number of queued output bytes
func (c *Controller) Pending() int {
	state := disableInterrupts()
	n := c.outQueue.Available()
	restoreInterrupts(state)
	return n
}

// Sampler exposes the ADC sampler
func (c *Controller) Sampler() *ADCSampler {
	return c.sampler
}

// Stats returns a snapshot of the counters
func (c *Controller) Stats() Stats {
	return Stats{
		BytesHandled:    c.bytesHandled.Load(),
		MatricesApplied: c.matricesApplied.Load(),
		Malformed:       c.malformed.Load(),
		Dropped:         c.handoff.Dropped(),
		Reports:         c.reports.Load(),
		ExpanderFaults:  c.expanderFaults.Load(),
		SampleFaults:    c.sampler.Faults(),
		OutputDropped:   c.outputDropped.Load(),
	}
}
