package core

import "sync/atomic"

// DefaultSampleIntervalUS is the ADC conversion period (10 kHz)
const DefaultSampleIntervalUS = 100

// SampleHandler receives each completed conversion
type SampleHandler func(value ADCValue, now uint32)

// ADCSampler periodically reads one ADC channel from the timer scheduler and
// hands each conversion to the sample-completion handler.
type ADCSampler struct {
	drv      ADCDriver
	channel  ADCChannelID
	interval uint32
	handler  SampleHandler

	timer  Timer
	armed  atomic.Bool
	queued bool // timer is on the schedule; guarded by interrupt masking

	samples atomic.Uint32
	faults  atomic.Uint32
}

// NewADCSampler configures the channel and returns a disarmed sampler
func NewADCSampler(drv ADCDriver, channel ADCChannelID, intervalUS uint32, handler SampleHandler) (*ADCSampler, error) {
	if err := drv.ConfigureChannel(channel); err != nil {
		return nil, err
	}
	if intervalUS == 0 {
		intervalUS = DefaultSampleIntervalUS
	}
	s := &ADCSampler{
		drv:      drv,
		channel:  channel,
		interval: TimerFromUS(intervalUS),
		handler:  handler,
	}
	s.timer.Handler = s.timerHandler
	return s, nil
}

// SetHandler replaces the sample-completion handler
func (s *ADCSampler) SetHandler(h SampleHandler) {
	s.handler = h
}

// Arm starts periodic sampling
func (s *ADCSampler) Arm() {
	s.armed.Store(true)

	state := disableInterrupts()
	defer restoreInterrupts(state)
	if s.queued {
		return
	}
	s.queued = true
	s.timer.Next = nil
	s.timer.WakeTime = GetTime() + s.interval
	insertTimer(&s.timer)
}

// Disarm stops sampling; the pending timer firing retires itself
func (s *ADCSampler) Disarm() {
	s.armed.Store(false)
}

// Armed reports whether sampling is active
func (s *ADCSampler) Armed() bool {
	return s.armed.Load()
}

func (s *ADCSampler) timerHandler(t *Timer) uint8 {
	if !s.armed.Load() {
		s.queued = false
		return SF_DONE
	}

	value, err := s.drv.ReadRaw(s.channel)
	now := GetTime()
	t.WakeTime += s.interval
	if !timerBefore(now, t.WakeTime) {
		// Fell behind; skip the missed conversions instead of bursting
		t.WakeTime = now + s.interval
	}
	if err != nil {
		s.faults.Add(1)
		RecordEvent(EvtSampleFault, s.faults.Load(), 0)
		return SF_RESCHEDULE
	}
	s.samples.Add(1)
	if s.handler != nil {
		s.handler(value, now)
	}
	return SF_RESCHEDULE
}

// Samples returns the number of delivered conversions
func (s *ADCSampler) Samples() uint32 {
	return s.samples.Load()
}

// Faults returns the number of failed conversions
func (s *ADCSampler) Faults() uint32 {
	return s.faults.Load()
}
