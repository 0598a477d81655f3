package core

// Blink pattern shown after a matrix is applied
const (
	BlinkToggles    = 4
	BlinkIntervalUS = 50000
)

// Indicator drives the status LED. The confirmation blink runs on the timer
// scheduler so the main loop never waits on it.
type Indicator struct {
	gpio GPIOPin
	drv  GPIODriver

	timer     Timer
	remaining uint8
	interval  uint32
	state     bool
	faults    uint32
}

// NewIndicator configures pin as an output and drives it low
func NewIndicator(drv GPIODriver, pin GPIOPin) (*Indicator, error) {
	if err := drv.ConfigureOutput(pin); err != nil {
		return nil, err
	}
	ind := &Indicator{
		gpio:     pin,
		drv:      drv,
		interval: TimerFromUS(BlinkIntervalUS),
	}
	ind.timer.Handler = ind.blinkHandler
	ind.set(false)
	return ind, nil
}

func (ind *Indicator) set(v bool) {
	ind.state = v
	ind.drv.SetPin(ind.gpio, v)
}

// Toggle inverts the LED
func (ind *Indicator) Toggle() {
	ind.set(!ind.state)
}

// Blink starts the confirmation pattern, restarting it if already running
func (ind *Indicator) Blink() {
	CancelTimer(&ind.timer)
	ind.remaining = BlinkToggles
	ind.timer.WakeTime = GetTime()
	ScheduleTimer(&ind.timer)
}

func (ind *Indicator) blinkHandler(t *Timer) uint8 {
	if ind.remaining == 0 {
		ind.set(false)
		return SF_DONE
	}
	ind.Toggle()
	ind.remaining--
	t.WakeTime += ind.interval
	return SF_RESCHEDULE
}

// Fault toggles the LED to flag a failed expander write
func (ind *Indicator) Fault() {
	ind.faults++
	ind.Toggle()
}

// Faults returns how many faults were signalled
func (ind *Indicator) Faults() uint32 {
	return ind.faults
}

// On reports the last driven LED state
func (ind *Indicator) On() bool {
	return ind.state
}
