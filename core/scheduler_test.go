package core

import "testing"

func TestSchedulerOrderAndWrap(t *testing.T) {
	ResetTimers()
	defer ResetTimers()

	var fired []int
	mk := func(id int, wake uint32) *Timer {
		return &Timer{
			WakeTime: wake,
			Handler: func(*Timer) uint8 {
				fired = append(fired, id)
				return SF_DONE
			},
		}
	}

	// Wake times straddle the 32-bit wrap
	SetTime(0xFFFFFF00)
	ScheduleTimer(mk(3, 0x00000010))
	ScheduleTimer(mk(1, 0xFFFFFF10))
	ScheduleTimer(mk(2, 0xFFFFFFF0))

	SetTime(0xFFFFFF20)
	ProcessTimers()
	if len(fired) != 1 || fired[0] != 1 {
		t.Fatalf("expected timer 1 only, got %v", fired)
	}

	SetTime(0x00000020)
	ProcessTimers()
	if len(fired) != 3 || fired[1] != 2 || fired[2] != 3 {
		t.Errorf("expected order [1 2 3], got %v", fired)
	}
}

func TestCancelTimer(t *testing.T) {
	ResetTimers()
	defer ResetTimers()

	called := false
	tm := &Timer{WakeTime: 100, Handler: func(*Timer) uint8 {
		called = true
		return SF_DONE
	}}
	SetTime(0)
	ScheduleTimer(tm)
	CancelTimer(tm)

	SetTime(200)
	ProcessTimers()
	if called {
		t.Error("cancelled timer fired")
	}
}

func TestTimerConversions(t *testing.T) {
	if TimerFromUS(250) != 250 {
		t.Errorf("TimerFromUS(250) = %d", TimerFromUS(250))
	}
	if TimerFromMS(5) != 5000 {
		t.Errorf("TimerFromMS(5) = %d", TimerFromMS(5))
	}
	if TimerToUS(1234) != 1234 {
		t.Errorf("TimerToUS(1234) = %d", TimerToUS(1234))
	}
}
