package core

import (
	"errors"
	"testing"
)

func TestADCSamplerArmDisarm(t *testing.T) {
	ResetTimers()
	defer ResetTimers()
	SetTime(0)

	adc := &MockADCDriver{values: []ADCValue{100, 200, 300, 400}}
	var got []ADCValue
	var times []uint32
	s, err := NewADCSampler(adc, 0, 100, func(v ADCValue, now uint32) {
		got = append(got, v)
		times = append(times, now)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Nothing happens until armed
	SetTime(1000)
	ProcessTimers()
	if len(got) != 0 {
		t.Fatalf("disarmed sampler delivered %d samples", len(got))
	}

	s.Arm()
	for now := uint32(1100); now <= 1300; now += 100 {
		SetTime(now)
		ProcessTimers()
	}
	if len(got) != 3 || got[0] != 100 || got[2] != 300 {
		t.Fatalf("expected samples [100 200 300], got %v", got)
	}
	if times[0] != 1100 || times[1] != 1200 {
		t.Errorf("unexpected sample times %v", times)
	}

	s.Disarm()
	SetTime(1400)
	ProcessTimers()
	SetTime(1500)
	ProcessTimers()
	if len(got) != 3 {
		t.Errorf("disarmed sampler kept delivering: %v", got)
	}
	if timerList != nil {
		t.Error("sampler timer should retire after Disarm")
	}
	if s.Samples() != 3 {
		t.Errorf("expected 3 samples counted, got %d", s.Samples())
	}
}

func TestADCSamplerRearmDoesNotDuplicate(t *testing.T) {
	ResetTimers()
	defer ResetTimers()
	SetTime(0)

	adc := &MockADCDriver{last: 1}
	calls := 0
	s, _ := NewADCSampler(adc, 0, 100, func(ADCValue, uint32) { calls++ })

	s.Arm()
	s.Disarm()
	s.Arm()

	SetTime(100)
	ProcessTimers()
	if calls != 1 {
		t.Errorf("expected one sample per interval, got %d", calls)
	}
}

func TestADCSamplerSkipsMissedIntervals(t *testing.T) {
	ResetTimers()
	defer ResetTimers()
	SetTime(0)

	calls := 0
	s, _ := NewADCSampler(&MockADCDriver{}, 0, 100, func(ADCValue, uint32) { calls++ })
	s.Arm()

	// Main loop stalls for 50 intervals
	SetTime(5000)
	ProcessTimers()
	if calls != 1 {
		t.Errorf("stalled sampler should take one catch-up sample, got %d", calls)
	}
}

func TestADCSamplerReadFault(t *testing.T) {
	ResetTimers()
	defer ResetTimers()
	ClearEventRing()
	SetTime(0)

	adc := &MockADCDriver{err: errors.New("adc busy")}
	calls := 0
	s, _ := NewADCSampler(adc, 0, 100, func(ADCValue, uint32) { calls++ })
	s.Arm()

	SetTime(100)
	ProcessTimers()
	SetTime(200)
	ProcessTimers()

	if calls != 0 {
		t.Errorf("failed reads must not reach the handler")
	}
	if s.Faults() != 2 {
		t.Errorf("expected 2 faults, got %d", s.Faults())
	}
	if !s.Armed() {
		t.Error("read faults must not disarm the sampler")
	}
	s.Disarm()
}
