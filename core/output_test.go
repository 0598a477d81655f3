package core

import (
	"errors"
	"testing"
)

func TestExpanderBankApply(t *testing.T) {
	bus := NewMockI2C()
	bank := NewExpanderBank(bus, 0x20, 8)

	if err := bank.Apply(matrixOf(t, "<1,0;0,1>")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bus.writes) != 8 {
		t.Fatalf("expected 8 writes, got %d", len(bus.writes))
	}

	want := map[uint16]byte{0x20: 0x01, 0x21: 0x02}
	for i := 0; i < 8; i++ {
		addr := uint16(0x20 + i)
		got, ok := bus.lastByte(addr)
		if !ok {
			t.Errorf("no write to 0x%02x", addr)
			continue
		}
		if got != want[addr] {
			t.Errorf("device 0x%02x got 0x%02x, want 0x%02x", addr, got, want[addr])
		}
	}
}

func TestExpanderBankClearsStaleRows(t *testing.T) {
	bus := NewMockI2C()
	bank := NewExpanderBank(bus, 0x20, 4)

	bank.Apply(matrixOf(t, "<1,1,1;1,1,1;1,1,1>"))
	bank.Apply(matrixOf(t, "<1>"))

	if got, _ := bus.lastByte(0x20); got != 0x01 {
		t.Errorf("row 0 = 0x%02x, want 0x01", got)
	}
	for _, addr := range []uint16{0x21, 0x22, 0x23} {
		if got, _ := bus.lastByte(addr); got != 0 {
			t.Errorf("stale device 0x%02x = 0x%02x, want 0", addr, got)
		}
	}
}

func TestExpanderBankAggregatesErrors(t *testing.T) {
	bus := NewMockI2C()
	bus.fail[0x21] = true
	bus.fail[0x23] = true
	bank := NewExpanderBank(bus, 0x20, 4)

	err := bank.Apply(matrixOf(t, "<1,1;1,1>"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if len(bus.writes) != 4 {
		t.Errorf("every device must be attempted, got %d writes", len(bus.writes))
	}
	if !errors.Is(err, errNack) {
		t.Errorf("error should wrap the bus error: %v", err)
	}

	var we *WriteError
	if !errors.As(err, &we) || we.Device != 1 || we.Address != 0x21 {
		t.Errorf("expected first WriteError for device 1, got %v", err)
	}

	failed := FailedDevices(err)
	if len(failed) != 2 || failed[0] != 1 || failed[1] != 3 {
		t.Errorf("FailedDevices = %v, want [1 3]", failed)
	}
	t.Logf("aggregated error: %v", err)
}

func TestExpanderBankReset(t *testing.T) {
	bus := NewMockI2C()
	bank := NewExpanderBank(bus, 0x38, 8)
	if err := bank.Reset(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 8; i++ {
		addr := uint16(0x38 + i)
		if got, ok := bus.lastByte(addr); !ok || got != 0 {
			t.Errorf("device 0x%02x not cleared", addr)
		}
	}
}

func TestExpanderBankClampsCount(t *testing.T) {
	if n := NewExpanderBank(NewMockI2C(), 0x20, 12).Count(); n != MaxMatrixSize {
		t.Errorf("count clamped to %d, want %d", n, MaxMatrixSize)
	}
	if n := NewExpanderBank(NewMockI2C(), 0x20, 0).Count(); n != 1 {
		t.Errorf("count clamped to %d, want 1", n)
	}
}

func TestWriteErrorMessage(t *testing.T) {
	err := &WriteError{Device: 2, Address: 0x22, Err: errNack}
	if got := err.Error(); got != "expander 2 (0x22): i2c: nack" {
		t.Errorf("got %q", got)
	}
}
