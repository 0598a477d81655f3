package core

import (
	"errors"

	"tinygo.org/x/drivers"
)

// Expander bank defaults. The bank is a row of PCF8574-style 8-bit
// quasi-bidirectional port expanders at consecutive addresses.
const (
	DefaultExpanderBase  I2CAddress = 0x20
	DefaultExpanderCount            = MaxMatrixSize
)

// WriteError reports a failed write to one expander
type WriteError struct {
	Device  int
	Address I2CAddress
	Err     error
}

func (e *WriteError) Error() string {
	return "expander " + itoa(e.Device) + " (0x" + hex2(uint8(e.Address)) + "): " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// ExpanderBank drives one expander per matrix row
type ExpanderBank struct {
	bus   drivers.I2C
	base  I2CAddress
	count int
	buf   [1]byte
}

// NewExpanderBank creates a bank of count devices starting at base.
// count is clamped to 1..MaxMatrixSize.
func NewExpanderBank(bus drivers.I2C, base I2CAddress, count int) *ExpanderBank {
	if count < 1 {
		count = 1
	}
	if count > MaxMatrixSize {
		count = MaxMatrixSize
	}
	return &ExpanderBank{bus: bus, base: base, count: count}
}

// Count returns the number of expanders
func (b *ExpanderBank) Count() int {
	return b.count
}

// Address returns the 7-bit address of device i
func (b *ExpanderBank) Address(i int) I2CAddress {
	return b.base + I2CAddress(i)
}

// Apply writes row i of m to device i. Devices past the live size are
// cleared. Every device is written even if an earlier one fails; the
// returned error joins one *WriteError per failed device.
func (b *ExpanderBank) Apply(m *Matrix) error {
	var errs []error
	for i := 0; i < b.count; i++ {
		if err := b.write(i, m.PackRow(i)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reset drives every output low
func (b *ExpanderBank) Reset() error {
	var errs []error
	for i := 0; i < b.count; i++ {
		if err := b.write(i, 0); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *ExpanderBank) write(i int, v uint8) error {
	b.buf[0] = v
	addr := b.Address(i)
	if err := b.bus.Tx(uint16(addr), b.buf[:], nil); err != nil {
		return &WriteError{Device: i, Address: addr, Err: err}
	}
	return nil
}

// FailedDevices lists the device indexes named in an Apply or Reset error
func FailedDevices(err error) []int {
	if err == nil {
		return nil
	}
	var out []int
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, FailedDevices(e)...)
		}
		return out
	}
	var we *WriteError
	if errors.As(err, &we) {
		out = append(out, we.Device)
	}
	return out
}
