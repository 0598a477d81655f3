package core

import "errors"

var errNack = errors.New("i2c: nack")

// MockI2C records every transaction and fails writes to selected addresses
type MockI2C struct {
	writes []i2cWrite
	fail   map[uint16]bool
}

type i2cWrite struct {
	addr uint16
	data []byte
}

func NewMockI2C() *MockI2C {
	return &MockI2C{fail: make(map[uint16]bool)}
}

func (m *MockI2C) Tx(addr uint16, w, r []byte) error {
	m.writes = append(m.writes, i2cWrite{addr: addr, data: append([]byte(nil), w...)})
	if m.fail[addr] {
		return errNack
	}
	return nil
}

// lastByte returns the most recent byte written to addr
func (m *MockI2C) lastByte(addr uint16) (byte, bool) {
	for i := len(m.writes) - 1; i >= 0; i-- {
		if m.writes[i].addr == addr && len(m.writes[i].data) > 0 {
			return m.writes[i].data[0], true
		}
	}
	return 0, false
}

// MockGPIODriver is a test implementation of GPIODriver
type MockGPIODriver struct {
	pins    map[GPIOPin]bool
	toggles int
}

func NewMockGPIODriver() *MockGPIODriver {
	return &MockGPIODriver{pins: make(map[GPIOPin]bool)}
}

func (m *MockGPIODriver) ConfigureOutput(pin GPIOPin) error {
	m.pins[pin] = false
	return nil
}

func (m *MockGPIODriver) SetPin(pin GPIOPin, value bool) error {
	if m.pins[pin] != value {
		m.toggles++
	}
	m.pins[pin] = value
	return nil
}

func (m *MockGPIODriver) GetPin(pin GPIOPin) (bool, error) {
	return m.pins[pin], nil
}

// MockADCDriver returns queued values, then repeats the last one
type MockADCDriver struct {
	values []ADCValue
	last   ADCValue
	err    error
}

func (m *MockADCDriver) ConfigureChannel(ch ADCChannelID) error {
	return nil
}

func (m *MockADCDriver) ReadRaw(ch ADCChannelID) (ADCValue, error) {
	if m.err != nil {
		return 0, m.err
	}
	if len(m.values) > 0 {
		m.last = m.values[0]
		m.values = m.values[1:]
	}
	return m.last, nil
}
