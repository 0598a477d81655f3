package serial

import (
	"io"
	"time"

	"gocoupler/config"
)

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (using github.com/tarm/serial)
// - In-memory pipes (for testing)
type Port interface {
	io.ReadWriteCloser

	// Flush discards any unread input
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate (USB CDC ignores this, the UART build uses it)
	Baud int

	// Read timeout (0 = blocking)
	ReadTimeout time.Duration
}

// DefaultConfig returns a default configuration for device
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        config.DefaultBaud,
		ReadTimeout: config.DefaultReadTimeout,
	}
}

// ConfigFromHost builds a port configuration from the host settings
func ConfigFromHost(cfg *config.HostConfig) *Config {
	return &Config{
		Device:      cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout),
	}
}
