// Package config holds the JSON configuration for the coupler firmware and
// its host tooling.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid config")

// FirmwareConfig tunes the firmware core
type FirmwareConfig struct {
	// Hysteresis thresholds as a percentage of ADC full scale
	HysteresisLowPercent  uint8 `json:"hysteresis_low_percent"`
	HysteresisHighPercent uint8 `json:"hysteresis_high_percent"`

	ADCFullScale     uint16 `json:"adc_full_scale"`
	ADCChannel       uint8  `json:"adc_channel"`
	SampleIntervalUS uint32 `json:"sample_interval_us"`

	// Number of periods in the moving average
	MovingAverageSize int `json:"moving_average_size"`

	// 7-bit address of the expander driving row 0
	ExpanderBase  uint8  `json:"expander_base"`
	ExpanderCount int    `json:"expander_count"`
	I2CFrequency  uint32 `json:"i2c_frequency"`

	LEDPin          uint32 `json:"led_pin"`
	OutputQueueSize int    `json:"output_queue_size"`
	Debug           bool   `json:"debug"`
}

// Firmware defaults
const (
	DefaultHysteresisLowPercent  = 45
	DefaultHysteresisHighPercent = 55
	DefaultADCFullScale          = 4095
	DefaultSampleIntervalUS      = 100
	DefaultMovingAverageSize     = 10
	DefaultExpanderBase          = 0x20
	DefaultExpanderCount         = 8
	DefaultI2CFrequency          = 100000
	DefaultLEDPin                = 25
	DefaultOutputQueueSize       = 512
)

// DefaultFirmwareConfig returns the configuration the firmware boots with
func DefaultFirmwareConfig() FirmwareConfig {
	var cfg FirmwareConfig
	applyFirmwareDefaults(&cfg)
	return cfg
}

// LoadFirmwareConfig parses JSON, fills unset fields with defaults and
// validates the result
func LoadFirmwareConfig(jsonData []byte) (*FirmwareConfig, error) {
	var cfg FirmwareConfig
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, err
	}

	applyFirmwareDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyFirmwareDefaults fills in missing values
func applyFirmwareDefaults(cfg *FirmwareConfig) {
	if cfg.HysteresisLowPercent == 0 {
		cfg.HysteresisLowPercent = DefaultHysteresisLowPercent
	}
	if cfg.HysteresisHighPercent == 0 {
		cfg.HysteresisHighPercent = DefaultHysteresisHighPercent
	}
	if cfg.ADCFullScale == 0 {
		cfg.ADCFullScale = DefaultADCFullScale
	}
	if cfg.SampleIntervalUS == 0 {
		cfg.SampleIntervalUS = DefaultSampleIntervalUS
	}
	if cfg.MovingAverageSize == 0 {
		cfg.MovingAverageSize = DefaultMovingAverageSize
	}
	if cfg.ExpanderBase == 0 {
		cfg.ExpanderBase = DefaultExpanderBase
	}
	if cfg.ExpanderCount == 0 {
		cfg.ExpanderCount = DefaultExpanderCount
	}
	if cfg.I2CFrequency == 0 {
		cfg.I2CFrequency = DefaultI2CFrequency
	}
	if cfg.LEDPin == 0 {
		cfg.LEDPin = DefaultLEDPin
	}
	if cfg.OutputQueueSize == 0 {
		cfg.OutputQueueSize = DefaultOutputQueueSize
	}
}

// Validate checks ranges and the threshold ordering
func (c *FirmwareConfig) Validate() error {
	if c.HysteresisHighPercent > 100 {
		return fmt.Errorf("%w: hysteresis_high_percent %d above 100", ErrInvalidConfig, c.HysteresisHighPercent)
	}
	if c.HysteresisLowPercent >= c.HysteresisHighPercent {
		return fmt.Errorf("%w: hysteresis_low_percent %d must be below hysteresis_high_percent %d",
			ErrInvalidConfig, c.HysteresisLowPercent, c.HysteresisHighPercent)
	}
	if c.MovingAverageSize < 1 || c.MovingAverageSize > 256 {
		return fmt.Errorf("%w: moving_average_size %d outside 1..256", ErrInvalidConfig, c.MovingAverageSize)
	}
	if c.ExpanderCount < 1 || c.ExpanderCount > 8 {
		return fmt.Errorf("%w: expander_count %d outside 1..8", ErrInvalidConfig, c.ExpanderCount)
	}
	if int(c.ExpanderBase)+c.ExpanderCount-1 > 0x77 || c.ExpanderBase < 0x08 {
		return fmt.Errorf("%w: expander_base 0x%02x leaves the 7-bit address range", ErrInvalidConfig, c.ExpanderBase)
	}
	if c.OutputQueueSize < 64 {
		return fmt.Errorf("%w: output_queue_size %d below 64", ErrInvalidConfig, c.OutputQueueSize)
	}
	return nil
}

// Duration is a time.Duration that reads and writes as "5s" in JSON
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// HostConfig configures the host tooling
type HostConfig struct {
	Device      string   `json:"device"`
	Baud        int      `json:"baud"`
	ReadTimeout Duration `json:"read_timeout"`
	AckTimeout  Duration `json:"ack_timeout"`

	MQTTBroker   string `json:"mqtt_broker"`
	MQTTClientID string `json:"mqtt_client_id"`
	TopicPrefix  string `json:"topic_prefix"`

	Listen string `json:"listen"`
}

// Host defaults
const (
	DefaultDevice       = "/dev/ttyACM0"
	DefaultBaud         = 115200
	DefaultReadTimeout  = 100 * time.Millisecond
	DefaultAckTimeout   = 5 * time.Second
	DefaultMQTTClientID = "coupler-host"
	DefaultTopicPrefix  = "coupler"
	DefaultListen       = ":8080"
)

// DefaultHostConfig returns the host defaults
func DefaultHostConfig() HostConfig {
	var cfg HostConfig
	applyHostDefaults(&cfg)
	return cfg
}

// LoadHostConfig parses JSON, fills defaults and validates
func LoadHostConfig(jsonData []byte) (*HostConfig, error) {
	var cfg HostConfig
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, err
	}

	applyHostDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyHostDefaults(cfg *HostConfig) {
	if cfg.Device == "" {
		cfg.Device = DefaultDevice
	}
	if cfg.Baud == 0 {
		cfg.Baud = DefaultBaud
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = Duration(DefaultReadTimeout)
	}
	if cfg.AckTimeout == 0 {
		cfg.AckTimeout = Duration(DefaultAckTimeout)
	}
	if cfg.MQTTClientID == "" {
		cfg.MQTTClientID = DefaultMQTTClientID
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
}

// Validate checks the host settings
func (c *HostConfig) Validate() error {
	if c.Baud < 0 {
		return fmt.Errorf("%w: baud %d", ErrInvalidConfig, c.Baud)
	}
	if c.ReadTimeout < 0 || c.AckTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	return nil
}
