package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/itohio/gole24/pkg/e24"
)

// Config represents the application configuration.
type Config struct {
	Serial         SerialConfig  `yaml:"serial"`
	Device         DeviceConfig  `yaml:"device"`
	AverageSamples int           `yaml:"average_samples"` // Samples per channel to average (0 or 1 = disabled)
	Outputs        OutputsConfig `yaml:"outputs"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string        `yaml:"port"`
	BaudRate int           `yaml:"baud_rate"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DeviceConfig contains the ADC setup applied on start.
type DeviceConfig struct {
	OutputInMV   bool            `yaml:"output_in_mv"`   // Scale values to mV instead of raw counts
	FiveByteMode bool            `yaml:"five_byte_mode"` // Append the hardware timer to every sample
	SelfTest     bool            `yaml:"self_test"`      // Read back and verify parameters after setup
	Channels     []ChannelConfig `yaml:"channels"`
}

// ChannelConfig contains the parameters of one ADC channel.
type ChannelConfig struct {
	Channel     int    `yaml:"channel"`     // 1..4
	Frequency   int    `yaml:"frequency"`   // Hz, 5..1000
	Gain        int    `yaml:"gain"`        // 1, 2, 4, ... 128
	Calibration int    `yaml:"calibration"` // 0..7
	InputType   string `yaml:"input_type"`  // line_a, line_b, self_voltage, test_mode or 0..3
}

// OutputsConfig selects where samples go.
type OutputsConfig struct {
	Console bool         `yaml:"console"`
	Rotate  RotateConfig `yaml:"rotate"`
	MQTT    MQTTConfig   `yaml:"mqtt"`
}

// RotateConfig contains the daily directory / hourly file output configuration.
type RotateConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// MQTTConfig contains MQTT publisher configuration.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Server   string `yaml:"server"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"` // Derived from the machine id when empty
	Topic    string `yaml:"topic"`     // %d is replaced by the channel
	QoS      byte   `yaml:"qos"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyUSB0",
			BaudRate: e24.DefaultBaudRate,
			Timeout:  e24.DefaultTimeout,
		},
		Device: DeviceConfig{
			FiveByteMode: true,
			Channels: []ChannelConfig{
				{Channel: 3, Frequency: 50, Gain: 1, Calibration: 6, InputType: "line_a"},
			},
		},
		Outputs: OutputsConfig{
			Console: true,
			Rotate: RotateConfig{
				Dir: "data",
			},
			MQTT: MQTTConfig{
				Server: "tcp://localhost:1883",
				Topic:  "e24/channel/%d",
			},
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.Timeout == 0 {
		c.Serial.Timeout = def.Serial.Timeout
	}

	if len(c.Device.Channels) == 0 {
		c.Device.Channels = def.Device.Channels
	}

	if c.Outputs.Rotate.Dir == "" {
		c.Outputs.Rotate.Dir = def.Outputs.Rotate.Dir
	}
	if c.Outputs.MQTT.Server == "" {
		c.Outputs.MQTT.Server = def.Outputs.MQTT.Server
	}
	if c.Outputs.MQTT.Topic == "" {
		c.Outputs.MQTT.Topic = def.Outputs.MQTT.Topic
	}
}

// DriverOptions returns the options to open the device with.
func (c *Config) DriverOptions() e24.Options {
	return e24.Options{
		Port:       c.Serial.Port,
		BaudRate:   c.Serial.BaudRate,
		Timeout:    c.Serial.Timeout,
		Millivolts: c.Device.OutputInMV,
	}
}

// DeviceSetup converts the channel list into the driver's setup and
// validates it.
func (c *Config) DeviceSetup() (e24.DeviceConfig, error) {
	setup := e24.DeviceConfig{TimerMode: c.Device.FiveByteMode}
	for i, ch := range c.Device.Channels {
		cc, err := ch.driverConfig()
		if err != nil {
			return e24.DeviceConfig{}, fmt.Errorf("channels[%d]: %w", i, err)
		}
		setup.Channels = append(setup.Channels, cc)
	}
	if err := setup.Validate(); err != nil {
		return e24.DeviceConfig{}, err
	}
	return setup, nil
}

func (c ChannelConfig) driverConfig() (e24.ChannelConfig, error) {
	input := e24.LineA
	if c.InputType != "" {
		var err error
		if input, err = e24.ParseInputType(c.InputType); err != nil {
			return e24.ChannelConfig{}, err
		}
	}
	if c.Calibration < 0 || c.Calibration > 7 {
		return e24.ChannelConfig{}, fmt.Errorf("%w: calibration %d", e24.ErrInvalidParameter, c.Calibration)
	}
	cc := e24.ChannelConfig{
		Channel:     e24.Channel(c.Channel),
		Frequency:   c.Frequency,
		Gain:        e24.Gain(c.Gain),
		Calibration: uint8(c.Calibration),
		Input:       input,
	}
	return cc, cc.Validate()
}
