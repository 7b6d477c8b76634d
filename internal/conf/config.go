// Package conf loads and validates the analyzer configuration from a single
// YAML document, with environment overrides handled by viper.
package conf

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

// Settings is the root of the configuration tree.
type Settings struct {
	Main          MainSettings          `yaml:"main" mapstructure:"main"`
	Photoacoustic PhotoacousticSettings `yaml:"photoacoustic" mapstructure:"photoacoustic"`
	Processing    ProcessingSettings    `yaml:"processing" mapstructure:"processing"`
	Modbus        ModbusSettings        `yaml:"modbus" mapstructure:"modbus"`
	API           APISettings           `yaml:"api" mapstructure:"api"`
	Drivers       DriverSettings        `yaml:"drivers" mapstructure:"drivers"`
}

// MainSettings holds daemon-wide options.
type MainSettings struct {
	Name string      `yaml:"name" mapstructure:"name"`
	Log  LogSettings `yaml:"log" mapstructure:"log"`
}

// LogSettings configures the structured log output.
type LogSettings struct {
	Level     string `yaml:"level" mapstructure:"level"`
	Directory string `yaml:"directory" mapstructure:"directory"`
	MaxSizeMB int    `yaml:"maxsizemb" mapstructure:"maxsizemb"`
}

// PhotoacousticSettings controls the measurement front end: where audio comes
// from and the analysis parameters handed to the peak finder.
type PhotoacousticSettings struct {
	// InputDevice selects a capture device. "first" picks the first
	// available device. Mutually exclusive with InputFile.
	InputDevice string `yaml:"input_device" mapstructure:"input_device"`
	// InputFile plays back a stereo WAV file instead of live capture.
	InputFile string `yaml:"input_file" mapstructure:"input_file"`
	// SimulatedSource, when enabled, replaces hardware input entirely.
	SimulatedSource SimulatedSourceSettings `yaml:"simulated_source" mapstructure:"simulated_source"`

	// Frequency is the excitation frequency in Hz.
	Frequency float64 `yaml:"frequency" mapstructure:"frequency"`
	// Bandwidth is the analysis band around Frequency in Hz.
	Bandwidth float64 `yaml:"bandwidth" mapstructure:"bandwidth"`
	// FrameSize is the FFT window size and the per-frame sample count.
	FrameSize int `yaml:"frame_size" mapstructure:"frame_size"`
	// Averages is the number of spectra averaged before peak extraction.
	Averages int `yaml:"averages" mapstructure:"averages"`
	// SampleRate of the input data in Hz.
	SampleRate int `yaml:"sample_rate" mapstructure:"sample_rate"`
	// Precision is the sampling precision in bits.
	Precision int `yaml:"precision" mapstructure:"precision"`

	// RecordConsumer attaches a stream consumer that archives raw frames.
	RecordConsumer bool `yaml:"record_consumer" mapstructure:"record_consumer"`
	// RecordFile is the WAV file written by the record consumer.
	RecordFile string `yaml:"record_file" mapstructure:"record_file"`
}

// SimulatedSourceSettings parameterizes the synthetic stereo generator.
type SimulatedSourceSettings struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Frequency of the generated sinusoid in Hz.
	Frequency float64 `yaml:"frequency" mapstructure:"frequency"`
	// Correlation between channel A and channel B, in [0,1].
	Correlation float64 `yaml:"correlation" mapstructure:"correlation"`
	// NoiseLevel is the white-noise amplitude added to both channels.
	NoiseLevel float64 `yaml:"noise_level" mapstructure:"noise_level"`
}

// ProcessingSettings declares the signal-processing graph.
type ProcessingSettings struct {
	Enabled      bool        `yaml:"enabled" mapstructure:"enabled"`
	DefaultGraph GraphConfig `yaml:"default_graph" mapstructure:"default_graph"`
}

// GraphConfig describes a processing graph: its nodes, the edges between
// them, and the designated output node.
type GraphConfig struct {
	ID          string             `yaml:"id" mapstructure:"id"`
	Nodes       []NodeConfig       `yaml:"nodes" mapstructure:"nodes"`
	Connections []ConnectionConfig `yaml:"connections" mapstructure:"connections"`
	OutputNode  string             `yaml:"output_node" mapstructure:"output_node"`
}

// NodeConfig declares one node instance. Parameters are free-form and
// interpreted by the node constructor for the given type.
type NodeConfig struct {
	ID         string         `yaml:"id" mapstructure:"id"`
	NodeType   string         `yaml:"node_type" mapstructure:"node_type"`
	Parameters map[string]any `yaml:"parameters" mapstructure:"parameters"`
}

// ConnectionConfig is a directed edge between two node ids.
type ConnectionConfig struct {
	From string `yaml:"from" mapstructure:"from"`
	To   string `yaml:"to" mapstructure:"to"`
}

// ModbusSettings configures the Modbus/TCP register publisher.
type ModbusSettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Address string `yaml:"address" mapstructure:"address"`
	Port    int    `yaml:"port" mapstructure:"port"`
}

// APISettings configures the HTTP/JSON API server.
type APISettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"`
}

// DriverSettings enables action drivers for measurement delivery.
type DriverSettings struct {
	HTTP  HTTPDriverSettings  `yaml:"http" mapstructure:"http"`
	Redis RedisDriverSettings `yaml:"redis" mapstructure:"redis"`
	Kafka KafkaDriverSettings `yaml:"kafka" mapstructure:"kafka"`
	MQTT  MQTTDriverSettings  `yaml:"mqtt" mapstructure:"mqtt"`
}

// HTTPDriverSettings configures the HTTP callback driver.
type HTTPDriverSettings struct {
	Enabled     bool              `yaml:"enabled" mapstructure:"enabled"`
	CallbackURL string            `yaml:"callback_url" mapstructure:"callback_url"`
	AuthHeader  string            `yaml:"auth_header" mapstructure:"auth_header"`
	Headers     map[string]string `yaml:"headers" mapstructure:"headers"`
	TimeoutMS   int               `yaml:"timeout_ms" mapstructure:"timeout_ms"`
}

// RedisDriverSettings configures the Redis publish driver.
type RedisDriverSettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Address string `yaml:"address" mapstructure:"address"`
	Channel string `yaml:"channel" mapstructure:"channel"`
	// Mode selects between pub/sub ("publish") and keyed writes ("set").
	Mode         string `yaml:"mode" mapstructure:"mode"`
	ExpirySecond int    `yaml:"expiry_seconds" mapstructure:"expiry_seconds"`
}

// KafkaDriverSettings configures the Kafka producer driver.
type KafkaDriverSettings struct {
	Enabled bool     `yaml:"enabled" mapstructure:"enabled"`
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`
}

// MQTTDriverSettings configures the MQTT publish driver.
type MQTTDriverSettings struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Broker   string `yaml:"broker" mapstructure:"broker"`
	Topic    string `yaml:"topic" mapstructure:"topic"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file at path, applies defaults and env
// overrides, and validates the result. An empty path searches the standard
// locations (working directory, then $HOME/.config/photoacoustic).
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/photoacoustic")
	}
	v.SetEnvPrefix("PHOTOACOUSTIC")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			// No config file is acceptable; defaults apply.
		} else {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	// An input_file without an explicit input_device replaces the default
	// capture device instead of conflicting with it.
	if settings.Photoacoustic.InputFile != "" && !v.InConfig("photoacoustic.input_device") {
		settings.Photoacoustic.InputDevice = ""
	}

	if err := Validate(settings); err != nil {
		return nil, err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()
	return settings, nil
}

// Setting returns the last loaded settings, or nil before Load succeeds.
func Setting() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
