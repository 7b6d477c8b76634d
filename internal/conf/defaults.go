package conf

import "github.com/spf13/viper"

// setDefaults installs the default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("main.name", "photoacoustic-analyzer")
	v.SetDefault("main.log.level", "info")
	v.SetDefault("main.log.directory", "logs")
	v.SetDefault("main.log.maxsizemb", 100)

	v.SetDefault("photoacoustic.input_device", "first")
	v.SetDefault("photoacoustic.frequency", 1000.0)
	v.SetDefault("photoacoustic.bandwidth", 50.0)
	v.SetDefault("photoacoustic.frame_size", 4096)
	v.SetDefault("photoacoustic.averages", 10)
	v.SetDefault("photoacoustic.sample_rate", 48000)
	v.SetDefault("photoacoustic.precision", 16)
	v.SetDefault("photoacoustic.record_consumer", false)
	v.SetDefault("photoacoustic.record_file", "recorded_audio.wav")
	v.SetDefault("photoacoustic.simulated_source.enabled", false)
	v.SetDefault("photoacoustic.simulated_source.frequency", 2000.0)
	v.SetDefault("photoacoustic.simulated_source.correlation", 0.9)
	v.SetDefault("photoacoustic.simulated_source.noise_level", 0.01)

	v.SetDefault("processing.enabled", true)
	v.SetDefault("processing.default_graph.id", "default")

	v.SetDefault("modbus.enabled", false)
	v.SetDefault("modbus.address", "0.0.0.0")
	v.SetDefault("modbus.port", 502)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen", ":8080")

	v.SetDefault("drivers.http.enabled", false)
	v.SetDefault("drivers.http.timeout_ms", 2000)
	v.SetDefault("drivers.redis.enabled", false)
	v.SetDefault("drivers.redis.address", "localhost:6379")
	v.SetDefault("drivers.redis.channel", "photoacoustic:measurement")
	v.SetDefault("drivers.redis.mode", "publish")
	v.SetDefault("drivers.redis.expiry_seconds", 60)
	v.SetDefault("drivers.kafka.enabled", false)
	v.SetDefault("drivers.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("drivers.kafka.topic", "photoacoustic.measurement")
	v.SetDefault("drivers.mqtt.enabled", false)
	v.SetDefault("drivers.mqtt.topic", "photoacoustic/measurement")
}
