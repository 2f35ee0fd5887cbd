package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file searched for in the config directories.
const FileName = "flightdeck.config.json"

// EnvPrefix prefixes environment overrides, e.g. FLIGHTDECK_SIM_GRIDSIZE.
const EnvPrefix = "FLIGHTDECK"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir string `json:"outputDir" mapstructure:"outputDir"`
	// Compress is "", "gzip" or "zstd".
	Compress string `json:"compress" mapstructure:"compress"`
}

// SQLiteConfig holds settings for the in-memory sqlite backend.
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// PostgresConfig holds connection settings for the postgres backend.
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	SSLMode  string `json:"sslmode" mapstructure:"sslmode"`
}

// WebSocketConfig holds settings for the streaming backend.
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the run recording backend.
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	Postgres  PostgresConfig  `json:"postgres" mapstructure:"postgres"`
	WebSocket WebSocketConfig `json:"websocket" mapstructure:"websocket"`
}

// OTelConfig configures the OpenTelemetry provider.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// SimConfig configures the kinematic simulator.
type SimConfig struct {
	GridSize  float64
	FrameRate int
	OriginLat float64
	OriginLon float64
}

// CompilerConfig bounds program flattening.
type CompilerConfig struct {
	MaxLoopDepth    int
	MaxInstructions int
}

// InfluxConfig configures the metrics writer.
type InfluxConfig struct {
	Enabled  bool
	Protocol string
	Host     string
	Port     string
	Token    string
	Org      string
	Bucket   string
}

// GraylogConfig configures the GELF log sink.
type GraylogConfig struct {
	Enabled bool
	Address string
}

// Load reads configuration from JSON file and sets default values.
// configDirs are searched in order. A missing file is reported as an error
// wrapping viper.ConfigFileNotFoundError; the defaults stay in effect.
func Load(configDirs ...string) error {
	SetDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.SetConfigType("json")
	for _, dir := range configDirs {
		viper.AddConfigPath(dir)
	}

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// SetDefaults registers the default for every known key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("connection.uri", "radio://0/80/2M/E7E7E7E7E7")
	viper.SetDefault("codegen.templatePath", "")

	viper.SetDefault("compiler.maxLoopDepth", 8)
	viper.SetDefault("compiler.maxInstructions", 10000)

	viper.SetDefault("sim.gridSize", 10.0)
	viper.SetDefault("sim.frameRate", 60)
	viper.SetDefault("sim.origin.lat", 52.5163)
	viper.SetDefault("sim.origin.lon", 13.3777)

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.timeout", "10s")

	viper.SetDefault("server.listen", "127.0.0.1:8080")
	viper.SetDefault("server.asyncSimulate", false)
	viper.SetDefault("server.simulateQueue", 8)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./runs")
	viper.SetDefault("storage.memory.compress", "gzip")
	viper.SetDefault("storage.sqlite.path", "./runs/flightdeck.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "flightdeck")
	viper.SetDefault("storage.postgres.sslmode", "disable")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/ws/ingest")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "flightdeck")
	viper.SetDefault("influx.bucket", "flight-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "flightdeck")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetStorageConfig returns the storage section.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir: viper.GetString("storage.memory.outputDir"),
			Compress:  viper.GetString("storage.memory.compress"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("storage.postgres.host"),
			Port:     viper.GetString("storage.postgres.port"),
			Username: viper.GetString("storage.postgres.username"),
			Password: viper.GetString("storage.postgres.password"),
			Database: viper.GetString("storage.postgres.database"),
			SSLMode:  viper.GetString("storage.postgres.sslmode"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetOTelConfig returns the otel section.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

func GetSimConfig() SimConfig {
	return SimConfig{
		GridSize:  viper.GetFloat64("sim.gridSize"),
		FrameRate: viper.GetInt("sim.frameRate"),
		OriginLat: viper.GetFloat64("sim.origin.lat"),
		OriginLon: viper.GetFloat64("sim.origin.lon"),
	}
}

func GetCompilerConfig() CompilerConfig {
	return CompilerConfig{
		MaxLoopDepth:    viper.GetInt("compiler.maxLoopDepth"),
		MaxInstructions: viper.GetInt("compiler.maxInstructions"),
	}
}

func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Protocol: viper.GetString("influx.protocol"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}
