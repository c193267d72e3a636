package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileName is the name of the JSON config file looked up in the config dir.
const FileName = "skirmish.cfg.json"

// EnvPrefix prefixes every environment override, e.g. SKIRMISH_SERVER_ADDR.
const EnvPrefix = "SKIRMISH"

// ServerConfig holds the network and round flow settings.
type ServerConfig struct {
	Name             string
	Addr             string
	UDPAddr          string
	Path             string
	MaxPlayers       int
	TickRate         int
	BroadcastEvery   int
	SendBuffer       int
	MinPlayers       int
	CountdownSeconds int
	RestartDelay     time.Duration
	MapPath          string
	FriendlyFire     bool
	// Tag is stored with every recorded round, e.g. "scrim" or "public".
	Tag string
}

// PhysicsConfig holds the world tuning.
type PhysicsConfig struct {
	WalkSpeed           float32
	JumpPower           float32
	ProjectileSpeed     float32
	ProjectileCap       int
	MaxLifetime         int
	ProjectileDamage    int
	ResetCollisionFlags bool
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds the sqlite backend settings.
type SQLiteConfig struct {
	DumpInterval time.Duration
	// DumpPath is where the in-memory database is vacuumed to. Empty means
	// a timestamped file in the recordings dir.
	DumpPath string
}

// WebSocketConfig holds the streaming backend settings. An empty URL is
// derived from api.serverUrl.
type WebSocketConfig struct {
	URL    string
	Secret string
}

// StorageConfig selects and configures the recording backend.
type StorageConfig struct {
	Type      string
	Memory    MemoryConfig
	SQLite    SQLiteConfig
	WebSocket WebSocketConfig
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// InfluxConfig holds the InfluxDB metrics settings.
type InfluxConfig struct {
	Enabled  bool
	Protocol string
	Host     string
	Port     string
	Token    string
	Org      string
}

// SentryConfig holds crash reporting settings. An empty DSN disables it.
type SentryConfig struct {
	DSN         string
	Environment string
	SampleRate  float64
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. A .env file in
// configDir is loaded into the environment first when present.
func Load(configDir string) error {
	setDefaults()

	envFile := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error loading env file: %w", err)
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("server.name", "skirmish")
	viper.SetDefault("server.addr", ":19816")
	viper.SetDefault("server.udpAddr", ":19815")
	viper.SetDefault("server.path", "/play")
	viper.SetDefault("server.maxPlayers", 10)
	viper.SetDefault("server.tickRate", 60)
	viper.SetDefault("server.broadcastEvery", 3)
	viper.SetDefault("server.sendBuffer", 256)
	viper.SetDefault("server.minPlayers", 2)
	viper.SetDefault("server.countdownSeconds", 5)
	viper.SetDefault("server.restartDelay", "10s")
	viper.SetDefault("server.mapPath", "./maps/level.png")
	viper.SetDefault("server.friendlyFire", false)
	viper.SetDefault("server.tag", "")

	viper.SetDefault("physics.walkSpeed", 2)
	viper.SetDefault("physics.jumpPower", 1)
	viper.SetDefault("physics.projectileSpeed", 2)
	viper.SetDefault("physics.projectileCap", 20)
	viper.SetDefault("physics.maxLifetime", 60)
	viper.SetDefault("physics.projectileDamage", 25)
	viper.SetDefault("physics.resetCollisionFlags", false)

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "skirmish")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "")
	viper.SetDefault("storage.websocket.url", "")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "skirmish-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "skirmish-server")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")
	viper.SetDefault("sentry.sampleRate", 1.0)
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

// GetServerConfig returns the server section.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Name:             viper.GetString("server.name"),
		Addr:             viper.GetString("server.addr"),
		UDPAddr:          viper.GetString("server.udpAddr"),
		Path:             viper.GetString("server.path"),
		MaxPlayers:       viper.GetInt("server.maxPlayers"),
		TickRate:         viper.GetInt("server.tickRate"),
		BroadcastEvery:   viper.GetInt("server.broadcastEvery"),
		SendBuffer:       viper.GetInt("server.sendBuffer"),
		MinPlayers:       viper.GetInt("server.minPlayers"),
		CountdownSeconds: viper.GetInt("server.countdownSeconds"),
		RestartDelay:     viper.GetDuration("server.restartDelay"),
		MapPath:          viper.GetString("server.mapPath"),
		FriendlyFire:     viper.GetBool("server.friendlyFire"),
		Tag:              viper.GetString("server.tag"),
	}
}

// GetPhysicsConfig returns the physics section.
func GetPhysicsConfig() PhysicsConfig {
	return PhysicsConfig{
		WalkSpeed:           float32(viper.GetFloat64("physics.walkSpeed")),
		JumpPower:           float32(viper.GetFloat64("physics.jumpPower")),
		ProjectileSpeed:     float32(viper.GetFloat64("physics.projectileSpeed")),
		ProjectileCap:       viper.GetInt("physics.projectileCap"),
		MaxLifetime:         viper.GetInt("physics.maxLifetime"),
		ProjectileDamage:    viper.GetInt("physics.projectileDamage"),
		ResetCollisionFlags: viper.GetBool("physics.resetCollisionFlags"),
	}
}

// GetStorageConfig returns the storage section.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
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

// GetInfluxConfig returns the influx section.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Protocol: viper.GetString("influx.protocol"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
	}
}

// GetSentryConfig returns the sentry section.
func GetSentryConfig() SentryConfig {
	return SentryConfig{
		DSN:         viper.GetString("sentry.dsn"),
		Environment: viper.GetString("sentry.environment"),
		SampleRate:  viper.GetFloat64("sentry.sampleRate"),
	}
}
