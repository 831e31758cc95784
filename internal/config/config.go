// Package config loads simlink.cfg.json through viper and exposes typed views
// of each section.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "simlink.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. SIMLINK_SERVER_ADDR.
const EnvPrefix = "SIMLINK"

// LogConfig holds logging settings
type LogConfig struct {
	Level          string
	Format         string
	Dir            string
	GraylogEnabled bool
	GraylogAddress string
}

// ServerConfig holds telemetry server settings
type ServerConfig struct {
	Addr               string
	ReadBufferSize     int
	WriteTimeout       time.Duration
	MaxPeers           int
	IncludeOrientation bool
}

// VehicleConfig holds the kinematic constants and the spawn pose
type VehicleConfig struct {
	ControlMode      string
	Acceleration     float64
	StopDeceleration float64
	MaxSpeed         float64
	MaxSteeringAngle float64
	WheelBase        float64
	TrackWidth       float64
	SteeringRate     float64
	StraightEpsilon  float64
	MaxTurningRadius float64

	SpawnX       float64
	SpawnZ       float64
	SpawnHeading float64 // degrees
}

// SimConfig holds tick loop settings
type SimConfig struct {
	TickRate    float64
	Controller  string
	RecordEvery int
	RunName     string
	Tag         string
}

// ArenaConfig holds headless field settings
type ArenaConfig struct {
	Enabled     bool
	OuterSize   float64
	InnerSize   float64
	MaxRange    float64
	FrontOffset float64
	SideOffset  float64
	FillImage   bool
	Color       [3]byte
	Obstacles   []string // JSON polylines, "[[x,z],...]"
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	Path         string
	DumpInterval time.Duration
}

// WebSocketConfig holds WebSocket streaming backend settings
type WebSocketConfig struct {
	URL       string
	AuthToken string
}

// StorageConfig selects and configures the recording backend
type StorageConfig struct {
	Type      string
	Memory    MemoryConfig
	SQLite    SQLiteConfig
	WebSocket WebSocketConfig
}

// DBConfig holds PostgreSQL connection settings
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// InfluxConfig holds InfluxDB settings
type InfluxConfig struct {
	Enabled   bool
	Host      string
	Port      string
	Protocol  string
	Token     string
	Org       string
	Bucket    string
	BackupDir string
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// GeoConfig places the arena origin on the globe
type GeoConfig struct {
	Enabled   bool
	OriginLat float64
	OriginLon float64
}

// APIConfig holds dashboard API settings
type APIConfig struct {
	ServerURL   string
	APIKey      string
	UploadOnEnd bool
}

// MonitorConfig holds status monitor settings
type MonitorConfig struct {
	Interval   time.Duration
	StatusFile string
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// SetDefaults registers every default and the environment overrides. Load
// calls it; callers running without a config file call it directly.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logFormat", "text")
	viper.SetDefault("logsDir", "./simlogs")
	viper.SetDefault("defaultTag", "practice")
	viper.SetDefault("runName", "")

	viper.SetDefault("server.addr", "127.0.0.1:12345")
	viper.SetDefault("server.readBufferSize", 1024)
	viper.SetDefault("server.writeTimeout", "1s")
	viper.SetDefault("server.maxPeers", 0)
	viper.SetDefault("server.includeOrientation", true)

	viper.SetDefault("vehicle.controlMode", "speed")
	viper.SetDefault("vehicle.acceleration", 1.0)
	viper.SetDefault("vehicle.stopDeceleration", 20.0)
	viper.SetDefault("vehicle.maxSpeed", 0.333)
	viper.SetDefault("vehicle.maxSteeringAngle", 30.0)
	viper.SetDefault("vehicle.wheelBase", 0.122)
	viper.SetDefault("vehicle.trackWidth", 0.094)
	viper.SetDefault("vehicle.steeringRate", 5.0)
	viper.SetDefault("vehicle.straightEpsilon", 0.0001)
	viper.SetDefault("vehicle.maxTurningRadius", 1000.0)
	viper.SetDefault("vehicle.spawn.x", 0.0)
	viper.SetDefault("vehicle.spawn.z", -1.0)
	viper.SetDefault("vehicle.spawn.heading", 90.0)

	viper.SetDefault("sim.tickRate", 60.0)
	viper.SetDefault("sim.controller", "remote")
	viper.SetDefault("sim.recordEvery", 6)

	viper.SetDefault("arena.enabled", true)
	viper.SetDefault("arena.outerSize", 3.0)
	viper.SetDefault("arena.innerSize", 1.0)
	viper.SetDefault("arena.maxRange", 3.0)
	viper.SetDefault("arena.frontOffset", 0.0925)
	viper.SetDefault("arena.sideOffset", 0.06)
	viper.SetDefault("arena.fillImage", false)
	viper.SetDefault("arena.color", []int{0, 0, 0})
	viper.SetDefault("arena.obstacles", []string{})

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/api/v1/stream")
	viper.SetDefault("storage.websocket.authToken", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "simlink")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "simlink")
	viper.SetDefault("influx.bucket", "telemetry")
	viper.SetDefault("influx.backupDir", "./simlogs")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "simlink")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("geo.enabled", false)
	viper.SetDefault("geo.originLat", 0.0)
	viper.SetDefault("geo.originLon", 0.0)

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.uploadOnEnd", false)

	viper.SetDefault("monitor.interval", "1s")
	viper.SetDefault("monitor.statusFile", "")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
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

// GetLogConfig returns logging settings.
func GetLogConfig() LogConfig {
	return LogConfig{
		Level:          viper.GetString("logLevel"),
		Format:         viper.GetString("logFormat"),
		Dir:            viper.GetString("logsDir"),
		GraylogEnabled: viper.GetBool("graylog.enabled"),
		GraylogAddress: viper.GetString("graylog.address"),
	}
}

// GetServerConfig returns telemetry server settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Addr:               viper.GetString("server.addr"),
		ReadBufferSize:     viper.GetInt("server.readBufferSize"),
		WriteTimeout:       viper.GetDuration("server.writeTimeout"),
		MaxPeers:           viper.GetInt("server.maxPeers"),
		IncludeOrientation: viper.GetBool("server.includeOrientation"),
	}
}

// GetVehicleConfig returns the vehicle constants and spawn pose.
func GetVehicleConfig() VehicleConfig {
	return VehicleConfig{
		ControlMode:      viper.GetString("vehicle.controlMode"),
		Acceleration:     viper.GetFloat64("vehicle.acceleration"),
		StopDeceleration: viper.GetFloat64("vehicle.stopDeceleration"),
		MaxSpeed:         viper.GetFloat64("vehicle.maxSpeed"),
		MaxSteeringAngle: viper.GetFloat64("vehicle.maxSteeringAngle"),
		WheelBase:        viper.GetFloat64("vehicle.wheelBase"),
		TrackWidth:       viper.GetFloat64("vehicle.trackWidth"),
		SteeringRate:     viper.GetFloat64("vehicle.steeringRate"),
		StraightEpsilon:  viper.GetFloat64("vehicle.straightEpsilon"),
		MaxTurningRadius: viper.GetFloat64("vehicle.maxTurningRadius"),
		SpawnX:           viper.GetFloat64("vehicle.spawn.x"),
		SpawnZ:           viper.GetFloat64("vehicle.spawn.z"),
		SpawnHeading:     viper.GetFloat64("vehicle.spawn.heading"),
	}
}

// GetSimConfig returns tick loop settings.
func GetSimConfig() SimConfig {
	return SimConfig{
		TickRate:    viper.GetFloat64("sim.tickRate"),
		Controller:  viper.GetString("sim.controller"),
		RecordEvery: viper.GetInt("sim.recordEvery"),
		RunName:     viper.GetString("runName"),
		Tag:         viper.GetString("defaultTag"),
	}
}

// GetArenaConfig returns headless field settings.
func GetArenaConfig() ArenaConfig {
	cfg := ArenaConfig{
		Enabled:     viper.GetBool("arena.enabled"),
		OuterSize:   viper.GetFloat64("arena.outerSize"),
		InnerSize:   viper.GetFloat64("arena.innerSize"),
		MaxRange:    viper.GetFloat64("arena.maxRange"),
		FrontOffset: viper.GetFloat64("arena.frontOffset"),
		SideOffset:  viper.GetFloat64("arena.sideOffset"),
		FillImage:   viper.GetBool("arena.fillImage"),
		Obstacles:   viper.GetStringSlice("arena.obstacles"),
	}
	for i, c := range viper.GetIntSlice("arena.color") {
		if i >= len(cfg.Color) {
			break
		}
		cfg.Color[i] = byte(min(max(c, 0), 255))
	}
	return cfg
}

// GetStorageConfig returns recording backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		WebSocket: WebSocketConfig{
			URL:       viper.GetString("storage.websocket.url"),
			AuthToken: viper.GetString("storage.websocket.authToken"),
		},
	}
}

// GetDBConfig returns PostgreSQL connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetInfluxConfig returns InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:   viper.GetBool("influx.enabled"),
		Host:      viper.GetString("influx.host"),
		Port:      viper.GetString("influx.port"),
		Protocol:  viper.GetString("influx.protocol"),
		Token:     viper.GetString("influx.token"),
		Org:       viper.GetString("influx.org"),
		Bucket:    viper.GetString("influx.bucket"),
		BackupDir: viper.GetString("influx.backupDir"),
	}
}

// GetOTelConfig returns OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetGeoConfig returns geo-referencing settings.
func GetGeoConfig() GeoConfig {
	return GeoConfig{
		Enabled:   viper.GetBool("geo.enabled"),
		OriginLat: viper.GetFloat64("geo.originLat"),
		OriginLon: viper.GetFloat64("geo.originLon"),
	}
}

// GetAPIConfig returns dashboard API settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL:   viper.GetString("api.serverUrl"),
		APIKey:      viper.GetString("api.apiKey"),
		UploadOnEnd: viper.GetBool("api.uploadOnEnd"),
	}
}

// GetMonitorConfig returns status monitor settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}
