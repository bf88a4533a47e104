package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var validFanSpeeds = map[string]bool{"low": true, "mid": true, "high": true, "highest": true}
var validCategories = map[string]bool{"I": true, "II": true, "III": true}

// MQTT holds broker connection settings for the climate bus.
type MQTT struct {
	Broker    string `json:"broker"`
	ClientID  string `json:"client_id"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	BaseTopic string `json:"base_topic"`
}

// Device is the per-device control configuration.
type Device struct {
	ID   string `json:"id"`
	Area string `json:"area"`

	IndoorTempSensor      string `json:"indoor_temp_sensor"`
	OutdoorTempSensor     string `json:"outdoor_temp_sensor"`
	IndoorHumiditySensor  string `json:"indoor_humidity_sensor"`
	OutdoorHumiditySensor string `json:"outdoor_humidity_sensor"`
	OccupancySensor       string `json:"occupancy_sensor"`
	MeanRadiantSensor     string `json:"mean_radiant_sensor"`

	ComfortCategory string   `json:"comfort_category"`
	MinComfortTemp  *float64 `json:"min_comfort_temp"`
	MaxComfortTemp  *float64 `json:"max_comfort_temp"`

	EnergySaveMode       bool `json:"energy_save_mode"`
	ComfortPrecisionMode bool `json:"comfort_precision_mode"`

	AggressiveCoolingThreshold float64 `json:"aggressive_cooling_threshold"`
	AggressiveHeatingThreshold float64 `json:"aggressive_heating_threshold"`
	TemperatureChangeThreshold float64 `json:"temperature_change_threshold"`

	EnableCoolMode *bool `json:"enable_cool_mode"`
	EnableHeatMode *bool `json:"enable_heat_mode"`
	EnableFanMode  *bool `json:"enable_fan_mode"`
	EnableDryMode  *bool `json:"enable_dry_mode"`
	EnableOffMode  *bool `json:"enable_off_mode"`

	MinFanSpeed string `json:"min_fan_speed"`
	MaxFanSpeed string `json:"max_fan_speed"`

	ManualPauseMinutes  int `json:"manual_pause_minutes"`
	AutoShutdownMinutes int `json:"auto_shutdown_minutes"`

	SecondaryFans []string `json:"secondary_fans"`

	NaturalVentilationThreshold float64 `json:"natural_ventilation_threshold"`
	UseOperativeTemperature     bool    `json:"use_operative_temperature"`
	HumidityComfortEnable       bool    `json:"humidity_comfort_enable"`
	OverrideTemperature         float64 `json:"override_temperature"`
}

// ManualPauseDuration returns the configured pause window.
func (d Device) ManualPauseDuration() time.Duration {
	return time.Duration(d.ManualPauseMinutes) * time.Minute
}

// CoolEnabled and friends resolve the tri-state enable flags, defaulting
// to enabled when the config file omits them.
func (d Device) CoolEnabled() bool { return d.EnableCoolMode == nil || *d.EnableCoolMode }
func (d Device) HeatEnabled() bool { return d.EnableHeatMode == nil || *d.EnableHeatMode }
func (d Device) FanEnabled() bool  { return d.EnableFanMode == nil || *d.EnableFanMode }
func (d Device) DryEnabled() bool  { return d.EnableDryMode == nil || *d.EnableDryMode }
func (d Device) OffEnabled() bool  { return d.EnableOffMode == nil || *d.EnableOffMode }

type Config struct {
	ConfigFile string
	LogLevel   zerolog.Level
	LogFile    string

	Latitude float64 `json:"latitude"`

	MQTT    MQTT     `json:"mqtt"`
	Devices []Device `json:"devices"`

	DBPath   string `json:"db_path"`
	HTTPAddr string `json:"http_addr"`

	StartupIntervalSeconds int `json:"startup_interval_seconds"`
	UpdateIntervalSeconds  int `json:"update_interval_seconds"`

	EnableDatadog bool     `json:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`

	NtfyTopic string `json:"ntfy_topic"`
}

func (cfg Config) StartupInterval() time.Duration {
	return time.Duration(cfg.StartupIntervalSeconds) * time.Second
}

func (cfg Config) UpdateInterval() time.Duration {
	return time.Duration(cfg.UpdateIntervalSeconds) * time.Second
}

func Load() Config {
	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.ConfigFile, "config-file", "config.json", "Path to controller config file")
	flag.StringVar(&cfg.LogFile, "log-file", "/var/log/adaptive-climate.log", "Path to log file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	file, err := os.Open(cfg.ConfigFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	cfg.applyDefaults()
	cfg.validate()
	return cfg
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.DBPath == "" {
		cfg.DBPath = "data/adaptive-climate.db"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.StartupIntervalSeconds == 0 {
		cfg.StartupIntervalSeconds = 30
	}
	if cfg.UpdateIntervalSeconds == 0 {
		cfg.UpdateIntervalSeconds = 180
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "adaptive-climate"
	}
	if cfg.MQTT.BaseTopic == "" {
		cfg.MQTT.BaseTopic = "climate"
	}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.ComfortCategory == "" {
			d.ComfortCategory = "I"
		}
		if d.MinFanSpeed == "" {
			d.MinFanSpeed = "low"
		}
		if d.MaxFanSpeed == "" {
			d.MaxFanSpeed = "high"
		}
		if d.ManualPauseMinutes == 0 {
			d.ManualPauseMinutes = 30
		}
		if d.AggressiveCoolingThreshold == 0 {
			d.AggressiveCoolingThreshold = 2.0
		}
		if d.AggressiveHeatingThreshold == 0 {
			d.AggressiveHeatingThreshold = 2.0
		}
		if d.TemperatureChangeThreshold == 0 {
			d.TemperatureChangeThreshold = 0.5
		}
		if d.NaturalVentilationThreshold == 0 {
			d.NaturalVentilationThreshold = 1.0
		}
	}
}

func (cfg *Config) validate() {
	var problems []string

	if cfg.Latitude < -90 || cfg.Latitude > 90 {
		problems = append(problems, fmt.Sprintf("latitude %.2f outside [-90, 90]", cfg.Latitude))
	}
	if cfg.MQTT.Broker == "" {
		problems = append(problems, "mqtt.broker is required")
	}
	if len(cfg.Devices) == 0 {
		problems = append(problems, "at least one device is required")
	}

	seen := map[string]bool{}
	for _, d := range cfg.Devices {
		if d.ID == "" {
			problems = append(problems, "device with empty id")
			continue
		}
		if seen[d.ID] {
			problems = append(problems, "duplicate device id "+d.ID)
		}
		seen[d.ID] = true

		if d.IndoorTempSensor == "" {
			problems = append(problems, d.ID+": indoor_temp_sensor is required")
		}
		if d.OutdoorTempSensor == "" {
			problems = append(problems, d.ID+": outdoor_temp_sensor is required")
		}
		if !validCategories[d.ComfortCategory] {
			problems = append(problems, d.ID+": invalid comfort_category "+d.ComfortCategory)
		}
		if !validFanSpeeds[d.MinFanSpeed] {
			problems = append(problems, d.ID+": invalid min_fan_speed "+d.MinFanSpeed)
		}
		if !validFanSpeeds[d.MaxFanSpeed] {
			problems = append(problems, d.ID+": invalid max_fan_speed "+d.MaxFanSpeed)
		}
		if d.MinComfortTemp != nil && d.MaxComfortTemp != nil && *d.MinComfortTemp > *d.MaxComfortTemp {
			problems = append(problems, d.ID+": min_comfort_temp exceeds max_comfort_temp")
		}
		if d.AggressiveCoolingThreshold < 0 || d.AggressiveHeatingThreshold < 0 {
			problems = append(problems, d.ID+": aggressive thresholds must be >= 0")
		}
		if d.AutoShutdownMinutes < 0 {
			problems = append(problems, d.ID+": auto_shutdown_minutes must be >= 0")
		}
	}

	if len(problems) > 0 {
		panic("Invalid configuration: " + strings.Join(problems, "; "))
	}
}
