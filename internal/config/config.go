package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the prefix for environment overrides, e.g.
// DELIVERYMAP_SERVER_ADDR overrides server.addr.
const envPrefix = "DELIVERYMAP_"

// Config represents the complete server configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Directions DirectionsConfig `koanf:"directions"`
	Navigation NavigationConfig `koanf:"navigation"`
	Dwell      DwellConfig      `koanf:"dwell"`
	Voice      VoiceConfig      `koanf:"voice"`
	Storage    StorageConfig    `koanf:"storage"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr        string   `koanf:"addr"`
	CorsOrigins []string `koanf:"cors_origins"`
}

// DirectionsConfig holds directions-provider settings
type DirectionsConfig struct {
	BaseURL     string `koanf:"base_url"`
	AccessToken string `koanf:"access_token"`
	Language    string `koanf:"language"`
}

// NavigationConfig holds the navigation session tuning
type NavigationConfig struct {
	ArrivalRadiusMeters  float64       `koanf:"arrival_radius_meters"`
	AdvanceRadiusMeters  float64       `koanf:"advance_radius_meters"`
	ApproachRadiusMeters float64       `koanf:"approach_radius_meters"`
	LowSpeedMetersPerSec float64       `koanf:"low_speed_mps"`
	FollowZoom           float64       `koanf:"follow_zoom"`
	FollowPitch          float64       `koanf:"follow_pitch"`
	ArrivalZoom          float64       `koanf:"arrival_zoom"`
	ArrivalSettleDelay   time.Duration `koanf:"arrival_settle_delay"`
}

// DwellConfig holds the stop-detection thresholds
type DwellConfig struct {
	MovementThresholdMeters float64       `koanf:"movement_threshold_meters"`
	DwellThreshold          time.Duration `koanf:"dwell_threshold"`
}

// VoiceConfig holds voice-output settings
type VoiceConfig struct {
	Volume float64 `koanf:"volume"`
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	Path              string        `koanf:"path"`
	FlushInterval     time.Duration `koanf:"flush_interval"`
	RouteHistoryLimit int           `koanf:"route_history_limit"`
}

// defaults are the built-in values; file and environment override them.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.addr":                      ":8080",
		"server.cors_origins":              []string{"*"},
		"directions.base_url":              "https://api.mapbox.com",
		"directions.access_token":          "",
		"directions.language":              "ja",
		"navigation.arrival_radius_meters": 15.0,
		"navigation.advance_radius_meters": 30.0,
		"navigation.approach_radius_meters": 100.0,
		"navigation.low_speed_mps":          3.0,
		"navigation.follow_zoom":            17.0,
		"navigation.follow_pitch":           60.0,
		"navigation.arrival_zoom":           15.0,
		"navigation.arrival_settle_delay":   3 * time.Second,
		"dwell.movement_threshold_meters":   5.0,
		"dwell.dwell_threshold":             180 * time.Second,
		"voice.volume":                      1.0,
		"storage.path":                      "deliverymap.json",
		"storage.flush_interval":            time.Minute,
		"storage.route_history_limit":       20,
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// DELIVERYMAP_* environment variables, in that order of precedence.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
