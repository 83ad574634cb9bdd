package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	DB       DBConfig       `yaml:"db"`
	Server   ServerConfig   `yaml:"server"`
	Detector DetectorConfig `yaml:"detector"`
	Session  SessionConfig  `yaml:"session"`
	Airspace AirspaceConfig `yaml:"airspace"`
	Sites    SitesConfig    `yaml:"sites"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Sync     SyncConfig     `yaml:"sync"`
	Remote   RemoteConfig   `yaml:"remote"`
	Relay    RelayConfig    `yaml:"relay"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server LogSettings `yaml:"server"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// DetectorConfig holds takeoff/landing detection thresholds.
type DetectorConfig struct {
	TakeoffSpeed       float64  `yaml:"takeoff_speed_ms"`   // horizontal m/s
	LandingSpeed       float64  `yaml:"landing_speed_ms"`   // horizontal m/s
	LandingDescent     float64  `yaml:"landing_descent_ms"` // |vertical| m/s
	LandingConfirm     Duration `yaml:"landing_confirm"`
	WindowSize         int      `yaml:"window_size"`
	SmoothingSize      int      `yaml:"smoothing_size"`
	InertialWindowSize int      `yaml:"inertial_window_size"`
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	InactivityTimeout Duration `yaml:"inactivity_timeout"`
	ReplayInterval    Duration `yaml:"replay_interval"`

	TakeoffSiteRadius  Distance `yaml:"takeoff_site_radius"`
	LandingSiteRadius  Distance `yaml:"landing_site_radius"`
	FallbackSiteRadius Distance `yaml:"fallback_site_radius"`
	FallbackSiteVert   Distance `yaml:"fallback_site_vert"`
}

// AirspaceConfig holds restricted-zone dataset settings.
type AirspaceConfig struct {
	Path           string   `yaml:"path"`            // GeoJSON zone dataset
	CellResolution int      `yaml:"cell_resolution"` // H3 resolution for the zone pre-filter
	NearbyRadius   Distance `yaml:"nearby_radius"`
}

// SitesConfig holds the site directory settings.
type SitesConfig struct {
	Path string `yaml:"path"` // YAML site directory
}

// AlertsConfig holds alert pipeline settings.
type AlertsConfig struct {
	DedupeCooldown Duration `yaml:"dedupe_cooldown"`
	CeilingAlt     Distance `yaml:"ceiling_alt"` // 0 disables the altitude ceiling check
}

// SyncConfig holds pending-operation sync settings.
type SyncConfig struct {
	Interval   Duration `yaml:"interval"`
	MaxRetries int      `yaml:"max_retries"`
}

// RemoteConfig holds the remote document store settings.
type RemoteConfig struct {
	BaseURL       string   `yaml:"base_url"`
	Timeout       Duration `yaml:"timeout"`
	BackoffBase   Duration `yaml:"backoff_base"`
	BackoffMax    Duration `yaml:"backoff_max"`
	ProbeInterval Duration `yaml:"probe_interval"`
}

// RelayConfig holds live-position relay settings.
type RelayConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"` // websocket endpoint
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path: "./data/soartrack.db",
		},
		Server: ServerConfig{
			Address: "localhost:2190",
		},
		Detector: DetectorConfig{
			TakeoffSpeed:       2.0,
			LandingSpeed:       1.0,
			LandingDescent:     2.0,
			LandingConfirm:     Duration(5 * time.Second),
			WindowSize:         15,
			SmoothingSize:      5,
			InertialWindowSize: 15,
		},
		Session: SessionConfig{
			InactivityTimeout: Duration(5 * time.Minute),
			ReplayInterval:    Duration(1 * time.Second),

			TakeoffSiteRadius:  Distance(500),
			LandingSiteRadius:  Distance(200),
			FallbackSiteRadius: Distance(80),
			FallbackSiteVert:   Distance(100),
		},
		Airspace: AirspaceConfig{
			Path:           "./data/zones.geojson",
			CellResolution: 4,
			NearbyRadius:   Distance(10000),
		},
		Sites: SitesConfig{
			Path: "./data/sites.yaml",
		},
		Alerts: AlertsConfig{
			DedupeCooldown: Duration(3 * time.Minute),
			CeilingAlt:     0,
		},
		Sync: SyncConfig{
			Interval:   Duration(30 * time.Second),
			MaxRetries: 10,
		},
		Remote: RemoteConfig{
			BaseURL:       "",
			Timeout:       Duration(30 * time.Second),
			BackoffBase:   Duration(1 * time.Second),
			BackoffMax:    Duration(60 * time.Second),
			ProbeInterval: Duration(15 * time.Second),
		},
		Relay: RelayConfig{
			Enabled: false,
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT
// save back to disk (to preserve user formatting and comments).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	// Env fallbacks, applied on first run too; never written back to disk
	if cfg.Remote.BaseURL == "" {
		if u := os.Getenv("SOARTRACK_REMOTE_URL"); u != "" {
			cfg.Remote.BaseURL = u
		}
	}
	if cfg.Relay.URL == "" {
		if u := os.Getenv("SOARTRACK_RELAY_URL"); u != "" {
			cfg.Relay.URL = u
		}
	}

	return cfg, nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# soartrack Configuration
# ----------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), nm (nautical miles), ft (feet)

`)
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateDefault writes a default config to the path, refusing to overwrite.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	return Save(path, DefaultConfig())
}
