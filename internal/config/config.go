// Package config loads mobpilot configuration: defaults, then a TOML file,
// then environment overrides (env wins).
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Device   DeviceConfig   `toml:"device"`
	Servers  ServersConfig  `toml:"servers"`
	LLM      LLMConfig      `toml:"llm"`
	Store    StoreConfig    `toml:"store"`
	Trace    TraceConfig    `toml:"trace"`
	Observer ObserverConfig `toml:"observer"`
}

type DeviceConfig struct {
	// Platform is "android" or "ios".
	Platform string `toml:"platform"`
	// Serial pins a specific device; empty picks the first one found.
	Serial string `toml:"serial"`
}

type ServersConfig struct {
	ADBHost string `toml:"adb_host"`
	ADBPort int    `toml:"adb_port"`
	// BridgeURL is the hardware bridge base URL.
	BridgeURL string `toml:"bridge_url"`
	// ScreenAPIURL is the derived screen API base URL.
	ScreenAPIURL string `toml:"screen_api_url"`
	// ScreenAPIListen is the bind address when serving the screen API.
	ScreenAPIListen string `toml:"screen_api_listen"`
}

type LLMConfig struct {
	// Default names the profile used by agents without a mapping.
	Default string `toml:"default"`
	// Profiles is keyed by profile name.
	Profiles map[string]ProfileConfig `toml:"profiles"`
	// Agents maps agent name → profile name.
	Agents map[string]string `toml:"agents"`
}

type ProfileConfig struct {
	Provider    string   `toml:"provider"`
	Model       string   `toml:"model"`
	BaseURL     string   `toml:"base_url"`
	APIKey      string   `toml:"api_key"`
	Temperature *float64 `toml:"temperature"`
	Fallback    string   `toml:"fallback"`
}

type StoreConfig struct {
	// Driver is "sqlite", "postgres", or "" (no persistence).
	Driver string `toml:"driver"`
	// Path is the SQLite database file.
	Path string `toml:"path"`
	// PostgresURL is the pgx connection string.
	PostgresURL string `toml:"postgres_url"`
}

type TraceConfig struct {
	// Dir is where task traces are recorded.
	Dir string `toml:"dir"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
	// Endpoint is the OTLP HTTP collector base endpoint.
	Endpoint string                     `toml:"endpoint"`
	Pricing  map[string]ObserverPricing `toml:"pricing"`
}

// ObserverPricing is USD per million tokens for one model.
type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Device: DeviceConfig{Platform: "android"},
		Servers: ServersConfig{
			ADBHost:         "127.0.0.1",
			ADBPort:         5037,
			BridgeURL:       "http://localhost:9999",
			ScreenAPIURL:    "http://localhost:9998",
			ScreenAPIListen: ":9998",
		},
		LLM: LLMConfig{
			Default: "default",
			Profiles: map[string]ProfileConfig{
				"default": {Provider: "openai", Model: "gpt-4o"},
			},
		},
		Store: StoreConfig{Driver: "sqlite", Path: "mobpilot.db"},
		Trace: TraceConfig{Dir: "traces"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "mobpilot.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("MOBPILOT_PLATFORM"); v != "" {
		cfg.Device.Platform = v
	}
	if v := os.Getenv("MOBPILOT_DEVICE_SERIAL"); v != "" {
		cfg.Device.Serial = v
	}
	if v := os.Getenv("MOBPILOT_ADB_HOST"); v != "" {
		cfg.Servers.ADBHost = v
	}
	if v := os.Getenv("MOBPILOT_ADB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Servers.ADBPort = port
		}
	}
	if v := os.Getenv("MOBPILOT_BRIDGE_URL"); v != "" {
		cfg.Servers.BridgeURL = v
	}
	if v := os.Getenv("MOBPILOT_SCREEN_API_URL"); v != "" {
		cfg.Servers.ScreenAPIURL = v
	}
	if v := os.Getenv("MOBPILOT_API_KEY"); v != "" {
		for name, p := range cfg.LLM.Profiles {
			if p.APIKey == "" {
				p.APIKey = v
				cfg.LLM.Profiles[name] = p
			}
		}
	}
	if v := os.Getenv("MOBPILOT_POSTGRES_URL"); v != "" {
		cfg.Store.Driver = "postgres"
		cfg.Store.PostgresURL = v
	}
	if v := os.Getenv("MOBPILOT_TRACE_DIR"); v != "" {
		cfg.Trace.Dir = v
	}
	if v := os.Getenv("MOBPILOT_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}
	if v := os.Getenv("MOBPILOT_OTLP_ENDPOINT"); v != "" {
		cfg.Observer.Endpoint = v
	}

	return cfg
}
